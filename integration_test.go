//go:build !fasttests

package main

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smtpvoid/logging"
	"smtpvoid/server"
	"smtpvoid/storage"
)

// startServer runs a server on an ephemeral loopback port until the test ends.
func startServer(t *testing.T, cfg *server.Config, store storage.Store) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.NewServer(cfg, store, logging.Discard())
	go func() { _ = srv.Serve(context.Background(), l) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return l.Addr().String()
}

// sendMail delivers one message with a stock SMTP client.
func sendMail(t *testing.T, addr, from string, to []string, body string) {
	t.Helper()
	c, err := gosmtp.Dial(addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Hello("client.example.com"))
	require.NoError(t, c.Mail(from, nil))
	for _, rcpt := range to {
		require.NoError(t, c.Rcpt(rcpt, nil))
	}
	w, err := c.Data()
	require.NoError(t, err)
	_, err = io.WriteString(w, body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, c.Quit())
}

func TestClientDeliveryToMemoryStore(t *testing.T) {
	store := storage.NewMemoryStore()
	addr := startServer(t, server.DefaultConfig(), store)

	sendMail(t, addr, "a@x.com", []string{"b@y.com", "c@y.com"}, "Subject: hi\r\n\r\nhello\r\n")
	sendMail(t, addr, "d@x.com", []string{"e@y.com"}, "second\r\n")

	records := store.Records()
	require.Len(t, records, 2)

	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, "<a@x.com>", records[0].From)
	assert.Equal(t, []string{"<b@y.com>", "<c@y.com>"}, records[0].Recipients)
	assert.Equal(t, "Subject: hi\r\n\r\nhello\r\n", records[0].Body)

	assert.Equal(t, "<d@x.com>", records[1].From)
	assert.Equal(t, []string{"<e@y.com>"}, records[1].Recipients)
}

func TestClientSeesAdvertisedSize(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.MaxMessageSize = 4096
	addr := startServer(t, cfg, storage.NewMemoryStore())

	c, err := gosmtp.Dial(addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Hello("client.example.com"))
	ok, size := c.Extension("SIZE")
	assert.True(t, ok)
	assert.Equal(t, "4096", size)
	require.NoError(t, c.Quit())
}

// Dot-stuffed lines reach the store as sent.
func TestClientDotStuffingIsKept(t *testing.T) {
	store := storage.NewMemoryStore()
	addr := startServer(t, server.DefaultConfig(), store)

	sendMail(t, addr, "a@x.com", []string{"b@y.com"}, ".hidden\r\nvisible\r\n")

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "..hidden\r\nvisible\r\n", records[0].Body)
}

func TestClientRcptWithoutMailIsRejected(t *testing.T) {
	addr := startServer(t, server.DefaultConfig(), storage.NewMemoryStore())

	c, err := gosmtp.Dial(addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Hello("client.example.com"))
	err = c.Rcpt("b@y.com", nil)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 503, smtpErr.Code)
	require.NoError(t, c.Quit())
}

// A failing datastore is invisible to the client unless reporting is enabled.
func TestClientStorageFailure(t *testing.T) {
	t.Run("swallowed", func(t *testing.T) {
		store := storage.NewMemoryStore()
		store.FailWith(assert.AnError)
		addr := startServer(t, server.DefaultConfig(), store)

		sendMail(t, addr, "a@x.com", []string{"b@y.com"}, "lost\r\n")
		assert.Zero(t, store.Len())
	})

	t.Run("reported", func(t *testing.T) {
		store := storage.NewMemoryStore()
		store.FailWith(assert.AnError)
		cfg := server.DefaultConfig()
		cfg.ReportStorageErrors = true
		addr := startServer(t, cfg, store)

		c, err := gosmtp.Dial(addr)
		require.NoError(t, err)
		defer func() { _ = c.Close() }()

		require.NoError(t, c.Hello("client.example.com"))
		require.NoError(t, c.Mail("a@x.com", nil))
		require.NoError(t, c.Rcpt("b@y.com", nil))
		w, err := c.Data()
		require.NoError(t, err)
		_, err = io.WriteString(w, "lost\r\n")
		require.NoError(t, err)

		err = w.Close()
		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 451, smtpErr.Code)
	})
}

// The whole path from client to SQL transaction, against a mocked MySQL.
func TestClientDeliveryToSQLStore(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO mail (`from`, compressed_data) VALUES (?, COMPRESS(?))").
		WithArgs("<a@x.com>", "hello\r\n").
		WillReturnResult(sqlmock.NewResult(9, 1))
	prep := mock.ExpectPrepare("INSERT INTO rcpt (mail_id, rcpt) VALUES (?, ?)")
	prep.ExpectExec().WithArgs(int64(9), "<b@y.com>").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	addr := startServer(t, server.DefaultConfig(), storage.NewSQLStore(db, storage.MySQL))
	sendMail(t, addr, "a@x.com", []string{"b@y.com"}, "hello\r\n")

	assert.NoError(t, mock.ExpectationsWereMet())
}
