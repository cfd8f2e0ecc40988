package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// PostgreSQL database/sql driver
	_ "github.com/lib/pq"

	"smtpvoid/smtp"
)

// SQLStore writes envelopes to the mail and rcpt tables.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func openSQL(ctx context.Context, driver string, opts Options) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.URL
	if driver == DriverMySQL {
		if dsn, err = MySQLDSN(opts.URL); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &Error{Op: "ping", Err: err}
	}
	return NewSQLStore(db, d), nil
}

// Store inserts the mail row and one rcpt row per recipient in a single
// repeatable-read transaction. Nothing is written unless every insert
// succeeds.
func (s *SQLStore) Store(ctx context.Context, env smtp.Complete) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return &Error{Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	mailID, err := s.insertMail(ctx, tx, env)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.insertRcpt)
	if err != nil {
		return &Error{Op: "prepare rcpt", Err: err}
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rcpt := range env.Recipients() {
		if _, err := stmt.ExecContext(ctx, mailID, rcpt); err != nil {
			return &Error{Op: "insert rcpt", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

func (s *SQLStore) insertMail(ctx context.Context, tx *sql.Tx, env smtp.Complete) (int64, error) {
	if s.dialect.returningID {
		var id int64
		err := tx.QueryRowContext(ctx, s.dialect.insertMail, env.Sender(), CompressBody(env.Body())).Scan(&id)
		if err != nil {
			return 0, &Error{Op: "insert mail", Err: err}
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx, s.dialect.insertMail, env.Sender(), env.Body())
	if err != nil {
		return 0, &Error{Op: "insert mail", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &Error{Op: "insert mail", Err: fmt.Errorf("last insert id: %w", err)}
	}
	return id, nil
}

// Fetch reads a stored mail with its recipients in RCPT order.
func (s *SQLStore) Fetch(ctx context.Context, id int64) (*Record, error) {
	var (
		from string
		data []byte
	)
	err := s.db.QueryRowContext(ctx, s.dialect.selectMail, id).Scan(&from, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Op: "fetch mail", Err: fmt.Errorf("%w: id %d", ErrNotFound, id)}
	}
	if err != nil {
		return nil, &Error{Op: "fetch mail", Err: err}
	}

	rec := &Record{ID: id, From: from, Body: string(data)}
	if !s.dialect.compressInDB {
		if rec.Body, err = DecompressBody(data); err != nil {
			return nil, &Error{Op: "fetch mail", Err: err}
		}
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.selectRcpts, id)
	if err != nil {
		return nil, &Error{Op: "fetch rcpt", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var rcpt string
		if err := rows.Scan(&rcpt); err != nil {
			return nil, &Error{Op: "fetch rcpt", Err: err}
		}
		rec.Recipients = append(rec.Recipients, rcpt)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "fetch rcpt", Err: err}
	}
	return rec, nil
}

// Migrate creates the mail and rcpt tables when they don't exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &Error{Op: "migrate", Err: err}
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
