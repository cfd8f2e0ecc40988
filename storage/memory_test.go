package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smtpvoid/smtp"
)

func TestMemoryStoreRecordsInOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, sampleEnvelope()))
	require.NoError(t, store.Store(ctx, smtp.Begin("<z@x.com>").AddRecipient("<q@y.com>").Complete("two\r\n")))

	recs := store.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].ID)
	assert.Equal(t, []string{"<b@y.com>", "<c@y.com>"}, recs[0].Recipients)
	assert.Equal(t, "two\r\n", recs[1].Body)

	rec, err := store.Fetch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "<z@x.com>", rec.From)

	_, err = store.Fetch(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreFailWith(t *testing.T) {
	store := NewMemoryStore()
	cause := errors.New("offline")
	store.FailWith(cause)

	err := store.Store(context.Background(), sampleEnvelope())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, store.Len())

	store.FailWith(nil)
	assert.NoError(t, store.Store(context.Background(), sampleEnvelope()))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreRespectsCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Store(ctx, sampleEnvelope()), context.Canceled)
}

func TestMemoryStoreRecordsAreCopies(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Store(context.Background(), sampleEnvelope()))

	recs := store.Records()
	recs[0].Recipients[0] = "<evil@z.com>"
	assert.Equal(t, "<b@y.com>", store.Records()[0].Recipients[0])
}
