package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"smtpvoid/smtp"
)

// MemoryStore keeps envelopes in process. It backs the "memory" driver and
// doubles as a recorder in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	failErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes subsequent Store calls fail with err. A nil err restores
// normal behaviour.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Store records env. Ids start at 1.
func (m *MemoryStore) Store(ctx context.Context, env smtp.Complete) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "store", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return &Error{Op: "store", Err: m.failErr}
	}
	m.records = append(m.records, Record{
		ID:         int64(len(m.records) + 1),
		From:       env.Sender(),
		Recipients: env.Recipients(),
		Body:       env.Body(),
	})
	return nil
}

// Records returns a copy of everything stored so far.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, len(m.records))
	for i, rec := range m.records {
		rec.Recipients = slices.Clone(rec.Recipients)
		out[i] = rec
	}
	return out
}

// Len returns the number of stored envelopes.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Fetch returns the record with the given id.
func (m *MemoryStore) Fetch(_ context.Context, id int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 1 || id > int64(len(m.records)) {
		return nil, &Error{Op: "fetch mail", Err: fmt.Errorf("%w: id %d", ErrNotFound, id)}
	}
	rec := m.records[id-1]
	rec.Recipients = slices.Clone(rec.Recipients)
	return &rec, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
