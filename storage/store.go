// Package storage persists completed SMTP envelopes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"smtpvoid/logging"
	"smtpvoid/smtp"
)

// Backend driver names accepted by Open
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMaildir  = "maildir"
	DriverMemory   = "memory"
)

// ErrNotFound is returned by Fetch when no mail has the requested id.
var ErrNotFound = errors.New("mail not found")

// Store persists a finished envelope. Only Complete envelopes can be stored.
type Store interface {
	Store(ctx context.Context, env smtp.Complete) error
	Close() error
}

// Migrator is implemented by backends that manage a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Fetcher is implemented by backends that can read a stored mail back.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) (*Record, error)
}

// Record is a persisted mail read back from a backend.
type Record struct {
	ID         int64
	From       string
	Recipients []string
	Body       string
}

// Error reports the storage operation that failed and its cause.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options selects and tunes a backend.
type Options struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// ResolveDriver returns the backend named by Driver, or inferred from the
// URL scheme. A URL without a recognised scheme is taken as a MySQL DSN.
func (o Options) ResolveDriver() (string, error) {
	if o.Driver != "" {
		switch d := strings.ToLower(o.Driver); d {
		case DriverMySQL, DriverPostgres, DriverMaildir, DriverMemory:
			return d, nil
		case "postgresql":
			return DriverPostgres, nil
		default:
			return "", fmt.Errorf("unknown database driver %q", o.Driver)
		}
	}

	scheme, _, found := strings.Cut(o.URL, "://")
	if !found {
		if o.URL == "" {
			return "", errors.New("database url is required")
		}
		return DriverMySQL, nil
	}
	switch strings.ToLower(scheme) {
	case "mysql":
		return DriverMySQL, nil
	case "postgres", "postgresql":
		return DriverPostgres, nil
	case "maildir":
		return DriverMaildir, nil
	case "memory":
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", scheme)
	}
}

// Open connects the backend described by opts. SQL backends are pinged and,
// with AutoMigrate, have their schema created.
func Open(ctx context.Context, opts Options, logger logging.Logger) (Store, error) {
	driver, err := opts.ResolveDriver()
	if err != nil {
		return nil, err
	}

	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverMaildir:
		return NewMaildirStore(maildirPath(opts.URL), logger)
	}

	store, err := openSQL(ctx, driver, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to datastore", logging.F("driver", driver))

	if opts.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("Datastore schema ready", logging.F("driver", driver))
	}
	return store, nil
}

// maildirPath accepts "maildir:///var/mail/void" or a bare path.
func maildirPath(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimPrefix(raw, "maildir://")
	}
	if u.Host != "" {
		// maildir://relative/dir
		return u.Host + u.Path
	}
	return u.Path
}
