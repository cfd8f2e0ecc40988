// Package server provides the SMTP server implementation for smtpvoid.
package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"smtpvoid/logging"
	"smtpvoid/smtp"
	"smtpvoid/storage"
)

const (
	// DefaultBindAddress is the address the SMTP listener binds to
	DefaultBindAddress = "0.0.0.0:25"
	// DefaultShutdownTimeout is the graceful shutdown timeout used by the CLI
	DefaultShutdownTimeout = 10 * time.Second
)

// Config represents the server configuration.
type Config struct {
	Bind           string          `koanf:"bind"`
	Domain         string          `koanf:"domain"`
	MaxMessageSize int             `koanf:"max_message_size"`
	Database       storage.Options `koanf:"database"`

	// MetricsAddress enables the Prometheus endpoint when set
	MetricsAddress string `koanf:"metrics_address"`
	// IdleTimeout bounds each read from a client; zero waits forever
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// CaseInsensitiveCommands folds verbs to upper case before dispatch
	CaseInsensitiveCommands bool `koanf:"case_insensitive_commands"`
	// ReportStorageErrors replies 451 instead of 250 when a store fails
	ReportStorageErrors bool `koanf:"report_storage_errors"`

	// Logging configuration
	LogConfig logging.LogConfig `koanf:"log"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.EnsureDefaults()
	return cfg
}

// EnsureDefaults sets zero-valued fields to their defaults.
func (c *Config) EnsureDefaults() {
	if c.Bind == "" {
		c.Bind = DefaultBindAddress
	}
	if c.Domain == "" {
		c.Domain = smtp.DefaultDomain
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = smtp.DefaultMaxMessageSize
	}
	c.LogConfig.EnsureDefaults()
}

// Validate reports configuration that the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("invalid bind address %q: %w", c.Bind, err))
	}
	if c.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddress); err != nil {
			errs = append(errs, fmt.Errorf("invalid metrics address %q: %w", c.MetricsAddress, err))
		}
		if c.MetricsAddress == c.Bind {
			errs = append(errs, errors.New("metrics address must differ from bind address"))
		}
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, fmt.Errorf("max message size must not be negative, got %d", c.MaxMessageSize))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout))
	}
	if _, err := c.Database.ResolveDriver(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		errs = append(errs, errors.New("database pool limits must not be negative"))
	}

	return errors.Join(errs...)
}
