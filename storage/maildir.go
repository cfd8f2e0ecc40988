package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"smtpvoid/logging"
	"smtpvoid/smtp"
)

const (
	// MaildirDirPermissions holds the permissions used for maildir directories
	MaildirDirPermissions = 0750
	// MaildirFilePermissions holds the permissions used for maildir message files
	MaildirFilePermissions = 0600
)

var messageCounter atomic.Int64

// MaildirStore delivers envelopes as files in Maildir layout, for running
// without a database.
type MaildirStore struct {
	Directory string
	hostname  string
	logger    logging.Logger
}

// NewMaildirStore creates the new/, cur/ and tmp/ directories under directory.
func NewMaildirStore(directory string, logger logging.Logger) (*MaildirStore, error) {
	if directory == "" {
		return nil, errors.New("maildir directory is required")
	}

	for _, subdir := range []string{"new", "cur", "tmp"} {
		path := filepath.Join(directory, subdir)
		if err := os.MkdirAll(path, MaildirDirPermissions); err != nil {
			return nil, &Error{Op: "create maildir", Err: fmt.Errorf("%s: %w", subdir, err)}
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "smtpvoid"
	}

	return &MaildirStore{
		Directory: directory,
		hostname:  hostname,
		logger:    logger,
	}, nil
}

// Store writes env to tmp/ and then renames it into new/.
func (m *MaildirStore) Store(ctx context.Context, env smtp.Complete) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "store", Err: err}
	}
	now := time.Now()

	tmpFile, err := os.CreateTemp(filepath.Join(m.Directory, "tmp"), "msg-*")
	if err != nil {
		return &Error{Op: "create temp file", Err: err}
	}
	tmpPath := tmpFile.Name()

	if err := validatePathWithinDir(m.Directory, tmpPath); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return &Error{Op: "create temp file", Err: err}
	}

	if chmodErr := tmpFile.Chmod(MaildirFilePermissions); chmodErr != nil {
		m.logger.Warn("Failed to chmod temp file", logging.F("path", tmpPath), logging.F("err", chmodErr))
	}

	writeErr := writeEnvelope(tmpFile, env, m.hostname, now)
	if closeErr := tmpFile.Close(); closeErr != nil {
		writeErr = errors.Join(writeErr, closeErr)
	}
	if writeErr != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			m.logger.Error("Failed to remove temp file", rmErr, logging.F("path", tmpPath))
		}
		return &Error{Op: "write message", Err: writeErr}
	}

	newPath := filepath.Join(m.Directory, "new", generateMailFilename(now, &messageCounter, m.hostname))
	if err := os.Rename(tmpPath, newPath); err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			m.logger.Error("Failed to remove temp file after rename failure", rmErr, logging.F("path", tmpPath))
		}
		return &Error{Op: "deliver message", Err: err}
	}

	m.logger.Debug("Message delivered to maildir", logging.F("path", newPath))
	return nil
}

// ListMessages lists message files in new/ and cur/.
func (m *MaildirStore) ListMessages() ([]string, error) {
	var all []string
	for _, subdir := range []string{"new", "cur"} {
		files, err := filepath.Glob(filepath.Join(m.Directory, subdir, "*"))
		if err != nil {
			return nil, fmt.Errorf("failed to list messages in %s: %w", subdir, err)
		}
		all = append(all, files...)
	}
	return all, nil
}

// Close is a no-op.
func (m *MaildirStore) Close() error { return nil }

// generateMailFilename generates a maildir-compliant filename
func generateMailFilename(now time.Time, counter *atomic.Int64, hostname string) string {
	c := counter.Add(1)
	unique := fmt.Sprintf("%d_%d_%d", now.UnixMicro(), os.Getpid(), c)
	return fmt.Sprintf("%d.%s.%s", now.Unix(), unique, hostname)
}

// validatePathWithinDir ensures targetPath is inside baseDir
func validatePathWithinDir(baseDir, targetPath string) error {
	relPath, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(targetPath))
	if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return fmt.Errorf("invalid file path: path traversal detected")
	}
	return nil
}

// writeEnvelope prepends the envelope as trace headers; the DATA payload
// follows untouched.
func writeEnvelope(file *os.File, env smtp.Complete, hostname string, now time.Time) error {
	var hdr strings.Builder
	fmt.Fprintf(&hdr, "Return-Path: %s\r\n", strings.TrimSpace(env.Sender()))
	for _, rcpt := range env.Recipients() {
		fmt.Fprintf(&hdr, "Delivered-To: %s\r\n", strings.TrimSpace(rcpt))
	}
	fmt.Fprintf(&hdr, "Received: by %s (smtpvoid); %s\r\n", hostname, now.Format(time.RFC1123Z))

	if _, err := file.WriteString(hdr.String()); err != nil {
		return err
	}
	_, err := file.WriteString(env.Body())
	return err
}
