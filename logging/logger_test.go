package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warn":    WARN,
		"Warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := LogConfig{Level: "debug", Format: "json"}
	logger := NewWriterLogger(&buf, &cfg).With(F("component", "test"))

	logger.Error("boom", errors.New("disk full"), F("id", 7))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry.Level != ErrorLevel || entry.Message != "boom" || entry.Error != "disk full" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["component"] != "test" || entry.Fields["id"] != float64(7) {
		t.Errorf("unexpected fields: %v", entry.Fields)
	}
}

func TestWriterLoggerText(t *testing.T) {
	var buf bytes.Buffer
	cfg := LogConfig{Level: "info", Format: "text"}
	logger := NewWriterLogger(&buf, &cfg)

	logger.Info("hello", F("b", 2), F("a", 1))

	line := buf.String()
	if !strings.Contains(line, "[INFO] hello a=1 b=2") {
		t.Errorf("unexpected text line %q", line)
	}
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	cfg := LogConfig{Level: "warn", Format: "text"}
	logger := NewWriterLogger(&buf, &cfg)

	logger.Debug("dropped")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below WARN, got %q", buf.String())
	}

	logger.SetLevel(DEBUG)
	logger.Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected debug entry after SetLevel, got %q", buf.String())
	}
}

func TestWithDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := LogConfig{Level: "info", Format: "text"}
	parent := NewWriterLogger(&buf, &cfg)
	_ = parent.With(F("child", true))

	parent.Info("parent")
	if strings.Contains(buf.String(), "child") {
		t.Errorf("child field leaked into parent: %q", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewLogger(&cfg); err != nil {
		t.Fatalf("stdout logger: %v", err)
	}

	cfg.Output = "tcp"
	if _, err := NewLogger(&cfg); err == nil {
		t.Error("expected error for tcp without remote address")
	}

	cfg.Output = "carrier-pigeon"
	if _, err := NewLogger(&cfg); err == nil {
		t.Error("expected error for unknown output")
	}
}

func TestEnsureDefaults(t *testing.T) {
	cfg := LogConfig{Format: "text"}
	cfg.EnsureDefaults()
	if cfg.Level != InfoLevel || cfg.Format != "text" || cfg.Output != "stdout" || cfg.SyslogFacility != "mail" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
