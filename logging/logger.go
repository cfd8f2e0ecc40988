// Package logging provides structured logging for smtpvoid
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// DEBUG level for debug messages
	DEBUG LogLevel = iota
	// INFO level for information messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

const (
	// DebugLevel represents the debug log level
	DebugLevel = "DEBUG"
	// InfoLevel represents the info log level
	InfoLevel = "INFO"
	// WarnLevel represents the warn log level
	WarnLevel = "WARN"
	// ErrorLevel represents the error log level
	ErrorLevel = "ERROR"
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return DebugLevel
	case INFO:
		return InfoLevel
	case WARN:
		return WarnLevel
	case ERROR:
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// ParseLogLevel converts string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case DebugLevel:
		return DEBUG
	case InfoLevel:
		return INFO
	case WarnLevel, "WARNING":
		return WARN
	case ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// F is a convenience function for creating fields
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	With(fields ...Field) Logger
	SetLevel(level LogLevel)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level          string `koanf:"level"`
	Format         string `koanf:"format"` // "json" or "text"
	Output         string `koanf:"output"` // "stdout", "syslog", "tcp", "udp"
	RemoteAddr     string `koanf:"remote_addr"`
	SyslogFacility string `koanf:"syslog_facility"`
}

// DefaultConfig returns default logging configuration
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:          InfoLevel,
		Format:         "json",
		Output:         "stdout",
		SyslogFacility: "mail",
	}
}

// EnsureDefaults fills zero-valued fields from DefaultConfig.
func (c *LogConfig) EnsureDefaults() {
	def := DefaultConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.SyslogFacility == "" {
		c.SyslogFacility = def.SyslogFacility
	}
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewLogger creates a new logger based on configuration
func NewLogger(config *LogConfig) (Logger, error) {
	switch config.Output {
	case "syslog":
		return NewSyslogLogger(config)
	case "tcp":
		return NewRemoteLogger("tcp", config)
	case "udp":
		return NewRemoteLogger("udp", config)
	case "stdout", "":
		return NewStdoutLogger(config), nil
	default:
		return nil, fmt.Errorf("unknown log output %q", config.Output)
	}
}

// baseLogger provides common functionality
type baseLogger struct {
	level  LogLevel
	format string
	fields map[string]interface{}
}

func newBaseLogger(config *LogConfig) baseLogger {
	return baseLogger{
		level:  ParseLogLevel(config.Level),
		format: config.Format,
		fields: make(map[string]interface{}),
	}
}

// derive returns a copy of the base with extra logger-level fields.
func (l *baseLogger) derive(fields []Field) baseLogger {
	newFields := maps.Clone(l.fields)
	if newFields == nil {
		newFields = make(map[string]interface{})
	}
	for _, field := range fields {
		newFields[field.Key] = field.Value
	}
	return baseLogger{level: l.level, format: l.format, fields: newFields}
}

// formatEntry formats a log entry according to configuration
func (l *baseLogger) formatEntry(level LogLevel, msg string, err error, fields []Field) []byte {
	if level < l.level {
		return nil
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	entry.Fields = maps.Clone(l.fields)
	if entry.Fields == nil {
		entry.Fields = make(map[string]interface{})
	}
	for _, field := range fields {
		entry.Fields[field.Key] = field.Value
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	switch l.format {
	case "text":
		timestamp := entry.Timestamp.Format("2006-01-02T15:04:05Z")
		line := fmt.Sprintf("%s [%s] %s", timestamp, entry.Level, entry.Message)
		if entry.Error != "" {
			line += fmt.Sprintf(" error=%s", entry.Error)
		}
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, entry.Fields[k])
		}
		return []byte(line + "\n")
	default:
		data, err := json.Marshal(entry)
		if err != nil {
			// Fallback to simple message if marshalling fails
			data = []byte(fmt.Sprintf("{\"message\":%q}", entry.Message))
		}
		return append(data, '\n')
	}
}

// writerLogger writes entries to an io.Writer, stdout by default
type writerLogger struct {
	baseLogger
	mu     *sync.Mutex
	writer io.Writer
}

// NewStdoutLogger creates a stdout logger
func NewStdoutLogger(config *LogConfig) Logger {
	return NewWriterLogger(os.Stdout, config)
}

// NewWriterLogger creates a logger writing to w. Writes are serialised so
// concurrent sessions never interleave entries.
func NewWriterLogger(w io.Writer, config *LogConfig) Logger {
	return &writerLogger{
		baseLogger: newBaseLogger(config),
		mu:         &sync.Mutex{},
		writer:     w,
	}
}

func (l *writerLogger) write(data []byte) {
	if data == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Best-effort: ignore write errors
	_, _ = l.writer.Write(data)
}

func (l *writerLogger) Debug(msg string, fields ...Field) {
	l.write(l.formatEntry(DEBUG, msg, nil, fields))
}

func (l *writerLogger) Info(msg string, fields ...Field) {
	l.write(l.formatEntry(INFO, msg, nil, fields))
}

func (l *writerLogger) Warn(msg string, fields ...Field) {
	l.write(l.formatEntry(WARN, msg, nil, fields))
}

func (l *writerLogger) Error(msg string, err error, fields ...Field) {
	l.write(l.formatEntry(ERROR, msg, err, fields))
}

func (l *writerLogger) With(fields ...Field) Logger {
	return &writerLogger{baseLogger: l.derive(fields), mu: l.mu, writer: l.writer}
}

func (l *writerLogger) SetLevel(level LogLevel) {
	l.level = level
}

// remoteLogger writes to remote TCP/UDP endpoint
type remoteLogger struct {
	baseLogger
	protocol string
	addr     string
}

// NewRemoteLogger creates a remote logger
func NewRemoteLogger(protocol string, config *LogConfig) (Logger, error) {
	if config.RemoteAddr == "" {
		return nil, fmt.Errorf("remote address required for %s logging", protocol)
	}

	return &remoteLogger{
		baseLogger: newBaseLogger(config),
		protocol:   protocol,
		addr:       config.RemoteAddr,
	}, nil
}

func (l *remoteLogger) sendLog(data []byte) {
	if data == nil {
		return
	}

	conn, err := net.DialTimeout(l.protocol, l.addr, 2*time.Second)
	if err != nil {
		// Fallback to stdout if remote logging fails
		_, _ = os.Stdout.Write(data)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	_, _ = conn.Write(data)
}

func (l *remoteLogger) Debug(msg string, fields ...Field) {
	l.sendLog(l.formatEntry(DEBUG, msg, nil, fields))
}

func (l *remoteLogger) Info(msg string, fields ...Field) {
	l.sendLog(l.formatEntry(INFO, msg, nil, fields))
}

func (l *remoteLogger) Warn(msg string, fields ...Field) {
	l.sendLog(l.formatEntry(WARN, msg, nil, fields))
}

func (l *remoteLogger) Error(msg string, err error, fields ...Field) {
	l.sendLog(l.formatEntry(ERROR, msg, err, fields))
}

func (l *remoteLogger) With(fields ...Field) Logger {
	return &remoteLogger{baseLogger: l.derive(fields), protocol: l.protocol, addr: l.addr}
}

func (l *remoteLogger) SetLevel(level LogLevel) {
	l.level = level
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() Logger {
	cfg := DefaultConfig()
	return NewWriterLogger(io.Discard, &cfg)
}
