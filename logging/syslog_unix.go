//go:build !windows
// +build !windows

package logging

import (
	"fmt"
	"log/syslog"
)

var syslogFacilities = map[string]syslog.Priority{
	"mail":   syslog.LOG_MAIL,
	"daemon": syslog.LOG_DAEMON,
	"local0": syslog.LOG_LOCAL0,
	"local1": syslog.LOG_LOCAL1,
	"local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3,
	"local4": syslog.LOG_LOCAL4,
	"local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6,
	"local7": syslog.LOG_LOCAL7,
}

// syslogLogger writes to syslog (unix-like systems)
type syslogLogger struct {
	baseLogger
	writer *syslog.Writer
}

// NewSyslogLogger creates a syslog logger on unix-like systems
func NewSyslogLogger(config *LogConfig) (Logger, error) {
	facility, ok := syslogFacilities[config.SyslogFacility]
	if !ok {
		facility = syslog.LOG_MAIL
	}

	writer, err := syslog.New(syslog.LOG_INFO|facility, "smtpvoid")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}

	return &syslogLogger{baseLogger: newBaseLogger(config), writer: writer}, nil
}

func (l *syslogLogger) logToSyslog(level LogLevel, data []byte) {
	if data == nil {
		return
	}

	msg := string(data)
	switch level {
	case DEBUG:
		_ = l.writer.Debug(msg)
	case INFO:
		_ = l.writer.Info(msg)
	case WARN:
		_ = l.writer.Warning(msg)
	case ERROR:
		_ = l.writer.Err(msg)
	}
}

func (l *syslogLogger) Debug(msg string, fields ...Field) {
	l.logToSyslog(DEBUG, l.formatEntry(DEBUG, msg, nil, fields))
}

func (l *syslogLogger) Info(msg string, fields ...Field) {
	l.logToSyslog(INFO, l.formatEntry(INFO, msg, nil, fields))
}

func (l *syslogLogger) Warn(msg string, fields ...Field) {
	l.logToSyslog(WARN, l.formatEntry(WARN, msg, nil, fields))
}

func (l *syslogLogger) Error(msg string, err error, fields ...Field) {
	l.logToSyslog(ERROR, l.formatEntry(ERROR, msg, err, fields))
}

func (l *syslogLogger) With(fields ...Field) Logger {
	return &syslogLogger{baseLogger: l.derive(fields), writer: l.writer}
}

func (l *syslogLogger) SetLevel(level LogLevel) { l.level = level }
