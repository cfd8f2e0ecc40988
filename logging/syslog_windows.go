//go:build windows
// +build windows

package logging

// NewSyslogLogger falls back to stdout; syslog isn't available on Windows.
func NewSyslogLogger(config *LogConfig) (Logger, error) {
	return NewStdoutLogger(config), nil
}
