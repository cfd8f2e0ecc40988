package logging

import (
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionLogger carries per-connection context for SMTP sessions
type SessionLogger struct {
	Logger
	sessionID string
	clientIP  string
}

// NewSessionLogger tags every entry with a fresh session id and, when
// conn is a network connection, the peer address.
func NewSessionLogger(logger Logger, conn any) *SessionLogger {
	sessionID := uuid.NewString()
	clientIP := ""
	if nc, ok := conn.(net.Conn); ok {
		if addr := nc.RemoteAddr(); addr != nil {
			clientIP = addr.String()
			if host, _, err := net.SplitHostPort(clientIP); err == nil {
				clientIP = host
			}
		}
	}

	fields := []Field{F("session_id", sessionID)}
	if clientIP != "" {
		fields = append(fields, F("client_ip", clientIP))
	}

	return &SessionLogger{
		Logger:    logger.With(fields...),
		sessionID: sessionID,
		clientIP:  clientIP,
	}
}

// LogConnection logs connection establishment
func (l *SessionLogger) LogConnection(domain string) {
	l.Info("SMTP connection established", F("domain", domain))
}

// LogConnectionClosed logs connection closure
func (l *SessionLogger) LogConnectionClosed(duration time.Duration, err error) {
	if err != nil {
		l.Error("SMTP connection closed with error", err, F("duration_ms", duration.Milliseconds()))
		return
	}
	l.Info("SMTP connection closed", F("duration_ms", duration.Milliseconds()))
}

// LogCommand logs an SMTP command received
func (l *SessionLogger) LogCommand(verb, param, state string) {
	fields := []Field{
		F("command", verb),
		F("smtp_state", state),
	}
	if param != "" {
		fields = append(fields, F("param", param))
	}
	l.Debug("SMTP command received", fields...)
}

// LogResponse logs an SMTP response sent
func (l *SessionLogger) LogResponse(response, command string) {
	code, _, _ := strings.Cut(response, " ")
	if len(code) > 3 {
		// multi-line replies use "250-"
		code = code[:3]
	}

	fields := []Field{
		F("response", response),
		F("response_code", code),
	}
	if command != "" {
		fields = append(fields, F("command", command))
	}

	if strings.HasPrefix(code, "4") || strings.HasPrefix(code, "5") {
		l.Warn("SMTP error response sent", fields...)
		return
	}
	l.Debug("SMTP response sent", fields...)
}

// LogStateTransition logs envelope state changes
func (l *SessionLogger) LogStateTransition(fromState, toState string) {
	l.Debug("SMTP state transition",
		F("from_state", fromState),
		F("to_state", toState))
}

// LogEnvelopeStored logs a successfully persisted message
func (l *SessionLogger) LogEnvelopeStored(from string, to []string, size int, duration time.Duration) {
	l.Info("SMTP message stored",
		F("mail_from", from),
		F("rcpt_to", to),
		F("rcpt_count", len(to)),
		F("message_size", size),
		F("duration_ms", duration.Milliseconds()))
}

// LogStorageFailed logs a message that could not be persisted
func (l *SessionLogger) LogStorageFailed(from string, to []string, size int, err error) {
	l.Error("SMTP message storage failed", err,
		F("mail_from", from),
		F("rcpt_to", to),
		F("message_size", size))
}

// SessionID returns the session id
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

// ClientIP returns the peer IP, empty when not a network connection
func (l *SessionLogger) ClientIP() string {
	return l.clientIP
}
