package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"smtpvoid/logging"
	"smtpvoid/smtp"
	"smtpvoid/storage"
)

type commandHandler func(ctx context.Context, cmd smtp.Command) (string, error)

// Session represents a single SMTP client connection
type Session struct {
	rw        io.ReadWriter
	reader    *smtp.LineReader
	config    *Config
	store     storage.Store
	logger    *logging.SessionLogger
	envelope  smtp.Envelope
	closed    bool
	startTime time.Time
	handlers  map[string]commandHandler
}

// NewSession creates a session over rw. The caller owns rw and closes it
// after Handle returns.
func NewSession(rw io.ReadWriter, config *Config, store storage.Store, logger logging.Logger) *Session {
	s := &Session{
		rw:        rw,
		reader:    smtp.NewLineReader(rw),
		config:    config,
		store:     store,
		logger:    logging.NewSessionLogger(logger, rw),
		envelope:  smtp.Empty{},
		startTime: time.Now(),
	}
	s.handlers = map[string]commandHandler{
		smtp.CmdHELO: s.handleHelo,
		smtp.CmdEHLO: s.handleHelo,
		smtp.CmdMAIL: s.handleMail,
		smtp.CmdRCPT: s.handleRcpt,
		smtp.CmdDATA: s.handleData,
		smtp.CmdRSET: s.handleRset,
		smtp.CmdNOOP: s.handleNoop,
		smtp.CmdQUIT: s.handleQuit,
		smtp.CmdVRFY: s.handleVrfy,
	}
	return s
}

// ID returns the session id used in log entries.
func (s *Session) ID() string {
	return s.logger.SessionID()
}

// Handle greets the client and processes commands until QUIT, end of
// stream or an I/O error. End of stream is not an error.
func (s *Session) Handle(ctx context.Context) (err error) {
	s.logger.LogConnection(s.config.Domain)
	recordSessionOpened()
	defer func() {
		recordSessionClosed()
		s.logger.LogConnectionClosed(time.Since(s.startTime), err)
	}()

	if err := s.writeResponse(smtp.GreetingReply(s.config.Domain), ""); err != nil {
		return err
	}

	for !s.closed {
		s.extendDeadline()

		line, err := s.reader.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		if err := s.handleLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleLine(ctx context.Context, line []byte) error {
	cmd := smtp.ParseCommand(line)
	if s.config.CaseInsensitiveCommands {
		cmd = cmd.Fold()
	}
	s.logger.LogCommand(cmd.Verb, cmd.Param, s.envelope.State().String())

	reply := smtp.ReplySyntaxError
	if handler, ok := s.handlers[cmd.Verb]; ok {
		var err error
		if reply, err = handler(ctx, cmd); err != nil {
			return err
		}
	}

	recordCommand(cmd, reply)
	return s.writeResponse(reply, cmd.Verb)
}

func (s *Session) handleHelo(_ context.Context, cmd smtp.Command) (string, error) {
	if cmd.Verb == smtp.CmdHELO {
		return smtp.HeloReply(cmd.Param), nil
	}
	return smtp.EhloReply(s.config.Domain, cmd.Param, s.config.MaxMessageSize), nil
}

func (s *Session) handleMail(_ context.Context, cmd smtp.Command) (string, error) {
	sender, ok := smtp.ParseMailFrom(cmd.Param)
	if !ok {
		return smtp.ReplySyntaxError, nil
	}
	s.setEnvelope(smtp.Begin(sender))
	return smtp.ReplyOK, nil
}

func (s *Session) handleRcpt(_ context.Context, cmd smtp.Command) (string, error) {
	rcpt, ok := smtp.ParseRcptTo(cmd.Param)
	if !ok {
		return smtp.ReplySyntaxError, nil
	}

	switch env := s.envelope.(type) {
	case smtp.HasSender:
		s.setEnvelope(env.AddRecipient(rcpt))
	case smtp.HasRecipients:
		s.setEnvelope(env.AddRecipient(rcpt))
	default:
		return smtp.ReplyBadSequence, nil
	}
	return smtp.ReplyOK, nil
}

func (s *Session) handleData(ctx context.Context, cmd smtp.Command) (string, error) {
	env, ok := s.envelope.(smtp.HasRecipients)
	if !ok {
		return smtp.ReplyBadSequence, nil
	}

	if err := s.writeResponse(smtp.ReplyStartData, cmd.Verb); err != nil {
		return "", err
	}

	body, err := s.reader.ReadBodyFunc(s.extendDeadline)
	if err != nil {
		return "", fmt.Errorf("read message body: %w", err)
	}

	complete := env.Complete(body)
	s.setEnvelope(complete)
	storeErr := s.storeEnvelope(ctx, complete)
	s.setEnvelope(smtp.Empty{})

	if storeErr != nil && s.config.ReportStorageErrors {
		return smtp.ReplyLocalError, nil
	}
	return smtp.ReplyOK, nil
}

// storeEnvelope persists env and logs the outcome. Failures are returned
// so the caller can decide what the client sees.
func (s *Session) storeEnvelope(ctx context.Context, env smtp.Complete) error {
	start := time.Now()
	err := s.store.Store(ctx, env)
	duration := time.Since(start)
	recordStore(duration, err)

	if err != nil {
		s.logger.LogStorageFailed(env.Sender(), env.Recipients(), len(env.Body()), err)
		return err
	}
	s.logger.LogEnvelopeStored(env.Sender(), env.Recipients(), len(env.Body()), duration)
	return nil
}

func (s *Session) handleRset(_ context.Context, _ smtp.Command) (string, error) {
	s.setEnvelope(smtp.Empty{})
	return smtp.ReplyOK, nil
}

func (s *Session) handleNoop(_ context.Context, _ smtp.Command) (string, error) {
	return smtp.ReplyOK, nil
}

func (s *Session) handleQuit(_ context.Context, _ smtp.Command) (string, error) {
	s.closed = true
	return smtp.ReplyBye, nil
}

func (s *Session) handleVrfy(_ context.Context, _ smtp.Command) (string, error) {
	return smtp.ReplyCannotVerify, nil
}

// setEnvelope replaces the envelope. Transitions the state machine does not
// allow are programming errors.
func (s *Session) setEnvelope(next smtp.Envelope) {
	from, to := s.envelope.State(), next.State()
	if !from.CanTransitionTo(to) {
		panic(fmt.Sprintf("invalid envelope transition %s -> %s", from, to))
	}
	if from != to {
		s.logger.LogStateTransition(from.String(), to.String())
	}
	s.envelope = next
}

// writeResponse sends one reply, adding the line terminator.
func (s *Session) writeResponse(response, command string) error {
	if _, err := io.WriteString(s.rw, response+"\r\n"); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	s.logger.LogResponse(response, command)
	return nil
}

// extendDeadline applies the idle timeout to the next read when the stream
// supports deadlines.
func (s *Session) extendDeadline() {
	if s.config.IdleTimeout <= 0 {
		return
	}
	conn, ok := s.rw.(net.Conn)
	if !ok {
		return
	}
	if err := conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout)); err != nil {
		s.logger.Debug("Failed to set read deadline", logging.F("err", err))
	}
}
