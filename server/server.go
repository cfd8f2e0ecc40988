package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smtpvoid/logging"
	"smtpvoid/storage"
)

// acceptRetryDelay is the pause after a temporary accept failure
const acceptRetryDelay = 50 * time.Millisecond

// Server accepts SMTP connections and runs one Session per connection.
type Server struct {
	config *Config
	store  storage.Store
	logger logging.Logger

	// listeners we opened so they can be closed on shutdown
	listeners   []net.Listener
	listenersMu sync.Mutex

	// active sessions tracking
	conns      map[net.Conn]*Session
	sessionsMu sync.Mutex
	sessionsWG sync.WaitGroup

	// shutdown flag
	shuttingDown atomic.Bool
}

// NewServer creates a server storing envelopes in store.
func NewServer(config *Config, store storage.Store, logger logging.Logger) *Server {
	RegisterMetrics()
	return &Server{
		config: config,
		store:  store,
		logger: logger,
		conns:  make(map[net.Conn]*Session),
	}
}

// ListenAndServe listens on the configured bind address and serves until
// ctx is cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Bind)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Bind, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener. It returns nil once the listener
// is closed by Shutdown or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if !s.addListener(listener) {
		_ = listener.Close()
		return nil
	}
	defer s.removeListener(listener)

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	// in-flight sessions outlive ctx; Shutdown bounds them
	sessionCtx := context.WithoutCancel(ctx)

	s.logger.Info("SMTP server listening",
		logging.F("addr", listener.Addr().String()),
		logging.F("domain", s.config.Domain))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() || ctx.Err() != nil || isClosedErr(err) {
				s.logger.Info("Listener closed, exiting accept loop", logging.F("addr", listener.Addr().String()))
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(acceptRetryDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		session := NewSession(conn, s.config, s.store, s.logger)
		if !s.registerSession(conn, session) {
			_ = conn.Close()
			continue
		}
		go s.handleConnection(sessionCtx, conn, session)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, session *Session) {
	defer s.unregisterSession(conn)
	defer func() {
		if err := conn.Close(); err != nil && !isClosedErr(err) {
			s.logger.Debug("Error closing connection", logging.F("err", err))
		}
	}()

	if err := session.Handle(ctx); err != nil {
		s.logger.Error("Session error", err, logging.F("session_id", session.ID()))
	}
}

func isClosedErr(err error) bool {
	// Some platforms still report the old string instead of net.ErrClosed.
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}

// addListener registers a listener so it can be closed on shutdown. It
// refuses once shutdown has begun; Shutdown sets the flag before taking
// listenersMu, so an accepted listener is always seen by closeAllListeners.
func (s *Server) addListener(l net.Listener) bool {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	if s.shuttingDown.Load() {
		return false
	}
	s.listeners = append(s.listeners, l)
	return true
}

// removeListener removes a registered listener
func (s *Server) removeListener(l net.Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i := range s.listeners {
		if s.listeners[i] == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// registerSession records an active session. It refuses once shutdown has
// begun so the WaitGroup is never added to while Shutdown waits on it.
func (s *Server) registerSession(conn net.Conn, sess *Session) bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if s.shuttingDown.Load() {
		return false
	}
	s.conns[conn] = sess
	s.sessionsWG.Add(1)
	return true
}

// unregisterSession removes a session and decrements the waitgroup
func (s *Server) unregisterSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.conns, conn)
	s.sessionsWG.Done()
}

// ActiveSessions returns the number of sessions currently being served.
func (s *Server) ActiveSessions() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.conns)
}

// closeAllListeners closes all registered listeners to stop accepting new connections
func (s *Server) closeAllListeners() {
	s.listenersMu.Lock()
	listeners := append([]net.Listener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, l := range listeners {
		if err := l.Close(); err != nil && !isClosedErr(err) {
			s.logger.Debug("Error closing listener", logging.F("err", err))
		}
	}
}

// closeAllConns force-closes every open client connection.
func (s *Server) closeAllConns() {
	s.sessionsMu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.sessionsMu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Shutdown stops accepting connections and waits for open sessions to end.
// When ctx expires first the remaining connections are closed and ctx's
// error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessionsMu.Lock()
	already := s.shuttingDown.Swap(true)
	s.sessionsMu.Unlock()
	if already {
		return nil
	}

	s.closeAllListeners()

	count := s.ActiveSessions()
	if count == 0 {
		s.logger.Info("No active sessions; shutdown complete")
		return nil
	}
	s.logger.Info("Shutting down: waiting for active sessions", logging.F("sessions", count))

	done := make(chan struct{})
	go func() {
		s.sessionsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All sessions closed; shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Shutdown timed out; closing remaining connections", logging.F("sessions", s.ActiveSessions()))
		s.closeAllConns()
		<-done
		return ctx.Err()
	}
}
