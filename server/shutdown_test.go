package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"smtpvoid/logging"
	"smtpvoid/storage"
)

func waitForSessions(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.ActiveSessions() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d active sessions, got %d", n, srv.ActiveSessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestShutdownWaitsForSessions verifies that Shutdown lets an open session
// finish on its own before returning.
func TestShutdownWaitsForSessions(t *testing.T) {
	srv, addr := startTestServer(t, newTestConfig(), storage.NewMemoryStore())

	c := dial(t, addr)
	c.readLine()
	waitForSessions(t, srv, 1)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- srv.Shutdown(ctx)
	}()

	// new connections are refused once the listener is closed
	time.Sleep(50 * time.Millisecond)
	if conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		_ = conn.Close()
		t.Error("expected dial to fail after Shutdown")
	}

	// the open session still works and ends with QUIT
	if got := c.send("NOOP"); got != "250 Ok" {
		t.Fatalf("NOOP during shutdown = %q", got)
	}
	if got := c.send("QUIT"); got != "221 Bye" {
		t.Fatalf("QUIT during shutdown = %q", got)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not return after the last session ended")
	}
}

// TestShutdownForceClosesOnTimeout verifies that idle clients are
// disconnected once the shutdown context expires.
func TestShutdownForceClosesOnTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := NewServer(newTestConfig(), storage.NewMemoryStore(), logging.Discard())
	go func() { _ = srv.Serve(context.Background(), l) }()

	clients := []*client{dial(t, l.Addr().String()), dial(t, l.Addr().String())}
	for _, c := range clients {
		c.readLine()
	}
	waitForSessions(t, srv, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	for i, c := range clients {
		if _, err := c.r.ReadByte(); err == nil {
			t.Errorf("client %d: expected connection to be closed", i)
		}
	}
	if n := srv.ActiveSessions(); n != 0 {
		t.Errorf("expected no active sessions, got %d", n)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv := NewServer(newTestConfig(), storage.NewMemoryStore(), logging.Discard())
	for i := 0; i < 2; i++ {
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown #%d returned error: %v", i+1, err)
		}
	}
}
