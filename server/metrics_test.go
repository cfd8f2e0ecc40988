package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"smtpvoid/logging"
	"smtpvoid/storage"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetricsServerHealthz(t *testing.T) {
	ms := NewMetricsServer("127.0.0.1:0", logging.Discard())

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected /healthz response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsRecordSessionActivity(t *testing.T) {
	ms := NewMetricsServer("127.0.0.1:0", logging.Discard())

	store := storage.NewMemoryStore()
	input := "HELP\r\nMAIL FROM:<a@x.com>\r\nRCPT TO:<b@y.com>\r\nDATA\r\nhi\r\n.\r\n"
	if _, _, err := runSession(t, newTestConfig(), store, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := scrape(t, ms.Handler())
	for _, want := range []string{
		`smtpvoid_smtp_commands_total{code="500",verb="UNKNOWN"}`,
		`smtpvoid_smtp_commands_total{code="250",verb="DATA"}`,
		`smtpvoid_storage_envelopes_total{result="stored"}`,
		`smtpvoid_storage_store_duration_seconds_count`,
		`smtpvoid_smtp_sessions_total`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestMetricsRecordStorageFailure(t *testing.T) {
	ms := NewMetricsServer("127.0.0.1:0", logging.Discard())

	store := storage.NewMemoryStore()
	store.FailWith(errors.New("disk full"))
	input := "MAIL FROM:<a@x.com>\r\nRCPT TO:<b@y.com>\r\nDATA\r\nhi\r\n.\r\n"
	if _, _, err := runSession(t, newTestConfig(), store, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out := scrape(t, ms.Handler()); !strings.Contains(out, `smtpvoid_storage_envelopes_total{result="failed"}`) {
		t.Error(`metrics output missing result="failed" for a failed store`)
	}
}

func TestMetricsServerShutdown(t *testing.T) {
	ms := NewMetricsServer("127.0.0.1:0", logging.Discard())
	done := make(chan error, 1)
	go func() { done <- ms.ListenAndServe() }()

	if err := ms.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("ListenAndServe returned error: %v", err)
	}
}
