package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smtpvoid/logging"
	"smtpvoid/smtp"
)

var (
	registerOnce sync.Once

	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smtpvoid",
			Subsystem: "smtp",
			Name:      "sessions_total",
			Help:      "Total SMTP sessions accepted.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "smtpvoid",
			Subsystem: "smtp",
			Name:      "sessions_active",
			Help:      "SMTP sessions currently open.",
		},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtpvoid",
			Subsystem: "smtp",
			Name:      "commands_total",
			Help:      "SMTP commands handled, by verb and reply code.",
		},
		[]string{"verb", "code"},
	)
	envelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smtpvoid",
			Subsystem: "storage",
			Name:      "envelopes_total",
			Help:      "Completed envelopes handed to storage, by result.",
		},
		[]string{"result"},
	)
	storeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "smtpvoid",
			Subsystem: "storage",
			Name:      "store_duration_seconds",
			Help:      "Time spent persisting one envelope.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionsTotal, sessionsActive, commandsTotal, envelopesTotal, storeDuration)
	})
}

func recordSessionOpened() {
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func recordSessionClosed() {
	sessionsActive.Dec()
}

// recordCommand counts a handled command. Unknown verbs share one label so
// arbitrary client input can't grow the label set.
func recordCommand(cmd smtp.Command, reply string) {
	verb := cmd.Verb
	if !cmd.IsKnown() {
		verb = "UNKNOWN"
	}
	commandsTotal.WithLabelValues(verb, strconv.Itoa(smtp.ReplyCode(reply))).Inc()
}

func recordStore(duration time.Duration, err error) {
	result := "stored"
	if err != nil {
		result = "failed"
	}
	envelopesTotal.WithLabelValues(result).Inc()
	storeDuration.Observe(duration.Seconds())
}

// MetricsServer exposes /metrics and /healthz over HTTP.
type MetricsServer struct {
	server *http.Server
	logger logging.Logger
}

// NewMetricsServer builds the HTTP endpoint; it does not start listening.
func NewMetricsServer(addr string, logger logging.Logger) *MetricsServer {
	RegisterMetrics()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (m *MetricsServer) Handler() http.Handler {
	return m.server.Handler
}

// Serve accepts HTTP connections on l until Shutdown is called.
func (m *MetricsServer) Serve(l net.Listener) error {
	m.logger.Info("Metrics endpoint listening", logging.F("addr", l.Addr().String()))
	if err := m.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (m *MetricsServer) ListenAndServe() error {
	l, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return err
	}
	return m.Serve(l)
}

// Shutdown stops the HTTP endpoint.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
