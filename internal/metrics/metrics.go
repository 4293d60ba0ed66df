// Package metrics exposes Prometheus collectors for the attendance daemon
// and the HTTP server that serves them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clockcord_sessions_active",
			Help: "Number of sessions currently clocked in",
		},
	)

	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockcord_session_transitions_total",
			Help: "Session state transitions applied",
		},
		[]string{"event"},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockcord_sessions_ended_total",
			Help: "Sessions ended, by reason",
		},
		[]string{"reason"},
	)

	SessionWorkedSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clockcord_session_worked_seconds",
			Help:    "Effective worked time of ended sessions",
			Buckets: []float64{60, 300, 900, 1800, 3600, 2 * 3600, 4 * 3600, 8 * 3600, 12 * 3600},
		},
	)

	// Command metrics
	CommandRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockcord_command_rejections_total",
			Help: "User commands rejected, by error",
		},
		[]string{"command", "error"},
	)

	// Watchdog metrics
	WatchdogChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockcord_watchdog_checks_total",
			Help: "Watchdog presence checks, by outcome",
		},
		[]string{"outcome"},
	)

	// Storage metrics
	LedgerWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockcord_ledger_write_errors_total",
			Help: "Ledger flushes that failed",
		},
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockcord_notifications_total",
			Help: "Notifications delivered, by sink and result",
		},
		[]string{"sink", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		SessionTransitions,
		SessionsEnded,
		SessionWorkedSeconds,
		CommandRejections,
		WatchdogChecks,
		LedgerWriteErrors,
		NotificationsSent,
	)
}

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Server is the metrics HTTP server.
type Server struct {
	server   *http.Server
	logger   *slog.Logger
	listener net.Listener
}

// NewServer creates a metrics server for addr. It serves /metrics and /health.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Start binds the listen address and serves in the background. Bind
// errors are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("starting metrics server", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping metrics server")
	return s.server.Shutdown(ctx)
}
