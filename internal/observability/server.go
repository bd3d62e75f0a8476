package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server timeouts.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server serves /metrics, /healthz, and /readyz for a long-running process.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the observability HTTP server on addr. metricsHandler
// may be nil to serve health endpoints only.
func NewServer(addr string, metricsHandler http.Handler, logger *slog.Logger, checks ...ReadyCheck) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", HealthHandler())
	mux.Handle("/readyz", ReadyHandler(checks...))

	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

// Start serves until Shutdown is called. It blocks; run it in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("observability server listening", slog.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observability server: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests with a bounded grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("observability shutdown: %w", err)
	}

	return nil
}
