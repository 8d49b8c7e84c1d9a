package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbengine/internal/config"
)

// Server runs the engine's /healthz and /metrics HTTP surface. Grounded
// on the teacher's internal/api/server.go http.Server lifecycle shape
// (fixed timeouts, Start/Stop), with the dashboard-specific routes and
// the WebSocket hub removed.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer builds the HTTP server. provider feeds /healthz; /metrics
// serves the default Prometheus registry.
func NewServer(cfg config.DashboardConfig, provider StateProvider, logger *slog.Logger) *Server {
	handlers := NewHandlers(provider, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "api_server"),
	}
}

// Start runs the server. Blocks until Stop or a fatal listener error.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
