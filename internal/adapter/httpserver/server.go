package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Server exposes probes, build info and Prometheus metrics. The bot itself
// has no HTTP API.
type Server struct {
	echo         *echo.Echo
	addr         string
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(addr string, reg prometheus.Registerer, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		addr:         addr,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes(NewHTTPMetrics(reg))

	return srv
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
