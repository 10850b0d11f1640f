package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/guilhermelawless/nano-discord-bot/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named readiness check, e.g. the chat session or the mute
// store.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness runs every check and reports each result; any failure
// makes the instance unready.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	response := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}
	if err := c.JSON(status, response); err != nil {
		return fmt.Errorf("failed to send readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
