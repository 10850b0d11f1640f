package httpserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// rateLimit throttles scrapers and probes per client IP.
type rateLimit struct {
	PerSecond float64
	Burst     int
	// Idle limiters are dropped after Expiry.
	Expiry time.Duration
}

var defaultRateLimit = rateLimit{PerSecond: 20, Burst: 40, Expiry: 5 * time.Minute}

// middleware builds the echo limiter. Liveness probes are never throttled so
// an orchestrator cannot kill the bot for scraping too often.
func (r rateLimit) middleware() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(r.PerSecond),
		Burst:     r.Burst,
		ExpiresIn: r.Expiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/health/live")
		},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			slog.DebugContext(c.Request().Context(), "Request throttled", "client", identifier, "path", c.Request().URL.Path)
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	})
}
