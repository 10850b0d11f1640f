package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/guilhermelawless/nano-discord-bot/internal/platform/correlation"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.ForEvent(c.Request().Context(), "http")
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
