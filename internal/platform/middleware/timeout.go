package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. The handler
// runs on the request goroutine and must honour the context; a handler that
// fails because the deadline passed is answered with 504. /metrics, /health
// and websocket upgrades are exempt.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if timeout <= 0 || path == "/metrics" || strings.HasPrefix(path, "/health") ||
				c.IsWebSocket() {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if c.Response().Committed {
				return err
			}
			if errors.Is(err, context.DeadlineExceeded) ||
				(err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
			}
			return err
		}
	}
}
