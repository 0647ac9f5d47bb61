package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// DefaultRequestTimeout bounds end-to-end request handling. Per-hop
// budgets downstream are all shorter, so the ceiling fires only when
// several hops degrade at once.
const DefaultRequestTimeout = 200 * time.Millisecond

// Deadline returns a middleware that attaches a per-request deadline to
// the request context. Handlers observe the expiry through their
// context-aware calls.
func Deadline(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsPublicPath(c.Request().URL.Path) {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
