package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger returns a middleware that derives a request-scoped
// zerolog logger and emits one completion line per request.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			reqLogger := logger.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(reqLogger.WithContext(req.Context())))

			start := time.Now()
			err := next(c)
			reqLogger.Info().
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Msg("request completed")
			return err
		}
	}
}
