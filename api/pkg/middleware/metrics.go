package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestMetrics returns a middleware that observes request durations
// into a histogram labelled by method, route template and status. The
// skipper decides which routes are tracked.
func RequestMetrics(reg prometheus.Registerer, skip func(echo.Context) bool) echo.MiddlewareFunc {
	durations := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authzd_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: []float64{.005, .01, .025, .05, .1, .2, .5, 1},
	}, []string{"method", "path", "status"})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			durations.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(c.Response().Status),
			).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
