package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/cache/pkg/cache"
)

// StatsReporter reports decision cache hit/miss counters.
type StatsReporter interface {
	Stats() cache.Stats
}

// CacheStatsHandler is an API handler exposing decision cache counters
type CacheStatsHandler struct {
	cache StatsReporter
}

// NewCacheStatsHandler creates and returns a new handler
func NewCacheStatsHandler(cache StatsReporter) CacheStatsHandler {
	return CacheStatsHandler{cache: cache}
}

// Handle answers GET /v1/admin/cache/stats
func (csh CacheStatsHandler) Handle(c echo.Context) error {
	if _, err := requestPrincipal(c); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, csh.cache.Stats())
}
