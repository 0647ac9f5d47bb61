package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
)

// Pinger reports liveness of one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckHandler is an API handler to return health status of the API server
type HealthCheckHandler struct {
	components map[string]Pinger
}

// NewHealthCheckHandler creates and returns a new handler. Components
// are optional named dependency probes.
func NewHealthCheckHandler(components map[string]Pinger) HealthCheckHandler {
	return HealthCheckHandler{components: components}
}

// Handle returns the health status of the API server. The endpoint is
// public and degrades to unhealthy when any probe fails.
func (hch HealthCheckHandler) Handle(c echo.Context) error {
	ahc := model.NewAPIHealthCheck(true, nil)
	if len(hch.components) > 0 {
		ahc.Components = map[string]string{}
	}
	for name, p := range hch.components {
		if err := p.Ping(c.Request().Context()); err != nil {
			msg := err.Error()
			ahc.IsHealthy = false
			ahc.Error = &msg
			ahc.Components[name] = "unavailable"
			continue
		}
		ahc.Components[name] = "ok"
	}
	status := http.StatusOK
	if !ahc.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, ahc)
}
