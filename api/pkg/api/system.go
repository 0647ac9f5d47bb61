package api

import (
	"net/http"

	apiHandler "github.com/bl-hori/auth-platform-sub003/api/pkg/api/handler"
)

// NewSystemAPIRoutes returns API routes that provide system level functions
func NewSystemAPIRoutes(components map[string]apiHandler.Pinger) []Route {
	apiRoutes := []Route{
		// Health check endpoint
		{
			Path:    "/actuator/health",
			Method:  http.MethodGet,
			Handler: apiHandler.NewHealthCheckHandler(components),
		},
	}

	return apiRoutes
}

// IsSystemRoute returns true for a path registered as SystemAPIRoute
func IsSystemRoute(p string) bool {
	routes := NewSystemAPIRoutes(nil)
	for _, r := range routes {
		if r.Path == p {
			return true
		}
	}

	return false
}
