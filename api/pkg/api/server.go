package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bl-hori/auth-platform-sub003/internal/config"
	apiHandler "github.com/bl-hori/auth-platform-sub003/api/pkg/api/handler"
	apiMiddleware "github.com/bl-hori/auth-platform-sub003/api/pkg/middleware"
	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/ratelimit/pkg/ratelimit"
)

// ServerDeps carries the wired components the HTTP surface needs.
type ServerDeps struct {
	DBSession  *db.Session
	Resolver   *credential.Resolver
	Limiter    *ratelimit.Limiter
	Core       apiHandler.DecisionMaker
	Cache      apiHandler.Invalidator
	CacheStats apiHandler.StatsReporter
	Audit      apiHandler.Auditor
	Health     map[string]apiHandler.Pinger
	Registry   *prometheus.Registry
	Logger     zerolog.Logger
}

// Server is the assembled HTTP surface.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
}

// NewServer assembles the echo instance, middleware chain and route
// tables.
func NewServer(cfg *config.Config, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echoMiddleware.RequestID())
	e.Use(apiMiddleware.RequestLogger(deps.Logger))
	e.Use(echoMiddleware.Recover())
	if deps.Registry != nil {
		e.Use(apiMiddleware.RequestMetrics(deps.Registry, MetricsURLSkipper))
	}
	e.Use(apiMiddleware.CORS())
	e.Use(apiMiddleware.Secure())
	e.Use(apiMiddleware.Auth(deps.Resolver, deps.Audit))
	e.Use(apiMiddleware.RateLimit(deps.Limiter))
	e.Use(apiMiddleware.Deadline(cfg.Server.RequestTimeout))
	e.Use(apiMiddleware.NotFoundHandler(EchoUnmatchedPath, "/*"))

	for _, route := range NewSystemAPIRoutes(deps.Health) {
		e.Add(route.Method, route.Path, route.Handler.Handle)
	}

	v1 := e.Group("/v1")
	for _, route := range NewV1APIRoutes(deps.DBSession, deps.Core, deps.Cache, deps.CacheStats, deps.Audit) {
		v1.Add(route.Method, route.Path, route.Handler.Handle)
	}

	if deps.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, cfg: cfg}
}

// Start runs the listener until Shutdown is called.
func (s *Server) Start() error {
	err := s.echo.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
