package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bl-hori/auth-platform-sub003/internal/config"
	"github.com/bl-hori/auth-platform-sub003/api/pkg/api"
	apiHandler "github.com/bl-hori/auth-platform-sub003/api/pkg/api/handler"
	"github.com/bl-hori/auth-platform-sub003/audit/pkg/pipeline"
	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/auth/pkg/jwks"
	"github.com/bl-hori/auth-platform-sub003/cache/pkg/cache"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
	"github.com/bl-hori/auth-platform-sub003/decision/pkg/decision"
	"github.com/bl-hori/auth-platform-sub003/decision/pkg/roles"
	"github.com/bl-hori/auth-platform-sub003/policy/pkg/engine"
	"github.com/bl-hori/auth-platform-sub003/ratelimit/pkg/ratelimit"
)

const (
	dbMaxOpenConns  = 20
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authorization API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// redisPinger adapts the redis client to the health probe surface.
type redisPinger struct {
	client redis.UniversalClient
}

func (rp redisPinger) Ping(ctx context.Context) error {
	return rp.client.Ping(ctx).Err()
}

func serve() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "authzd").Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	session, err := db.NewSession(cfg.Database.DSN, dbMaxOpenConns)
	if err != nil {
		return err
	}
	defer session.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	health := map[string]apiHandler.Pinger{"database": session}

	var redisClient redis.UniversalClient
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		health["redis"] = redisPinger{client: redisClient}
	} else {
		logger.Warn().Msg("redis.addr not set, decision cache runs L1-only")
	}

	tiered := cache.New(cache.Config{
		L1Size: cfg.Cache.L1Size,
		L1TTL:  cfg.Cache.L1TTL,
		L2TTL:  cfg.Cache.L2TTL,
	}, redisClient, registry)

	userDAO := dbmodel.NewUserDAO(session)
	keyDAO := dbmodel.NewAPIKeyDAO(session)

	keystore := jwks.NewKeystore(cfg.Auth.JWKSURL, jwks.WithTTL(cfg.Auth.KeyTTL))
	resolver := credential.NewResolver(
		credential.NewBearerStrategy(cfg.Auth.Issuer, cfg.Auth.Audience, keystore,
			credential.NewDAOProvisioner(session, userDAO)),
		credential.NewAPIKeyStrategy(credential.NewDAOKeyLookup(keyDAO)),
	)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond, registry)
	defer limiter.Close()

	engineClient := engine.NewClient(engine.Config{
		BaseURL:          cfg.Engine.BaseURL,
		Timeout:          cfg.Engine.Timeout,
		BreakerThreshold: cfg.Engine.BreakerThreshold,
		BreakerCooldown:  cfg.Engine.BreakerCooldown,
	})

	auditPipeline := pipeline.New(pipeline.Config{
		QueueSize:     cfg.Audit.QueueSize,
		Workers:       cfg.Audit.Workers,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, pipeline.NewDAOSink(dbmodel.NewAuditRecordDAO(session)), registry)

	roleResolver := roles.NewResolver(
		userDAO,
		dbmodel.NewRoleAssignmentDAO(session),
		dbmodel.NewRoleDAO(session),
		dbmodel.NewRolePermissionDAO(session),
	)

	core := decision.NewCore(decision.Config{
		FingerprintContextKeys: cfg.Decision.FingerprintContextKeys,
		FailOpen:               cfg.Decision.FailOpen,
	}, tiered, roleResolver, engineClient, auditPipeline, session)

	server := api.NewServer(cfg, api.ServerDeps{
		DBSession:  session,
		Resolver:   resolver,
		Limiter:    limiter,
		Core:       core,
		Cache:      tiered,
		CacheStats: tiered,
		Audit:      auditPipeline,
		Health:     health,
		Registry:   registry,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting server")
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	// Drain queued audit records before the DB session closes.
	if err := auditPipeline.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("audit pipeline drain")
	}
	return nil
}
