package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the full service configuration. Values come from an
// optional config file and AUTHZD_* environment variables, env winning.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig holds token validation settings.
type AuthConfig struct {
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	JWKSURL  string        `mapstructure:"jwks_url"`
	KeyTTL   time.Duration `mapstructure:"key_ttl"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the L2 cache tier settings. An empty address runs
// the service L1-only.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds decision cache tuning.
type CacheConfig struct {
	L1Size int           `mapstructure:"l1_size"`
	L1TTL  time.Duration `mapstructure:"l1_ttl"`
	L2TTL  time.Duration `mapstructure:"l2_ttl"`
}

// RateLimitConfig holds the per-principal token bucket settings.
type RateLimitConfig struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

// EngineConfig holds policy engine gateway settings.
type EngineConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// DecisionConfig holds decision core settings.
type DecisionConfig struct {
	FingerprintContextKeys []string `mapstructure:"fingerprint_context_keys"`
	FailOpen               bool     `mapstructure:"fail_open"`
	// FailOpenOrgs is reserved for per-organization fail-open. The core
	// does not honor it yet; setting it is a configuration error.
	FailOpenOrgs []string `mapstructure:"fail_open_orgs"`
}

// AuditConfig holds audit pipeline settings.
type AuditConfig struct {
	QueueSize     int           `mapstructure:"queue_size"`
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 200*time.Millisecond)

	// Required keys default to empty so AutomaticEnv can see them.
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.key_ttl", time.Hour)

	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("engine.base_url", "")
	v.SetDefault("decision.fingerprint_context_keys", []string{})
	v.SetDefault("decision.fail_open_orgs", []string{})

	v.SetDefault("cache.l1_size", 100_000)
	v.SetDefault("cache.l1_ttl", 10*time.Second)
	v.SetDefault("cache.l2_ttl", 5*time.Minute)

	v.SetDefault("ratelimit.capacity", 100)
	v.SetDefault("ratelimit.refill_per_second", 50.0)

	v.SetDefault("engine.timeout", 100*time.Millisecond)
	v.SetDefault("engine.breaker_threshold", 5)
	v.SetDefault("engine.breaker_cooldown", 10*time.Second)

	v.SetDefault("decision.fail_open", false)

	v.SetDefault("audit.queue_size", 10_000)
	v.SetDefault("audit.workers", 2)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", time.Second)
}

// Load reads configuration from the given file path (optional, "" skips
// it) and from AUTHZD_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("authzd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Auth.Issuer == "" {
		return errors.New("auth.issuer is required")
	}
	if c.Auth.Audience == "" {
		return errors.New("auth.audience is required")
	}
	if c.Auth.JWKSURL == "" {
		return errors.New("auth.jwks_url is required")
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Engine.BaseURL == "" {
		return errors.New("engine.base_url is required")
	}
	if len(c.Decision.FailOpenOrgs) > 0 {
		return errors.New("decision.fail_open_orgs is reserved and not supported")
	}
	return nil
}
