package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHZD_AUTH_ISSUER", "https://idp.example.com/")
	t.Setenv("AUTHZD_AUTH_AUDIENCE", "authzd")
	t.Setenv("AUTHZD_AUTH_JWKS_URL", "https://idp.example.com/.well-known/jwks.json")
	t.Setenv("AUTHZD_DATABASE_DSN", "postgres://localhost:5432/authzd")
	t.Setenv("AUTHZD_ENGINE_BASE_URL", "http://opa:8181")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.Server.RequestTimeout)
	assert.Equal(t, 100_000, cfg.Cache.L1Size)
	assert.Equal(t, 10*time.Second, cfg.Cache.L1TTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.L2TTL)
	assert.Equal(t, 100, cfg.RateLimit.Capacity)
	assert.Equal(t, uint32(5), cfg.Engine.BreakerThreshold)
	assert.Equal(t, 10_000, cfg.Audit.QueueSize)
	assert.False(t, cfg.Decision.FailOpen)
	assert.Empty(t, cfg.Decision.FingerprintContextKeys)
}

func TestLoadEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTHZD_SERVER_PORT", "9090")
	t.Setenv("AUTHZD_RATELIMIT_CAPACITY", "10")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.RateLimit.Capacity)
}

func TestLoadConfigFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "authzd.yaml")
	content := []byte(`
server:
  port: 7070
decision:
  fingerprint_context_keys:
    - channel
    - region
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"channel", "region"}, cfg.Decision.FingerprintContextKeys)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("AUTHZD_AUTH_ISSUER", "https://idp.example.com/")
	t.Setenv("AUTHZD_AUTH_AUDIENCE", "authzd")
	// jwks_url deliberately absent

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwks_url")
}

func TestLoadFailOpenOrgsRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTHZD_DECISION_FAIL_OPEN_ORGS", "org-a")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail_open_orgs")
}
