package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://kiosk@localhost/kiosk")
	t.Setenv("WEBHOOK_SECRET_TOKEN", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StorePostgres, cfg.TransitionStore)
	assert.Equal(t, "drchrono", cfg.Webhook.Provider)
	assert.Equal(t, "https://app.drchrono.com", cfg.Directory.BaseURL)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, time.Duration(0), cfg.AnalyticsCacheTTL)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://kiosk@localhost/kiosk")
	t.Setenv("WEBHOOK_SECRET_TOKEN", "")

	_, err := Load()
	assert.ErrorContains(t, err, "WEBHOOK_SECRET_TOKEN")
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("WEBHOOK_SECRET_TOKEN", "s3cret")

	_, err := Load()
	assert.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestLoad_MemoryStore(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("WEBHOOK_SECRET_TOKEN", "s3cret")
	t.Setenv("TRANSITION_STORE", "memory")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("TIMEZONE", "America/New_York")
	t.Setenv("ANALYTICS_CACHE_TTL", "30")
	t.Setenv("DIRECTORY_ACCESS_TOKEN", "dev-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.TransitionStore)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "America/New_York", cfg.Location.String())
	assert.Equal(t, 30*time.Second, cfg.AnalyticsCacheTTL)
	assert.Equal(t, "dev-token", cfg.Directory.AccessToken)
}

func TestLoad_RedisURL(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://kiosk@localhost/kiosk")
	t.Setenv("WEBHOOK_SECRET_TOKEN", "s3cret")
	t.Setenv("REDIS_URL", "redis://kiosk:pw@cache:6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "kiosk", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
}

func TestLoad_UnknownStore(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET_TOKEN", "s3cret")
	t.Setenv("TRANSITION_STORE", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "TRANSITION_STORE")
}

func TestGetDuration(t *testing.T) {
	t.Setenv("X_SECONDS", "15")
	t.Setenv("X_GO", "2m")
	t.Setenv("X_BAD", "soon")

	assert.Equal(t, 15*time.Second, getDuration("X_SECONDS", time.Second))
	assert.Equal(t, 2*time.Minute, getDuration("X_GO", time.Second))
	assert.Equal(t, time.Second, getDuration("X_BAD", time.Second))
	assert.Equal(t, time.Hour, getDuration("X_MISSING", time.Hour))
}
