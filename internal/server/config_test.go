package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	require.Equal(t, ":8080", cfg.Port)
	require.Equal(t, int64(512), cfg.MaxMessageSize)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	require.Empty(t, cfg.RedisHost)
	require.Equal(t, "6379", cfg.RedisPort)
	require.Equal(t, DefaultChannel, cfg.Channel)
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("CHAT_CHANNEL", "chat-staging")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Port)
	require.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, int64(1024), cfg.MaxMessageSize)
	require.Equal(t, 10, cfg.RateLimit.Burst)
	require.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	require.Equal(t, "redis.internal", cfg.RedisHost)
	require.Equal(t, "redis.internal:6380", cfg.RedisAddr())
	require.Equal(t, "chat-staging", cfg.Channel)
}

func TestNewConfigFromEnvKeepsDefaultsWhenUnset(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, DefaultChannel, cfg.Channel)
	require.Equal(t, "6379", cfg.RedisPort)
}

func TestSetConfigSanitizesInvalidValues(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		Port:           "",
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: 0},
	})

	cfg := currentConfig()
	require.Equal(t, ":8080", cfg.Port)
	require.Equal(t, int64(512), cfg.MaxMessageSize)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	require.Equal(t, DefaultChannel, cfg.Channel)
}

func TestSetConfigNormalizesOrigins(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		AllowedOrigins: []string{" HTTP://Example.COM ", "not a url", ""},
	})

	cfg := currentConfig()
	require.Equal(t, []string{"http://example.com"}, cfg.AllowedOrigins)
}
