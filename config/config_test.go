package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[sentry]
health_server_addr = "0.0.0.0:17000"
watch_tokens = ["0xaaa", "0xbbb"]
trade_amount = 500.0

[breaker]
failure_threshold = 5

[log]
level = "debug"
console = true
`)

	require.NoError(t, Load(path))
	c := Get()

	assert.Equal(t, "0.0.0.0:17000", c.Sentry.HealthServerAddr)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, c.Sentry.WatchTokens)
	assert.Equal(t, 500.0, c.Sentry.TradeAmount)
	assert.Equal(t, 5, c.Breaker.FailureThreshold)
	assert.Equal(t, "debug", c.Logger.Level)

	// 未覆盖的字段保持默认值
	assert.Equal(t, 30*time.Second, c.Cache.TTL)
	assert.Equal(t, -0.50, c.Exit.FixedStopLoss)
	assert.Equal(t, "nats://localhost:4222", c.NATS.Endpoint)
}

func TestLoad_MissingFile(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.toml")))
}

func TestDefault_Complete(t *testing.T) {
	c := Default()

	assert.NotEmpty(t, c.Sentry.HealthServerAddr)
	assert.Positive(t, c.Sentry.AssessInterval)
	assert.Positive(t, c.Sentry.MonitorInterval)
	assert.Positive(t, c.Breaker.FailureThreshold)
	assert.Positive(t, c.Retry.MaxAttempts)
	assert.Negative(t, c.Exit.FixedStopLoss)
	assert.Positive(t, c.Cache.TTL)
}
