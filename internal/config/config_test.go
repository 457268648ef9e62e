package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfig_Normalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL) // at least five refill intervals
}

func TestLoadRateLimitConfig_BurstOverridesCapacity(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "25")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "500ms")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 25, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 500*time.Millisecond, cfg.RefillInterval)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")

	cfg := LoadCacheConfig()

	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.Equal(t, "raffle:cache", cfg.Prefix)
}

func TestNewLogger(t *testing.T) {
	l := NewLogger(Config{Env: "prod", LogLevel: "debug"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, isJSON := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	l = NewLogger(Config{Env: "dev", LogLevel: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestLoadWorker(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")
	t.Setenv("EVENT_LOG_DIR", "/tmp/raffle")
	t.Setenv("KWAI_TEST_FLAG", "yes")

	cfg := LoadWorker()

	assert.Equal(t, "amqp://u:p@broker:5672/", cfg.Queue.URL)
	assert.Equal(t, "/tmp/raffle", cfg.Queue.LogDir)
	assert.True(t, cfg.Pixel.TestFlag)
	assert.Equal(t, "https://www.adsnebula.com/log/common/api", cfg.Pixel.Endpoint)
	assert.NotEmpty(t, cfg.Payment.ProductName)
}
