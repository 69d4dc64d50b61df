package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8085", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.Equal(t, 5*time.Second, cfg.Redis.LockWait)
	assert.Equal(t, []string{"localhost:29092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "booking.confirmed", cfg.RabbitMQ.Queue)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "booking")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_LOCK_TTL", "10s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_MOCK", "true")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "booking", cfg.Database.Username)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Mock)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
