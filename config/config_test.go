package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("AUTH_CLOCK_SKEW", "")
	t.Setenv("IDEMPOTENCY_TTL", "")
	t.Setenv("IDEMPOTENCY_CLAIM_TTL", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Auth.ClockSkew)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, 30*time.Second, cfg.Redis.ClaimTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 90*time.Minute, cfg.Redis.IdempotencyTTL)
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	assert.Equal(t, 7, getEnvInt("REDIS_DB", 7))
}

func TestTraceSampleRatioBounds(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")
	assert.Equal(t, 0.25, Load().Observ.TraceSampleRatio)

	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "4")
	assert.Equal(t, 1.0, Load().Observ.TraceSampleRatio)
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "")
	t.Setenv("ENV", "development")
	require.NoError(t, Load().Validate())

	t.Setenv("ENV", "production")
	assert.Error(t, Load().Validate())

	t.Setenv("AUTH_TOKEN_SECRET", "a-real-secret")
	assert.NoError(t, Load().Validate())
}
