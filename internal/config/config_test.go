package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "CardLedger", cfg.AppName)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, "3985", cfg.CardNumberPrefix)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.CardTokenKey)
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "5")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("LOCK_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)

	t.Setenv("LOCK_TIMEOUT", "soon")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRequiresSecretsOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/cards")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("CARD_TOKEN_KEY", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "b")
	t.Setenv("CARD_TOKEN_KEY", "c")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDev())
}
