package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", DriverMemory)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.Equal(t, 3, cfg.OrdinalRetries)
	assert.Equal(t, "chat", cfg.AMQPExchange)
	assert.Equal(t, "microchat:events", cfg.RedisChannel)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", DriverMemory)

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "   ")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	base := Config{JWTSecret: "secret", StorageDriver: DriverMemory, SubscriberBuffer: 1, OrdinalRetries: 1, ForwarderBuffer: 1}
	assert.NoError(t, base.Validate())

	noSecret := base
	noSecret.JWTSecret = ""
	assert.ErrorContains(t, noSecret.Validate(), "JWT_SECRET")

	pg := base
	pg.StorageDriver = DriverPostgres
	assert.ErrorContains(t, pg.Validate(), "DB_DSN")

	pg.DBDSN = "postgres://localhost/chat"
	assert.NoError(t, pg.Validate())

	bad := base
	bad.StorageDriver = "sqlite"
	assert.Error(t, bad.Validate())

	noBuf := base
	noBuf.SubscriberBuffer = 0
	assert.Error(t, noBuf.Validate())

	noForward := base
	noForward.ForwarderBuffer = 0
	assert.Error(t, noForward.Validate())
}
