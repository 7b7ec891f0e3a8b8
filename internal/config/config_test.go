package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, manager.Validate())

	cfg := manager.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Jobs.Orders.Every)
	assert.Equal(t, 90*time.Second, cfg.Jobs.Results.Every)
	assert.Equal(t, 8, cfg.Jobs.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Lab.Timeout)
	assert.Equal(t, 50*time.Minute, cfg.Lab.TokenTTL)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.RedisURL)
	assert.Equal(t, "redis://localhost:6379", cfg.Bus.RedisURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Mapper.PetAgeUnits)
	assert.False(t, manager.IsProduction())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ANTECH_SERVER_PORT", "9090")
	t.Setenv("ANTECH_JOBS_ORDERS_EVERY", "2m")
	t.Setenv("ANTECH_MAPPER_PET_AGE_UNITS", "M")

	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.Orders.Every)
	assert.Equal(t, "M", cfg.Mapper.PetAgeUnits)
}

func TestNewManager_PetAgeUnitsHistoricalEnvName(t *testing.T) {
	t.Setenv("ANTECH_V6_PET_AGE_UNITS", "W")

	manager, err := NewManager()
	require.NoError(t, err)
	assert.Equal(t, "W", manager.GetConfig().Mapper.PetAgeUnits)
}

func TestManager_Validate(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	manager.config.Server.Port = 0
	assert.Error(t, manager.Validate())

	require.NoError(t, manager.Reload())
	manager.config.Mapper.PetAgeUnits = "X"
	assert.Error(t, manager.Validate())

	require.NoError(t, manager.Reload())
	manager.config.Logging.Level = "noisy"
	assert.Error(t, manager.Validate())

	require.NoError(t, manager.Reload())
	assert.NoError(t, manager.Validate())
}
