package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.Sessions.Backend)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConfigRefresh)
	assert.Equal(t, "https://graph.facebook.com/v21.0", cfg.WhatsApp.APIBase)
}

func TestLoad_EnvironmentAndDotenv(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("MENUFLOW_ADDR=:9999\nMENUFLOW_REDIS_DB=4\n"), 0o600))

	t.Setenv("MENUFLOW_SESSION_BACKEND", "redis")
	t.Setenv("MENUFLOW_REDIS_ADDR", "localhost:6379")
	t.Setenv("MENUFLOW_ADDR", ":7000")
	t.Setenv("MENUFLOW_CONFIG_REFRESH", "5s")

	cfg, err := Load(dotenv)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Addr, "process environment wins over the file")
	assert.Equal(t, 4, cfg.Sessions.RedisDB)
	assert.Equal(t, "localhost:6379", cfg.Sessions.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.ConfigRefresh)
}

func TestValidate(t *testing.T) {
	t.Setenv("MENUFLOW_SESSION_BACKEND", "redis")
	t.Setenv("MENUFLOW_MAX_IN_FLIGHT", "0")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
	assert.Contains(t, err.Error(), "MAX_IN_FLIGHT")
}
