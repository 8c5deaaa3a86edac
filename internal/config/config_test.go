package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Processing.Grayscale)
	assert.Equal(t, 100.0, cfg.Metrics.PSNRCap)
	assert.Equal(t, def.Upload.AllowedTypes, cfg.Upload.AllowedTypes)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: ":9090"
session:
  backend: redis
  ttl: 15m
redis:
  addr: "cache:6379"
processing:
  workers: 2
  seed: 7
metrics:
  psnr_cap: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Processing.Workers)
	assert.Equal(t, uint64(7), cfg.Processing.Seed)
	assert.Equal(t, 60.0, cfg.Metrics.PSNRCap)

	// untouched sections keep their defaults
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DENOISE_SESSION_TTL", "5m")
	t.Setenv("DENOISE_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  backend: etcd\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Session.TTL = 20 * time.Minute
	cfg.Processing.Workers = 3
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, loaded.Session.TTL)
	assert.Equal(t, 3, loaded.Processing.Workers)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "psnr_cap")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"zero sweep interval", func(c *Config) { c.Session.SweepInterval = 0 }},
		{"no workers", func(c *Config) { c.Processing.Workers = 0 }},
		{"negative psnr cap", func(c *Config) { c.Metrics.PSNRCap = -1 }},
		{"zero upload size", func(c *Config) { c.Upload.MaxSize = 0 }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	redis := DefaultConfig()
	redis.Session.Backend = "redis"
	redis.Session.SweepInterval = 0
	assert.NoError(t, redis.Validate())
}
