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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "leave.db", cfg.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Hour, cfg.ExpirySweepInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.False(t, cfg.EnableScenarios)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://leave@localhost/leave")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TIMEZONE", "Europe/Paris")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "15m")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ENABLE_SCENARIOS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://leave@localhost/leave", cfg.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "Europe/Paris", cfg.Location.String())
	assert.Equal(t, 15*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.EnableScenarios)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7070\nstore_driver: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:                8080,
			StoreDriver:         DriverSQLite,
			SQLitePath:          "leave.db",
			Timezone:            "UTC",
			ExpirySweepInterval: time.Hour,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }},
		{"sqlite without path", func(c *Config) { c.SQLitePath = "" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"zero sweep interval", func(c *Config) { c.ExpirySweepInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	ok := base()
	require.NoError(t, ok.Validate())
	assert.NotNil(t, ok.Location)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger(LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
