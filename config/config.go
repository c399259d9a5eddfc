// Package config loads server configuration from the environment, an
// optional .env file and an optional config file.
//
// Precedence: environment > config file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the server configuration. Keys are the lower-cased
// environment variable names.
type Config struct {
	Port                int           `mapstructure:"port"`
	StoreDriver         string        `mapstructure:"store_driver"`
	SQLitePath          string        `mapstructure:"sqlite_path"`
	DatabaseURL         string        `mapstructure:"database_url"`
	Log                 LogConfig     `mapstructure:",squash"`
	Timezone            string        `mapstructure:"timezone"`
	PolicySeedFile      string        `mapstructure:"policy_seed_file"`
	ExpirySweepInterval time.Duration `mapstructure:"expiry_sweep_interval"`
	CORSOrigins         []string      `mapstructure:"cors_origins"`
	EnableScenarios     bool          `mapstructure:"enable_scenarios"`

	// Location is Timezone resolved by Validate.
	Location *time.Location `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"` // json | console
}

// Load reads configuration. path names an optional config file; when
// empty, ./config.yaml is used if present.
func Load(path string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("store_driver", DriverSQLite)
	v.SetDefault("sqlite_path", "leave.db")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("policy_seed_file", "")
	v.SetDefault("expiry_sweep_interval", "1h")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("enable_scenarios", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and resolves Location.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid config: port must be between 1 and 65535, got %d", c.Port)
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("invalid config: sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("invalid config: database_url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid config: unknown store_driver %q", c.StoreDriver)
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("invalid config: expiry_sweep_interval must be positive")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}
