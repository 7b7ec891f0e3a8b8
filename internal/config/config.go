// Package config loads engine configuration from a YAML file and ANTECH_*
// environment variables via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Jobs        JobsConfig    `mapstructure:"jobs"`
	Lab         LabConfig     `mapstructure:"lab"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Bus         BusConfig     `mapstructure:"bus"`
	Statsig     StatsigConfig `mapstructure:"statsig"`
	Mapper      MapperConfig  `mapstructure:"mapper"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// JobConfig configures one polling queue.
type JobConfig struct {
	Every time.Duration `mapstructure:"every"`
}

// JobsConfig configures the polling scheduler.
type JobsConfig struct {
	Orders      JobConfig `mapstructure:"orders"`
	Results     JobConfig `mapstructure:"results"`
	Concurrency int       `mapstructure:"concurrency"`
}

// LabConfig configures the outbound Lab API client.
type LabConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
}

// CacheConfig configures the Redis token cache.
type CacheConfig struct {
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// BusConfig configures the Redis message bus.
type BusConfig struct {
	RedisURL string `mapstructure:"redis_url"`
}

// StatsigConfig configures the feature flag provider.
type StatsigConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	Environment string `mapstructure:"environment"`
}

// MapperConfig configures mapping behavior.
type MapperConfig struct {
	// PetAgeUnits selects the unit pet ages are expressed in on outbound
	// orders (Y, M, W or D). Empty keeps the default of years.
	PetAgeUnits string `mapstructure:"pet_age_units"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads and holds the engine configuration.
type Manager struct {
	config *Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/antech-v6-engine/")

	viper.SetEnvPrefix("ANTECH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// ANTECH_V6_PET_AGE_UNITS is the historical name for this knob.
	_ = viper.BindEnv("mapper.pet_age_units", "ANTECH_MAPPER_PET_AGE_UNITS", "ANTECH_V6_PET_AGE_UNITS")

	m.setDefaults()

	// Config file is optional; defaults and environment variables suffice.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("jobs.orders.every", "90s")
	viper.SetDefault("jobs.results.every", "90s")
	viper.SetDefault("jobs.concurrency", 8)

	viper.SetDefault("lab.timeout", "30s")
	viper.SetDefault("lab.requests_per_sec", 10)
	viper.SetDefault("lab.burst", 5)
	viper.SetDefault("lab.token_ttl", "50m")

	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.max_retries", 3)

	viper.SetDefault("bus.redis_url", "redis://localhost:6379")

	viper.SetDefault("statsig.secret_key", "")
	viper.SetDefault("statsig.environment", "development")

	viper.SetDefault("mapper.pet_age_units", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Jobs.Orders.Every <= 0 {
		return fmt.Errorf("invalid orders job cadence: %s", config.Jobs.Orders.Every)
	}
	if config.Jobs.Results.Every <= 0 {
		return fmt.Errorf("invalid results job cadence: %s", config.Jobs.Results.Every)
	}

	if config.Cache.RedisURL == "" {
		return fmt.Errorf("cache Redis URL is required")
	}
	if config.Bus.RedisURL == "" {
		return fmt.Errorf("bus Redis URL is required")
	}

	switch config.Mapper.PetAgeUnits {
	case "", "Y", "M", "W", "D":
	default:
		return fmt.Errorf("invalid pet age units: %s", config.Mapper.PetAgeUnits)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
