// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// A .env file in the working directory is loaded into the environment first,
// so both sources can reference its values.
//
// Example usage:
//
//	config.LoadDotEnv()
//	cfg := config.LoadOrEnv()
//	dsn := cfg.Storage.DSN
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

// SessionsConfig holds split session settings
type SessionsConfig struct {
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	DefaultBucketLabel string        `yaml:"default_bucket_label"`
}

// EventsConfig holds split event publishing settings
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // maven, tint or json
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults
const (
	DefaultPort            = 8080
	DefaultDriver          = "sqlite3"
	DefaultDSN             = "tablesplit.db"
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultCleanupInterval = time.Minute
	DefaultExchange        = "orders_topic"
)

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${TABLESPLIT_DB_DSN})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", DefaultPort),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		},
		Storage: StorageConfig{
			Driver: getEnv("TABLESPLIT_DB_DRIVER", DefaultDriver),
			DSN:    getEnv("TABLESPLIT_DB_DSN", DefaultDSN),
		},
		Sessions: SessionsConfig{
			IdleTimeout:        getEnvDuration("SESSION_IDLE_TIMEOUT", DefaultIdleTimeout),
			CleanupInterval:    getEnvDuration("SESSION_CLEANUP_INTERVAL", DefaultCleanupInterval),
			DefaultBucketLabel: getEnv("SESSION_BUCKET_LABEL", ""),
		},
		Events: EventsConfig{
			Enabled:  getEnvBool("EVENTS_ENABLED", false),
			AMQPURL:  os.Getenv("AMQP_URL"),
			Exchange: getEnv("EVENTS_EXCHANGE", DefaultExchange),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "maven"),
			},
			Metrics: MetricsConfig{
				Enabled: getEnvBool("METRICS_ENABLED", true),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = DefaultDSN
	}
	if c.Sessions.IdleTimeout <= 0 {
		c.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if c.Sessions.CleanupInterval <= 0 {
		c.Sessions.CleanupInterval = DefaultCleanupInterval
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = DefaultExchange
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "maven"
	}
}

// Validate reports settings that cannot work together
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite3 or postgres, got %q", c.Storage.Driver)
	}
	if c.Events.Enabled && c.Events.AMQPURL == "" {
		return errors.New("events.amqp_url is required when events are enabled")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
