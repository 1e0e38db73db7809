package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port     int
	Env      string
	LogLevel string

	// Analysis
	OutputDir      string
	Workers        int
	GraphCacheSize int
	MaxFiles       int // 0 means unlimited

	// Database, empty disables the Postgres mirror
	DatabaseURL string

	// NATS, empty disables event publishing
	NATSURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		OutputDir:      getEnv("CODEHEALTH_OUTPUT_DIR", "reports"),
		Workers:        getEnvInt("CODEHEALTH_WORKERS", 3),
		GraphCacheSize: getEnvInt("CODEHEALTH_GRAPH_CACHE_SIZE", 4),
		MaxFiles:       getEnvInt("CODEHEALTH_MAX_FILES", 0),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		NATSURL:        getEnv("NATS_URL", ""),
	}

	return cfg, nil
}

// Validate checks that numeric settings are usable
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("CODEHEALTH_WORKERS must be positive, got %d", c.Workers)
	}
	if c.GraphCacheSize < 1 {
		return fmt.Errorf("CODEHEALTH_GRAPH_CACHE_SIZE must be positive, got %d", c.GraphCacheSize)
	}
	if c.MaxFiles < 0 {
		return fmt.Errorf("CODEHEALTH_MAX_FILES must not be negative, got %d", c.MaxFiles)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Level returns the configured log level, info when unparseable
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
