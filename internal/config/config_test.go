package config

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars to test defaults
	envVars := []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"CODEHEALTH_OUTPUT_DIR", "CODEHEALTH_WORKERS",
		"CODEHEALTH_GRAPH_CACHE_SIZE", "CODEHEALTH_MAX_FILES",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %s, want development", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.OutputDir != "reports" {
		t.Errorf("OutputDir = %s, want reports", cfg.OutputDir)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.GraphCacheSize != 4 {
		t.Errorf("GraphCacheSize = %d, want 4", cfg.GraphCacheSize)
	}
	if cfg.MaxFiles != 0 {
		t.Errorf("MaxFiles = %d, want 0", cfg.MaxFiles)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %s, want empty", cfg.DatabaseURL)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATSURL = %s, want empty", cfg.NATSURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CODEHEALTH_OUTPUT_DIR", "/var/lib/codehealth")
	t.Setenv("CODEHEALTH_WORKERS", "8")
	t.Setenv("CODEHEALTH_GRAPH_CACHE_SIZE", "16")
	t.Setenv("CODEHEALTH_MAX_FILES", "500")
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/codehealth")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Errorf("IsProduction() = false for Env %s", cfg.Env)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
	if cfg.OutputDir != "/var/lib/codehealth" {
		t.Errorf("OutputDir mismatch")
	}
	if cfg.Workers != 8 || cfg.GraphCacheSize != 16 || cfg.MaxFiles != 500 {
		t.Errorf("analysis settings = %d/%d/%d, want 8/16/500", cfg.Workers, cfg.GraphCacheSize, cfg.MaxFiles)
	}
	if cfg.DatabaseURL != "postgres://user:pass@db:5432/codehealth" {
		t.Errorf("DatabaseURL mismatch")
	}
	if cfg.NATSURL != "nats://nats:4222" {
		t.Errorf("NATSURL mismatch")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{LogLevel: "info", Workers: 3, GraphCacheSize: 4}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero cache size", func(c *Config) { c.GraphCacheSize = 0 }, true},
		{"negative max files", func(c *Config) { c.MaxFiles = -1 }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"trace level", func(c *Config) { c.LogLevel = "trace" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		cfg := &Config{LogLevel: level}
		if cfg.Level() != zerolog.InfoLevel {
			t.Errorf("Level() for %q = %v, want info", level, cfg.Level())
		}
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		want         string
	}{
		{"returns env value", "TEST_VAR_1", "custom", "default", "custom"},
		{"returns default when empty", "TEST_VAR_2", "", "default", "default"},
		{"returns default when unset", "TEST_VAR_UNSET", "", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%s, %s) = %s, want %s", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue int
		want         int
	}{
		{"returns parsed int", "TEST_INT_1", "42", 0, 42},
		{"returns default when empty", "TEST_INT_2", "", 100, 100},
		{"returns default when invalid", "TEST_INT_3", "not-a-number", 50, 50},
		{"handles negative numbers", "TEST_INT_4", "-10", 0, -10},
		{"handles zero", "TEST_INT_5", "0", 99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt(%s, %d) = %d, want %d", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}
