package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gooutlier/internal/errors"
)

// Config represents the complete process configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
}

// DatabaseConfig selects the time series backend. An empty URL keeps data in memory.
type DatabaseConfig struct {
	Driver string
	URL    string
}

// ServerConfig holds the ingest API and ops listener settings
type ServerConfig struct {
	Port    string
	OpsPort string
	GinMode string
}

// LoggingConfig holds zap settings
type LoggingConfig struct {
	Level  string
	Format string
}

// PipelineConfig holds detector runtime settings
type PipelineConfig struct {
	DetectorFile   string
	Topic          string
	Workers        int
	QueueSize      int
	ContextRetries int
	ContextBackoff time.Duration
	TagKeys        []string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: *loadDatabaseConfig(),
		Server:   *loadServerConfig(),
		Logging:  *loadLoggingConfig(),
		Pipeline: *loadPipelineConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	url := os.Getenv("DATABASE_URL")
	driver := getEnvOrDefault("DATABASE_DRIVER", "")
	if driver == "" {
		driver = "memory"
		if url != "" {
			driver = "postgres"
		}
	}
	return &DatabaseConfig{Driver: driver, URL: url}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		OpsPort: getEnvOrDefault("OPS_PORT", "9090"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

func loadPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		DetectorFile:   getEnvOrDefault("DETECTOR_CONFIG", ""),
		Topic:          getEnvOrDefault("TOPIC", "metrics"),
		Workers:        getEnvIntOrDefault("WORKERS", 4),
		QueueSize:      getEnvIntOrDefault("QUEUE_SIZE", 1024),
		ContextRetries: getEnvIntOrDefault("CONTEXT_RETRIES", 3),
		ContextBackoff: getEnvDurationOrDefault("CONTEXT_BACKOFF", 200*time.Millisecond),
		TagKeys:        getEnvListOrDefault("TAG_KEYS", nil),
	}
}

func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "memory":
	case "postgres", "sqlite3":
		if config.Database.URL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for driver " + config.Database.Driver)
		}
	default:
		return errors.ConfigInvalid("unknown DATABASE_DRIVER " + config.Database.Driver)
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	if config.Pipeline.Workers < 1 {
		return errors.ConfigInvalid("WORKERS must be at least 1")
	}
	if config.Pipeline.QueueSize < 1 {
		return errors.ConfigInvalid("QUEUE_SIZE must be at least 1")
	}
	if config.Pipeline.ContextRetries < 0 {
		return errors.ConfigInvalid("CONTEXT_RETRIES must be non-negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
