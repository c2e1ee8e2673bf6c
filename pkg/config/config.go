// Package config loads application configuration from ARCHIVIST_*
// environment variables and validates it before anything starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Blob          blob.Config
	Index         IndexConfig
	Queue         QueueConfig
	Search        SearchConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// HealthPort serves liveness/readiness/metrics on a separate listener.
	HealthPort string
}

// IndexConfig holds hot-tier settings.
type IndexConfig struct {
	Driver string // "sqlite3" or "postgres"
	DSN    string
}

// QueueConfig holds Redis queue settings.
type QueueConfig struct {
	URL  string
	Name string

	// Workers is the number of concurrent consumer loops in the worker
	// process.
	Workers int

	// ReindexCron optionally schedules a periodic full reindex of every
	// category, cron syntax. Empty disables it.
	ReindexCron string
}

// SearchConfig points at the external similarity-search service.
type SearchConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AuthConfig holds the shared bearer token.
type AuthConfig struct {
	Token string
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel observability.LogLevel
	OTel     observability.OTelConfig
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ARCHIVIST_HOST", "0.0.0.0"),
			Port:            getEnv("ARCHIVIST_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ARCHIVIST_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ARCHIVIST_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ARCHIVIST_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ARCHIVIST_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("ARCHIVIST_HEALTH_PORT", "9090"),
		},
		Blob: blob.Config{
			Endpoint:     getEnv("ARCHIVIST_S3_ENDPOINT", ""),
			Region:       getEnv("ARCHIVIST_S3_REGION", "auto"),
			Bucket:       getEnv("ARCHIVIST_S3_BUCKET", ""),
			AccessKey:    getEnv("ARCHIVIST_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("ARCHIVIST_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("ARCHIVIST_S3_USE_PATH_STYLE", false),
			CreateBucket: getEnvBool("ARCHIVIST_S3_CREATE_BUCKET", false),
		},
		Index: IndexConfig{
			Driver: getEnv("ARCHIVIST_INDEX_DRIVER", "sqlite3"),
			DSN:    getEnv("ARCHIVIST_INDEX_DSN", "archivist.db"),
		},
		Queue: QueueConfig{
			URL:         getEnv("ARCHIVIST_REDIS_URL", "redis://localhost:6379/0"),
			Name:        getEnv("ARCHIVIST_QUEUE_NAME", "archive:index"),
			Workers:     getEnvInt("ARCHIVIST_QUEUE_WORKERS", 4),
			ReindexCron: getEnv("ARCHIVIST_REINDEX_CRON", ""),
		},
		Search: SearchConfig{
			BaseURL: getEnv("ARCHIVIST_SEARCH_URL", ""),
			Timeout: getEnvDuration("ARCHIVIST_SEARCH_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Token: getEnv("ARCHIVIST_API_TOKEN", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel: observability.ParseLogLevel(getEnv("ARCHIVIST_LOG_LEVEL", "info")),
			OTel: observability.OTelConfig{
				Enabled:        getEnvBool("ARCHIVIST_OTEL_ENABLED", false),
				Endpoint:       getEnv("ARCHIVIST_OTEL_ENDPOINT", "localhost:4317"),
				ServiceName:    getEnv("ARCHIVIST_OTEL_SERVICE_NAME", "archivist"),
				ServiceVersion: getEnv("ARCHIVIST_OTEL_SERVICE_VERSION", "dev"),
				Insecure:       getEnvBool("ARCHIVIST_OTEL_INSECURE", true),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	if c.Auth.Token == "" {
		return fmt.Errorf("ARCHIVIST_API_TOKEN is required")
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("ARCHIVIST_S3_BUCKET is required")
	}
	if c.Index.Driver != "sqlite3" && c.Index.Driver != "postgres" {
		return fmt.Errorf("ARCHIVIST_INDEX_DRIVER must be sqlite3 or postgres, got %q", c.Index.Driver)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("ARCHIVIST_QUEUE_WORKERS must be at least 1, got %d", c.Queue.Workers)
	}
	return nil
}

func getEnv(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

func getEnvBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	return strings.EqualFold(raw, "true") || raw == "1"
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return value
}
