// Package config loads and validates this service's environment-variable
// surface, in the teacher's env+godotenv idiom.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr string `env:"INGESTD_ADDR" envDefault:":8080"`

	// Resource limits (from container)
	CPULimit    float64 `env:"INGESTD_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"INGESTD_MEMORY_LIMIT" envDefault:"536870912"` // 512MB

	// C7 Worker Pool
	WorkerCount         int `env:"INGESTD_WORKER_COUNT" envDefault:"0"`       // 0 = 2*GOMAXPROCS
	WorkerQueueCapacity int `env:"INGESTD_WORKER_QUEUE_CAPACITY" envDefault:"10000"` // Q

	// C1/C3 rate limiter
	RateLimitPerSecond  int           `env:"RATELIMIT_PER_SECOND" envDefault:"10"`
	RateLimitStripes    int           `env:"RATELIMIT_STRIPE_COUNT" envDefault:"10007"`
	RateLimitClientTTL  time.Duration `env:"RATELIMIT_CLIENT_TTL" envDefault:"10m"`
	RateLimitCleanupInt time.Duration `env:"RATELIMIT_CLEANUP_INTERVAL" envDefault:"1m"`

	// C6 decision-event flusher
	FlushInterval time.Duration `env:"RATELIMIT_FLUSH_INTERVAL" envDefault:"1s"`

	// C4 parser
	BodyCapBytes int `env:"INGEST_BODY_CAP_BYTES" envDefault:"1048576"`

	// C5 durable writer
	WriterQueueCapacity int    `env:"WRITER_QUEUE_CAPACITY" envDefault:"16384"`
	WriterMaxRetries    int    `env:"WRITER_MAX_RETRIES" envDefault:"3"`
	StoragePath         string `env:"WRITER_STORAGE_PATH" envDefault:"./data/metrics.log"`

	// C8 connection handling
	IdleTimeout time.Duration `env:"INGESTD_IDLE_TIMEOUT" envDefault:"60s"`

	// Domain-stack connection admission limiter
	ConnLimitIPBurst     int           `env:"CONNLIMIT_IP_BURST" envDefault:"20"`
	ConnLimitIPRate      float64       `env:"CONNLIMIT_IP_RATE" envDefault:"5.0"`
	ConnLimitGlobalBurst int           `env:"CONNLIMIT_GLOBAL_BURST" envDefault:"2000"`
	ConnLimitGlobalRate  float64       `env:"CONNLIMIT_GLOBAL_RATE" envDefault:"500.0"`
	ConnLimitIPTTL       time.Duration `env:"CONNLIMIT_IP_TTL" envDefault:"5m"`

	// Domain-stack secondary sinks
	NATSUrl      string `env:"NATS_URL" envDefault:""`
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:""`
	KafkaTopic   string `env:"KAFKA_MIRROR_TOPIC" envDefault:"metricstream.records"`

	// Monitoring
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9090"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`
	SlackWebhookURL string        `env:"ALERT_SLACK_WEBHOOK_URL" envDefault:""`
	SlackChannel    string        `env:"ALERT_SLACK_CHANNEL" envDefault:"#ingestd-alerts"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from a .env file (if present) and environment
// variables. Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found (using environment variables only)")
		} else {
			fmt.Println("info: no .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("INGESTD_ADDR is required")
	}
	if c.RateLimitPerSecond < 1 {
		return fmt.Errorf("RATELIMIT_PER_SECOND must be > 0, got %d", c.RateLimitPerSecond)
	}
	if c.RateLimitStripes < 1 {
		return fmt.Errorf("RATELIMIT_STRIPE_COUNT must be > 0, got %d", c.RateLimitStripes)
	}
	if c.BodyCapBytes < 1 {
		return fmt.Errorf("INGEST_BODY_CAP_BYTES must be > 0, got %d", c.BodyCapBytes)
	}
	if c.WriterQueueCapacity < 1 {
		return fmt.Errorf("WRITER_QUEUE_CAPACITY must be > 0, got %d", c.WriterQueueCapacity)
	}
	if c.WorkerQueueCapacity < 1 {
		return fmt.Errorf("INGESTD_WORKER_QUEUE_CAPACITY must be > 0, got %d", c.WorkerQueueCapacity)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("WRITER_STORAGE_PATH is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// Print logs configuration for debugging in a human-readable format. For
// production, use LogConfig with structured logging.
func (c *Config) Print() {
	fmt.Println("=== Ingestion Service Configuration ===")
	fmt.Printf("Environment:       %s\n", c.Environment)
	fmt.Printf("Address:           %s\n", c.Addr)
	fmt.Printf("Metrics Address:   %s\n", c.MetricsAddr)
	fmt.Println("\n=== Resource Limits ===")
	fmt.Printf("CPU Limit:         %.1f cores\n", c.CPULimit)
	fmt.Printf("Memory Limit:      %d MB\n", c.MemoryLimit/(1024*1024))
	fmt.Printf("Worker Count:      %d (0 = auto)\n", c.WorkerCount)
	fmt.Printf("Worker Queue Cap:  %d\n", c.WorkerQueueCapacity)
	fmt.Println("\n=== Rate Limiting ===")
	fmt.Printf("Limit/Window:      %d req/s\n", c.RateLimitPerSecond)
	fmt.Printf("Stripe Count:      %d\n", c.RateLimitStripes)
	fmt.Printf("Client TTL:        %s\n", c.RateLimitClientTTL)
	fmt.Println("\n=== Durable Writer ===")
	fmt.Printf("Storage Path:      %s\n", c.StoragePath)
	fmt.Printf("Queue Capacity:    %d\n", c.WriterQueueCapacity)
	fmt.Println("\n=== Logging ===")
	fmt.Printf("Level:             %s\n", c.LogLevel)
	fmt.Printf("Format:            %s\n", c.LogFormat)
	fmt.Println("========================================")
}

// LogConfig logs configuration using structured logging (Loki-compatible).
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("metrics_addr", c.MetricsAddr).
		Float64("cpu_limit", c.CPULimit).
		Int64("memory_limit_mb", c.MemoryLimit/(1024*1024)).
		Int("worker_count", c.WorkerCount).
		Int("worker_queue_capacity", c.WorkerQueueCapacity).
		Int("rate_limit_per_second", c.RateLimitPerSecond).
		Int("rate_limit_stripes", c.RateLimitStripes).
		Dur("rate_limit_client_ttl", c.RateLimitClientTTL).
		Str("storage_path", c.StoragePath).
		Int("writer_queue_capacity", c.WriterQueueCapacity).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("ingestion service configuration loaded")
}
