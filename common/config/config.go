package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Queue      QueueConfig
	Telemetry  TelemetryConfig
	Engine     EngineConfig
	Redis      RedisConfig
}

// EngineConfig holds settings specific to the workflow orchestrator,
// scheduler, and checkpoint store (spec.md §4.5, §4.6, §4.4).
type EngineConfig struct {
	// DatabaseURLOverride, when set (from $DATABASE_URL), is used verbatim
	// instead of assembling a URL from the discrete Postgres fields.
	DatabaseURLOverride string
	// WorkflowDefinitionsPath is the directory internal/store scans for
	// `*.wirl` files and watches for hot-reload (spec.md §6 CLI env var).
	WorkflowDefinitionsPath string
	// StaleClaimTimeout is how long a claimed run may go unrenewed before
	// another worker may reclaim it (spec.md §4.5).
	StaleClaimTimeout time.Duration
	// SchedulerTickInterval is how often the trigger scheduler polls for
	// due triggers (spec.md §4.6, default 15s).
	SchedulerTickInterval time.Duration
	// CheckpointTTL is loaded from CHECKPOINT_TTL. No component in this
	// repository reads it or deletes checkpoints, so checkpoints are kept
	// whatever its value (spec.md §3 Checkpoint lifecycle).
	CheckpointTTL time.Duration
	// WorkerConcurrency is the number of runs one worker process drives
	// concurrently (spec.md §4.5 "N concurrent runs").
	WorkerConcurrency int
	// PollInterval is how often an idle worker retries the claim query.
	PollInterval time.Duration
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	MaxConns     int
	MinConns     int
	MaxIdleTime  time.Duration
	MaxLifetime  time.Duration
}

// RedisConfig holds the connection settings for the rate limiter and the
// shared checkpoint read-through cache (SPEC_FULL.md §C).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	SizeMB     int
	DefaultTTL time.Duration
}

// QueueConfig holds the in-process run-lifecycle event bus settings
// (common/queue.MemoryQueue; Postgres remains the durable queue of record).
type QueueConfig struct {
	Type string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof    bool
	PprofPort      int
	EnableTracing  bool
	EnableMetrics  bool
	MetricsPort    int
	TracingBackend string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "orchestrator"),
			User:        getEnv("POSTGRES_USER", "orchestrator"),
			Password:    getEnv("POSTGRES_PASSWORD", "orchestrator"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			SizeMB:     getEnvInt("CACHE_SIZE_MB", 512),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Queue: QueueConfig{
			Type: getEnv("QUEUE_TYPE", "memory"),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:    getEnvBool("ENABLE_PPROF", true),
			PprofPort:      getEnvInt("PPROF_PORT", 6060),
			EnableTracing:  getEnvBool("ENABLE_TRACING", true),
			EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
			MetricsPort:    getEnvInt("METRICS_PORT", 9090),
			TracingBackend: getEnv("TRACING_BACKEND", "stdout"),
		},
		Engine: EngineConfig{
			DatabaseURLOverride:     getEnv("DATABASE_URL", ""),
			WorkflowDefinitionsPath: getEnv("WORKFLOW_DEFINITIONS_PATH", "./workflows"),
			StaleClaimTimeout:       getEnvDuration("STALE_CLAIM_TIMEOUT", 5*time.Minute),
			SchedulerTickInterval:   getEnvDuration("SCHEDULER_TICK_INTERVAL", 15*time.Second),
			CheckpointTTL:           getEnvDuration("CHECKPOINT_TTL", 30*24*time.Hour),
			WorkerConcurrency:       getEnvInt("WORKER_CONCURRENCY", 8),
			PollInterval:            getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string. $DATABASE_URL, when
// set, takes precedence over the discrete POSTGRES_* fields (spec.md §6
// CLI environment: "DATABASE_URL").
func (c *Config) DatabaseURL() string {
	if c.Engine.DatabaseURLOverride != "" {
		return c.Engine.DatabaseURLOverride
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
