package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Engine   EngineConfig
	Worker   WorkerConfig
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
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// EngineConfig holds propagation engine limits and thresholds
type EngineConfig struct {
	// Hard recursion bound for impact analysis and propagation
	MaxDepth int
	// Soft depth at which a deep_inheritance warning is emitted
	DepthWarnThreshold int
	// Direct-children counts at which many_children warnings escalate
	ChildWarnThreshold     int
	ChildCriticalThreshold int
	// Affected count above which background execution is recommended
	BackgroundThreshold int
	// Cost estimate inputs
	BaseTimePerItem time.Duration
	DepthMultiplier float64
	// Window in which a modification by another actor counts as concurrent
	ConcurrentEditWindow time.Duration
	// Max value length accepted by validation checks
	MaxValueLength int
}

// WorkerConfig holds background job processing settings
type WorkerConfig struct {
	ChunkSize       int
	MaxJobRetries   int
	MaxErrorRetries int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	QueueName       string
	PollTimeout     time.Duration
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
			Database:    getEnv("POSTGRES_DB", "nameforge"),
			User:        getEnv("POSTGRES_USER", "nameforge"),
			Password:    getEnv("POSTGRES_PASSWORD", "nameforge"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 10*time.Minute),
		},
		Engine: EngineConfig{
			MaxDepth:               getEnvInt("ENGINE_MAX_DEPTH", 10),
			DepthWarnThreshold:     getEnvInt("ENGINE_DEPTH_WARN", 5),
			ChildWarnThreshold:     getEnvInt("ENGINE_CHILD_WARN", 25),
			ChildCriticalThreshold: getEnvInt("ENGINE_CHILD_CRITICAL", 100),
			BackgroundThreshold:    getEnvInt("ENGINE_BACKGROUND_THRESHOLD", 100),
			BaseTimePerItem:        getEnvDuration("ENGINE_BASE_TIME_PER_ITEM", 50*time.Millisecond),
			DepthMultiplier:        getEnvFloat("ENGINE_DEPTH_MULTIPLIER", 0.1),
			ConcurrentEditWindow:   getEnvDuration("ENGINE_CONCURRENT_EDIT_WINDOW", 30*time.Second),
			MaxValueLength:         getEnvInt("ENGINE_MAX_VALUE_LENGTH", 255),
		},
		Worker: WorkerConfig{
			ChunkSize:       getEnvInt("WORKER_CHUNK_SIZE", 10),
			MaxJobRetries:   getEnvInt("WORKER_MAX_JOB_RETRIES", 3),
			MaxErrorRetries: getEnvInt("WORKER_MAX_ERROR_RETRIES", 3),
			BackoffBase:     getEnvDuration("WORKER_BACKOFF_BASE", 1*time.Second),
			BackoffMax:      getEnvDuration("WORKER_BACKOFF_MAX", 30*time.Second),
			QueueName:       getEnv("WORKER_QUEUE_NAME", "propagation_jobs"),
			PollTimeout:     getEnvDuration("WORKER_POLL_TIMEOUT", 5*time.Second),
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

	if c.Engine.MaxDepth < 1 {
		return fmt.Errorf("engine max depth must be >= 1")
	}

	if c.Worker.ChunkSize < 1 {
		return fmt.Errorf("worker chunk size must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
