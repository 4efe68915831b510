package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/convexa/nameforge/common/cache"
	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/db"
	"github.com/convexa/nameforge/common/logger"
	"github.com/convexa/nameforge/common/queue"
	rediscommon "github.com/convexa/nameforge/common/redis"
	"github.com/convexa/nameforge/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})
	}

	// 4. Initialize redis (if not skipped)
	if !options.skipRedis {
		components.Logger.Info("connecting to redis", "addr", components.Config.RedisAddr())

		raw := redis.NewClient(&redis.Options{
			Addr:     components.Config.RedisAddr(),
			Password: components.Config.Redis.Password,
			DB:       components.Config.Redis.DB,
		})

		if err := raw.Ping(ctx).Err(); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		components.Redis = rediscommon.NewClient(raw, components.Logger)
		components.RedisRaw = raw

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return raw.Close()
		})
	}

	// 5. Initialize queue (if not skipped)
	if !options.skipQueue {
		if components.Redis != nil {
			components.Queue = queue.NewRedisQueue(
				components.Redis,
				components.Config.Worker.PollTimeout,
				components.Logger,
			)
		} else {
			components.Queue = queue.NewMemoryQueue(components.Logger)
		}

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing queue")
			return components.Queue.Close()
		})
	}

	// 6. Initialize cache (if not skipped)
	if !options.skipCache && components.Config.Cache.Enabled {
		components.Cache = cache.NewMemoryCache(components.Logger)

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	// 7. Initialize telemetry (if not skipped)
	if !options.skipTelemetry {
		components.Telemetry = telemetry.New(6060, components.Logger)

		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
			// Don't fail startup if telemetry fails
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"cache", components.Cache != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
