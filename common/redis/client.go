package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Client wraps redis.Client with common operations and instrumentation
type Client struct {
	redis  *redis.Client
	logger Logger
}

// NewClient creates a new Redis client wrapper
func NewClient(redisClient *redis.Client, logger Logger) *Client {
	return &Client{
		redis:  redisClient,
		logger: logger,
	}
}

// GetUnderlying returns the underlying redis.Client for advanced operations
func (c *Client) GetUnderlying() *redis.Client {
	return c.redis
}

// SetWithExpiry sets a key with expiration
func (c *Client) SetWithExpiry(ctx context.Context, key, value string, expiry time.Duration) error {
	err := c.redis.Set(ctx, key, value, expiry).Err()
	if err != nil {
		c.logger.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.logger.Debug("redis SET", "key", key, "expiry", expiry)
	return nil
}

// Get retrieves a value by key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("redis GET key not found", "key", key)
		return "", fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		c.logger.Error("redis GET failed", "key", key, "error", err)
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	c.logger.Debug("redis GET", "key", key)
	return val, nil
}

// Exists reports whether a key exists
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.redis.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis EXISTS failed", "key", key, "error", err)
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return n > 0, nil
}

// Delete removes a key
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Error("redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// PushQueue appends a payload to a list-backed queue
func (c *Client) PushQueue(ctx context.Context, queue string, payload []byte) error {
	if err := c.redis.RPush(ctx, queue, payload).Err(); err != nil {
		c.logger.Error("redis RPUSH failed", "queue", queue, "error", err)
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}
	c.logger.Debug("redis RPUSH", "queue", queue, "bytes", len(payload))
	return nil
}

// PopQueue blocks up to timeout waiting for the next queue payload.
// Returns (nil, nil) on timeout so pollers can loop without error noise.
func (c *Client) PopQueue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := c.redis.BLPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("malformed BLPOP reply for queue %s", queue)
	}
	return []byte(result[1]), nil
}

// SetProgress mirrors job progress counters into a redis hash (hot path
// for polling clients; Postgres remains the source of truth)
func (c *Client) SetProgress(ctx context.Context, jobID string, processed, failed, total int) error {
	key := fmt.Sprintf("propagation:progress:%s", jobID)
	err := c.redis.HSet(ctx, key,
		"processed", processed,
		"failed", failed,
		"total", total,
	).Err()
	if err != nil {
		c.logger.Warn("redis progress update failed", "job_id", jobID, "error", err)
		return fmt.Errorf("failed to update progress for job %s: %w", jobID, err)
	}
	c.redis.Expire(ctx, key, 24*time.Hour)
	return nil
}

// RequestCancel sets the cancellation flag for a job. The runner checks
// the flag at chunk boundaries only (cooperative cancellation).
func (c *Client) RequestCancel(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("propagation:cancel:%s", jobID)
	if err := c.redis.Set(ctx, key, "1", 24*time.Hour).Err(); err != nil {
		c.logger.Error("redis cancel flag set failed", "job_id", jobID, "error", err)
		return fmt.Errorf("failed to set cancel flag for job %s: %w", jobID, err)
	}
	c.logger.Info("cancellation requested", "job_id", jobID)
	return nil
}

// IsCancelRequested reports whether cancellation was requested for a job
func (c *Client) IsCancelRequested(ctx context.Context, jobID string) bool {
	key := fmt.Sprintf("propagation:cancel:%s", jobID)
	n, err := c.redis.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warn("redis cancel flag check failed", "job_id", jobID, "error", err)
		return false
	}
	return n > 0
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
