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

// Client wraps redis.Client with the operations the services share:
// lifecycle event publishing and job leases. Everything else (streams,
// the completion cache) talks to the underlying client directly.
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

// GetUnderlying returns the underlying redis.Client for stream and
// pub/sub consumers that need the raw API
func (c *Client) GetUnderlying() *redis.Client {
	return c.redis
}

// PublishEvent publishes an event to a Redis channel
func (c *Client) PublishEvent(ctx context.Context, channel string, message string) error {
	err := c.redis.Publish(ctx, channel, message).Err()
	if err != nil {
		c.logger.Error("redis PUBLISH failed", "channel", channel, "error", err)
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	c.logger.Debug("redis PUBLISH", "channel", channel)
	return nil
}

// AcquireLease claims a key for the caller if nobody else holds it.
// Returns false when another holder got there first. The TTL bounds how
// long a crashed holder can block the key.
func (c *Client) AcquireLease(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	acquired, err := c.redis.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		c.logger.Error("redis SETNX failed", "key", key, "error", err)
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	c.logger.Debug("redis SETNX", "key", key, "acquired", acquired)
	return acquired, nil
}

// ReleaseLease drops a lease so the key is claimable again
func (c *Client) ReleaseLease(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Error("redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	c.logger.Debug("redis DEL", "key", key)
	return nil
}
