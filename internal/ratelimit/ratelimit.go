// Package ratelimit provides a fixed-window request limiter shared across instances through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config bounds how many requests a key may make per window.
type Config struct {
	Requests int
	Window   time.Duration
	Prefix   string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Requests <= 0 {
		return fmt.Errorf("requests per window must be greater than 0")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be greater than 0")
	}
	return nil
}

// RedisLimiter counts requests per key in Redis so limits hold across server instances.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLimiter creates a limiter on an existing Redis client.
func NewRedisLimiter(client *redis.Client, cfg Config) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, cfg: cfg}, nil
}

// Allow counts a request for key. When the limit is exceeded it returns false and the time
// until the window resets.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := l.cfg.Prefix + ":" + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// first request of the window
		if err := l.client.PExpire(ctx, redisKey, l.cfg.Window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis error: %w", err)
		}
		remaining = l.cfg.Window
	}

	if incr.Val() > int64(l.cfg.Requests) {
		return false, remaining, nil
	}
	return true, 0, nil
}

// Ping verifies Redis connectivity.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
