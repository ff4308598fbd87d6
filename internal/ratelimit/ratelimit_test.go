package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg Config) (*RedisLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedisLimiter(client, cfg)
	require.NoError(t, err)
	return limiter, mr
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, Config{Requests: 1, Window: time.Second}.Validate())
	require.Error(t, Config{Requests: 0, Window: time.Second}.Validate())
	require.Error(t, Config{Requests: 1}.Validate())
}

func TestRedisLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newLimiter(t, Config{Requests: 3, Window: time.Minute})

	for i := range 3 {
		allowed, _, err := limiter.Allow(ctx, "ip:192.0.2.1")
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i+1)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "ip:192.0.2.1")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)

	// other keys have their own budget
	allowed, _, err = limiter.Allow(ctx, "ip:192.0.2.2")
	require.NoError(t, err)
	require.True(t, allowed)

	mr.FastForward(time.Minute)

	allowed, _, err = limiter.Allow(ctx, "ip:192.0.2.1")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRedisLimiter_UsesPrefix(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newLimiter(t, Config{Requests: 1, Window: time.Minute, Prefix: "auth"})

	_, _, err := limiter.Allow(ctx, "ip:192.0.2.1")
	require.NoError(t, err)
	require.True(t, mr.Exists("auth:ip:192.0.2.1"))
	require.Greater(t, mr.TTL("auth:ip:192.0.2.1"), time.Duration(0))
}

func TestRedisLimiter_RedisDown(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newLimiter(t, Config{Requests: 1, Window: time.Minute})
	mr.Close()

	allowed, _, err := limiter.Allow(ctx, "ip:192.0.2.1")
	require.Error(t, err)
	require.True(t, allowed, "limiter fails open")

	require.Error(t, limiter.Ping(ctx))
}
