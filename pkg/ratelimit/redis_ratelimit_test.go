package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRateLimiter(t *testing.T, limit int, window time.Duration) (*RedisRateLimiter, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	limiter := NewRedisRateLimiter(client, RedisRateLimiterConfig{
		KeyPrefix: "test:ratelimit:",
		Limit:     limit,
		Window:    window,
		Now:       clock.Now,
	})
	return limiter, clock
}

func TestRedisRateLimiter_TokenBucket(t *testing.T) {
	limiter, clock := setupRedisRateLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, info, err := limiter.Allow(ctx, "adapter:a")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, info.Remaining)
		assert.Equal(t, 3, info.Limit)
	}

	allowed, info, err := limiter.Allow(ctx, "adapter:a")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.WithinDuration(t, clock.Now().Add(20*time.Second), info.ResetAt, time.Millisecond)
}

func TestRedisRateLimiter_TokenRefill(t *testing.T) {
	limiter, clock := setupRedisRateLimiter(t, 2, 10*time.Second)
	ctx := context.Background()

	limiter.Allow(ctx, "k")
	limiter.Allow(ctx, "k")
	allowed, _, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, allowed)

	clock.Advance(6 * time.Second)
	allowed, _, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_ResetAndKeys(t *testing.T) {
	limiter, _ := setupRedisRateLimiter(t, 1, time.Minute)
	ctx := context.Background()

	limiter.Allow(ctx, "a")
	allowed, _, _ := limiter.Allow(ctx, "a")
	require.False(t, allowed)

	allowed, _, _ = limiter.Allow(ctx, "b")
	assert.True(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "a"))
	allowed, _, _ = limiter.Allow(ctx, "a")
	assert.True(t, allowed)
}

func TestRedisRateLimiter_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	limiter := NewRedisRateLimiter(client, RedisRateLimiterConfig{})
	_, _, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}
