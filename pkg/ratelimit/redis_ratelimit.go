package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript KEYS[1] bucket hash; ARGV limit, window ms, now ms.
// Returns allowed, remaining tokens and ms until the next token.
var tokenBucketScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil then
	tokens = limit
	last = now
end

local rate = limit / window
local elapsed = math.max(0, now - last)
tokens = math.min(limit, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], window * 2)

local wait = 0
if tokens < 1 then
	wait = math.ceil((1 - tokens) / rate)
end
return {allowed, math.floor(tokens), wait}
`)

// RedisRateLimiter Limiter shared by every instance through Redis.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

type RedisRateLimiterConfig struct {
	KeyPrefix string
	Limit     int
	Window    time.Duration
	Now       func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, config RedisRateLimiterConfig) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RedisRateLimiter{
		client:    client,
		keyPrefix: config.KeyPrefix,
		limit:     config.Limit,
		window:    config.Window,
		now:       config.Now,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, Info, error) {
	now := r.now()
	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.keyPrefix + key},
		r.limit, r.window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err != nil {
		return false, Info{}, fmt.Errorf("redis script execution failed: %w", err)
	}
	if len(result) < 3 {
		return false, Info{}, fmt.Errorf("invalid script result")
	}

	info := Info{
		Limit:     r.limit,
		Remaining: int(result[1]),
		ResetAt:   now.Add(time.Duration(result[2]) * time.Millisecond),
	}
	return result[0] == 1, info, nil
}

func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
