package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Info outcome of one Allow call, mirrored in the X-RateLimit headers.
type Info struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Limiter token bucket per key: limit tokens, refilled evenly over window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, Info, error)
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiter in-process Limiter, used when no Redis is configured.
type RateLimiter struct {
	mu              sync.Mutex
	buckets         map[string]*bucket
	limit           int
	window          time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(limit, window, time.Now)
}

func NewRateLimiterWithClock(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		buckets:         make(map[string]*bucket),
		limit:           limit,
		window:          window,
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     now(),
		now:             now,
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, Info, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > rl.cleanupInterval {
		rl.cleanup(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.limit), lastRefill: now}
		rl.buckets[key] = b
	}
	rl.refill(b, now)

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	return allowed, rl.info(b, now), nil
}

func (rl *RateLimiter) rate() float64 {
	return float64(rl.limit) / rl.window.Seconds()
}

func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(float64(rl.limit), b.tokens+elapsed*rl.rate())
	b.lastRefill = now
}

// info ResetAt is when the next token becomes available.
func (rl *RateLimiter) info(b *bucket, now time.Time) Info {
	reset := now
	if b.tokens < 1 {
		wait := (1 - b.tokens) / rl.rate()
		reset = now.Add(time.Duration(wait * float64(time.Second)))
	}
	return Info{Limit: rl.limit, Remaining: int(b.tokens), ResetAt: reset}
}

// cleanup drops buckets that have refilled completely.
func (rl *RateLimiter) cleanup(now time.Time) {
	for key, b := range rl.buckets {
		rl.refill(b, now)
		if b.tokens >= float64(rl.limit) {
			delete(rl.buckets, key)
		}
	}
	rl.lastCleanup = now
}

// Reset forgets the bucket of key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}
