package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// releaseScript and extendScript only touch a key still holding the caller's token.
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

const lockRetryInterval = 25 * time.Millisecond

// RedisLock one held lock; value is the owner token.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	value  string
	ttl    time.Duration
}

// RedisLockManager SET NX locks shared by every engine instance.
type RedisLockManager struct {
	client     redis.UniversalClient
	instanceID string
}

func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{
		client:     client,
		instanceID: uuid.New().String(),
	}
}

// AcquireLock a single SET NX attempt.
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	success, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{
		client: m.client,
		key:    key,
		value:  value,
		ttl:    ttl,
	}, nil
}

func (m *RedisLockManager) TryLockWithRetry(
	ctx context.Context,
	key, value string,
	ttl time.Duration,
	maxRetries int,
	retryInterval time.Duration,
) (*RedisLock, error) {
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, value, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	return nil, ErrLockNotAcquired
}

// Lock blocks until key is free, waiting at most one ttl (a holder that crashed expires by then).
// The returned lock is owned by this acquisition only.
func (m *RedisLockManager) Lock(ctx context.Context, key string, ttl time.Duration) (*RedisLock, error) {
	retries := int(ttl/lockRetryInterval) + 1
	token := m.instanceID + ":" + uuid.New().String()

	lock, err := m.TryLockWithRetry(ctx, key, token, ttl, retries, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return lock, nil
}

// Release deletes the key when this lock still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the lock's ttl while this lock still owns it.
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	l.ttl = extension
	return nil
}
