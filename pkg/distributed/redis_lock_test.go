package distributed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	_, client := setupRedis(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:lock", "instance1", 5*time.Second)
	require.NoError(t, err)

	_, err = manager.AcquireLock(ctx, "test:lock", "instance2", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))

	lock3, err := manager.AcquireLock(ctx, "test:lock", "instance3", 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, lock3.Release(ctx))
}

func TestRedisLock_ExpiryAndSafeRelease(t *testing.T) {
	mr, client := setupRedis(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock1, err := manager.AcquireLock(ctx, "test:safe", "instance1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists("test:safe"))

	lock2, err := manager.AcquireLock(ctx, "test:safe", "instance2", 5*time.Second)
	require.NoError(t, err)

	// a stale holder cannot release someone else's lock
	assert.ErrorIs(t, lock1.Release(ctx), ErrLockNotHeld)
	value, err := mr.Get("test:safe")
	require.NoError(t, err)
	assert.Equal(t, "instance2", value)
	assert.NoError(t, lock2.Release(ctx))
}

func TestRedisLock_Extend(t *testing.T) {
	mr, client := setupRedis(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:extend", "instance1", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Extend(ctx, 10*time.Second))
	mr.FastForward(5 * time.Second)
	assert.True(t, mr.Exists("test:extend"))

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Extend(ctx, time.Second), ErrLockNotHeld)
}

func TestRedisLockManager_LockWaitsForRelease(t *testing.T) {
	_, client := setupRedis(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.Lock(ctx, "matchmaking:lock:guild-1", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = lock.Release(context.Background())
	}()

	start := time.Now()
	lock2, err := manager.Lock(ctx, "matchmaking:lock:guild-1", time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.NoError(t, lock2.Release(ctx))
}

func TestRedisLockManager_LockGivesUp(t *testing.T) {
	_, client := setupRedis(t)
	manager := NewRedisLockManager(client)
	ctx := context.Background()

	_, err := manager.Lock(ctx, "matchmaking:lock:guild-1", 5*time.Second)
	require.NoError(t, err)

	_, err = manager.Lock(ctx, "matchmaking:lock:guild-1", 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestRedisLockManager_MutualExclusion(t *testing.T) {
	_, client := setupRedis(t)
	manager := NewRedisLockManager(client)

	const workers = 10
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := manager.Lock(context.Background(), "matchmaking:lock:guild-1", 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, lock.Release(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}
