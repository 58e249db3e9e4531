package service

import (
	"context"
	"sync"
	"time"
)

// Lease a held lock.
type Lease interface {
	Release(ctx context.Context) error
	// Extend resets the remaining lifetime to ttl. It fails once the lease has been lost.
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker serializes pairing scans of one guild across instances. The lease is always non-nil on success.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// LocalLocker keyed mutexes for a single instance. Holders release through a deferred call, so ttl is
// not enforced and a waiter blocks until the key is free or ctx is done.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]chan struct{}{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	for {
		l.mu.Lock()
		busy, ok := l.held[key]
		if !ok {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return &localLease{locker: l, key: key, done: done}, nil
		}
		l.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type localLease struct {
	locker *LocalLocker
	key    string
	done   chan struct{}
	once   sync.Once
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		if l.locker.held[l.key] == l.done {
			delete(l.locker.held, l.key)
		}
		l.locker.mu.Unlock()
		close(l.done)
	})
	return nil
}

func (l *localLease) Extend(context.Context, time.Duration) error {
	return nil
}
