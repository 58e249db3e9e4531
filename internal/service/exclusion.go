package service

import (
	"context"
	"sync"
	"time"
)

// ExclusionLedger short-lived "do not pair" records. Entries are symmetric: excluding (a, b) also
// excludes (b, a).
type ExclusionLedger interface {
	Exclude(ctx context.Context, playerID, otherID string, ttl time.Duration) error
	IsExcluded(ctx context.Context, playerID, otherID string) (bool, error)
	// Excluded ids currently excluded for playerID.
	Excluded(ctx context.Context, playerID string) ([]string, error)
}

// MemoryExclusionLedger ExclusionLedger for a single instance.
type MemoryExclusionLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]map[string]time.Time
}

func NewMemoryExclusionLedger(now func() time.Time) *MemoryExclusionLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryExclusionLedger{now: now, entries: make(map[string]map[string]time.Time)}
}

func (l *MemoryExclusionLedger) Exclude(ctx context.Context, playerID, otherID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	expires := l.now().Add(ttl)
	l.put(playerID, otherID, expires)
	l.put(otherID, playerID, expires)
	return nil
}

func (l *MemoryExclusionLedger) put(a, b string, expires time.Time) {
	if l.entries[a] == nil {
		l.entries[a] = make(map[string]time.Time)
	}
	if expires.After(l.entries[a][b]) {
		l.entries[a][b] = expires
	}
}

func (l *MemoryExclusionLedger) IsExcluded(ctx context.Context, playerID, otherID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expires, ok := l.entries[playerID][otherID]
	return ok && l.now().Before(expires), nil
}

func (l *MemoryExclusionLedger) Excluded(ctx context.Context, playerID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var ids []string
	for other, expires := range l.entries[playerID] {
		if now.Before(expires) {
			ids = append(ids, other)
		} else {
			delete(l.entries[playerID], other)
		}
	}
	return ids, nil
}
