package repository

import (
	"context"
	"sync"
	"time"

	"yoyaku/internal/domain"

	"github.com/google/uuid"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
	released  chan struct{}
}

type failureCount struct {
	count     int
	expiresAt time.Time
}

// MemoryGuard is the in-process GuardRepository. Locks only exclude
// callers within the same process.
type MemoryGuard struct {
	mu       sync.Mutex
	locks    map[string]*memoryLock
	failures map[string]*failureCount
	now      func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		locks:    make(map[string]*memoryLock),
		failures: make(map[string]*failureCount),
		now:      time.Now,
	}
}

// Acquire blocks until the key is free, its holder expires, or ctx ends.
func (g *MemoryGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for {
		g.mu.Lock()
		now := time.Now()
		held, ok := g.locks[key]
		if !ok || now.After(held.expiresAt) {
			if ok {
				close(held.released)
			}
			token := uuid.NewString()
			g.locks[key] = &memoryLock{token: token, expiresAt: now.Add(ttl), released: make(chan struct{})}
			g.mu.Unlock()
			return token, nil
		}
		released := held.released
		wait := time.Until(held.expiresAt)
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", domain.ErrLockTimeout
		case <-released:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (g *MemoryGuard) Release(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	held, ok := g.locks[key]
	if !ok || held.token != token {
		return nil
	}
	delete(g.locks, key)
	close(held.released)
	return nil
}

func (g *MemoryGuard) CheckRateLimit(_ context.Context, key string, limit int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.failures[key]
	if !ok {
		return true, nil
	}
	if g.now().After(entry.expiresAt) {
		delete(g.failures, key)
		return true, nil
	}
	return entry.count < limit, nil
}

func (g *MemoryGuard) RecordFailure(_ context.Context, key string, window time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evictExpired(now)

	entry, ok := g.failures[key]
	if !ok {
		entry = &failureCount{expiresAt: now.Add(window)}
		g.failures[key] = entry
	}
	entry.count++
	return nil
}

// evictExpired drops failure counters whose window has passed. Caller holds g.mu.
func (g *MemoryGuard) evictExpired(now time.Time) {
	for key, entry := range g.failures {
		if now.After(entry.expiresAt) {
			delete(g.failures, key)
		}
	}
}
