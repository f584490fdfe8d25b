package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"yoyaku/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverGuard uses primary until it errors, then serves from fallback and
// retries primary once per recoveryInterval.
type FailoverGuard struct {
	primary  domain.GuardRepository
	fallback domain.GuardRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time

	// tokens issued by fallback, so Release goes to the guard that granted them
	fallbackTokens sync.Map
}

func NewFailoverGuard(primary, fallback domain.GuardRepository, logger *zerolog.Logger) *FailoverGuard {
	return &FailoverGuard{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (g *FailoverGuard) usePrimary() bool {
	if !g.isDown.Load() {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Since(g.lastCheck) > recoveryInterval
}

func (g *FailoverGuard) markDown(err error) {
	g.logger.Error().Err(err).Msg("primary guard failed, falling back to memory")
	g.mu.Lock()
	g.lastCheck = time.Now()
	g.mu.Unlock()
	g.isDown.Store(true)
}

func (g *FailoverGuard) markUp() {
	if g.isDown.Swap(false) {
		g.logger.Info().Msg("primary guard recovered")
	}
}

func (g *FailoverGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if g.usePrimary() {
		token, err := g.primary.Acquire(ctx, key, ttl)
		if err == nil {
			g.markUp()
			return token, nil
		}
		if errors.Is(err, domain.ErrLockTimeout) {
			return "", err
		}
		g.markDown(err)
	}

	token, err := g.fallback.Acquire(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	g.fallbackTokens.Store(token, struct{}{})
	return token, nil
}

func (g *FailoverGuard) Release(ctx context.Context, key, token string) error {
	if _, ok := g.fallbackTokens.LoadAndDelete(token); ok {
		return g.fallback.Release(ctx, key, token)
	}
	if err := g.primary.Release(ctx, key, token); err != nil {
		g.markDown(err)
		return err
	}
	return nil
}

func (g *FailoverGuard) CheckRateLimit(ctx context.Context, key string, limit int) (bool, error) {
	if g.usePrimary() {
		allowed, err := g.primary.CheckRateLimit(ctx, key, limit)
		if err == nil {
			g.markUp()
			return allowed, nil
		}
		g.markDown(err)
	}
	return g.fallback.CheckRateLimit(ctx, key, limit)
}

func (g *FailoverGuard) RecordFailure(ctx context.Context, key string, window time.Duration) error {
	if g.usePrimary() {
		err := g.primary.RecordFailure(ctx, key, window)
		if err == nil {
			g.markUp()
			return nil
		}
		g.markDown(err)
	}
	return g.fallback.RecordFailure(ctx, key, window)
}
