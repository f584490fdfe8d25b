package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yoyaku/internal/config"
	"yoyaku/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix      = "yoyaku:lock:"
	rateLimitKeyPrefix = "yoyaku:rate:"
	lockPollInterval   = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it is still held by token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisGuard shares item locks and login throttling across processes.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	token := uuid.NewString()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := g.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return "", domain.ErrLockTimeout
			}
			return "", fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", domain.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (g *RedisGuard) Release(ctx context.Context, key, token string) error {
	if g.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := releaseScript.Run(ctx, g.client, []string{lockKeyPrefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (g *RedisGuard) CheckRateLimit(ctx context.Context, key string, limit int) (bool, error) {
	if g.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	count, err := g.client.Get(ctx, rateLimitKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return count < limit, nil
}

func (g *RedisGuard) RecordFailure(ctx context.Context, key string, window time.Duration) error {
	if g.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	k := rateLimitKeyPrefix + key
	count, err := g.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	if count == 1 {
		if err := g.client.Expire(ctx, k, window).Err(); err != nil {
			return fmt.Errorf("failed to set failure window: %w", err)
		}
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
