// Package lock provides the short per-user locks and idempotency keys used by
// sync and checkout, backed by Redis or by the in-process cache.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"teahouse-backend/internal/domain"
)

const (
	lockPrefix        = "teahouse:lock:"
	idempotencyPrefix = "teahouse:idempotency:"
)

// releaseScript deletes the key only while it still holds the caller's token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// redisStore is the subset of *redis.Client used here.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient parses REDIS_URL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type RedisLocker struct {
	store redisStore
}

var _ domain.Locker = (*RedisLocker)(nil)

func NewRedisLocker(store redisStore) *RedisLocker {
	return &RedisLocker{store: store}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	k := lockPrefix + key
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, k, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}
	return func(ctx context.Context) error {
		err := l.store.Eval(ctx, releaseScript, []string{k}, owner).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}, nil
}

type RedisIdempotency struct {
	store redisStore
}

var _ domain.IdempotencyStore = (*RedisIdempotency)(nil)

func NewRedisIdempotency(store redisStore) *RedisIdempotency {
	return &RedisIdempotency{store: store}
}

func (s *RedisIdempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.store.SetNX(ctx, idempotencyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotency) Forget(ctx context.Context, key string) error {
	return s.store.Del(ctx, idempotencyPrefix+key).Err()
}
