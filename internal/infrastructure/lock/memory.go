package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/cache"
)

// MemoryLocker is the single-process fallback when Redis is not configured.
type MemoryLocker struct {
	mu    sync.Mutex
	cache cache.CacheService
}

var _ domain.Locker = (*MemoryLocker)(nil)

func NewMemoryLocker(c cache.CacheService) *MemoryLocker {
	return &MemoryLocker{cache: c}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	k := lockPrefix + key
	owner := uuid.NewString()
	if !l.cache.Add(k, owner, ttl) {
		return nil, domain.ErrLockHeld
	}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if v, ok := l.cache.Get(k); ok && v == owner {
			l.cache.Delete(k)
		}
		return nil
	}, nil
}

type MemoryIdempotency struct {
	cache cache.CacheService
}

var _ domain.IdempotencyStore = (*MemoryIdempotency)(nil)

func NewMemoryIdempotency(c cache.CacheService) *MemoryIdempotency {
	return &MemoryIdempotency{cache: c}
}

func (s *MemoryIdempotency) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return s.cache.Add(idempotencyPrefix+key, struct{}{}, ttl), nil
}

func (s *MemoryIdempotency) Forget(_ context.Context, key string) error {
	s.cache.Delete(idempotencyPrefix + key)
	return nil
}
