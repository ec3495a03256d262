package middleware

import (
	"context"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/charlesng35/stomanager/internal/cache"
)

// RateStore decides whether one more request fits under limit for key.
type RateStore interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

const memoryEntryTTL = 10 * time.Minute

// memoryRateStore is a process-local token bucket per key. It is concurrency-safe.
type memoryRateStore struct {
	limiters  sync.Map
	mu        sync.Mutex
	lastSweep time.Time
	clock     func() time.Time
}

type memoryLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore()
}

func newMemoryRateStore() *memoryRateStore {
	return &memoryRateStore{clock: time.Now, lastSweep: time.Now()}
}

func (s *memoryRateStore) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	now := s.clock()
	s.sweep(now)

	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	burst := limit.Burst
	if burst <= 0 {
		burst = limit.Rate
	}

	v, _ := s.limiters.LoadOrStore(key, &memoryLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	})
	entry := v.(*memoryLimiter)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastAccess = now

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	perToken := time.Duration(float64(time.Second) / perSecond)
	result := &redis_rate.Result{
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: -1,
		ResetAfter: time.Duration((float64(burst) - tokens) * float64(perToken)),
	}
	if allowed {
		result.Allowed = 1
	} else {
		result.RetryAfter = time.Duration((1 - tokens) * float64(perToken))
	}
	return result, nil
}

func (s *memoryRateStore) sweep(now time.Time) {
	s.mu.Lock()
	if now.Sub(s.lastSweep) < memoryEntryTTL {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	s.mu.Unlock()

	cutoff := now.Add(-memoryEntryTTL)
	s.limiters.Range(func(key, value any) bool {
		entry := value.(*memoryLimiter)
		entry.mu.Lock()
		idle := entry.lastAccess.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			s.limiters.Delete(key)
		}
		return true
	})
}

// redisRateStore shares counters between instances through Redis (GCRA).
type redisRateStore struct {
	limiter *redis_rate.Limiter
}

// NewRedisRateStore builds a RateStore on top of a go-redis client.
func NewRedisRateStore(client *redis.Client) RateStore {
	if client == nil {
		return nil
	}
	return &redisRateStore{limiter: redis_rate.NewLimiter(client)}
}

func (s *redisRateStore) Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	return s.limiter.Allow(ctx, key, limit)
}

// storeRateStore is a fixed-window counter kept in a cache.Store, used when several
// instances share a database but no Redis.
type storeRateStore struct {
	store cache.Store
}

// NewDatabaseRateStore builds a RateStore based on the SQL database cache.
func NewDatabaseRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	window := limit.Period
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	if err != nil {
		return nil, err
	}

	remaining := limit.Rate - int(count)
	if remaining < 0 {
		remaining = 0
	}
	result := &redis_rate.Result{
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: -1,
		ResetAfter: ttl,
	}
	if int(count) <= limit.Rate {
		result.Allowed = 1
	} else {
		result.RetryAfter = ttl
	}
	return result, nil
}
