package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter reports whether one more request for key and action fits in the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error)
}

const maxTrackedLimiters = 10000

type limiterEntry struct {
	limiter *rate.Limiter
	burst   int
}

// MemoryRateLimiter keeps a token bucket per key. It refills at limit/window
// with a burst of limit, which approximates the fixed window of the Redis limiter.
//
// At most maxKeys buckets are tracked. When the table is full, buckets that have
// refilled completely are dropped, since a fresh bucket behaves the same. A new
// key is denied while every tracked bucket is still in use.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	maxKeys  int
	now      func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return newMemoryRateLimiter(maxTrackedLimiters, time.Now)
}

func newMemoryRateLimiter(maxKeys int, now func() time.Time) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limiters: make(map[string]*limiterEntry),
		maxKeys:  maxKeys,
		now:      now,
	}
}

func (m *MemoryRateLimiter) CheckRateLimit(_ context.Context, key, action string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	id := action + ":" + key

	entry, exists := m.limiters[id]
	if !exists {
		if len(m.limiters) >= m.maxKeys && m.evictIdle(now) == 0 {
			return false, nil
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			burst:   limit,
		}
		m.limiters[id] = entry
	}

	return entry.limiter.AllowN(now, 1), nil
}

// evictIdle drops every bucket that is back to its full burst. Callers hold mu.
func (m *MemoryRateLimiter) evictIdle(now time.Time) int {
	evicted := 0
	for id, entry := range m.limiters {
		if entry.limiter.TokensAt(now) >= float64(entry.burst) {
			delete(m.limiters, id)
			evicted++
		}
	}
	return evicted
}

func (m *MemoryRateLimiter) tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}
