// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more call for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Unlimited allows every call. Used when RATE_LIMIT_PER_MINUTE is zero.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window limiter local to one process.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter allows limit calls per key in each period.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts the call against key's current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Truncate(l.period)
	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
		l.evict(start)
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// evict drops windows that ended before current.
func (l *MemoryLimiter) evict(current time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, k)
		}
	}
}
