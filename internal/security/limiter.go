package security

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultRateLimitMax    = 100
)

// Limiter counts requests per key inside a window that resets once its reset
// time has passed. Hit reports whether the key is limited; a limited key is
// not counted further.
type Limiter interface {
	Hit(ctx context.Context, key string) (bool, error)
	// Purge drops counters whose window has expired.
	Purge(ctx context.Context) (int, error)
}

type counter struct {
	count   int
	resetAt time.Time
}

type MemoryLimiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	return &MemoryLimiter{
		window:   window,
		max:      max,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// WithClock replaces the time source. It must be called before use.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Hit(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.After(c.resetAt) {
		l.counters[key] = &counter{count: 1, resetAt: now.Add(l.window)}
		return false, nil
	}
	if c.count >= l.max {
		return true, nil
	}
	c.count++
	return false, nil
}

// Count returns the current counter for key, zero when absent.
func (l *MemoryLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.counters[key]; ok {
		return c.count
	}
	return 0
}

func (l *MemoryLimiter) Purge(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	purged := 0
	for key, c := range l.counters {
		if now.After(c.resetAt) {
			delete(l.counters, key)
			purged++
		}
	}
	return purged, nil
}
