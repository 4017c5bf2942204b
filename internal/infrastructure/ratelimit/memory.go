package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. Buckets
// idle for longer than ten windows are evicted on access.
type MemoryLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter allows limit requests per window with a burst of limit.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	return &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Window() time.Duration { return m.window }

func (m *MemoryLimiter) Take(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	v, ok := m.visitors[key]
	if !ok {
		every := m.window / time.Duration(m.limit)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), m.limit)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

func (m *MemoryLimiter) sweep(now time.Time) {
	idle := 10 * m.window
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for k, v := range m.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(m.visitors, k)
		}
	}
}
