package server

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/time/rate"
)

// userLimiter is a token bucket per user. Idle buckets are dropped on the
// next call after idleTTL.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clock     clock.Clock
	idleTTL   time.Duration
	lastSweep time.Time
	buckets   map[string]*bucket
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

func newUserLimiter(every time.Duration, burst int, clk clock.Clock) *userLimiter {
	if clk == nil {
		clk = clock.WallClock
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	idle := 5 * time.Minute
	if d := every * time.Duration(burst); d > idle {
		idle = d
	}
	return &userLimiter{
		limit:   limit,
		burst:   burst,
		clock:   clk,
		idleTTL: idle,
		buckets: make(map[string]*bucket),
	}
}

// allow reports whether key may proceed now.
func (l *userLimiter) allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.ts) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.ts = now
	return b.lim.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
