package frontdoor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorIdle     = 10 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewIPLimiter allows perMinute requests per IP with the given burst. A
// non-positive perMinute disables the gate.
func NewIPLimiter(perMinute, burst int) *IPLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	return &IPLimiter{
		rate:     limit,
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow takes one token from ip's bucket.
func (l *IPLimiter) Allow(ip string) bool {
	if l == nil || l.rate == rate.Inf {
		return true
	}
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Cleanup forgets visitors idle for longer than visitorIdle.
func (l *IPLimiter) Cleanup() {
	cutoff := l.now().Add(-visitorIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// StartCleanup runs Cleanup every cleanupInterval until ctx is done.
func (l *IPLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

func (l *IPLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
