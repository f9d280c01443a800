package admission

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a per-key fixed-window counter held in process memory.
// The first request in a window starts it; races near the boundary may
// undercount by one.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	usage  map[string]*rateUsage
}

type rateUsage struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter allows limit requests per key per window. A non-positive
// limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		usage:  make(map[string]*rateUsage),
	}
}

// Allow records a request for key and reports whether it is permitted,
// how many remain in the window and the seconds until the window resets.
func (rl *RateLimiter) Allow(key string) (bool, int, int) {
	if rl == nil || rl.limit <= 0 {
		return true, 0, 0
	}
	if key == "" {
		key = "unknown"
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.usage[key]
	if !ok || now.Sub(entry.windowStart) >= rl.window {
		entry = &rateUsage{windowStart: now}
		rl.usage[key] = entry
	}

	resetSeconds := int(entry.windowStart.Add(rl.window).Sub(now).Seconds())
	if resetSeconds < 0 {
		resetSeconds = 0
	}
	if entry.count >= rl.limit {
		return false, 0, resetSeconds
	}
	entry.count++
	return true, rl.limit - entry.count, resetSeconds
}

// Reset forgets key's window.
func (rl *RateLimiter) Reset(key string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.usage, key)
	rl.mu.Unlock()
}

// Cleanup drops windows that ended at least one window ago.
func (rl *RateLimiter) Cleanup() {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, entry := range rl.usage {
		if now.Sub(entry.windowStart) >= 2*rl.window {
			delete(rl.usage, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	if rl == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(rl.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.usage)
}
