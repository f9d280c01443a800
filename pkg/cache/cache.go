package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL        time.Duration
	MaxEntries int
}

type MetricsHooks struct {
	OnHit   func()
	OnMiss  func()
	OnStore func()
	OnError func()
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL cache with FIFO eviction. Concurrent misses for the same key
// share one loader call.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]*entry[V]
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
	now     func() time.Time
}

func New[V any](opts Options, hooks MetricsHooks) *Cache[V] {
	return &Cache[V]{
		items:   make(map[string]*entry[V]),
		order:   make([]string, 0, 128),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

// Loader produces the value for key. Errors are returned to every waiter and
// never stored.
type Loader[V any] func(ctx context.Context, key string) (V, error)

func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	if v, ok := c.Peek(key); ok {
		if c.metrics.OnHit != nil {
			c.metrics.OnHit()
		}
		return v, nil
	}

	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss()
	}
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		val, err := loader(ctx, key)
		if err != nil {
			if c.metrics.OnError != nil {
				c.metrics.OnError()
			}
			return nil, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Set stores val under key with the configured TTL.
func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = &entry[V]{value: val, expiresAt: c.now().Add(c.opts.TTL)}
	c.evictIfNeeded()
	c.mu.Unlock()

	if c.metrics.OnStore != nil {
		c.metrics.OnStore()
	}
}

// Peek returns a live cached value without triggering a load.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until evicted.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache[V]) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// Expired entries go first, then oldest insertion.
	now := c.now()
	kept := c.order[:0]
	for _, k := range c.order {
		if e := c.items[k]; e != nil && now.Before(e.expiresAt) {
			kept = append(kept, k)
			continue
		}
		delete(c.items, k)
	}
	c.order = kept
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
	}
}
