// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package cache

import (
	"sync"
	"time"
)

// Options configures a Cache at construction.
type Options struct {
	Policy  Policy        // LRU, LFU, or FIFO. Defaults to LRU.
	MaxSize int            // maximum live entries; 0 means unbounded.
	TTL     time.Duration  // 0 disables expiry.
}

// Cache is a bounded, thread-safe in-memory key/value map with pluggable
// eviction. It never raises on absence and never promises durability: the
// version manager is always the source of truth (§3 invariant 2).
type Cache struct {
	mu  sync.Mutex
	p   policy
	ttl time.Duration
}

// New constructs a Cache from Options.
func New(opts Options) *Cache {
	if opts.Policy == "" {
		opts.Policy = LRU
	}
	return &Cache{
		p:   newPolicy(opts.Policy, opts.MaxSize),
		ttl: opts.TTL,
	}
}

// Get returns the cached value for key, or ok=false on a miss — including a
// miss synthesised because the entry's age exceeds the configured TTL, in
// which case the expired entry is also removed in-line.
func (c *Cache) Get(key []byte) (value []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.p.get(string(key))
	if !found {
		return nil, false
	}
	if c.expired(e) {
		c.p.delete(string(key))
		return nil, false
	}
	return e.value, true
}

// Put inserts or overwrites key's value.
func (c *Cache) Put(key, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.p.put(string(key), entry{value: value, insertedAt: now, accessedAt: now})
}

// Delete removes key if present; a no-op otherwise.
func (c *Cache) Delete(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p.delete(string(key))
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p.clear()
}

// Size returns the number of live (non-expired-but-unswept included) entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.size()
}

// GetOrCompute returns the cached value for key, or atomically computes and
// fills it via thunk on a miss. thunk is invoked at most once per call and
// while the cache's internal lock is held, so concurrent callers racing on
// the same key are serialised rather than duplicating the compute.
func (c *Cache) GetOrCompute(key []byte, thunk func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, found := c.p.get(string(key)); found && !c.expired(e) {
		return e.value, nil
	}

	value, err := thunk()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	c.p.put(string(key), entry{value: value, insertedAt: now, accessedAt: now})
	return value, nil
}

func (c *Cache) expired(e entry) bool {
	return c.ttl > 0 && time.Since(e.insertedAt) > c.ttl
}
