package cache

import (
	"context"
	"sync"
	"time"

	pkgcache "github.com/amirasaad/retailpay/pkg/cache"
)

// MemoryCache implements ExchangeRateCache using in-memory storage.
// Expired entries are dropped lazily on read and by Sweep.
type MemoryCache struct {
	cache map[string]*cacheEntry
	mu    sync.RWMutex
	now   func() time.Time
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: make(map[string]*cacheEntry),
		now:   time.Now,
	}
}

// Get retrieves a rate from cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*pkgcache.ExchangeRate, error) {
	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists || c.now().After(entry.expiresAt) {
		return nil, nil
	}
	rate := *entry.rate
	return &rate, nil
}

// Set stores a rate in cache with TTL.
func (c *MemoryCache) Set(_ context.Context, key string, rate *pkgcache.ExchangeRate, ttl time.Duration) error {
	stored := *rate
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = &cacheEntry{rate: &stored, expiresAt: c.now().Add(ttl)}
	return nil
}

// Delete removes a rate from cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
	return nil
}

// Sweep removes expired entries and reports how many were dropped.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, entry := range c.cache {
		if now.After(entry.expiresAt) {
			delete(c.cache, key)
			n++
		}
	}
	return n
}

type cacheEntry struct {
	rate      *pkgcache.ExchangeRate
	expiresAt time.Time
}

var _ pkgcache.ExchangeRateCache = (*MemoryCache)(nil)
