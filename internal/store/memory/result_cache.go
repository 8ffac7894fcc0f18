package memory

import (
	"context"
	"sync"
	"time"

	"alertscope/internal/domain"
)

const (
	// DefaultMaxEntries bounds the number of cached results.
	DefaultMaxEntries = 10000
	sweepInterval     = time.Minute
)

// ResultCache is an in-memory implementation of store.ResultCache.
// TTL expiration is checked on access, and writes sweep expired entries at
// most once per minute so results that are never read again are dropped.
// When full, Set evicts the entry closest to expiry.
type ResultCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	maxEntries int
	lastSweep  time.Time
	now        func() time.Time
}

// cacheEntry wraps a result with expiration tracking.
type cacheEntry struct {
	result    *domain.SearchAlertsResult
	expiresAt time.Time
}

// NewResultCache creates a new in-memory result cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
}

// Get returns the cached result for key, or nil if absent or expired.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.SearchAlertsResult, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	// Check if expired (lazy expiration)
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, nil
	}

	result := entry.result.Clone()
	return result, nil
}

// Set stores a result with the specified TTL.
func (c *ResultCache) Set(ctx context.Context, key string, result *domain.SearchAlertsResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	_, exists := c.entries[key]
	if now.Sub(c.lastSweep) >= sweepInterval || (!exists && len(c.entries) >= c.maxEntries) {
		c.sweepLocked(now)
	}
	if !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[key] = &cacheEntry{
		result:    result.Clone(),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// sweepLocked drops expired entries.
func (c *ResultCache) sweepLocked(now time.Time) {
	c.lastSweep = now
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictLocked drops the entry that expires first.
func (c *ResultCache) evictLocked() {
	var (
		victim string
		first  time.Time
	)
	for key, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(first) {
			victim, first = key, entry.expiresAt
		}
	}
	delete(c.entries, victim)
}

// Close releases any resources (no-op for in-memory cache).
func (c *ResultCache) Close() error {
	return nil
}

// Len returns the number of entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
