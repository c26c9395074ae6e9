package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/lenslabs/marketlens-go/internal/models"
)

// AnalyticsCacheStats tracks cache performance counters
type AnalyticsCacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Entries int   `json:"entries"`
}

type analyticsEntry struct {
	analytics *models.MarketAnalytics
	cachedAt  time.Time
	expiresAt time.Time
}

// AnalyticsCache holds composite analytics records keyed by
// symbol+timeframe. Expiry is checked against an injected clock so tests
// can advance time without sleeping; no ambient global state is involved.
type AnalyticsCache struct {
	mu      sync.RWMutex
	entries map[string]analyticsEntry
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
	sets   int64
}

// NewAnalyticsCache creates a cache with the given TTL using the wall clock.
func NewAnalyticsCache(ttl time.Duration) *AnalyticsCache {
	return NewAnalyticsCacheWithClock(ttl, time.Now)
}

// NewAnalyticsCacheWithClock creates a cache reading time from the given
// clock function.
func NewAnalyticsCacheWithClock(ttl time.Duration, now func() time.Time) *AnalyticsCache {
	return &AnalyticsCache{
		entries: make(map[string]analyticsEntry),
		ttl:     ttl,
		now:     now,
	}
}

func cacheKey(symbol, timeframe string) string {
	return fmt.Sprintf("%s:%s", symbol, timeframe)
}

// Get returns the cached analytics for symbol+timeframe, or false when
// absent or expired. Expired entries are evicted on access.
func (c *AnalyticsCache) Get(symbol, timeframe string) (*models.MarketAnalytics, bool) {
	key := cacheKey(symbol, timeframe)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// re-check under the write lock, another caller may have refreshed
		if current, still := c.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.analytics, true
}

// Set stores analytics for symbol+timeframe with the configured TTL.
func (c *AnalyticsCache) Set(symbol, timeframe string, analytics *models.MarketAnalytics) {
	if analytics == nil {
		return
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(symbol, timeframe)] = analyticsEntry{
		analytics: analytics,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
	c.sets++
}

// Invalidate removes a single symbol+timeframe entry.
func (c *AnalyticsCache) Invalidate(symbol, timeframe string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(symbol, timeframe))
}

// Clear removes all entries.
func (c *AnalyticsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]analyticsEntry)
}

// Stats returns a snapshot of the cache counters.
func (c *AnalyticsCache) Stats() AnalyticsCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return AnalyticsCacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		Entries: len(c.entries),
	}
}
