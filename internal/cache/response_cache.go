package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ResponseCacheEntry wraps a serialized API response with cache metadata
type ResponseCacheEntry struct {
	Payload   json.RawMessage `json:"payload"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ResponseCacheStats tracks cache performance metrics
type ResponseCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// RedisResponseCache caches serialized API responses in Redis so repeated
// reads of the same analytics do not recompute the composite.
type RedisResponseCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	logger *logrus.Logger
	prefix string

	mu    sync.RWMutex
	stats ResponseCacheStats
}

// AnalyticsResponseKey builds the cache key for a market analytics response.
func AnalyticsResponseKey(symbol, timeframe string) string {
	return fmt.Sprintf("analytics:%s:%s", symbol, timeframe)
}

// NewRedisResponseCache creates a new Redis-based response cache
func NewRedisResponseCache(redisClient redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *RedisResponseCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisResponseCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
		prefix: "response_cache:",
	}
}

// Get retrieves a cached response payload. Redis errors and stale entries
// count as misses.
func (c *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	cacheKey := c.prefix + key

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("key", key).Warn("Redis error reading cached response")
		}
		c.recordMiss()
		return nil, false
	}

	var entry ResponseCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to deserialize cached response")
		c.recordMiss()
		return nil, false
	}

	// Redis TTL normally handles expiry; the embedded timestamp catches
	// entries written with a longer TTL by an older configuration.
	if time.Now().After(entry.ExpiresAt) {
		c.redis.Del(ctx, cacheKey)
		c.recordMiss()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()

	return entry.Payload, true
}

// Set stores a response payload with the configured TTL
func (c *RedisResponseCache) Set(ctx context.Context, key string, payload []byte) {
	cacheKey := c.prefix + key

	now := time.Now()
	entry := ResponseCacheEntry{
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to serialize response for caching")
		return
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error caching response")
		return
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
}

// Invalidate drops a single cached response
func (c *RedisResponseCache) Invalidate(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error invalidating cached response")
	}
}

// GetStats returns current cache statistics
func (c *RedisResponseCache) GetStats() ResponseCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// LogStats logs current cache performance statistics
func (c *RedisResponseCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Response cache stats")
}

// Clear removes all cached responses
func (c *RedisResponseCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("count", len(keys)).Info("Cleared cached responses")
	return nil
}

// CachedKeys returns the keys of all cached responses, prefix stripped
func (c *RedisResponseCache) CachedKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning cache keys: %w", err)
	}

	var stripped []string
	prefixLen := len(c.prefix)
	for _, key := range keys {
		if len(key) > prefixLen {
			stripped = append(stripped, key[prefixLen:])
		}
	}

	return stripped, nil
}

func (c *RedisResponseCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
