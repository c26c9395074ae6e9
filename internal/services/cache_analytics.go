package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/cache"
)

// reportKey is where periodic stats snapshots are persisted in Redis.
const reportKey = "cache:analytics:stats"

// CacheStats carries hit/miss counters for one lookup category.
type CacheStats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	HitRate     float64   `json:"hit_rate"`
	TotalOps    int64     `json:"total_ops"`
	LastUpdated time.Time `json:"last_updated"`
}

// RedisMetrics summarizes the Redis server backing the caches.
type RedisMetrics struct {
	MemoryUsedBytes  int64             `json:"memory_used_bytes"`
	ConnectedClients int64             `json:"connected_clients"`
	KeyCount         int64             `json:"key_count"`
	Info             map[string]string `json:"info,omitempty"`
}

// CacheMetrics is the aggregated view served by the admin cache endpoints:
// the service's own category counters plus the counters each cache layer
// keeps for itself.
type CacheMetrics struct {
	Overall    CacheStats                `json:"overall"`
	ByCategory map[string]CacheStats     `json:"by_category"`
	Analytics  cache.AnalyticsCacheStats `json:"analytics_cache"`
	Responses  cache.ResponseCacheStats  `json:"response_cache"`
	Blacklist  cache.BlacklistCacheStats `json:"blacklist_cache"`
	Redis      RedisMetrics              `json:"redis"`
}

// CacheAnalyticsService tracks cache performance across the service. API
// handlers record hits and misses per category; GetMetrics folds in the
// per-layer counters and Redis server stats.
type CacheAnalyticsService struct {
	redis     redis.Cmdable
	analytics *cache.AnalyticsCache
	responses *cache.RedisResponseCache
	blacklist cache.BlacklistCache
	logger    *logrus.Logger

	mu    sync.RWMutex
	stats map[string]*CacheStats
}

// NewCacheAnalyticsService creates the aggregator. Any of the cache layers
// may be nil; their sections then stay zero in GetMetrics.
func NewCacheAnalyticsService(redisClient redis.Cmdable, analyticsCache *cache.AnalyticsCache, responseCache *cache.RedisResponseCache, blacklistCache cache.BlacklistCache, logger *logrus.Logger) *CacheAnalyticsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CacheAnalyticsService{
		redis:     redisClient,
		analytics: analyticsCache,
		responses: responseCache,
		blacklist: blacklistCache,
		logger:    logger,
		stats:     make(map[string]*CacheStats),
	}
}

// RecordHit records a cache hit for the given category.
func (c *CacheAnalyticsService) RecordHit(category string) {
	c.record(category, true)
}

// RecordMiss records a cache miss for the given category.
func (c *CacheAnalyticsService) RecordMiss(category string) {
	c.record(category, false)
}

func (c *CacheAnalyticsService) record(category string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, name := range []string{category, "overall"} {
		stats := c.stats[name]
		if stats == nil {
			stats = &CacheStats{}
			c.stats[name] = stats
		}
		if hit {
			stats.Hits++
		} else {
			stats.Misses++
		}
		stats.TotalOps++
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalOps)
		stats.LastUpdated = now
	}
}

// GetStats returns the counters for one category, zero if never recorded.
func (c *CacheAnalyticsService) GetStats(category string) CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if stats, exists := c.stats[category]; exists {
		return *stats
	}
	return CacheStats{}
}

// GetAllStats returns a snapshot of every category.
func (c *CacheAnalyticsService) GetAllStats() map[string]CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]CacheStats, len(c.stats))
	for category, stats := range c.stats {
		result[category] = *stats
	}
	return result
}

// GetMetrics assembles the full cache picture. Redis server metrics degrade
// to zero values when INFO is unavailable rather than failing the endpoint.
func (c *CacheAnalyticsService) GetMetrics(ctx context.Context) *CacheMetrics {
	allStats := c.GetAllStats()

	metrics := &CacheMetrics{
		ByCategory: allStats,
	}
	if overall, exists := allStats["overall"]; exists {
		metrics.Overall = overall
	}

	if c.analytics != nil {
		metrics.Analytics = c.analytics.Stats()
	}
	if c.responses != nil {
		metrics.Responses = c.responses.GetStats()
	}
	if c.blacklist != nil {
		metrics.Blacklist = c.blacklist.GetStats()
	}
	if c.redis != nil {
		metrics.Redis = c.redisMetrics(ctx)
	}

	return metrics
}

// redisMetrics reads server stats from INFO and DBSIZE.
func (c *CacheAnalyticsService) redisMetrics(ctx context.Context) RedisMetrics {
	metrics := RedisMetrics{}

	info, err := c.redis.Info(ctx, "memory", "clients", "keyspace").Result()
	if err != nil {
		// Managed deployments can restrict INFO; the counters still matter.
		c.logger.WithError(err).Debug("Redis INFO unavailable")
	} else {
		metrics.Info = parseRedisInfo(info)
		if v, err := strconv.ParseInt(metrics.Info["used_memory"], 10, 64); err == nil {
			metrics.MemoryUsedBytes = v
		}
		if v, err := strconv.ParseInt(metrics.Info["connected_clients"], 10, 64); err == nil {
			metrics.ConnectedClients = v
		}
	}

	if keys, err := c.redis.DBSize(ctx).Result(); err == nil {
		metrics.KeyCount = keys
	}

	return metrics
}

// parseRedisInfo splits INFO output into key/value pairs, dropping section
// headers.
func parseRedisInfo(info string) map[string]string {
	result := make(map[string]string)

	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			result[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return result
}

// ResetStats clears every category counter.
func (c *CacheAnalyticsService) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]*CacheStats)
}

// StartPeriodicReporting persists a stats snapshot to Redis on the given
// interval until ctx is canceled.
func (c *CacheAnalyticsService) StartPeriodicReporting(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reportStats(ctx)
			}
		}
	}()
}

func (c *CacheAnalyticsService) reportStats(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot, err := json.Marshal(c.GetAllStats())
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal cache stats snapshot")
		return
	}

	if err := c.redis.Set(ctx, reportKey, snapshot, 24*time.Hour).Err(); err != nil {
		c.logger.WithError(err).Debug("Failed to persist cache stats snapshot")
	}
}
