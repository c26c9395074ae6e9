package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/database"
)

// BlacklistCacheEntry represents a blacklisted symbol with metadata.
type BlacklistCacheEntry struct {
	// Symbol is the instrument identifier that is blacklisted.
	Symbol string `json:"symbol"`
	// Reason describes why the symbol was blacklisted.
	Reason string `json:"reason"`
	// ExpiresAt points to the time when the blacklist entry is no longer valid.
	// If nil, the entry does not expire automatically.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// CreatedAt is the timestamp when the entry was created.
	CreatedAt time.Time `json:"created_at"`
}

// BlacklistCacheStats holds statistics about the blacklist cache.
type BlacklistCacheStats struct {
	TotalEntries   int64     `json:"total_entries"`
	ExpiredEntries int64     `json:"expired_entries"`
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Adds           int64     `json:"adds"`
	LastCleanup    time.Time `json:"last_cleanup"`
}

// BlacklistStore is the slice of the database repository the cache writes
// through to. *database.BlacklistRepository satisfies it.
type BlacklistStore interface {
	AddSymbol(ctx context.Context, symbol, reason string, expiresAt *time.Time) (*database.SymbolBlacklistEntry, error)
	RemoveSymbol(ctx context.Context, symbol string) error
	GetAllBlacklisted(ctx context.Context) ([]database.SymbolBlacklistEntry, error)
}

// BlacklistCache defines the contract for blacklist caching mechanisms. The
// collector consults it before every refresh so unfetchable symbols stop
// burning provider calls.
type BlacklistCache interface {
	IsBlacklisted(ctx context.Context, symbol string) (bool, string)
	Add(ctx context.Context, symbol, reason string, ttl time.Duration)
	Remove(ctx context.Context, symbol string)
	Clear(ctx context.Context)
	GetStats() BlacklistCacheStats
	LogStats()
	CleanupExpired(ctx context.Context) int
	LoadFromStore(ctx context.Context) error
	GetBlacklistedSymbols(ctx context.Context) ([]BlacklistCacheEntry, error)
	Close() error
}

// RedisBlacklistCache implements BlacklistCache on Redis with write-through
// persistence to the symbol blacklist table.
type RedisBlacklistCache struct {
	client redis.Cmdable
	store  BlacklistStore
	logger *logrus.Logger
	prefix string
	stats  BlacklistCacheStats
	mu     sync.RWMutex
}

// NewRedisBlacklistCache creates a Redis-based blacklist cache.
//
// Parameters:
//   client: The Redis client interface.
//   store: The database repository the cache persists through. May be nil
//     for cache-only operation.
//
// Returns:
//   *RedisBlacklistCache: A pointer to the initialized cache.
func NewRedisBlacklistCache(client redis.Cmdable, store BlacklistStore, logger *logrus.Logger) *RedisBlacklistCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisBlacklistCache{
		client: client,
		store:  store,
		logger: logger,
		prefix: "blacklist:",
	}
}

// IsBlacklisted checks if a symbol is blacklisted. Redis errors are logged
// and treated as a miss so a cache outage never blocks collection.
func (rbc *RedisBlacklistCache) IsBlacklisted(ctx context.Context, symbol string) (bool, string) {
	key := rbc.prefix + symbol
	val, err := rbc.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			rbc.logger.WithError(err).WithField("symbol", symbol).Warn("Redis blacklist check failed")
		}
		rbc.recordMiss()
		return false, ""
	}

	var entry BlacklistCacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		rbc.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to unmarshal blacklist entry")
		rbc.recordMiss()
		return false, ""
	}

	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		rbc.client.Del(ctx, key)
		rbc.mu.Lock()
		rbc.stats.ExpiredEntries++
		rbc.stats.Misses++
		rbc.mu.Unlock()
		return false, ""
	}

	rbc.mu.Lock()
	rbc.stats.Hits++
	rbc.mu.Unlock()
	return true, entry.Reason
}

// Add blacklists a symbol for the given TTL. The entry is persisted to the
// database first, then mirrored into Redis; a database failure is logged but
// does not prevent the cache update.
func (rbc *RedisBlacklistCache) Add(ctx context.Context, symbol, reason string, ttl time.Duration) {
	entry := BlacklistCacheEntry{
		Symbol:    symbol,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	if rbc.store != nil {
		if _, err := rbc.store.AddSymbol(ctx, symbol, reason, entry.ExpiresAt); err != nil {
			rbc.logger.WithError(err).WithField("symbol", symbol).Error("Failed to persist blacklist entry")
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		rbc.logger.WithError(err).WithField("symbol", symbol).Error("Failed to marshal blacklist entry")
		return
	}

	if err := rbc.client.Set(ctx, rbc.prefix+symbol, data, ttl).Err(); err != nil {
		rbc.logger.WithError(err).WithField("symbol", symbol).Error("Failed to cache blacklist entry")
		return
	}

	rbc.mu.Lock()
	rbc.stats.Adds++
	rbc.stats.TotalEntries++
	rbc.mu.Unlock()
	rbc.logger.WithFields(logrus.Fields{"symbol": symbol, "reason": reason, "ttl": ttl}).Info("Blacklisted symbol")
}

// Remove deactivates a symbol in the database and drops it from Redis.
func (rbc *RedisBlacklistCache) Remove(ctx context.Context, symbol string) {
	if rbc.store != nil {
		if err := rbc.store.RemoveSymbol(ctx, symbol); err != nil {
			rbc.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to remove blacklist entry from store")
		}
	}

	result := rbc.client.Del(ctx, rbc.prefix+symbol)
	if result.Err() != nil {
		rbc.logger.WithError(result.Err()).WithField("symbol", symbol).Warn("Failed to remove blacklist entry from cache")
		return
	}

	if result.Val() > 0 {
		rbc.mu.Lock()
		rbc.stats.TotalEntries--
		rbc.mu.Unlock()
	}
}

// Clear removes all blacklist entries from Redis. The database is left
// untouched to prevent accidental loss of the persistent record.
func (rbc *RedisBlacklistCache) Clear(ctx context.Context) {
	keys, err := rbc.scanKeys(ctx)
	if err != nil {
		rbc.logger.WithError(err).Warn("Failed to scan blacklist keys")
		return
	}

	if len(keys) > 0 {
		result := rbc.client.Del(ctx, keys...)
		if result.Err() != nil {
			rbc.logger.WithError(result.Err()).Warn("Failed to clear blacklist cache")
			return
		}
		rbc.mu.Lock()
		rbc.stats.TotalEntries = 0
		rbc.mu.Unlock()
		rbc.logger.WithField("count", result.Val()).Info("Cleared blacklisted symbols")
	}
}

// GetStats returns current cache statistics. TotalEntries is refreshed from
// Redis when reachable.
func (rbc *RedisBlacklistCache) GetStats() BlacklistCacheStats {
	keys, err := rbc.scanKeys(context.Background())

	rbc.mu.Lock()
	defer rbc.mu.Unlock()
	if err == nil {
		rbc.stats.TotalEntries = int64(len(keys))
	}
	return rbc.stats
}

// LogStats logs current cache statistics.
func (rbc *RedisBlacklistCache) LogStats() {
	stats := rbc.GetStats()
	rbc.logger.WithFields(logrus.Fields{
		"total":   stats.TotalEntries,
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"adds":    stats.Adds,
		"expired": stats.ExpiredEntries,
	}).Info("Blacklist cache stats")
}

// CleanupExpired removes entries whose expiration time has passed and
// returns how many were dropped.
func (rbc *RedisBlacklistCache) CleanupExpired(ctx context.Context) int {
	keys, err := rbc.scanKeys(ctx)
	if err != nil {
		rbc.logger.WithError(err).Warn("Failed to scan blacklist keys for cleanup")
		return 0
	}

	expiredCount := 0
	for _, key := range keys {
		val, err := rbc.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var entry BlacklistCacheEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			continue
		}

		if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
			rbc.client.Del(ctx, key)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		rbc.mu.Lock()
		rbc.stats.ExpiredEntries += int64(expiredCount)
		rbc.stats.TotalEntries -= int64(expiredCount)
		rbc.stats.LastCleanup = time.Now()
		rbc.mu.Unlock()
		rbc.logger.WithField("count", expiredCount).Info("Cleaned up expired blacklist entries")
	}

	return expiredCount
}

// LoadFromStore seeds the Redis cache from the database blacklist. Called on
// startup so restarts do not forget which symbols are parked.
func (rbc *RedisBlacklistCache) LoadFromStore(ctx context.Context) error {
	if rbc.store == nil {
		return fmt.Errorf("blacklist store not configured")
	}

	entries, err := rbc.store.GetAllBlacklisted(ctx)
	if err != nil {
		return fmt.Errorf("failed to load blacklist from store: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		var ttl time.Duration
		if entry.ExpiresAt != nil {
			ttl = time.Until(*entry.ExpiresAt)
			if ttl <= 0 {
				continue
			}
		}

		cacheEntry := BlacklistCacheEntry{
			Symbol:    entry.Symbol,
			Reason:    entry.Reason,
			ExpiresAt: entry.ExpiresAt,
			CreatedAt: entry.CreatedAt,
		}

		data, err := json.Marshal(cacheEntry)
		if err != nil {
			rbc.logger.WithError(err).WithField("symbol", entry.Symbol).Warn("Failed to marshal blacklist entry")
			continue
		}

		if err := rbc.client.Set(ctx, rbc.prefix+entry.Symbol, data, ttl).Err(); err != nil {
			rbc.logger.WithError(err).WithField("symbol", entry.Symbol).Warn("Failed to seed blacklist entry")
			continue
		}
		loaded++
	}

	rbc.logger.WithField("count", loaded).Info("Loaded blacklist entries from store")
	return nil
}

// GetBlacklistedSymbols returns all live blacklist entries from Redis.
func (rbc *RedisBlacklistCache) GetBlacklistedSymbols(ctx context.Context) ([]BlacklistCacheEntry, error) {
	keys, err := rbc.scanKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan blacklist keys: %w", err)
	}

	var entries []BlacklistCacheEntry
	for _, key := range keys {
		val, err := rbc.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var entry BlacklistCacheEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			continue
		}

		if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
			rbc.client.Del(ctx, key)
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Close is a no-op; the Redis client is managed externally.
func (rbc *RedisBlacklistCache) Close() error {
	return nil
}

func (rbc *RedisBlacklistCache) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := rbc.client.Scan(ctx, 0, rbc.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (rbc *RedisBlacklistCache) recordMiss() {
	rbc.mu.Lock()
	rbc.stats.Misses++
	rbc.mu.Unlock()
}

// InMemoryBlacklistCache is the fallback implementation used when Redis is
// unavailable. Thread-safe, map-backed, no persistence.
type InMemoryBlacklistCache struct {
	cache  map[string]*BlacklistCacheEntry
	logger *logrus.Logger
	stats  BlacklistCacheStats
	mu     sync.RWMutex
}

// NewInMemoryBlacklistCache creates a new in-memory blacklist cache.
func NewInMemoryBlacklistCache(logger *logrus.Logger) *InMemoryBlacklistCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InMemoryBlacklistCache{
		cache:  make(map[string]*BlacklistCacheEntry),
		logger: logger,
	}
}

// IsBlacklisted checks if a symbol is blacklisted.
func (ibc *InMemoryBlacklistCache) IsBlacklisted(ctx context.Context, symbol string) (bool, string) {
	ibc.mu.Lock()
	defer ibc.mu.Unlock()

	entry, exists := ibc.cache[symbol]
	if !exists {
		ibc.stats.Misses++
		return false, ""
	}

	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		delete(ibc.cache, symbol)
		ibc.stats.ExpiredEntries++
		ibc.stats.TotalEntries--
		ibc.stats.Misses++
		return false, ""
	}

	ibc.stats.Hits++
	return true, entry.Reason
}

// Add blacklists a symbol for the given TTL. A TTL of zero or less means no
// expiration.
func (ibc *InMemoryBlacklistCache) Add(ctx context.Context, symbol, reason string, ttl time.Duration) {
	ibc.mu.Lock()
	defer ibc.mu.Unlock()

	entry := &BlacklistCacheEntry{
		Symbol:    symbol,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	ibc.cache[symbol] = entry
	ibc.stats.Adds++
	ibc.stats.TotalEntries++
	ibc.logger.WithFields(logrus.Fields{"symbol": symbol, "reason": reason, "ttl": ttl}).Info("Blacklisted symbol")
}

// Remove removes a symbol from the blacklist.
func (ibc *InMemoryBlacklistCache) Remove(ctx context.Context, symbol string) {
	ibc.mu.Lock()
	defer ibc.mu.Unlock()

	if _, exists := ibc.cache[symbol]; exists {
		delete(ibc.cache, symbol)
		ibc.stats.TotalEntries--
	}
}

// Clear removes all blacklisted symbols.
func (ibc *InMemoryBlacklistCache) Clear(ctx context.Context) {
	ibc.mu.Lock()
	defer ibc.mu.Unlock()

	ibc.cache = make(map[string]*BlacklistCacheEntry)
	ibc.stats.TotalEntries = 0
}

// GetStats returns current cache statistics.
func (ibc *InMemoryBlacklistCache) GetStats() BlacklistCacheStats {
	ibc.mu.RLock()
	defer ibc.mu.RUnlock()
	return ibc.stats
}

// LogStats logs current cache statistics.
func (ibc *InMemoryBlacklistCache) LogStats() {
	stats := ibc.GetStats()
	ibc.logger.WithFields(logrus.Fields{
		"total":   stats.TotalEntries,
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"adds":    stats.Adds,
		"expired": stats.ExpiredEntries,
	}).Info("Blacklist cache stats")
}

// CleanupExpired removes entries whose expiration time has passed.
func (ibc *InMemoryBlacklistCache) CleanupExpired(ctx context.Context) int {
	ibc.mu.Lock()
	defer ibc.mu.Unlock()

	expiredCount := 0
	now := time.Now()
	for symbol, entry := range ibc.cache {
		if entry.ExpiresAt != nil && now.After(*entry.ExpiresAt) {
			delete(ibc.cache, symbol)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		ibc.stats.ExpiredEntries += int64(expiredCount)
		ibc.stats.TotalEntries -= int64(expiredCount)
		ibc.stats.LastCleanup = now
	}

	return expiredCount
}

// LoadFromStore is unsupported for the in-memory cache.
func (ibc *InMemoryBlacklistCache) LoadFromStore(ctx context.Context) error {
	return fmt.Errorf("store persistence not supported for in-memory cache")
}

// GetBlacklistedSymbols returns all live blacklist entries.
func (ibc *InMemoryBlacklistCache) GetBlacklistedSymbols(ctx context.Context) ([]BlacklistCacheEntry, error) {
	ibc.mu.RLock()
	defer ibc.mu.RUnlock()

	var entries []BlacklistCacheEntry
	for _, entry := range ibc.cache {
		if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
			continue
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close is a no-op for the in-memory cache.
func (ibc *InMemoryBlacklistCache) Close() error {
	return nil
}
