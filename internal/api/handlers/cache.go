package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lenslabs/marketlens-go/internal/services"
)

// CacheAnalyticsInterface is the slice of the cache analytics service the
// handler consumes.
type CacheAnalyticsInterface interface {
	GetStats(category string) services.CacheStats
	GetAllStats() map[string]services.CacheStats
	GetMetrics(ctx context.Context) *services.CacheMetrics
	ResetStats()
}

// CacheHandler serves the cache monitoring endpoints.
type CacheHandler struct {
	cacheAnalytics CacheAnalyticsInterface
}

func NewCacheHandler(cacheAnalytics CacheAnalyticsInterface) *CacheHandler {
	return &CacheHandler{cacheAnalytics: cacheAnalytics}
}

// GetCacheStats returns hit/miss counters for every tracked category.
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cacheAnalytics.GetAllStats())
}

// GetCacheStatsByCategory returns counters for one category. Unknown
// categories report zeroed counters rather than an error.
func (h *CacheHandler) GetCacheStatsByCategory(c *gin.Context) {
	category := c.Param("category")
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"stats":    h.cacheAnalytics.GetStats(category),
	})
}

// GetCacheMetrics returns the full cache view: per-category counters, the
// per-layer cache stats and Redis server metrics.
func (h *CacheHandler) GetCacheMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.cacheAnalytics.GetMetrics(c.Request.Context()))
}

// ResetCacheStats zeroes all hit/miss counters.
func (h *CacheHandler) ResetCacheStats(c *gin.Context) {
	h.cacheAnalytics.ResetStats()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
