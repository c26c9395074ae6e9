package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/analysis"
	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/marketdata"
	"github.com/lenslabs/marketlens-go/internal/middleware"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/services"
)

// MarketAnalyzer is the slice of the analytics aggregator the handler
// consumes.
type MarketAnalyzer interface {
	Analyze(ctx context.Context, symbol, timeframe string) (*models.MarketAnalytics, error)
	AnalyzeBatch(ctx context.Context, symbols []string, timeframe string) (*models.BatchAnalytics, error)
}

// CacheRecorder receives hit/miss outcomes for the cache analytics view.
type CacheRecorder interface {
	RecordHit(category string)
	RecordMiss(category string)
}

type MarketHandler struct {
	analytics      MarketAnalyzer
	responses      *cache.RedisResponseCache
	cacheAnalytics CacheRecorder
	logger         *logrus.Logger
}

func NewMarketHandler(analytics MarketAnalyzer, responses *cache.RedisResponseCache, cacheAnalytics CacheRecorder, logger *logrus.Logger) *MarketHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MarketHandler{
		analytics:      analytics,
		responses:      responses,
		cacheAnalytics: cacheAnalytics,
		logger:         logger,
	}
}

// GetAnalytics returns the composite analytics record for one symbol. The
// serialized response is cached in Redis so repeated reads within the TTL
// skip the aggregator entirely.
func (h *MarketHandler) GetAnalytics(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", "1d")
	ctx := c.Request.Context()

	key := cache.AnalyticsResponseKey(symbol, timeframe)
	if h.responses != nil {
		if payload, ok := h.responses.Get(ctx, key); ok {
			h.recordCacheOutcome(true)
			middleware.AddSpanAttribute(c, "cache_hit", true)
			c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
			return
		}
	}
	h.recordCacheOutcome(false)
	middleware.AddSpanAttribute(c, "cache_hit", false)

	analytics, err := h.analytics.Analyze(ctx, symbol, timeframe)
	if err != nil {
		h.respondAnalyticsError(c, symbol, err)
		return
	}

	payload, err := json.Marshal(analytics)
	if err != nil {
		middleware.RecordError(c, err, "analytics serialization failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serialize analytics"})
		return
	}

	if h.responses != nil {
		h.responses.Set(ctx, key, payload)
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// GetBatchAnalytics fans analytics out across the requested symbols with
// bounded concurrency. Per-symbol failures land in the failed map; the
// batch itself only fails on invalid input.
func (h *MarketHandler) GetBatchAnalytics(c *gin.Context) {
	var req models.BatchAnalyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols list is required"})
		return
	}

	batch, err := h.analytics.AnalyzeBatch(c.Request.Context(), req.Symbols, req.Timeframe)
	if err != nil {
		// AnalyzeBatch only rejects malformed input; per-symbol errors
		// are reported inside the batch.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	middleware.AddSpanAttribute(c, "batch_size", len(req.Symbols))
	middleware.AddSpanAttribute(c, "batch_failed", len(batch.Failed))
	c.JSON(http.StatusOK, batch)
}

func (h *MarketHandler) recordCacheOutcome(hit bool) {
	if h.cacheAnalytics == nil {
		return
	}
	if hit {
		h.cacheAnalytics.RecordHit("analytics")
	} else {
		h.cacheAnalytics.RecordMiss("analytics")
	}
}

// respondAnalyticsError maps aggregator errors onto API status codes. The
// aggregator talks to the live provider, so unknown symbols surface as the
// provider's not-found and everything else upstream is a bad gateway.
func (h *MarketHandler) respondAnalyticsError(c *gin.Context, symbol string, err error) {
	switch {
	case errors.Is(err, marketdata.ErrSymbolNotFound), errors.Is(err, services.ErrNoHistory):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol: " + symbol})
	case errors.Is(err, analysis.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient history for analysis"})
	default:
		h.logger.WithError(err).WithField("symbol", symbol).Error("Analytics request failed")
		middleware.RecordError(c, err, "market data provider failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "market data provider unavailable"})
	}
}
