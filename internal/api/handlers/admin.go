package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/middleware"
	"github.com/lenslabs/marketlens-go/internal/services"
)

// CollectorAdmin is the collector control surface used by the admin
// endpoints.
type CollectorAdmin interface {
	GetWorkerStatus() map[string]*services.SymbolWorker
	ProviderBreakerStats() services.CircuitBreakerStats
	RestartSymbol(symbol string) error
}

// CleanupRunner triggers a retention sweep on demand.
type CleanupRunner interface {
	RunCleanup(ctx context.Context) (services.CleanupResult, error)
}

type AdminHandler struct {
	collector CollectorAdmin
	cleanup   CleanupRunner
	logger    *logrus.Logger
}

type WorkersResponse struct {
	Workers   map[string]*services.SymbolWorker `json:"workers"`
	Breaker   services.CircuitBreakerStats      `json:"provider_breaker"`
	Count     int                               `json:"count"`
	Timestamp time.Time                         `json:"timestamp"`
}

func NewAdminHandler(collector CollectorAdmin, cleanup CleanupRunner, logger *logrus.Logger) *AdminHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AdminHandler{
		collector: collector,
		cleanup:   cleanup,
		logger:    logger,
	}
}

// GetWorkers returns the per-symbol refresh state and the provider circuit
// breaker counters.
func (h *AdminHandler) GetWorkers(c *gin.Context) {
	workers := h.collector.GetWorkerStatus()
	c.JSON(http.StatusOK, WorkersResponse{
		Workers:   workers,
		Breaker:   h.collector.ProviderBreakerStats(),
		Count:     len(workers),
		Timestamp: time.Now(),
	})
}

// RestartWorker clears a symbol's error state and lifts its blacklist entry
// so the next refresh pass picks it up again.
func (h *AdminHandler) RestartWorker(c *gin.Context) {
	symbol := c.Param("symbol")

	if err := h.collector.RestartSymbol(symbol); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.logger.WithField("symbol", symbol).Info("Worker restarted via admin API")
	c.JSON(http.StatusOK, gin.H{"status": "restarted", "symbol": symbol})
}

// TriggerCleanup runs a retention sweep immediately instead of waiting for
// the scheduled pass.
func (h *AdminHandler) TriggerCleanup(c *gin.Context) {
	result, err := h.cleanup.RunCleanup(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual cleanup failed")
		middleware.RecordError(c, err, "cleanup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}
