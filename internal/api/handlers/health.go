package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/services"
)

var startTime = time.Now()

// DependencyChecker is the probe surface shared by the Postgres and Redis
// connection wrappers.
type DependencyChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderChecker reports whether the upstream market data service responds.
type ProviderChecker interface {
	IsHealthy(ctx context.Context) bool
}

// CollectorStatus exposes the watchlist collector state consumed by the
// health and admin endpoints.
type CollectorStatus interface {
	IsHealthy() bool
	GetWorkerStatus() map[string]*services.SymbolWorker
	ProviderBreakerStats() services.CircuitBreakerStats
}

type HealthHandler struct {
	db        DependencyChecker
	redis     DependencyChecker
	provider  ProviderChecker
	collector CollectorStatus
	logger    *logrus.Logger
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// SystemMetrics is the host snapshot included in the detailed health view.
type SystemMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	CPUCores      int     `json:"cpu_cores"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	Goroutines    int     `json:"goroutines"`
}

type DetailedHealthResponse struct {
	HealthResponse
	System  SystemMetrics                     `json:"system"`
	Workers map[string]*services.SymbolWorker `json:"workers"`
	Breaker services.CircuitBreakerStats      `json:"provider_breaker"`
}

func NewHealthHandler(db, redis DependencyChecker, provider ProviderChecker, collector CollectorStatus, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{
		db:        db,
		redis:     redis,
		provider:  provider,
		collector: collector,
		logger:    logger,
	}
}

// Health reports liveness plus per-dependency status. Any unhealthy
// dependency degrades the response to 503.
func (h *HealthHandler) Health(c *gin.Context) {
	response := h.buildHealth(c.Request.Context())

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// Ready reports readiness for traffic: both stores must answer.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := make(map[string]string)
	ready := true

	if h.db == nil {
		checks["database"] = "not ready: not configured"
		ready = false
	} else if err := h.db.HealthCheck(ctx); err != nil {
		checks["database"] = "not ready: " + err.Error()
		ready = false
	} else {
		checks["database"] = "ready"
	}

	if h.redis == nil {
		checks["redis"] = "not ready: not configured"
		ready = false
	} else if err := h.redis.HealthCheck(ctx); err != nil {
		checks["redis"] = "not ready: " + err.Error()
		ready = false
	} else {
		checks["redis"] = "ready"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "services": checks})
}

// DetailedHealth extends the health report with host metrics and the
// collector worker table. The admin gate lives in the route setup.
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	ctx := c.Request.Context()

	response := DetailedHealthResponse{
		HealthResponse: h.buildHealth(ctx),
		System:         h.systemMetrics(ctx),
	}
	if h.collector != nil {
		response.Workers = h.collector.GetWorkerStatus()
		response.Breaker = h.collector.ProviderBreakerStats()
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

func (h *HealthHandler) buildHealth(ctx context.Context) HealthResponse {
	checks := make(map[string]string)

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "unhealthy: not configured"
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "unhealthy: not configured"
	}

	if h.provider != nil {
		if h.provider.IsHealthy(ctx) {
			checks["provider"] = "healthy"
		} else {
			checks["provider"] = "unhealthy: market data service unreachable"
		}
	} else {
		checks["provider"] = "unhealthy: not configured"
	}

	if h.collector != nil {
		if h.collector.IsHealthy() {
			checks["collector"] = "healthy"
		} else {
			checks["collector"] = "unhealthy: refresh loop stalled"
		}
	} else {
		checks["collector"] = "unhealthy: not configured"
	}

	overall := "healthy"
	for _, status := range checks {
		if status != "healthy" {
			overall = "unhealthy"
			break
		}
	}

	return HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  checks,
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}
}

func (h *HealthHandler) systemMetrics(ctx context.Context) SystemMetrics {
	metrics := SystemMetrics{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	// Interval 0 compares against the previous call instead of blocking.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		h.logger.WithError(err).Warn("Could not read CPU usage")
	} else if len(percents) > 0 {
		metrics.CPUPercent = percents[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		h.logger.WithError(err).Warn("Could not read memory usage")
	} else {
		metrics.MemoryPercent = memInfo.UsedPercent
		metrics.MemoryUsedMB = memInfo.Used / (1024 * 1024)
		metrics.MemoryTotalMB = memInfo.Total / (1024 * 1024)
	}

	return metrics
}
