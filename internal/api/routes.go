package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/api/handlers"
	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/database"
	"github.com/lenslabs/marketlens-go/internal/marketdata"
	"github.com/lenslabs/marketlens-go/internal/middleware"
	"github.com/lenslabs/marketlens-go/internal/services"
)

// SetupRoutes wires the full HTTP surface: public health probes, the
// analysis and market API, and the admin-gated cache and operations
// endpoints.
func SetupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *database.PostgresDB,
	redisClient *database.RedisClient,
	provider *marketdata.Client,
	technical *services.TechnicalAnalysisService,
	analytics *services.MarketAnalyticsService,
	collector *services.CollectorService,
	cacheAnalytics *services.CacheAnalyticsService,
	cleanup *services.CleanupService,
	responseCache *cache.RedisResponseCache,
	logger *logrus.Logger,
) {
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JWTSecret)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.Security, authMiddleware, logger)

	healthHandler := handlers.NewHealthHandler(db, redisClient, provider, collector, logger)
	analysisHandler := handlers.NewAnalysisHandler(technical)
	marketHandler := handlers.NewMarketHandler(analytics, responseCache, cacheAnalytics, logger)
	cacheHandler := handlers.NewCacheHandler(cacheAnalytics)
	authHandler := handlers.NewAuthHandler(adminMiddleware, authMiddleware, cfg.Security.JWTExpiryDuration(), logger)
	adminHandler := handlers.NewAdminHandler(collector, cleanup, logger)

	// Probes carry their own lightweight spans; the otelgin middleware in
	// main skips these paths.
	probes := router.Group("/")
	probes.Use(middleware.HealthCheckTelemetryMiddleware())
	{
		probes.GET("/health", healthHandler.Health)
		probes.GET("/health/detailed", adminMiddleware.RequireAdmin(), healthHandler.DetailedHealth)
		probes.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authHandler.IssueToken)

		analysisGroup := v1.Group("/analysis")
		{
			analysisGroup.GET("/:symbol/indicators", analysisHandler.GetIndicators)
			analysisGroup.GET("/:symbol/signals", analysisHandler.GetSignals)
			analysisGroup.GET("/:symbol/trend", analysisHandler.GetTrend)
			analysisGroup.GET("/:symbol/levels", analysisHandler.GetLevels)
			analysisGroup.GET("/:symbol/breakdown", analysisHandler.GetBreakdown)
		}

		marketGroup := v1.Group("/market")
		{
			marketGroup.GET("/:symbol/analytics", marketHandler.GetAnalytics)
			marketGroup.POST("/analytics/batch", marketHandler.GetBatchAnalytics)
		}

		cacheGroup := v1.Group("/cache")
		cacheGroup.Use(adminMiddleware.RequireAdmin())
		{
			cacheGroup.GET("/stats", cacheHandler.GetCacheStats)
			cacheGroup.GET("/stats/:category", cacheHandler.GetCacheStatsByCategory)
			cacheGroup.GET("/metrics", cacheHandler.GetCacheMetrics)
			cacheGroup.POST("/stats/reset", cacheHandler.ResetCacheStats)
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(adminMiddleware.RequireAdmin())
		{
			adminGroup.GET("/workers", adminHandler.GetWorkers)
			adminGroup.POST("/workers/:symbol/restart", adminHandler.RestartWorker)
			adminGroup.POST("/cleanup", adminHandler.TriggerCleanup)
		}
	}
}
