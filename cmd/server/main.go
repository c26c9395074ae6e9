package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lenslabs/marketlens-go/internal/api"
	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/database"
	"github.com/lenslabs/marketlens-go/internal/logging"
	"github.com/lenslabs/marketlens-go/internal/marketdata"
	"github.com/lenslabs/marketlens-go/internal/middleware"
	"github.com/lenslabs/marketlens-go/internal/observability"
	"github.com/lenslabs/marketlens-go/internal/services"
	"github.com/lenslabs/marketlens-go/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "marketlens"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; deployments inject environment variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize telemetry first so every later component can open spans
	if err := telemetry.InitTelemetry(telemetry.TelemetryConfig{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Environment,
	}); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	if err := observability.InitSentry(cfg.Sentry, telemetry.ServiceVersion, cfg.Environment); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	defer observability.Flush(context.Background())

	// Structured app logger; ships records over OTLP when telemetry is on.
	var appLogger *logging.StandardLogger
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" {
		appLogger = logging.NewStandardOTLPLogger(logging.OTLPConfig{
			Enabled:        true,
			Endpoint:       cfg.Telemetry.Endpoint,
			ServiceName:    serviceName,
			ServiceVersion: telemetry.ServiceVersion,
			Environment:    cfg.Environment,
			LogLevel:       cfg.LogLevel,
		})
	} else {
		appLogger = logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	}

	// Logrus logger for services that require it
	logger := logging.NewServiceLogger(cfg.LogLevel)

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	// Market data provider client
	provider := marketdata.NewClient(cfg.Provider)
	defer provider.Close()

	// Storage layer over a traced pool so every query shows up in spans
	pool := database.NewTracedDB(db.Pool)
	candleStore := database.NewCandleStore(pool)
	blacklistRepo := database.NewBlacklistRepository(pool)

	// Caches: in-process analytics composites, Redis-backed serialized
	// responses, and the symbol blacklist shared across instances.
	analyticsCache := cache.NewAnalyticsCache(cfg.Analysis.CacheTTLDuration())
	responseCache := cache.NewRedisResponseCache(redisClient.Client, cfg.Analysis.CacheTTLDuration(), logger)
	blacklistCache := cache.NewRedisBlacklistCache(redisClient.Client, blacklistRepo, logger)

	// Core analysis services
	technical := services.NewTechnicalAnalysisService(candleStore, cfg.Analysis, logger)
	analytics := services.NewMarketAnalyticsService(provider, analyticsCache, cfg.Analysis, logger)

	// Cache analytics with periodic snapshots persisted to Redis
	cacheAnalytics := services.NewCacheAnalyticsService(redisClient.Client, analyticsCache, responseCache, blacklistCache, logger)
	reportingCtx, stopReporting := context.WithCancel(context.Background())
	defer stopReporting()
	cacheAnalytics.StartPeriodicReporting(reportingCtx, 5*time.Minute)

	// Telegram alerts; disabled notifier when no bot token is configured
	notifier, err := services.NewNotificationService(cfg.Telegram, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notification service: %w", err)
	}

	// Watchlist collector keeps the candle store fresh
	collector := services.NewCollectorService(provider, candleStore, analytics, blacklistCache, cfg, logger).
		WithNotifier(notifier)
	if err := collector.Start(); err != nil {
		return fmt.Errorf("failed to start collector service: %w", err)
	}
	defer collector.Stop()

	// Retention cleanup
	cleanup := services.NewCleanupService(candleStore, blacklistRepo, cfg.Retention, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	// Health probes get their own lightweight spans via the probe group.
	router.Use(otelgin.Middleware(serviceName, otelgin.WithFilter(func(req *http.Request) bool {
		return !middleware.HealthProbePaths[req.URL.Path]
	})))

	api.SetupRoutes(router, cfg, db, redisClient, provider, technical, analytics, collector, cacheAnalytics, cleanup, responseCache, logger)

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		appLogger.LogStartup(serviceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.LogShutdown(serviceName, "signal received")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}
