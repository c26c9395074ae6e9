package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/database"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/telemetry"
	"github.com/lenslabs/marketlens-go/pkg/interfaces"
)

// CandleWriter is the slice of the candle store the collector writes through.
type CandleWriter interface {
	UpsertCandles(ctx context.Context, candles []models.Candle) (int64, error)
}

// SignalNotifier receives the signals a refresh pass produced for a symbol.
// The Telegram notifier implements it; a nil notifier disables alerts.
type SignalNotifier interface {
	NotifySignals(ctx context.Context, symbol string, signals []models.TradingSignal)
}

// SymbolWorker tracks refresh state for one watchlist symbol.
type SymbolWorker struct {
	Symbol      string    `json:"symbol"`
	LastRefresh time.Time `json:"last_refresh"`
	LastError   string    `json:"last_error,omitempty"`
	IsActive    bool      `json:"is_active"`
	ErrorCount  int       `json:"error_count"`
	MaxRetries  int       `json:"max_retries"`
}

// CollectorService keeps the watchlist warm: on every refresh interval it
// fetches candle history for each active symbol, persists it through the
// candle store and recomputes analytics so the cache serves fresh data.
// Symbols that keep failing are parked on the blacklist so they stop
// burning provider calls.
type CollectorService struct {
	provider  interfaces.MarketDataProvider
	store     CandleWriter
	analytics *MarketAnalyticsService
	blacklist cache.BlacklistCache
	notifier  SignalNotifier
	breaker   *CircuitBreaker
	tracer    *telemetry.BusinessTracer
	logger    *logrus.Logger

	providerName    string
	providerDisplay string
	timeframe       string
	interval        time.Duration
	historyPoints   int
	maxConcurrent   int

	mu      sync.RWMutex
	workers map[string]*SymbolWorker
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollectorService creates the watchlist collector. The refresh interval,
// symbol list and retry budget come from the watchlist config; history depth
// and fan-out width follow the analysis config so the store always holds
// enough candles for the indicator gate.
func NewCollectorService(provider interfaces.MarketDataProvider, store CandleWriter, analytics *MarketAnalyticsService, blacklist cache.BlacklistCache, cfg *config.Config, logger *logrus.Logger) *CollectorService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	maxRetries := cfg.Watchlist.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	historyPoints := cfg.Analysis.HistoryPoints
	if historyPoints <= 0 {
		historyPoints = defaultHistoryPoints
	}
	maxConcurrent := cfg.Analysis.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	providerName := cfg.Provider.Name
	if providerName == "" {
		providerName = "marketdata"
	}

	workers := make(map[string]*SymbolWorker, len(cfg.Watchlist.Symbols))
	for _, symbol := range cfg.Watchlist.Symbols {
		if symbol == "" {
			continue
		}
		workers[symbol] = &SymbolWorker{
			Symbol:     symbol,
			IsActive:   true,
			MaxRetries: maxRetries,
		}
	}

	caser := cases.Title(language.English)

	return &CollectorService{
		provider:        provider,
		store:           store,
		analytics:       analytics,
		blacklist:       blacklist,
		breaker:         NewCircuitBreaker("provider:"+providerName, CircuitBreakerConfig{}, logger),
		tracer:          telemetry.NewBusinessTracer(),
		logger:          logger,
		providerName:    providerName,
		providerDisplay: caser.String(providerName),
		timeframe:       normalizeTimeframe(cfg.Watchlist.Timeframe),
		interval:        cfg.Watchlist.RefreshIntervalDuration(),
		historyPoints:   historyPoints,
		maxConcurrent:   maxConcurrent,
		workers:         workers,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// WithNotifier attaches a signal notifier. Called before Start.
func (c *CollectorService) WithNotifier(notifier SignalNotifier) *CollectorService {
	c.notifier = notifier
	return c
}

// Start launches the refresh loop. The first pass runs immediately so the
// analytics cache is warm before the first tick.
func (c *CollectorService) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("collector already started")
	}
	if len(c.workers) == 0 {
		c.mu.Unlock()
		return errors.New("watchlist is empty")
	}
	c.running = true
	c.mu.Unlock()

	if !c.provider.IsHealthy(c.ctx) {
		c.logger.WithField("provider", c.providerDisplay).Warn("Market data provider unhealthy at startup, refresh passes will retry")
	}

	if c.blacklist != nil {
		if err := c.blacklist.LoadFromStore(c.ctx); err != nil {
			c.logger.WithError(err).Warn("Failed to preload symbol blacklist")
		}
	}

	c.wg.Add(1)
	go c.run()

	c.logger.WithFields(logrus.Fields{
		"provider": c.providerDisplay,
		"symbols":  len(c.workers),
		"interval": c.interval.String(),
	}).Info("Watchlist collector started")
	return nil
}

// Stop cancels the refresh loop and waits for in-flight work to drain.
func (c *CollectorService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Stopping watchlist collector...")
	c.cancel()
	c.wg.Wait()
	if c.blacklist != nil {
		c.blacklist.LogStats()
	}
	c.logger.Info("Watchlist collector stopped")
}

func (c *CollectorService) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refreshAll()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Watchlist collector loop stopping")
			return
		case <-ticker.C:
			c.refreshAll()
		}
	}
}

// refreshAll runs one pass over the active watchlist with bounded
// concurrency. Per-symbol failures are counted against the symbol, never
// escalated to the pass.
func (c *CollectorService) refreshAll() {
	if c.blacklist != nil {
		if removed := c.blacklist.CleanupExpired(c.ctx); removed > 0 {
			c.logger.WithField("removed", removed).Debug("Expired blacklist entries cleared")
		}
		c.reviveParked()
	}

	symbols := c.activeSymbols()
	if len(symbols) == 0 {
		c.logger.Warn("No active watchlist symbols to refresh")
		return
	}

	_, span := c.tracer.TraceMarketDataCollection(c.ctx, c.providerName, symbols)
	defer span.Finish()

	start := time.Now()
	var (
		resultMu  sync.Mutex
		succeeded int
		failed    int
	)

	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			select {
			case <-c.ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			err := c.refreshSymbol(c.ctx, symbol)
			resultMu.Lock()
			if err != nil {
				failed++
			} else {
				succeeded++
			}
			resultMu.Unlock()
		}(symbol)
	}
	wg.Wait()

	elapsed := time.Since(start)
	c.tracer.RecordMarketDataMetrics(span, telemetry.MarketDataMetrics{
		CollectedCount: succeeded,
		FailedCount:    failed,
		CollectionTime: elapsed,
		SuccessRate:    float64(succeeded) / float64(len(symbols)),
	})

	c.logger.WithFields(logrus.Fields{
		"succeeded": succeeded,
		"failed":    failed,
		"elapsed":   elapsed.Round(time.Millisecond).String(),
	}).Info("Watchlist refresh pass complete")
}

// refreshSymbol fetches, persists and re-analyzes a single symbol.
func (c *CollectorService) refreshSymbol(ctx context.Context, symbol string) error {
	if c.blacklist != nil {
		if blacklisted, reason := c.blacklist.IsBlacklisted(ctx, symbol); blacklisted {
			c.logger.WithFields(logrus.Fields{
				"symbol": symbol,
				"reason": reason,
			}).Debug("Skipping blacklisted symbol")
			return nil
		}
	}

	var candles []models.Candle
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var fetchErr error
		candles, fetchErr = c.provider.GetCandleHistory(ctx, symbol, c.timeframe, c.historyPoints)
		return fetchErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		// Provider-wide outage; not the symbol's fault.
		c.logger.WithField("symbol", symbol).Debug("Provider circuit open, skipping refresh")
		return err
	}
	if err != nil {
		c.recordFailure(ctx, symbol, fmt.Errorf("fetch candles: %w", err))
		return err
	}
	if len(candles) == 0 {
		err := fmt.Errorf("provider returned no candles for %s %s", symbol, c.timeframe)
		c.recordFailure(ctx, symbol, err)
		return err
	}

	if _, err := c.store.UpsertCandles(ctx, candles); err != nil {
		database.RecordDatabaseError(ctx, err, "upsert_candles")
		c.recordFailure(ctx, symbol, fmt.Errorf("persist candles: %w", err))
		return err
	}

	analytics, err := c.analytics.Analyze(ctx, symbol, c.timeframe)
	if err != nil {
		c.recordFailure(ctx, symbol, fmt.Errorf("warm analytics: %w", err))
		return err
	}

	if c.notifier != nil && len(analytics.Signals) > 0 {
		c.notifier.NotifySignals(ctx, symbol, analytics.Signals)
	}

	c.recordSuccess(symbol)
	return nil
}

// activeSymbols snapshots the symbols still being refreshed.
func (c *CollectorService) activeSymbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.workers))
	for symbol, worker := range c.workers {
		if worker.IsActive {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

func (c *CollectorService) recordSuccess(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if worker, ok := c.workers[symbol]; ok {
		worker.ErrorCount = 0
		worker.LastError = ""
		worker.LastRefresh = time.Now()
	}
}

// recordFailure counts a consecutive failure and parks the symbol on the
// blacklist once the retry budget is spent.
func (c *CollectorService) recordFailure(ctx context.Context, symbol string, err error) {
	c.mu.Lock()
	worker, ok := c.workers[symbol]
	if !ok {
		c.mu.Unlock()
		return
	}
	worker.ErrorCount++
	worker.LastError = err.Error()
	count := worker.ErrorCount
	maxRetries := worker.MaxRetries
	parked := count >= maxRetries
	if parked {
		worker.IsActive = false
	}
	c.mu.Unlock()

	c.logger.WithError(err).WithFields(logrus.Fields{
		"symbol":      symbol,
		"error_count": count,
	}).Warn("Watchlist refresh failed")

	if parked {
		c.logger.WithFields(logrus.Fields{
			"symbol":      symbol,
			"max_retries": maxRetries,
		}).Error("Symbol exceeded max retries, parking")
		if c.blacklist != nil {
			c.blacklist.Add(ctx, symbol, fmt.Sprintf("collector: %d consecutive failures", count), c.parkDuration())
		}
	}
}

// reviveParked reactivates symbols whose blacklist entry has lapsed.
func (c *CollectorService) reviveParked() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for symbol, worker := range c.workers {
		if worker.IsActive {
			continue
		}
		if blacklisted, _ := c.blacklist.IsBlacklisted(c.ctx, symbol); !blacklisted {
			worker.IsActive = true
			worker.ErrorCount = 0
			worker.LastError = ""
			c.logger.WithField("symbol", symbol).Info("Parked symbol revived")
		}
	}
}

// parkDuration is how long a failing symbol sits on the blacklist before
// the collector tries it again.
func (c *CollectorService) parkDuration() time.Duration {
	return 4 * c.interval
}

// RestartSymbol clears a symbol's error state and removes it from the
// blacklist so the next pass picks it up again.
func (c *CollectorService) RestartSymbol(symbol string) error {
	c.mu.Lock()
	worker, ok := c.workers[symbol]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("symbol %s is not on the watchlist", symbol)
	}
	worker.ErrorCount = 0
	worker.LastError = ""
	worker.IsActive = true
	c.mu.Unlock()

	if c.blacklist != nil {
		c.blacklist.Remove(c.ctx, symbol)
	}
	c.logger.WithField("symbol", symbol).Info("Watchlist symbol restarted")
	return nil
}

// GetWorkerStatus returns a snapshot of per-symbol refresh state.
func (c *CollectorService) GetWorkerStatus() map[string]*SymbolWorker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := make(map[string]*SymbolWorker, len(c.workers))
	for symbol, worker := range c.workers {
		snapshot := *worker
		status[symbol] = &snapshot
	}
	return status
}

// ProviderBreakerStats exposes the provider circuit breaker counters.
func (c *CollectorService) ProviderBreakerStats() CircuitBreakerStats {
	return c.breaker.GetStats()
}

// IsHealthy reports whether the collector is running with at least half of
// the watchlist still active.
func (c *CollectorService) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.running || len(c.workers) == 0 {
		return false
	}

	active := 0
	for _, worker := range c.workers {
		if worker.IsActive {
			active++
		}
	}
	return float64(active)/float64(len(c.workers)) >= 0.5
}
