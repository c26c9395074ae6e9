package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/models"
)

// fakeCandleWriter records upserted candles per symbol.
type fakeCandleWriter struct {
	mu      sync.Mutex
	upserts map[string]int
	err     error
}

func newFakeCandleWriter() *fakeCandleWriter {
	return &fakeCandleWriter{upserts: make(map[string]int)}
}

func (f *fakeCandleWriter) UpsertCandles(ctx context.Context, candles []models.Candle) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	for _, candle := range candles {
		f.upserts[candle.Symbol]++
	}
	return int64(len(candles)), nil
}

func (f *fakeCandleWriter) upsertCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[symbol]
}

// fakeNotifier collects every signal handed to it.
type fakeNotifier struct {
	mu      sync.Mutex
	signals map[string][]models.TradingSignal
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{signals: make(map[string][]models.TradingSignal)}
}

func (f *fakeNotifier) NotifySignals(ctx context.Context, symbol string, signals []models.TradingSignal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals[symbol] = append(f.signals[symbol], signals...)
}

func (f *fakeNotifier) signalCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals[symbol])
}

func (f *fakeProvider) historyCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

type collectorFixture struct {
	collector *CollectorService
	provider  *fakeProvider
	store     *fakeCandleWriter
	blacklist cache.BlacklistCache
	notifier  *fakeNotifier
}

func newCollectorFixture(symbols []string, maxRetries int) *collectorFixture {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // keep test output quiet

	cfg := &config.Config{
		Provider: config.ProviderConfig{Name: "test-feed"},
		Analysis: config.AnalysisConfig{
			MACDSignalMode: "legacy",
			HistoryPoints:  300,
			MaxBatchSize:   10,
			MaxConcurrent:  3,
		},
		Watchlist: config.WatchlistConfig{
			Symbols:         symbols,
			Timeframe:       "1d",
			RefreshInterval: "1h",
			MaxRetries:      maxRetries,
		},
	}

	provider := newFakeProvider()
	store := newFakeCandleWriter()
	blacklist := cache.NewInMemoryBlacklistCache(logger)
	notifier := newFakeNotifier()
	analytics := NewMarketAnalyticsService(provider, cache.NewAnalyticsCache(15*time.Minute), cfg.Analysis, logger)
	collector := NewCollectorService(provider, store, analytics, blacklist, cfg, logger).WithNotifier(notifier)

	return &collectorFixture{
		collector: collector,
		provider:  provider,
		store:     store,
		blacklist: blacklist,
		notifier:  notifier,
	}
}

func TestNewCollectorService_Defaults(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL", "MSFT", ""}, 0)
	c := fix.collector

	// The empty entry is dropped, the rest start active with the
	// fallback retry budget.
	assert.Len(t, c.workers, 2)
	for _, symbol := range []string{"AAPL", "MSFT"} {
		worker := c.workers[symbol]
		require.NotNil(t, worker)
		assert.True(t, worker.IsActive)
		assert.Equal(t, 3, worker.MaxRetries)
		assert.Zero(t, worker.ErrorCount)
	}

	assert.Equal(t, "test-feed", c.providerName)
	assert.Equal(t, "Test-Feed", c.providerDisplay)
	assert.Equal(t, "1d", c.timeframe)
	assert.Equal(t, time.Hour, c.interval)
	assert.Equal(t, 4*time.Hour, c.parkDuration())
}

func TestNewCollectorService_FallbackProviderName(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := &config.Config{
		Watchlist: config.WatchlistConfig{Symbols: []string{"AAPL"}},
	}
	provider := newFakeProvider()
	analytics := NewMarketAnalyticsService(provider, cache.NewAnalyticsCache(time.Minute), cfg.Analysis, logger)

	c := NewCollectorService(provider, newFakeCandleWriter(), analytics, nil, cfg, logger)

	assert.Equal(t, "marketdata", c.providerName)
	assert.Equal(t, defaultHistoryPoints, c.historyPoints)
	assert.Equal(t, defaultMaxConcurrent, c.maxConcurrent)
	assert.Equal(t, 15*time.Minute, c.interval)
}

func TestCollector_RefreshPass(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL", "MSFT"}, 3)
	ref := time.Now().UTC()
	fix.provider.candles["AAPL"] = risingCandles("AAPL", 250, ref)
	fix.provider.candles["MSFT"] = risingCandles("MSFT", 250, ref)

	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	for _, symbol := range []string{"AAPL", "MSFT"} {
		worker := status[symbol]
		require.NotNil(t, worker)
		assert.False(t, worker.LastRefresh.IsZero(), "%s should have refreshed", symbol)
		assert.Zero(t, worker.ErrorCount)
		assert.True(t, worker.IsActive)
		assert.Equal(t, 250, fix.store.upsertCount(symbol))
	}

	// A rising series produces signals, so the notifier hears about both.
	assert.Positive(t, fix.notifier.signalCount("AAPL"))
	assert.Positive(t, fix.notifier.signalCount("MSFT"))

	// One fetch by the collector plus one by the analytics warm-up per
	// symbol; a follow-up Analyze must be served from the cache.
	require.Equal(t, 4, fix.provider.historyCallCount())
	_, err := fix.collector.analytics.Analyze(context.Background(), "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, 4, fix.provider.historyCallCount())
}

func TestCollector_RefreshPass_PartialFailure(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL", "BAD"}, 3)
	ref := time.Now().UTC()
	fix.provider.candles["AAPL"] = risingCandles("AAPL", 250, ref)
	fix.provider.historyErr["BAD"] = errors.New("upstream 500")

	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	assert.False(t, status["AAPL"].LastRefresh.IsZero())
	assert.Zero(t, status["AAPL"].ErrorCount)

	bad := status["BAD"]
	assert.True(t, bad.LastRefresh.IsZero())
	assert.Equal(t, 1, bad.ErrorCount)
	assert.Contains(t, bad.LastError, "fetch candles")
	assert.True(t, bad.IsActive, "one failure must not park the symbol")
}

func TestCollector_ParksSymbolAfterMaxRetries(t *testing.T) {
	fix := newCollectorFixture([]string{"BAD"}, 2)
	fix.provider.historyErr["BAD"] = errors.New("unknown symbol")

	fix.collector.refreshAll()
	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	assert.Equal(t, 2, status["BAD"].ErrorCount)
	assert.False(t, status["BAD"].IsActive)

	blacklisted, reason := fix.blacklist.IsBlacklisted(context.Background(), "BAD")
	assert.True(t, blacklisted)
	assert.Contains(t, reason, "consecutive failures")

	// A parked symbol is no longer fetched.
	calls := fix.provider.historyCallCount()
	fix.collector.refreshAll()
	assert.Equal(t, calls, fix.provider.historyCallCount())
}

func TestCollector_EmptyHistoryCountsAsFailure(t *testing.T) {
	fix := newCollectorFixture([]string{"GHOST"}, 3)

	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	assert.Equal(t, 1, status["GHOST"].ErrorCount)
	assert.Contains(t, status["GHOST"].LastError, "no candles")
}

func TestCollector_StoreFailureCountsAsFailure(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL"}, 3)
	fix.provider.candles["AAPL"] = risingCandles("AAPL", 250, time.Now().UTC())
	fix.store.err = errors.New("connection refused")

	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	assert.Equal(t, 1, status["AAPL"].ErrorCount)
	assert.Contains(t, status["AAPL"].LastError, "persist candles")
}

func TestCollector_SkipsBlacklistedSymbol(t *testing.T) {
	fix := newCollectorFixture([]string{"HALTED"}, 3)
	fix.blacklist.Add(context.Background(), "HALTED", "trading halt", time.Hour)

	fix.collector.refreshAll()

	assert.Zero(t, fix.provider.historyCallCount())
	status := fix.collector.GetWorkerStatus()
	assert.Zero(t, status["HALTED"].ErrorCount)
	assert.True(t, status["HALTED"].IsActive)
}

func TestCollector_RevivesParkedSymbolAfterBlacklistLapses(t *testing.T) {
	fix := newCollectorFixture([]string{"BAD"}, 1)
	fix.provider.historyErr["BAD"] = errors.New("unknown symbol")

	fix.collector.refreshAll()
	require.False(t, fix.collector.GetWorkerStatus()["BAD"].IsActive)

	// Simulate the park TTL lapsing, then fix the upstream.
	fix.blacklist.Remove(context.Background(), "BAD")
	delete(fix.provider.historyErr, "BAD")
	fix.provider.candles["BAD"] = risingCandles("BAD", 250, time.Now().UTC())

	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	assert.True(t, status["BAD"].IsActive)
	assert.Zero(t, status["BAD"].ErrorCount)
	assert.False(t, status["BAD"].LastRefresh.IsZero())
}

func TestCollector_RestartSymbol(t *testing.T) {
	fix := newCollectorFixture([]string{"BAD"}, 1)
	fix.provider.historyErr["BAD"] = errors.New("unknown symbol")

	fix.collector.refreshAll()
	require.False(t, fix.collector.GetWorkerStatus()["BAD"].IsActive)

	require.NoError(t, fix.collector.RestartSymbol("BAD"))

	status := fix.collector.GetWorkerStatus()
	assert.True(t, status["BAD"].IsActive)
	assert.Zero(t, status["BAD"].ErrorCount)
	blacklisted, _ := fix.blacklist.IsBlacklisted(context.Background(), "BAD")
	assert.False(t, blacklisted)

	err := fix.collector.RestartSymbol("UNKNOWN")
	assert.ErrorContains(t, err, "not on the watchlist")
}

func TestCollector_OpenBreakerDoesNotParkSymbols(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL"}, 3)
	fix.provider.candles["AAPL"] = risingCandles("AAPL", 250, time.Now().UTC())

	// Trip the provider breaker so the next pass is rejected outright.
	for i := 0; i < 5; i++ {
		_ = fix.collector.breaker.Execute(context.Background(), func(context.Context) error {
			return errors.New("provider down")
		})
	}
	require.True(t, fix.collector.breaker.IsOpen())

	fix.collector.refreshAll()

	status := fix.collector.GetWorkerStatus()
	assert.Zero(t, status["AAPL"].ErrorCount, "an outage is not the symbol's fault")
	assert.True(t, status["AAPL"].IsActive)
	assert.Zero(t, fix.provider.historyCallCount())
}

func TestCollector_StartStop(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL"}, 3)
	fix.provider.candles["AAPL"] = risingCandles("AAPL", 250, time.Now().UTC())

	require.NoError(t, fix.collector.Start())
	assert.True(t, fix.collector.IsHealthy())
	assert.ErrorContains(t, fix.collector.Start(), "already started")

	// The initial pass runs right away, before the first tick.
	assert.Eventually(t, func() bool {
		return fix.store.upsertCount("AAPL") > 0
	}, 2*time.Second, 10*time.Millisecond)

	fix.collector.Stop()
	assert.False(t, fix.collector.IsHealthy())

	// Stopping twice is harmless.
	fix.collector.Stop()
}

func TestCollector_Start_EmptyWatchlist(t *testing.T) {
	fix := newCollectorFixture(nil, 3)

	err := fix.collector.Start()
	assert.ErrorContains(t, err, "watchlist is empty")
}

func TestCollector_IsHealthy_MajorityParked(t *testing.T) {
	fix := newCollectorFixture([]string{"A", "B", "C"}, 3)
	c := fix.collector

	c.mu.Lock()
	c.running = true
	c.workers["A"].IsActive = false
	c.workers["B"].IsActive = false
	c.mu.Unlock()

	// 1 of 3 active is below the half-alive threshold.
	assert.False(t, c.IsHealthy())

	c.mu.Lock()
	c.workers["B"].IsActive = true
	c.mu.Unlock()

	// 2 of 3 active clears it.
	assert.True(t, c.IsHealthy())
}

func TestCollector_ProviderBreakerStats(t *testing.T) {
	fix := newCollectorFixture([]string{"AAPL"}, 3)
	fix.provider.candles["AAPL"] = risingCandles("AAPL", 250, time.Now().UTC())

	fix.collector.refreshAll()

	stats := fix.collector.ProviderBreakerStats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulRequests)
}
