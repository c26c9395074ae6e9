package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/analysis"
	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/telemetry"
	"github.com/lenslabs/marketlens-go/pkg/interfaces"
)

const (
	defaultTimeframe     = "1d"
	defaultHistoryPoints = 300
	defaultMaxConcurrent = 4
	defaultMaxBatchSize  = 25

	volatilityWindow    = 30
	volumeAverageWindow = 20
	volumeTrendWindow   = 5

	// Volume is considered trending when the recent 5-day average moves
	// more than 10% against the prior 5-day average.
	volumeTrendThreshold = 0.10

	volatilityLowThreshold  = 0.20
	volatilityHighThreshold = 0.40
)

// MarketAnalyticsService assembles the composite analytics record for a
// symbol: performance horizons, volatility, volume, the indicator bundle,
// signals, trend and support/resistance. Results are cached per
// symbol+timeframe.
type MarketAnalyticsService struct {
	provider interfaces.MarketDataProvider
	cache    *cache.AnalyticsCache
	tracer   *telemetry.BusinessTracer
	logger   *logrus.Logger

	macdMode      analysis.MACDMode
	historyPoints int
	maxConcurrent int
	maxBatchSize  int
	now           func() time.Time
}

// NewMarketAnalyticsService creates the analytics aggregator.
func NewMarketAnalyticsService(provider interfaces.MarketDataProvider, analyticsCache *cache.AnalyticsCache, cfg config.AnalysisConfig, logger *logrus.Logger) *MarketAnalyticsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	historyPoints := cfg.HistoryPoints
	if historyPoints <= 0 {
		historyPoints = defaultHistoryPoints
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	maxBatchSize := cfg.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = defaultMaxBatchSize
	}
	macdMode := analysis.MACDMode(cfg.MACDSignalMode)
	if macdMode != analysis.MACDModeEMA9 {
		macdMode = analysis.MACDModeLegacy
	}

	return &MarketAnalyticsService{
		provider:      provider,
		cache:         analyticsCache,
		tracer:        telemetry.NewBusinessTracer(),
		logger:        logger,
		macdMode:      macdMode,
		historyPoints: historyPoints,
		maxConcurrent: maxConcurrent,
		maxBatchSize:  maxBatchSize,
		now:           time.Now,
	}
}

// WithClock overrides the service clock. Tests use it to pin performance
// horizons to a fixed reference time.
func (s *MarketAnalyticsService) WithClock(now func() time.Time) *MarketAnalyticsService {
	s.now = now
	return s
}

// Analyze produces the composite analytics record for one symbol. A
// provider failure returns (nil, err); callers treat a nil composite as
// analytics being unavailable for that symbol.
func (s *MarketAnalyticsService) Analyze(ctx context.Context, symbol, timeframe string) (*models.MarketAnalytics, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	timeframe = normalizeTimeframe(timeframe)

	if s.cache != nil {
		if cached, ok := s.cache.Get(symbol, timeframe); ok {
			return cached, nil
		}
	}

	candles, err := s.provider.GetCandleHistory(ctx, symbol, timeframe, s.historyPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candle history for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoHistory, symbol)
	}

	quote, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	analytics := s.buildAnalytics(ctx, symbol, timeframe, candles, quote)

	if s.cache != nil {
		s.cache.Set(symbol, timeframe, analytics)
	}
	return analytics, nil
}

// AnalyzeBatch fans Analyze out across symbols with bounded concurrency.
// Individual failures are recorded per symbol and never fail the batch.
func (s *MarketAnalyticsService) AnalyzeBatch(ctx context.Context, symbols []string, timeframe string) (*models.BatchAnalytics, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}
	if len(symbols) > s.maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(symbols), s.maxBatchSize)
	}
	timeframe = normalizeTimeframe(timeframe)

	batch := &models.BatchAnalytics{
		RunID:     uuid.New().String(),
		Timeframe: timeframe,
		Results:   make(map[string]*models.MarketAnalytics),
		Failed:    make(map[string]string),
		StartedAt: s.now(),
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, s.maxConcurrent)
	)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			analytics, err := s.Analyze(ctx, sym, timeframe)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Failed[sym] = err.Error()
				s.logger.WithError(err).WithField("symbol", sym).Warn("Batch analytics failed for symbol")
				return
			}
			batch.Results[sym] = analytics
		}(symbol)
	}

	wg.Wait()
	batch.CompletedAt = s.now()
	return batch, nil
}

func (s *MarketAnalyticsService) buildAnalytics(ctx context.Context, symbol, timeframe string, candles []models.Candle, quote *models.Quote) *models.MarketAnalytics {
	closes := analysis.Closes(candles)
	currentPrice := quote.CurrentPrice.InexactFloat64()

	indicators, err := analysis.ComputeIndicators(candles, s.macdMode)
	gateRejected := false
	if err != nil {
		if !errors.Is(err, analysis.ErrInsufficientData) {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Indicator computation failed")
		}
		// The composite carries an empty indicator set rather than failing.
		indicators = &models.IndicatorSet{}
		gateRejected = true
	}

	signals := s.generateSignals(ctx, symbol, indicators, currentPrice, len(candles), gateRejected)

	return &models.MarketAnalytics{
		Symbol:       symbol,
		Timeframe:    timeframe,
		CurrentPrice: quote.CurrentPrice,
		DayChange:    quote.DayChange,
		Performance:  s.computePerformance(candles, currentPrice),
		Volatility:   s.computeVolatility(ctx, symbol, closes),
		Volume:       computeVolumeAnalysis(candles),
		Indicators:   indicators,
		Signals:      signals,
		Trend:        analysis.AnalyzeTrend(closes),
		Levels: models.SupportResistance{
			Support:    analysis.FindSupportLevels(analysis.Lows(candles)),
			Resistance: analysis.FindResistanceLevels(analysis.Highs(candles)),
		},
		ComputedAt: s.now(),
	}
}

func (s *MarketAnalyticsService) computePerformance(candles []models.Candle, currentPrice float64) models.PerformanceMetrics {
	now := s.now()
	horizon := func(target time.Time) float64 {
		historical, ok := nearestClose(candles, target)
		if !ok {
			return 0
		}
		return percentChange(historical, currentPrice)
	}

	return models.PerformanceMetrics{
		Change24h: horizon(now.Add(-24 * time.Hour)),
		Change7d:  horizon(now.AddDate(0, 0, -7)),
		Change30d: horizon(now.AddDate(0, 0, -30)),
		ChangeYTD: horizon(time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())),
		Change1y:  horizon(now.AddDate(-1, 0, 0)),
	}
}

func (s *MarketAnalyticsService) computeVolatility(ctx context.Context, symbol string, closes []float64) models.VolatilityMetrics {
	_, span := s.tracer.TraceVolatilityAnalysis(ctx, symbol)
	defer span.Finish()

	annualized := annualizedVolatility(dailyReturns(closes))
	recent := annualizedVolatility(dailyReturns(lastN(closes, volatilityWindow)))

	rank := models.VolatilityHigh
	switch {
	case recent < volatilityLowThreshold:
		rank = models.VolatilityLow
	case recent < volatilityHighThreshold:
		rank = models.VolatilityMedium
	}

	percentile := percentileRank(recent, rollingVolatilities(closes, volatilityWindow))

	metrics := models.VolatilityMetrics{
		Annualized: annualized,
		Recent30d:  recent,
		Rank:       rank,
		Percentile: percentile,
	}

	s.tracer.RecordVolatilityMetrics(span, telemetry.VolatilityTelemetry{
		Annualized: metrics.Annualized,
		Recent30d:  metrics.Recent30d,
		Rank:       string(metrics.Rank),
		Percentile: metrics.Percentile,
	})
	return metrics
}

func (s *MarketAnalyticsService) generateSignals(ctx context.Context, symbol string, indicators *models.IndicatorSet, currentPrice float64, observations int, gateRejected bool) []models.TradingSignal {
	// No indicator bundle, no signals: rules evaluated against a zeroed set
	// would misread RSI 0 as deeply oversold.
	if gateRejected {
		return []models.TradingSignal{}
	}

	_, span := s.tracer.TraceSignalGeneration(ctx, symbol)
	defer span.Finish()
	start := time.Now()

	signals := analysis.GenerateSignals(indicators, currentPrice, observations)
	s.tracer.RecordSignalMetrics(span, signalTelemetry(signals, time.Since(start)))
	return signals
}

// signalTelemetry summarizes a generated signal list for span recording.
func signalTelemetry(signals []models.TradingSignal, elapsed time.Duration) telemetry.SignalMetrics {
	buys, sells := 0, 0
	totalStrength := 0.0
	for _, sig := range signals {
		totalStrength += sig.Strength
		switch sig.Type {
		case models.SignalBuy:
			buys++
		case models.SignalSell:
			sells++
		}
	}
	avgStrength := 0.0
	if len(signals) > 0 {
		avgStrength = totalStrength / float64(len(signals))
	}

	return telemetry.SignalMetrics{
		GeneratedCount:  len(signals),
		BuyCount:        buys,
		SellCount:       sells,
		AverageStrength: avgStrength,
		ProcessingTime:  elapsed,
	}
}

func computeVolumeAnalysis(candles []models.Candle) models.VolumeAnalysis {
	volumes := analysis.Volumes(candles)
	if len(volumes) == 0 {
		return models.VolumeAnalysis{Trend: models.VolumeStable}
	}

	asFloat := volumesAsFloat(volumes)

	current := volumes[len(volumes)-1]
	average := calculateMeanFloat64(lastN(asFloat, volumeAverageWindow))

	ratio := 0.0
	if average > 0 {
		ratio = float64(current) / average
	}

	trend := models.VolumeStable
	if len(asFloat) >= 2*volumeTrendWindow {
		recent := calculateMeanFloat64(asFloat[len(asFloat)-volumeTrendWindow:])
		prior := calculateMeanFloat64(asFloat[len(asFloat)-2*volumeTrendWindow : len(asFloat)-volumeTrendWindow])
		if prior > 0 {
			switch shift := recent / prior; {
			case shift > 1+volumeTrendThreshold:
				trend = models.VolumeIncreasing
			case shift < 1-volumeTrendThreshold:
				trend = models.VolumeDecreasing
			}
		}
	}

	return models.VolumeAnalysis{
		Current:   current,
		Average20: average,
		Ratio:     ratio,
		Trend:     trend,
	}
}
