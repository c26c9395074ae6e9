package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/analysis"
	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/telemetry"
)

// CandleReader provides stored candle history to the analysis services.
// *database.CandleStore satisfies it.
type CandleReader interface {
	GetCandleHistory(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// ErrNoHistory reports that no stored candles exist for a symbol and
// timeframe combination.
var ErrNoHistory = errors.New("no candle history")

// breakdownMinPoints is the floor for the extended breakdown. The full
// indicator bundle keeps its own, stricter gate.
const breakdownMinPoints = 50

// IndicatorConfig holds the periods the breakdown indicators run with.
type IndicatorConfig struct {
	SMAPeriods []int `json:"sma_periods"`
	EMAPeriods []int `json:"ema_periods"`

	RSIPeriod    int `json:"rsi_period"`
	StochKPeriod int `json:"stoch_k_period"`
	StochDPeriod int `json:"stoch_d_period"`

	MACDFast   int `json:"macd_fast"`
	MACDSlow   int `json:"macd_slow"`
	MACDSignal int `json:"macd_signal"`

	BBPeriod  int     `json:"bb_period"`
	BBStdDev  float64 `json:"bb_std_dev"`
	ATRPeriod int     `json:"atr_period"`

	OBVEnabled bool `json:"obv_enabled"`
}

// DefaultIndicatorConfig returns the periods the breakdown runs with unless
// overridden. The moving-average periods line up with the indicator bundle.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		SMAPeriods:   []int{20, 50, 200},
		EMAPeriods:   []int{12, 26},
		RSIPeriod:    14,
		StochKPeriod: 14,
		StochDPeriod: 3,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BBPeriod:     20,
		BBStdDev:     2.0,
		ATRPeriod:    14,
		OBVEnabled:   true,
	}
}

// TechnicalAnalysisService serves the indicator endpoints from stored
// candle history: the indicator bundle, rule-based signals, trend,
// support/resistance levels and the extended per-indicator breakdown with
// a weighted overall vote.
type TechnicalAnalysisService struct {
	store  CandleReader
	tracer *telemetry.BusinessTracer
	logger *logrus.Logger

	indicators    IndicatorConfig
	macdMode      analysis.MACDMode
	historyPoints int
}

// NewTechnicalAnalysisService creates an analysis service reading from the
// given candle store.
func NewTechnicalAnalysisService(store CandleReader, cfg config.AnalysisConfig, logger *logrus.Logger) *TechnicalAnalysisService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	historyPoints := cfg.HistoryPoints
	if historyPoints <= 0 {
		historyPoints = defaultHistoryPoints
	}
	macdMode := analysis.MACDMode(cfg.MACDSignalMode)
	if macdMode != analysis.MACDModeEMA9 {
		macdMode = analysis.MACDModeLegacy
	}

	return &TechnicalAnalysisService{
		store:         store,
		tracer:        telemetry.NewBusinessTracer(),
		logger:        logger,
		indicators:    DefaultIndicatorConfig(),
		macdMode:      macdMode,
		historyPoints: historyPoints,
	}
}

// GetIndicators computes the indicator bundle for a symbol. Histories
// shorter than the bundle minimum return analysis.ErrInsufficientData.
func (tas *TechnicalAnalysisService) GetIndicators(ctx context.Context, symbol, timeframe string) (*models.IndicatorSet, error) {
	timeframe = normalizeTimeframe(timeframe)
	candles, err := tas.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	set, err := analysis.ComputeIndicators(candles, tas.macdMode)
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators for %s: %w", symbol, err)
	}
	return set, nil
}

// GetSignals evaluates the signal rules for a symbol. A history too short
// for the indicator bundle yields an empty list rather than an error.
func (tas *TechnicalAnalysisService) GetSignals(ctx context.Context, symbol, timeframe string) ([]models.TradingSignal, error) {
	timeframe = normalizeTimeframe(timeframe)
	candles, err := tas.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	set, err := analysis.ComputeIndicators(candles, tas.macdMode)
	if err != nil {
		if errors.Is(err, analysis.ErrInsufficientData) {
			return []models.TradingSignal{}, nil
		}
		return nil, fmt.Errorf("failed to compute indicators for %s: %w", symbol, err)
	}

	closes := analysis.Closes(candles)
	price := closes[len(closes)-1]

	_, span := tas.tracer.TraceSignalGeneration(ctx, symbol)
	defer span.Finish()
	start := time.Now()

	signals := analysis.GenerateSignals(set, price, len(candles))
	tas.tracer.RecordSignalMetrics(span, signalTelemetry(signals, time.Since(start)))
	return signals, nil
}

// GetTrend classifies the price trend from stored history.
func (tas *TechnicalAnalysisService) GetTrend(ctx context.Context, symbol, timeframe string) (*models.TrendAnalysis, error) {
	timeframe = normalizeTimeframe(timeframe)
	candles, err := tas.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	result := analysis.AnalyzeTrend(analysis.Closes(candles))
	return &result, nil
}

// GetLevels finds support and resistance levels from stored history.
func (tas *TechnicalAnalysisService) GetLevels(ctx context.Context, symbol, timeframe string) (*models.SupportResistance, error) {
	timeframe = normalizeTimeframe(timeframe)
	candles, err := tas.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	return &models.SupportResistance{
		Support:    analysis.FindSupportLevels(analysis.Lows(candles)),
		Resistance: analysis.FindResistanceLevels(analysis.Highs(candles)),
	}, nil
}

// AnalyzeSymbol produces the extended per-indicator breakdown for a symbol:
// every configured indicator wrapped in an IndicatorResult, plus a weighted
// vote across them.
func (tas *TechnicalAnalysisService) AnalyzeSymbol(ctx context.Context, symbol, timeframe string) (*models.AnalysisBreakdown, error) {
	timeframe = normalizeTimeframe(timeframe)
	candles, err := tas.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if len(candles) < breakdownMinPoints {
		return nil, fmt.Errorf("%w: need at least %d points, got %d",
			analysis.ErrInsufficientData, breakdownMinPoints, len(candles))
	}

	indicators := tas.calculateAllIndicators(ctx, symbol, timeframe, candles)
	overall, confidence := tas.determineOverallSignal(indicators)

	tas.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"timeframe":  timeframe,
		"indicators": len(indicators),
		"overall":    overall,
	}).Debug("Indicator breakdown complete")

	return &models.AnalysisBreakdown{
		Symbol:        symbol,
		Timeframe:     timeframe,
		Indicators:    indicators,
		OverallSignal: overall,
		Confidence:    confidence,
		Timestamp:     time.Now(),
	}, nil
}

func (tas *TechnicalAnalysisService) fetchCandles(ctx context.Context, symbol, timeframe string) ([]models.Candle, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	candles, err := tas.store.GetCandleHistory(ctx, symbol, timeframe, tas.historyPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candle history for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s %s", ErrNoHistory, symbol, timeframe)
	}
	return candles, nil
}

func (tas *TechnicalAnalysisService) calculateAllIndicators(ctx context.Context, symbol, timeframe string, candles []models.Candle) []models.IndicatorResult {
	closes := analysis.Closes(candles)
	highs := analysis.Highs(candles)
	lows := analysis.Lows(candles)
	vols := volumesAsFloat(analysis.Volumes(candles))

	var results []models.IndicatorResult
	record := func(result *models.IndicatorResult) {
		if result == nil {
			return
		}

		last := 0.0
		if len(result.Values) > 0 {
			last = result.Values[len(result.Values)-1].InexactFloat64()
		}
		_, span := tas.tracer.TraceIndicatorComputation(ctx, result.Name, symbol, timeframe)
		tas.tracer.RecordIndicatorResult(span, telemetry.IndicatorComputation{
			Value:           last,
			SignalDirection: string(result.Signal),
			DataPoints:      len(closes),
			IsValid:         len(result.Values) > 0,
		})
		span.Finish()

		results = append(results, *result)
	}

	for _, period := range tas.indicators.SMAPeriods {
		record(tas.calculateSMA(closes, period))
	}
	for _, period := range tas.indicators.EMAPeriods {
		record(tas.calculateEMA(closes, period))
	}
	record(tas.calculateRSI(closes, tas.indicators.RSIPeriod))
	record(tas.calculateMACD(closes, tas.indicators.MACDFast, tas.indicators.MACDSlow, tas.indicators.MACDSignal))
	record(tas.calculateBollingerBands(closes, tas.indicators.BBPeriod, tas.indicators.BBStdDev))
	record(tas.calculateATR(highs, lows, closes, tas.indicators.ATRPeriod))
	record(tas.calculateStochastic(highs, lows, closes, tas.indicators.StochKPeriod, tas.indicators.StochDPeriod))
	if tas.indicators.OBVEnabled {
		record(tas.calculateOBV(closes, vols))
	}

	return results
}

func (tas *TechnicalAnalysisService) calculateSMA(prices []float64, period int) *models.IndicatorResult {
	if len(prices) < period {
		return nil
	}

	smaIndicator := trend.NewSmaWithPeriod[float64](period)
	values := helper.ChanToSlice(smaIndicator.Compute(helper.SliceToChan(prices)))

	signal, strength := tas.analyzeSMASignal(prices, values, period)

	return &models.IndicatorResult{
		Name:      fmt.Sprintf("SMA_%d", period),
		Values:    toDecimalSeries(values),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateEMA(prices []float64, period int) *models.IndicatorResult {
	if len(prices) < period {
		return nil
	}

	emaIndicator := trend.NewEmaWithPeriod[float64](period)
	values := helper.ChanToSlice(emaIndicator.Compute(helper.SliceToChan(prices)))

	signal, strength := tas.analyzeEMASignal(prices, values, period)

	return &models.IndicatorResult{
		Name:      fmt.Sprintf("EMA_%d", period),
		Values:    toDecimalSeries(values),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateRSI(prices []float64, period int) *models.IndicatorResult {
	if len(prices) < period+1 {
		return nil
	}

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	values := helper.ChanToSlice(rsiIndicator.Compute(helper.SliceToChan(prices)))

	signal, strength := tas.analyzeRSISignal(values)

	return &models.IndicatorResult{
		Name:      fmt.Sprintf("RSI_%d", period),
		Values:    toDecimalSeries(values),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateMACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) *models.IndicatorResult {
	if len(prices) < slowPeriod+signalPeriod {
		return nil
	}

	macdIndicator := trend.NewMacdWithPeriod[float64](fastPeriod, slowPeriod, signalPeriod)
	lineChan, signalChan := macdIndicator.Compute(helper.SliceToChan(prices))

	// Both outputs are unbuffered and fed by one producer, so they must be
	// drained concurrently; a sequential drain blocks the producer as soon
	// as the unread branch backs up.
	signalDone := make(chan []float64, 1)
	go func() {
		signalDone <- helper.ChanToSlice(signalChan)
	}()
	line := helper.ChanToSlice(lineChan)
	signalLine := <-signalDone

	signal, strength := tas.analyzeMACDSignal(line, signalLine)

	return &models.IndicatorResult{
		Name:      "MACD",
		Values:    toDecimalSeries(line),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateBollingerBands(prices []float64, period int, stdDev float64) *models.IndicatorResult {
	if len(prices) < period {
		return nil
	}

	smaIndicator := trend.NewSmaWithPeriod[float64](period)
	middle := helper.ChanToSlice(smaIndicator.Compute(helper.SliceToChan(prices)))

	// middle[i] is the average of prices[i : i+period].
	upper := make([]float64, len(middle))
	lower := make([]float64, len(middle))
	for i := range middle {
		deviation := windowStdDev(prices[i:i+period], middle[i])
		upper[i] = middle[i] + stdDev*deviation
		lower[i] = middle[i] - stdDev*deviation
	}

	signal, strength := tas.analyzeBollingerSignal(prices, middle, upper, lower, period)

	return &models.IndicatorResult{
		Name:      "BB",
		Values:    toDecimalSeries(middle),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateATR(highs, lows, closes []float64, period int) *models.IndicatorResult {
	if len(highs) < period || len(lows) < period || len(closes) < period {
		return nil
	}

	atrIndicator := volatility.NewAtr[float64]()
	values := helper.ChanToSlice(atrIndicator.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))

	// ATR reads volatility, not direction; report the recent window only.
	if len(values) > period {
		values = values[len(values)-period:]
	}

	return &models.IndicatorResult{
		Name:      fmt.Sprintf("ATR_%d", period),
		Values:    toDecimalSeries(values),
		Signal:    models.SignalHold,
		Strength:  decimal.NewFromFloat(0.5),
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateStochastic(highs, lows, closes []float64, kPeriod, dPeriod int) *models.IndicatorResult {
	if len(highs) < kPeriod || len(lows) < kPeriod || len(closes) < kPeriod {
		return nil
	}

	kValues := make([]float64, 0, len(closes)-kPeriod+1)
	for i := kPeriod - 1; i < len(closes); i++ {
		highest := highs[i-kPeriod+1]
		lowest := lows[i-kPeriod+1]
		for j := i - kPeriod + 2; j <= i; j++ {
			if highs[j] > highest {
				highest = highs[j]
			}
			if lows[j] < lowest {
				lowest = lows[j]
			}
		}

		k := 50.0 // flat window has no range to position against
		if highest != lowest {
			k = (closes[i] - lowest) / (highest - lowest) * 100
		}
		kValues = append(kValues, k)
	}

	if len(kValues) < dPeriod {
		return nil
	}

	// %D smooths %K with a simple moving average.
	dValues := make([]float64, len(kValues)-dPeriod+1)
	for i := dPeriod - 1; i < len(kValues); i++ {
		sum := 0.0
		for j := i - dPeriod + 1; j <= i; j++ {
			sum += kValues[j]
		}
		dValues[i-dPeriod+1] = sum / float64(dPeriod)
	}

	signal, strength := tas.analyzeStochasticSignal(dValues)

	return &models.IndicatorResult{
		Name:      "STOCH",
		Values:    toDecimalSeries(dValues),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

func (tas *TechnicalAnalysisService) calculateOBV(prices, volumes []float64) *models.IndicatorResult {
	if len(prices) != len(volumes) || len(prices) < 2 {
		return nil
	}

	obvIndicator := volume.NewObv[float64]()
	values := helper.ChanToSlice(obvIndicator.Compute(
		helper.SliceToChan(prices),
		helper.SliceToChan(volumes),
	))

	signal, strength := tas.analyzeOBVSignal(values, prices)

	return &models.IndicatorResult{
		Name:      "OBV",
		Values:    toDecimalSeries(values),
		Signal:    signal,
		Strength:  strength,
		Timestamp: time.Now(),
	}
}

// analyzeSMASignal reads price position and crossings against the average.
// Longer periods weigh in heavier.
func (tas *TechnicalAnalysisService) analyzeSMASignal(prices, sma []float64, period int) (models.SignalType, decimal.Decimal) {
	if len(prices) < 2 || len(sma) < 2 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	currentPrice := prices[len(prices)-1]
	currentSMA := sma[len(sma)-1]
	prevPrice := prices[len(prices)-2]
	prevSMA := sma[len(sma)-2]

	distance := math.Abs(currentPrice-currentSMA) / currentSMA
	periodWeight := math.Min(1.5, float64(period)/20.0)

	switch {
	case currentPrice > currentSMA && prevPrice <= prevSMA:
		return models.SignalBuy, decimal.NewFromFloat(math.Min(0.8, 0.6+distance*periodWeight))
	case currentPrice < currentSMA && prevPrice >= prevSMA:
		return models.SignalSell, decimal.NewFromFloat(math.Min(0.8, 0.6+distance*periodWeight))
	case currentPrice > currentSMA:
		return models.SignalBuy, decimal.NewFromFloat(math.Min(0.7, 0.4+distance*periodWeight))
	case currentPrice < currentSMA:
		return models.SignalSell, decimal.NewFromFloat(math.Min(0.7, 0.4+distance*periodWeight))
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

// analyzeEMASignal mirrors the SMA read with a higher base strength; the
// exponential average reacts faster, so crossings mean more.
func (tas *TechnicalAnalysisService) analyzeEMASignal(prices, ema []float64, period int) (models.SignalType, decimal.Decimal) {
	if len(prices) < 2 || len(ema) < 2 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	currentPrice := prices[len(prices)-1]
	currentEMA := ema[len(ema)-1]
	prevPrice := prices[len(prices)-2]
	prevEMA := ema[len(ema)-2]

	distance := math.Abs(currentPrice-currentEMA) / currentEMA
	periodWeight := math.Min(1.3, float64(period)/15.0)

	switch {
	case currentPrice > currentEMA && prevPrice <= prevEMA:
		return models.SignalBuy, decimal.NewFromFloat(math.Min(0.85, 0.7+distance*periodWeight))
	case currentPrice < currentEMA && prevPrice >= prevEMA:
		return models.SignalSell, decimal.NewFromFloat(math.Min(0.85, 0.7+distance*periodWeight))
	case currentPrice > currentEMA:
		return models.SignalBuy, decimal.NewFromFloat(math.Min(0.75, 0.5+distance*periodWeight))
	case currentPrice < currentEMA:
		return models.SignalSell, decimal.NewFromFloat(math.Min(0.75, 0.5+distance*periodWeight))
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

func (tas *TechnicalAnalysisService) analyzeRSISignal(rsi []float64) (models.SignalType, decimal.Decimal) {
	if len(rsi) == 0 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	current := rsi[len(rsi)-1]
	switch {
	case current < 30:
		return models.SignalBuy, decimal.NewFromFloat(0.8)
	case current > 70:
		return models.SignalSell, decimal.NewFromFloat(0.8)
	case current < 40:
		return models.SignalBuy, decimal.NewFromFloat(0.6)
	case current > 60:
		return models.SignalSell, decimal.NewFromFloat(0.6)
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

func (tas *TechnicalAnalysisService) analyzeMACDSignal(line, signalLine []float64) (models.SignalType, decimal.Decimal) {
	if len(line) < 2 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	current := line[len(line)-1]
	previous := line[len(line)-2]

	// A crossing of the signal line outranks the zero-line reading.
	if len(signalLine) >= 2 {
		currentSignal := signalLine[len(signalLine)-1]
		previousSignal := signalLine[len(signalLine)-2]
		if current > currentSignal && previous <= previousSignal {
			return models.SignalBuy, decimal.NewFromFloat(0.8)
		}
		if current < currentSignal && previous >= previousSignal {
			return models.SignalSell, decimal.NewFromFloat(0.8)
		}
	}

	switch {
	case current > 0 && previous <= 0:
		return models.SignalBuy, decimal.NewFromFloat(0.8)
	case current < 0 && previous >= 0:
		return models.SignalSell, decimal.NewFromFloat(0.8)
	case current > 0:
		return models.SignalBuy, decimal.NewFromFloat(0.6)
	case current < 0:
		return models.SignalSell, decimal.NewFromFloat(0.6)
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

func (tas *TechnicalAnalysisService) analyzeBollingerSignal(prices, middle, upper, lower []float64, period int) (models.SignalType, decimal.Decimal) {
	if len(prices) == 0 || len(middle) == 0 || len(upper) == 0 || len(lower) == 0 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	currentPrice := prices[len(prices)-1]
	currentMiddle := middle[len(middle)-1]
	currentUpper := upper[len(upper)-1]
	currentLower := lower[len(lower)-1]

	bandWidth := currentUpper - currentLower
	periodWeight := math.Min(1.4, float64(period)/25.0)

	// Touches of the outer bands read as reversal setups.
	if currentPrice <= currentLower*1.02 {
		return models.SignalBuy, decimal.NewFromFloat(math.Min(0.8, 0.6+periodWeight*0.2))
	}
	if currentPrice >= currentUpper*0.98 {
		return models.SignalSell, decimal.NewFromFloat(math.Min(0.8, 0.6+periodWeight*0.2))
	}

	if math.Abs(currentPrice-currentMiddle) < bandWidth*0.1 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	// Between the bands the position reads as momentum.
	position := (currentPrice - currentLower) / bandWidth
	switch {
	case position < 0.3:
		return models.SignalSell, decimal.NewFromFloat(math.Min(0.6, 0.4+periodWeight*0.15))
	case position > 0.7:
		return models.SignalBuy, decimal.NewFromFloat(math.Min(0.6, 0.4+periodWeight*0.15))
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

func (tas *TechnicalAnalysisService) analyzeStochasticSignal(stoch []float64) (models.SignalType, decimal.Decimal) {
	if len(stoch) == 0 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	current := stoch[len(stoch)-1]
	if current < 20 {
		return models.SignalBuy, decimal.NewFromFloat(0.75)
	}
	if current > 80 {
		return models.SignalSell, decimal.NewFromFloat(0.75)
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

func (tas *TechnicalAnalysisService) analyzeOBVSignal(obv, prices []float64) (models.SignalType, decimal.Decimal) {
	if len(obv) < 2 || len(prices) < 2 {
		return models.SignalHold, decimal.NewFromFloat(0.5)
	}

	currentOBV := obv[len(obv)-1]
	prevOBV := obv[len(obv)-2]
	currentPrice := prices[len(prices)-1]
	prevPrice := prices[len(prices)-2]

	// Volume confirming the price move.
	if currentPrice > prevPrice && currentOBV > prevOBV {
		return models.SignalBuy, decimal.NewFromFloat(0.7)
	}
	if currentPrice < prevPrice && currentOBV < prevOBV {
		return models.SignalSell, decimal.NewFromFloat(0.7)
	}

	return models.SignalHold, decimal.NewFromFloat(0.5)
}

// determineOverallSignal tallies a strength-weighted vote across all
// indicator results. Either side needs more than 60% of the total weight
// to carry the vote; anything less reads as neutral.
func (tas *TechnicalAnalysisService) determineOverallSignal(indicators []models.IndicatorResult) (models.SignalType, decimal.Decimal) {
	if len(indicators) == 0 {
		return models.SignalNeutral, decimal.NewFromFloat(0.5)
	}

	buyScore := decimal.Zero
	sellScore := decimal.Zero
	totalWeight := decimal.Zero
	for _, ind := range indicators {
		totalWeight = totalWeight.Add(ind.Strength)
		switch ind.Signal {
		case models.SignalBuy:
			buyScore = buyScore.Add(ind.Strength)
		case models.SignalSell:
			sellScore = sellScore.Add(ind.Strength)
		}
	}

	if totalWeight.IsZero() {
		return models.SignalNeutral, decimal.NewFromFloat(0.5)
	}

	threshold := decimal.NewFromFloat(0.6)
	buyRatio := buyScore.Div(totalWeight)
	sellRatio := sellScore.Div(totalWeight)

	if buyRatio.GreaterThan(threshold) {
		return models.SignalBuy, buyRatio
	}
	if sellRatio.GreaterThan(threshold) {
		return models.SignalSell, sellRatio
	}

	return models.SignalNeutral, decimal.NewFromFloat(0.5)
}

// windowStdDev is the population standard deviation of a price window
// around a precomputed mean.
func windowStdDev(window []float64, mean float64) float64 {
	if len(window) == 0 {
		return 0
	}

	variance := 0.0
	for _, price := range window {
		diff := price - mean
		variance += diff * diff
	}
	variance /= float64(len(window))

	return math.Sqrt(variance)
}

func normalizeTimeframe(timeframe string) string {
	if timeframe == "" {
		return defaultTimeframe
	}
	return timeframe
}

func toDecimalSeries(values []float64) []decimal.Decimal {
	series := make([]decimal.Decimal, len(values))
	for i, v := range values {
		series[i] = decimal.NewFromFloat(v)
	}
	return series
}

func volumesAsFloat(volumes []int64) []float64 {
	out := make([]float64, len(volumes))
	for i, v := range volumes {
		out[i] = float64(v)
	}
	return out
}
