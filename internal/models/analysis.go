package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType classifies a trading signal
type SignalType string

const (
	SignalBuy     SignalType = "BUY"
	SignalSell    SignalType = "SELL"
	SignalHold    SignalType = "HOLD"
	SignalNeutral SignalType = "NEUTRAL"
)

// TrendDirection classifies the direction of a price trend
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// VolatilityRank buckets annualized volatility
type VolatilityRank string

const (
	VolatilityLow    VolatilityRank = "LOW"
	VolatilityMedium VolatilityRank = "MEDIUM"
	VolatilityHigh   VolatilityRank = "HIGH"
)

// VolumeTrend classifies recent volume behavior
type VolumeTrend string

const (
	VolumeIncreasing VolumeTrend = "INCREASING"
	VolumeDecreasing VolumeTrend = "DECREASING"
	VolumeStable     VolumeTrend = "STABLE"
)

// MACDResult represents the MACD line, signal line and histogram
type MACDResult struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerBands represents the three Bollinger band levels
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSet is the derived, read-only indicator snapshot computed from a
// full OHLCV series at a point in time.
type IndicatorSet struct {
	SMA20     float64        `json:"sma_20"`
	SMA50     float64        `json:"sma_50"`
	SMA200    float64        `json:"sma_200"`
	EMA12     float64        `json:"ema_12"`
	EMA26     float64        `json:"ema_26"`
	RSI14     float64        `json:"rsi_14"`
	MACD      MACDResult     `json:"macd"`
	Bollinger BollingerBands `json:"bollinger_bands"`
	ATR14     float64        `json:"atr_14"`
}

// TradingSignal represents a discrete BUY/SELL/HOLD/NEUTRAL signal derived
// from one indicator rule. Regenerated on every analysis call, never stored.
type TradingSignal struct {
	ID          string     `json:"id"`
	Type        SignalType `json:"type"`
	Indicator   string     `json:"indicator"`
	Strength    float64    `json:"strength"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TrendAnalysis represents the regression-based trend classification
type TrendAnalysis struct {
	Direction    TrendDirection `json:"direction"`
	Strength     float64        `json:"strength"`
	DurationDays int            `json:"duration_days"`
}

// SupportResistance holds up to three support and resistance price levels
type SupportResistance struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
}

// PerformanceMetrics holds percentage price change over fixed horizons
type PerformanceMetrics struct {
	Change24h float64 `json:"change_24h"`
	Change7d  float64 `json:"change_7d"`
	Change30d float64 `json:"change_30d"`
	ChangeYTD float64 `json:"change_ytd"`
	Change1y  float64 `json:"change_1y"`
}

// VolatilityMetrics holds annualized volatility readings and their ranking
type VolatilityMetrics struct {
	Annualized float64        `json:"annualized"`
	Recent30d  float64        `json:"recent_30d"`
	Rank       VolatilityRank `json:"rank"`
	Percentile float64        `json:"percentile"`
}

// VolumeAnalysis compares current volume against recent averages
type VolumeAnalysis struct {
	Current   int64       `json:"current"`
	Average20 float64     `json:"average_20d"`
	Ratio     float64     `json:"ratio"`
	Trend     VolumeTrend `json:"trend"`
}

// MarketAnalytics is the composite analytics record produced for one symbol.
// A nil MarketAnalytics means analytics are unavailable for that symbol;
// batch callers treat it as a partial failure, not a fatal one.
type MarketAnalytics struct {
	Symbol       string             `json:"symbol"`
	Timeframe    string             `json:"timeframe"`
	CurrentPrice decimal.Decimal    `json:"current_price"`
	DayChange    decimal.Decimal    `json:"day_change"`
	Performance  PerformanceMetrics `json:"performance"`
	Volatility   VolatilityMetrics  `json:"volatility"`
	Volume       VolumeAnalysis     `json:"volume"`
	Indicators   *IndicatorSet      `json:"indicators,omitempty"`
	Signals      []TradingSignal    `json:"signals"`
	Trend        TrendAnalysis      `json:"trend"`
	Levels       SupportResistance  `json:"levels"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// BatchAnalyticsRequest represents a batch analytics request body
type BatchAnalyticsRequest struct {
	Symbols   []string `json:"symbols" binding:"required"`
	Timeframe string   `json:"timeframe"`
}

// BatchAnalytics aggregates per-symbol analytics for one batch run.
// Failed maps symbol to the error string; a failed symbol never appears in
// Results.
type BatchAnalytics struct {
	RunID       string                      `json:"run_id"`
	Timeframe   string                      `json:"timeframe"`
	Results     map[string]*MarketAnalytics `json:"results"`
	Failed      map[string]string           `json:"failed,omitempty"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt time.Time                   `json:"completed_at"`
}

// IndicatorResult represents one indicator reading in the extended
// breakdown: the computed value series plus the per-indicator signal vote.
type IndicatorResult struct {
	Name      string            `json:"name"`
	Values    []decimal.Decimal `json:"values"`
	Signal    SignalType        `json:"signal"`
	Strength  decimal.Decimal   `json:"strength"`
	Timestamp time.Time         `json:"timestamp"`
}

// AnalysisBreakdown represents the extended per-indicator analysis response.
// OverallSignal is the weighted vote across all indicator results;
// Confidence carries the winning vote's share of total weight.
type AnalysisBreakdown struct {
	Symbol        string            `json:"symbol"`
	Timeframe     string            `json:"timeframe"`
	Indicators    []IndicatorResult `json:"indicators"`
	OverallSignal SignalType        `json:"overall_signal"`
	Confidence    decimal.Decimal   `json:"confidence"`
	Timestamp     time.Time         `json:"timestamp"`
}
