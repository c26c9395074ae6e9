// Package analysis implements the OHLCV computation core: indicator
// calculations, trading-signal rules, trend classification and
// support/resistance detection. Everything here is pure arithmetic over
// in-memory series; fetching, caching and persistence live in the service
// layer.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/lenslabs/marketlens-go/internal/models"
)

// MACDMode selects how the MACD signal line is derived.
type MACDMode string

const (
	// MACDModeLegacy approximates the signal line as 0.2x the MACD line,
	// kept for behavioral parity with existing consumers.
	MACDModeLegacy MACDMode = "legacy"
	// MACDModeEMA9 derives the signal line as a 9-period EMA of the MACD
	// line series.
	MACDModeEMA9 MACDMode = "ema9"
)

const (
	// MinIndicatorPoints is the hard minimum the indicator bundle accepts.
	// Individual indicator functions degrade gracefully below their own
	// window sizes; the bundle does not.
	MinIndicatorPoints = 200

	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
)

// ErrInsufficientData is returned when a series is too short for the
// requested computation.
var ErrInsufficientData = errors.New("insufficient price data")

// SMA returns the simple moving average of the last period closes.
// Returns 0 when the series is shorter than period.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}

	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average with multiplier 2/(period+1),
// seeded with the first close and applied forward over the entire series.
// Returns 0 when the series is shorter than period.
func EMA(closes []float64, period int) float64 {
	series := emaSeries(closes, period)
	if series == nil {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries seeds with the first value and smooths over the whole input,
// so the result at index i reflects all history up to i.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	multiplier := 2.0 / (float64(period) + 1.0)
	series := make([]float64, len(values))
	series[0] = values[0]
	for i := 1; i < len(values); i++ {
		series[i] = (values[i] * multiplier) + (series[i-1] * (1 - multiplier))
	}
	return series
}

// RSI returns the Wilder-smoothed relative strength index. The average gain
// and loss are seeded over the first period deltas, then smoothed as
// avg = (avg*(period-1) + value) / period across the remainder.
// Returns 50 when the series is too short or perfectly flat (no gains and no
// losses), and 100 when the average loss is exactly zero while gains exist.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50 // neutral
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += math.Abs(change)
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain := 0.0
		loss := 0.0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgGain == 0 && avgLoss == 0 {
		return 50 // flat series, no momentum either way
	}
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line (EMA12 - EMA26), the signal line per the given
// mode, and the histogram (line - signal).
func MACD(closes []float64, mode MACDMode) models.MACDResult {
	line := EMA(closes, macdFastPeriod) - EMA(closes, macdSlowPeriod)

	var signal float64
	switch mode {
	case MACDModeEMA9:
		signal = macdSignalEMA(closes)
	default:
		signal = line * 0.2
	}

	return models.MACDResult{
		Line:      line,
		Signal:    signal,
		Histogram: line - signal,
	}
}

// macdSignalEMA computes the 9-period EMA over the MACD line series.
func macdSignalEMA(closes []float64) float64 {
	fast := emaSeries(closes, macdFastPeriod)
	slow := emaSeries(closes, macdSlowPeriod)
	if fast == nil || slow == nil {
		return 0
	}

	line := make([]float64, len(closes))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}

	signal := emaSeries(line, macdSignalPeriod)
	if signal == nil {
		return 0
	}
	return signal[len(signal)-1]
}

// Bollinger returns the Bollinger bands at k population standard deviations
// around the period SMA of the closes.
func Bollinger(closes []float64, period int, k float64) models.BollingerBands {
	middle := SMA(closes, period)
	if len(closes) < period {
		return models.BollingerBands{Upper: middle, Middle: middle, Lower: middle}
	}

	std := stdDev(closes[len(closes)-period:])
	return models.BollingerBands{
		Upper:  middle + k*std,
		Middle: middle,
		Lower:  middle - k*std,
	}
}

// ATR returns the simple average of the last period true ranges, where the
// true range is max(high-low, |high-prevClose|, |low-prevClose|).
// Returns 0 when the series is shorter than period+1.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		high := candles[i].High.InexactFloat64()
		low := candles[i].Low.InexactFloat64()
		prevClose := candles[i-1].Close.InexactFloat64()

		tr := high - low
		if hc := math.Abs(high - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(low - prevClose); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

// ComputeIndicators calculates the full indicator set from a candle series.
// Unlike the individual indicator functions, which fall back to neutral
// defaults on short input, the bundle rejects series shorter than
// MinIndicatorPoints outright. Callers that can live with fewer points must
// call the individual functions directly.
func ComputeIndicators(candles []models.Candle, macdMode MACDMode) (*models.IndicatorSet, error) {
	if len(candles) < MinIndicatorPoints {
		return nil, fmt.Errorf("%w: need at least %d points, got %d",
			ErrInsufficientData, MinIndicatorPoints, len(candles))
	}

	closes := Closes(candles)

	return &models.IndicatorSet{
		SMA20:     SMA(closes, 20),
		SMA50:     SMA(closes, 50),
		SMA200:    SMA(closes, 200),
		EMA12:     EMA(closes, macdFastPeriod),
		EMA26:     EMA(closes, macdSlowPeriod),
		RSI14:     RSI(closes, 14),
		MACD:      MACD(closes, macdMode),
		Bollinger: Bollinger(closes, 20, 2),
		ATR14:     ATR(candles, 14),
	}, nil
}
