package services

import (
	"math"
	"time"

	"github.com/lenslabs/marketlens-go/internal/models"
)

// tradingDaysPerYear annualizes daily-return volatility.
const tradingDaysPerYear = 252

func calculateMeanFloat64(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func calculateStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := calculateMeanFloat64(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	variance := sumSquares / float64(len(values)-1)
	return math.Sqrt(variance)
}

// dailyReturns computes simple period-over-period returns from a close
// series. Non-positive closes are skipped.
func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

// annualizedVolatility is the sample stdev of daily returns scaled by
// sqrt(252).
func annualizedVolatility(returns []float64) float64 {
	return calculateStdDev(returns) * math.Sqrt(tradingDaysPerYear)
}

// rollingVolatilities computes the annualized volatility of every
// consecutive window of the given size over the close series.
func rollingVolatilities(closes []float64, window int) []float64 {
	if window < 2 || len(closes) < window {
		return nil
	}
	vols := make([]float64, 0, len(closes)-window+1)
	for i := 0; i+window <= len(closes); i++ {
		vols = append(vols, annualizedVolatility(dailyReturns(closes[i:i+window])))
	}
	return vols
}

// percentileRank returns the percentage of window values less than or equal
// to the given value, in [0,100].
func percentileRank(value float64, window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	count := 0
	for _, v := range window {
		if v <= value {
			count++
		}
	}
	return float64(count) / float64(len(window)) * 100
}

// nearestClose finds the close of the candle whose timestamp is closest to
// the target, in either direction.
func nearestClose(candles []models.Candle, target time.Time) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}

	best := 0
	bestDist := absDuration(candles[0].Timestamp.Sub(target))
	for i := 1; i < len(candles); i++ {
		dist := absDuration(candles[i].Timestamp.Sub(target))
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return candles[best].Close.InexactFloat64(), true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// percentChange computes the percentage move from a historical price to the
// current price. Zero base yields zero.
func percentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// lastN returns the trailing n elements, or the whole slice when shorter.
func lastN(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
