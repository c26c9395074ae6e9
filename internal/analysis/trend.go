package analysis

import (
	"math"

	"github.com/lenslabs/marketlens-go/internal/models"
)

const (
	trendWindow = 20

	// Normalized regression slope beyond which a trend counts as directional.
	// A 20-day window deep into a long rally moves well under 1% of its
	// starting price per day, so the cutoff sits at 0.2%.
	trendSlopeThreshold = 0.002

	// Single-day move beyond which a day counts as bullish or bearish when
	// measuring trend duration.
	dailyMoveThreshold = 0.01
)

// AnalyzeTrend classifies the direction of the last 20 closes via a
// least-squares regression slope normalized by the first price in the
// window. Series shorter than the window yield a neutral default.
func AnalyzeTrend(closes []float64) models.TrendAnalysis {
	if len(closes) < trendWindow {
		return models.TrendAnalysis{Direction: models.TrendNeutral}
	}

	window := closes[len(closes)-trendWindow:]
	slope := regressionSlope(window)
	if window[0] != 0 {
		slope /= window[0]
	}

	direction := models.TrendNeutral
	switch {
	case slope > trendSlopeThreshold:
		direction = models.TrendBullish
	case slope < -trendSlopeThreshold:
		direction = models.TrendBearish
	}

	return models.TrendAnalysis{
		Direction:    direction,
		Strength:     math.Min(1, math.Abs(slope)*10),
		DurationDays: trendDuration(closes, direction),
	}
}

// regressionSlope fits y = a + bx over the window with x = 0..n-1 and
// returns b.
func regressionSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	sumX := 0.0
	sumY := 0.0
	sumXY := 0.0
	sumXX := 0.0
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denominator
}

// trendDuration walks backward from the latest close counting consecutive
// days whose single-day direction matches the overall classification.
func trendDuration(closes []float64, direction models.TrendDirection) int {
	duration := 0
	for i := len(closes) - 1; i > 0; i-- {
		prev := closes[i-1]
		if prev == 0 {
			break
		}

		change := (closes[i] - prev) / prev
		day := models.TrendNeutral
		switch {
		case change > dailyMoveThreshold:
			day = models.TrendBullish
		case change < -dailyMoveThreshold:
			day = models.TrendBearish
		}

		if day != direction {
			break
		}
		duration++
	}
	return duration
}
