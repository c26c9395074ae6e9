package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lenslabs/marketlens-go/internal/models"
)

func TestAnalyzeTrend(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		direction models.TrendDirection
	}{
		{
			name:      "short series defaults to neutral",
			closes:    linearCloses(19, 100, 1),
			direction: models.TrendNeutral,
		},
		{
			name:      "monotonic 200 point uptrend",
			closes:    linearCloses(200, 100, 0.5),
			direction: models.TrendBullish,
		},
		{
			name:      "monotonic downtrend",
			closes:    linearCloses(200, 200, -0.5),
			direction: models.TrendBearish,
		},
		{
			name:      "flat series",
			closes:    linearCloses(60, 100, 0),
			direction: models.TrendNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := AnalyzeTrend(tt.closes)
			assert.Equal(t, tt.direction, trend.Direction)
			if tt.direction != models.TrendNeutral {
				assert.Greater(t, trend.Strength, 0.0)
			}
			assert.LessOrEqual(t, trend.Strength, 1.0)
			assert.GreaterOrEqual(t, trend.DurationDays, 0)
		})
	}
}

func TestAnalyzeTrendStrengthCapped(t *testing.T) {
	// 50% daily growth pushes the normalized slope far past the cap
	closes := make([]float64, 40)
	closes[0] = 1
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * 1.5
	}

	trend := AnalyzeTrend(closes)
	assert.Equal(t, models.TrendBullish, trend.Direction)
	assert.InDelta(t, 1.0, trend.Strength, 1e-10, "strength is capped at 1")
}

func TestTrendDuration(t *testing.T) {
	t.Run("counts consecutive matching days from the end", func(t *testing.T) {
		// three ~2% up-days after a down day
		closes := []float64{100, 100, 98, 99.96, 101.96, 104.0}
		duration := trendDuration(closes, models.TrendBullish)
		assert.Equal(t, 3, duration)
	})

	t.Run("stops at the first mismatch", func(t *testing.T) {
		closes := []float64{100, 103, 101, 104.5}
		// last day +3.4% bullish, day before -1.9% bearish
		duration := trendDuration(closes, models.TrendBullish)
		assert.Equal(t, 1, duration)
	})

	t.Run("small daily moves in a long rally count as neutral days", func(t *testing.T) {
		// +0.5 on ~200 is well under the 1% day threshold
		closes := linearCloses(200, 100, 0.5)
		assert.Equal(t, 0, trendDuration(closes, models.TrendBullish))
	})
}

func TestRegressionSlope(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{name: "perfect linear", values: []float64{1, 2, 3, 4, 5}, expected: 1},
		{name: "flat", values: []float64{7, 7, 7, 7}, expected: 0},
		{name: "descending", values: []float64{10, 8, 6, 4}, expected: -2},
		{name: "single point", values: []float64{3}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, regressionSlope(tt.values), 1e-10, "slope mismatch")
		})
	}
}
