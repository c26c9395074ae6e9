package analysis

import (
	"math"

	"github.com/lenslabs/marketlens-go/internal/models"
)

// Closes extracts close prices from a candle series as float64
func Closes(candles []models.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
	}
	return closes
}

// Highs extracts high prices from a candle series as float64
func Highs(candles []models.Candle) []float64 {
	highs := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High.InexactFloat64()
	}
	return highs
}

// Lows extracts low prices from a candle series as float64
func Lows(candles []models.Candle) []float64 {
	lows := make([]float64, len(candles))
	for i, c := range candles {
		lows[i] = c.Low.InexactFloat64()
	}
	return lows
}

// Volumes extracts volumes from a candle series
func Volumes(candles []models.Candle) []int64 {
	vols := make([]int64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	return vols
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
