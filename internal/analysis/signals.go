package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lenslabs/marketlens-go/internal/models"
)

// MinSignalObservations is the minimum series length the signal generator
// evaluates. Shorter series yield an empty signal list, not an error.
const MinSignalObservations = 50

const (
	rsiOversold   = 30
	rsiOverbought = 70
)

// GenerateSignals evaluates the signal rules against an indicator set and
// the current price. Rules are independent and order-insensitive; several
// signals may coexist. observations is the length of the series the
// indicators were computed from.
func GenerateSignals(set *models.IndicatorSet, price float64, observations int) []models.TradingSignal {
	signals := []models.TradingSignal{}
	if set == nil || observations < MinSignalObservations {
		return signals
	}

	now := time.Now().UTC()

	// SMA crossover
	if price > set.SMA20 && set.SMA20 > set.SMA50 {
		signals = append(signals, newSignal(models.SignalBuy, "SMA", 0.8,
			fmt.Sprintf("price %.2f above SMA20 %.2f above SMA50 %.2f", price, set.SMA20, set.SMA50), now))
	} else if price < set.SMA20 && set.SMA20 < set.SMA50 {
		signals = append(signals, newSignal(models.SignalSell, "SMA", 0.7,
			fmt.Sprintf("price %.2f below SMA20 %.2f below SMA50 %.2f", price, set.SMA20, set.SMA50), now))
	}

	// RSI extremes
	if set.RSI14 < rsiOversold {
		signals = append(signals, newSignal(models.SignalBuy, "RSI", 0.6,
			fmt.Sprintf("RSI %.1f oversold", set.RSI14), now))
	} else if set.RSI14 > rsiOverbought {
		signals = append(signals, newSignal(models.SignalSell, "RSI", 0.6,
			fmt.Sprintf("RSI %.1f overbought", set.RSI14), now))
	}

	// MACD momentum
	if set.MACD.Line > set.MACD.Signal && set.MACD.Histogram > 0 {
		signals = append(signals, newSignal(models.SignalBuy, "MACD", 0.7,
			"MACD line above signal with positive histogram", now))
	} else if set.MACD.Line < set.MACD.Signal && set.MACD.Histogram < 0 {
		signals = append(signals, newSignal(models.SignalSell, "MACD", 0.7,
			"MACD line below signal with negative histogram", now))
	}

	// Bollinger band touches
	if price <= set.Bollinger.Lower {
		signals = append(signals, newSignal(models.SignalBuy, "BOLLINGER", 0.6,
			fmt.Sprintf("price %.2f at or below lower band %.2f", price, set.Bollinger.Lower), now))
	} else if price >= set.Bollinger.Upper {
		signals = append(signals, newSignal(models.SignalSell, "BOLLINGER", 0.6,
			fmt.Sprintf("price %.2f at or above upper band %.2f", price, set.Bollinger.Upper), now))
	}

	return signals
}

func newSignal(signalType models.SignalType, indicator string, strength float64, description string, at time.Time) models.TradingSignal {
	return models.TradingSignal{
		ID:          uuid.New().String(),
		Type:        signalType,
		Indicator:   indicator,
		Strength:    strength,
		Description: description,
		CreatedAt:   at,
	}
}
