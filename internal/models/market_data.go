package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV observation for a trading period.
// Series are ordered chronologically ascending with no duplicate timestamps.
type Candle struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Timeframe string          `json:"timeframe" db:"timeframe"`
	Timestamp time.Time       `json:"timestamp" db:"bucket_ts"`
	Open      decimal.Decimal `json:"open" db:"open"`
	High      decimal.Decimal `json:"high" db:"high"`
	Low       decimal.Decimal `json:"low" db:"low"`
	Close     decimal.Decimal `json:"close" db:"close"`
	Volume    int64           `json:"volume" db:"volume"`
}

// Quote represents the current market snapshot for a symbol
type Quote struct {
	Symbol           string          `json:"symbol"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	DayChange        decimal.Decimal `json:"day_change"`
	DayChangePercent decimal.Decimal `json:"day_change_percent"`
	DayHigh          decimal.Decimal `json:"day_high"`
	DayLow           decimal.Decimal `json:"day_low"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Instrument represents a tracked symbol in the watchlist registry
type Instrument struct {
	ID          int       `json:"id" db:"id"`
	Symbol      string    `json:"symbol" db:"symbol"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CandleHistoryRequest represents query parameters for historical candles
type CandleHistoryRequest struct {
	Symbol    string `json:"symbol" form:"symbol"`
	Timeframe string `json:"timeframe" form:"timeframe"`
	Limit     int    `json:"limit" form:"limit"`
}
