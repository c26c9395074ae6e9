package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthResponse represents the provider health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// ErrorResponse represents an error response from the market data service
type ErrorResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// QuotePayload represents quote data as the provider serializes it
type QuotePayload struct {
	Symbol           string          `json:"symbol"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	DayChange        decimal.Decimal `json:"day_change"`
	DayChangePercent decimal.Decimal `json:"day_change_percent"`
	DayHigh          decimal.Decimal `json:"day_high"`
	DayLow           decimal.Decimal `json:"day_low"`
	Timestamp        time.Time       `json:"timestamp"`
}

// QuoteResponse represents the response from /api/quote/{symbol}
type QuoteResponse struct {
	Symbol    string       `json:"symbol"`
	Quote     QuotePayload `json:"quote"`
	Timestamp time.Time    `json:"timestamp"`
}

// CandlePoint is one OHLCV bar as the provider serializes it. Symbol and
// timeframe ride on the response envelope, not the bar.
type CandlePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// HistoryResponse represents the response from /api/history/{symbol}
type HistoryResponse struct {
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Candles   []CandlePoint `json:"candles"`
	Count     int           `json:"count"`
	Timestamp time.Time     `json:"timestamp"`
}
