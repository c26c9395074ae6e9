package interfaces

import (
	"context"

	"github.com/lenslabs/marketlens-go/internal/marketdata"
	"github.com/lenslabs/marketlens-go/internal/models"
)

// MarketDataProvider defines the interface for upstream market data operations.
// The HTTP client in internal/marketdata is the production implementation;
// services depend on this interface so tests can substitute fakes.
type MarketDataProvider interface {
	// Health
	HealthCheck(ctx context.Context) (*marketdata.HealthResponse, error)
	IsHealthy(ctx context.Context) bool

	// Market data retrieval
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetCandleHistory(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)

	// Lifecycle
	Close() error
}
