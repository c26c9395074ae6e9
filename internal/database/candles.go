package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lenslabs/marketlens-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// CandleStore handles database operations for OHLCV candles.
type CandleStore struct {
	pool DatabasePool
}

// NewCandleStore creates a new candle store.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*CandleStore: The initialized store.
func NewCandleStore(pool DatabasePool) *CandleStore {
	return &CandleStore{
		pool: pool,
	}
}

// UpsertCandles inserts or updates a batch of candles. A candle is keyed by
// (symbol, timeframe, bucket_ts), so refreshed history overwrites in place.
//
// Parameters:
//
//	ctx: Context.
//	candles: Candles to persist.
//
// Returns:
//
//	int64: Number of rows written.
//	error: Error if the operation fails.
func (s *CandleStore) UpsertCandles(ctx context.Context, candles []models.Candle) (int64, error) {
	query := `
		INSERT INTO candles (symbol, timeframe, bucket_ts, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, bucket_ts)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	var written int64
	now := time.Now().UTC()
	for _, candle := range candles {
		result, err := s.pool.Exec(ctx, query,
			candle.Symbol,
			candle.Timeframe,
			candle.Timestamp,
			candle.Open,
			candle.High,
			candle.Low,
			candle.Close,
			candle.Volume,
			now,
		)
		if err != nil {
			return written, fmt.Errorf("failed to upsert candle for %s at %s: %w",
				candle.Symbol, candle.Timestamp.Format(time.RFC3339), err)
		}
		written += result.RowsAffected()
	}

	return written, nil
}

// GetCandleHistory returns up to limit most recent candles for a symbol and
// timeframe, ordered oldest first so indicator math can consume them directly.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Instrument symbol.
//	timeframe: Candle timeframe.
//	limit: Maximum number of candles.
//
// Returns:
//
//	[]models.Candle: Candles in ascending time order.
//	error: Error if retrieval fails.
func (s *CandleStore) GetCandleHistory(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	query := `
		SELECT symbol, timeframe, bucket_ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY bucket_ts DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get candle history: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var candle models.Candle
		err := rows.Scan(
			&candle.Symbol,
			&candle.Timeframe,
			&candle.Timestamp,
			&candle.Open,
			&candle.High,
			&candle.Low,
			&candle.Close,
			&candle.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, candle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	// The query walks newest-first to honor the limit; reverse to ascending.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// GetLatestCandle returns the most recent candle for a symbol and timeframe.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Instrument symbol.
//	timeframe: Candle timeframe.
//
// Returns:
//
//	*models.Candle: The latest candle, or nil when none exists.
//	error: Error if retrieval fails.
func (s *CandleStore) GetLatestCandle(ctx context.Context, symbol, timeframe string) (*models.Candle, error) {
	query := `
		SELECT symbol, timeframe, bucket_ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY bucket_ts DESC
		LIMIT 1
	`

	var candle models.Candle
	err := s.pool.QueryRow(ctx, query, symbol, timeframe).Scan(
		&candle.Symbol,
		&candle.Timeframe,
		&candle.Timestamp,
		&candle.Open,
		&candle.High,
		&candle.Low,
		&candle.Close,
		&candle.Volume,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest candle: %w", err)
	}

	return &candle, nil
}

// CountCandles returns the number of stored candles for a symbol and timeframe.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Instrument symbol.
//	timeframe: Candle timeframe.
//
// Returns:
//
//	int64: Candle count.
//	error: Error if the count fails.
func (s *CandleStore) CountCandles(ctx context.Context, symbol, timeframe string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
	`

	var count int64
	if err := s.pool.QueryRow(ctx, query, symbol, timeframe).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}

	return count, nil
}

// PruneCandles deletes candles older than the cutoff across all symbols.
//
// Parameters:
//
//	ctx: Context.
//	before: Cutoff timestamp.
//
// Returns:
//
//	int64: Number of rows deleted.
//	error: Error if the prune fails.
func (s *CandleStore) PruneCandles(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM candles
		WHERE bucket_ts < $1
	`

	result, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune candles: %w", err)
	}

	return result.RowsAffected(), nil
}
