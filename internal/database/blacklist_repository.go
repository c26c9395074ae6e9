package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SymbolBlacklistEntry represents a blacklisted symbol in the database.
// Symbols land here when the provider repeatedly fails to serve them, so the
// collector can stop burning refresh cycles on them.
type SymbolBlacklistEntry struct {
	// ID is the unique identifier.
	ID int64 `json:"id" db:"id"`
	// Symbol is the instrument symbol.
	Symbol string `json:"symbol" db:"symbol"`
	// Reason describes why the symbol was blacklisted.
	Reason string `json:"reason" db:"reason"`
	// CreatedAt is when the entry was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	// UpdatedAt is when the entry was last updated.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	// ExpiresAt is when the blacklist expires (nil for never).
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	// IsActive indicates if the blacklist entry is currently active.
	IsActive bool `json:"is_active" db:"is_active"`
}

// BlacklistRepository handles database operations for the symbol blacklist.
type BlacklistRepository struct {
	pool DatabasePool
}

// NewBlacklistRepository creates a new blacklist repository.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*BlacklistRepository: The initialized repository.
func NewBlacklistRepository(pool DatabasePool) *BlacklistRepository {
	return &BlacklistRepository{
		pool: pool,
	}
}

// AddSymbol adds a symbol to the blacklist.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Instrument symbol.
//	reason: Reason for blacklisting.
//	expiresAt: Expiration time.
//
// Returns:
//
//	*SymbolBlacklistEntry: The created entry.
//	error: Error if operation fails.
func (r *BlacklistRepository) AddSymbol(ctx context.Context, symbol, reason string, expiresAt *time.Time) (*SymbolBlacklistEntry, error) {
	query := `
		INSERT INTO symbol_blacklist (symbol, reason, expires_at, is_active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (symbol) WHERE is_active = true
		DO UPDATE SET
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, symbol, reason, created_at, updated_at, expires_at, is_active
	`

	var entry SymbolBlacklistEntry
	err := r.pool.QueryRow(ctx, query, symbol, reason, expiresAt).Scan(
		&entry.ID,
		&entry.Symbol,
		&entry.Reason,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.ExpiresAt,
		&entry.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add symbol to blacklist: %w", err)
	}

	return &entry, nil
}

// RemoveSymbol removes a symbol from the blacklist.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Instrument symbol.
//
// Returns:
//
//	error: Error if operation fails.
func (r *BlacklistRepository) RemoveSymbol(ctx context.Context, symbol string) error {
	query := `
		UPDATE symbol_blacklist
		SET is_active = false, updated_at = CURRENT_TIMESTAMP
		WHERE symbol = $1 AND is_active = true
	`

	result, err := r.pool.Exec(ctx, query, symbol)
	if err != nil {
		return fmt.Errorf("failed to remove symbol from blacklist: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("symbol %s not found in blacklist or already inactive", symbol)
	}

	return nil
}

// IsBlacklisted checks if a symbol is currently blacklisted.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Instrument symbol.
//
// Returns:
//
//	bool: True if blacklisted.
//	string: Reason for blacklisting.
//	error: Error if check fails.
func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, symbol string) (bool, string, error) {
	query := `
		SELECT reason, expires_at
		FROM symbol_blacklist
		WHERE symbol = $1 AND is_active = true
		AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
	`

	var reason string
	var expiresAt *time.Time
	err := r.pool.QueryRow(ctx, query, symbol).Scan(&reason, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("failed to check blacklist status: %w", err)
	}

	return true, reason, nil
}

// GetAllBlacklisted returns all currently blacklisted symbols.
//
// Parameters:
//
//	ctx: Context.
//
// Returns:
//
//	[]SymbolBlacklistEntry: List of blacklist entries.
//	error: Error if retrieval fails.
func (r *BlacklistRepository) GetAllBlacklisted(ctx context.Context) ([]SymbolBlacklistEntry, error) {
	query := `
		SELECT id, symbol, reason, created_at, updated_at, expires_at, is_active
		FROM symbol_blacklist
		WHERE is_active = true
		AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get blacklisted symbols: %w", err)
	}
	defer rows.Close()

	var entries []SymbolBlacklistEntry
	for rows.Next() {
		var entry SymbolBlacklistEntry
		err := rows.Scan(
			&entry.ID,
			&entry.Symbol,
			&entry.Reason,
			&entry.CreatedAt,
			&entry.UpdatedAt,
			&entry.ExpiresAt,
			&entry.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blacklist entries: %w", err)
	}

	return entries, nil
}

// CleanupExpired deactivates expired blacklist entries.
//
// Parameters:
//
//	ctx: Context.
//
// Returns:
//
//	int64: Number of entries deactivated.
//	error: Error if cleanup fails.
func (r *BlacklistRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE symbol_blacklist
		SET is_active = false, updated_at = CURRENT_TIMESTAMP
		WHERE is_active = true
		AND expires_at IS NOT NULL
		AND expires_at <= CURRENT_TIMESTAMP
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired blacklist entries: %w", err)
	}

	return result.RowsAffected(), nil
}
