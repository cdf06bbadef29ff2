package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/apershukov/allocator/pkg/models"
)

// Repository handles bar cache database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new bar cache repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SaveBars upserts a batch of daily bars for one symbol in a single transaction.
func (r *Repository) SaveBars(ctx context.Context, source string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bars (symbol, bar_date, open, high, low, close, volume, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (symbol, bar_date)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			source = EXCLUDED.source,
			fetched_at = NOW()
	`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			bar.Symbol,
			bar.Date,
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
			source,
		); err != nil {
			return fmt.Errorf("failed to upsert bar %s %s: %w", bar.Symbol, bar.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bar upsert: %w", err)
	}

	return nil
}

// GetBars returns the most recent limit bars for symbol, oldest first.
func (r *Repository) GetBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	query := `
		SELECT symbol, bar_date, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1
		ORDER BY bar_date DESC
		LIMIT $2
	`

	var bars []models.Bar
	if err := r.db.SelectContext(ctx, &bars, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("failed to read cached bars for %s: %w", symbol, err)
	}

	// Query returns newest first; callers expect chronological order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	return bars, nil
}

// LastFetched returns the most recent fetch time for symbol, or zero time
// when the symbol has never been cached.
func (r *Repository) LastFetched(ctx context.Context, symbol string) (time.Time, error) {
	query := `
		SELECT MAX(fetched_at)
		FROM bars
		WHERE symbol = $1
	`

	var fetched sql.NullTime
	err := r.db.GetContext(ctx, &fetched, query, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read fetch time for %s: %w", symbol, err)
	}
	if !fetched.Valid {
		return time.Time{}, nil
	}

	return fetched.Time, nil
}
