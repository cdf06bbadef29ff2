package history

import (
	"context"
	"encoding/json"
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// Archive mirrors appended decisions into ClickHouse for dashboarding. The
// JSONL log stays authoritative; archive failures only warn upstream.
type Archive struct {
	db *sqlx.DB
}

// NewArchive connects to ClickHouse and ensures the decisions table exists.
func NewArchive(dsn string) (*Archive, error) {
	db, err := sqlx.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ClickHouse ping failed: %w", err)
	}

	archive := &Archive{db: db}
	if err := archive.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("ClickHouse decision archive connected")

	return archive, nil
}

// Close closes the ClickHouse connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) ensureSchema() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS allocation_decisions (
			as_of         DateTime,
			regime_color  String,
			regime_key    String,
			above_long_ma UInt8,
			vix_close     Float64,
			stale         UInt8,
			payload       String
		) ENGINE = MergeTree()
		ORDER BY as_of
	`)
	if err != nil {
		return fmt.Errorf("failed to create decisions table: %w", err)
	}
	return nil
}

// Save archives one decision. The full decision is stored as JSON alongside
// the columns dashboards filter on.
func (a *Archive) Save(ctx context.Context, decision models.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO allocation_decisions
		(as_of, regime_color, regime_key, above_long_ma, vix_close, stale, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		decision.AsOf,
		string(decision.Regime.Color),
		string(decision.RegimeKey),
		boolToUInt8(decision.Regime.AboveLongMA),
		decision.Regime.VIXClose,
		boolToUInt8(decision.Stale),
		string(payload),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("decision archived to ClickHouse",
		zap.Time("as_of", decision.AsOf),
	)

	return nil
}

func boolToUInt8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
