// Package storage persists aggregated prices to PostgreSQL for offline
// analysis. Writes are batched to keep the hot path off the database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

// Config holds the PostgreSQL store configuration.
type Config struct {
	DSN         string
	BatchSize   int
	FlushPeriod time.Duration
}

// Store writes aggregated prices to the aggregated_prices table.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewStore connects to PostgreSQL and ensures the schema exists.
func NewStore(cfg Config, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS aggregated_prices (
		id BIGSERIAL PRIMARY KEY,
		asset VARCHAR(20) NOT NULL,
		price DECIMAL(30,18) NOT NULL,
		min_price DECIMAL(30,18) NOT NULL,
		max_price DECIMAL(30,18) NOT NULL,
		spread_pct DOUBLE PRECISION NOT NULL,
		confidence SMALLINT NOT NULL,
		source_count SMALLINT NOT NULL,
		emitted_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_aggregated_prices_asset_emitted
		ON aggregated_prices (asset, emitted_at)`

	_, err := s.db.Exec(query)
	return err
}

// StoreBatch inserts a batch of prices in one transaction.
func (s *Store) StoreBatch(ctx context.Context, prices []feed.AggregatedPrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO aggregated_prices
		(asset, price, min_price, max_price, spread_pct, confidence, source_count, emitted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, price := range prices {
		_, err := stmt.ExecContext(ctx,
			price.Asset,
			price.Price.String(),
			price.Min.String(),
			price.Max.String(),
			price.SpreadPct.InexactFloat64(),
			price.Confidence,
			price.SourceCount,
			time.UnixMilli(price.Timestamp).UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", price.Asset, err)
		}
	}

	return tx.Commit()
}

// PriceRow is one persisted aggregation.
type PriceRow struct {
	Asset       string
	Price       decimal.Decimal
	Min         decimal.Decimal
	Max         decimal.Decimal
	SpreadPct   float64
	Confidence  int
	SourceCount int
	EmittedAt   time.Time
}

// RecentPrices returns the persisted aggregations for an asset since the
// given time, newest first.
func (s *Store) RecentPrices(ctx context.Context, asset string, since time.Time) ([]PriceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT asset, price, min_price, max_price, spread_pct, confidence, source_count, emitted_at
	FROM aggregated_prices
	WHERE asset = $1 AND emitted_at >= $2
	ORDER BY emitted_at DESC`, asset, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceRow
	for rows.Next() {
		var (
			row                   PriceRow
			price, minStr, maxStr string
		)
		if err := rows.Scan(&row.Asset, &price, &minStr, &maxStr,
			&row.SpreadPct, &row.Confidence, &row.SourceCount, &row.EmittedAt); err != nil {
			return nil, err
		}
		if row.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("bad price for %s: %w", row.Asset, err)
		}
		if row.Min, err = decimal.NewFromString(minStr); err != nil {
			return nil, fmt.Errorf("bad min price for %s: %w", row.Asset, err)
		}
		if row.Max, err = decimal.NewFromString(maxStr); err != nil {
			return nil, fmt.Errorf("bad max price for %s: %w", row.Asset, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
