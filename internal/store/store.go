package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantrel/lixifeed/internal/market"
)

// Schema is the DDL for the window store. Applied with EnsureSchema on
// startup; no migration tooling for a single table.
const Schema = `
	CREATE TABLE IF NOT EXISTS windows (
		id               TEXT PRIMARY KEY,
		symbol           TEXT NOT NULL,
		tick_count       INT NOT NULL,
		mean_mid         DOUBLE PRECISION NOT NULL,
		spread           DOUBLE PRECISION NOT NULL,
		crossing_return  DOUBLE PRECISION NOT NULL,
		volatility       DOUBLE PRECISION NOT NULL,
		intensity        BIGINT NOT NULL,
		bid_volume       BIGINT NOT NULL,
		ask_volume       BIGINT NOT NULL,
		derivatives      JSONB NOT NULL,
		lixi             DOUBLE PRECISION NOT NULL,
		label            TEXT NOT NULL,
		ratio            DOUBLE PRECISION NOT NULL,
		completed_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_windows_symbol_completed
		ON windows (symbol, completed_at DESC);
`

// WindowStore persists completed windows to Postgres. It is a sink off
// the ingestion path: callers log persistence errors and move on, the
// pipeline never waits on the database.
type WindowStore struct {
	pool *pgxpool.Pool
}

// NewWindowStore creates a window store on an existing pool.
func NewWindowStore(pool *pgxpool.Pool) *WindowStore {
	return &WindowStore{pool: pool}
}

// EnsureSchema creates the windows table if it does not exist.
func (s *WindowStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure window schema: %w", err)
	}
	return nil
}

// Save inserts one completed window. Windows are immutable, so a
// duplicate id is a no-op.
func (s *WindowStore) Save(ctx context.Context, w *market.TickWindow) error {
	derivatives, err := json.Marshal(w.Features.Derivatives)
	if err != nil {
		return fmt.Errorf("marshal derivatives: %w", err)
	}

	query := `
		INSERT INTO windows (
			id, symbol, tick_count, mean_mid,
			spread, crossing_return, volatility, intensity,
			bid_volume, ask_volume, derivatives,
			lixi, label, ratio, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = s.pool.Exec(ctx, query,
		w.ID, w.Symbol, len(w.Ticks), w.MeanMid,
		w.Features.Spread, w.Features.CrossingReturn, w.Features.Volatility, w.Features.Intensity,
		w.Features.BidVolume, w.Features.AskVolume, derivatives,
		w.Lixi, string(w.Label), w.Ratio, w.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save window %s: %w", w.ID, err)
	}
	return nil
}

// StoredWindow is one persisted window row. Ticks are not persisted;
// the row carries the derived features only.
type StoredWindow struct {
	ID             string       `json:"id"`
	Symbol         string       `json:"symbol"`
	TickCount      int          `json:"tick_count"`
	MeanMid        float64      `json:"mean_mid"`
	Spread         float64      `json:"spread"`
	CrossingReturn float64      `json:"crossing_return"`
	Volatility     float64      `json:"volatility"`
	Intensity      int64        `json:"intensity"`
	BidVolume      int64        `json:"bid_volume"`
	AskVolume      int64        `json:"ask_volume"`
	Lixi           float64      `json:"lixi"`
	Label          market.Label `json:"label"`
	Ratio          float64      `json:"ratio"`
	CompletedAt    time.Time    `json:"completed_at"`
}

// RecentBySymbol returns up to limit persisted windows for a symbol,
// newest first.
func (s *WindowStore) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*StoredWindow, error) {
	query := `
		SELECT id, symbol, tick_count, mean_mid,
		       spread, crossing_return, volatility, intensity,
		       bid_volume, ask_volume,
		       lixi, label, ratio, completed_at
		FROM windows
		WHERE symbol = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query windows: %w", err)
	}
	defer rows.Close()

	var windows []*StoredWindow
	for rows.Next() {
		var w StoredWindow
		if err := rows.Scan(
			&w.ID, &w.Symbol, &w.TickCount, &w.MeanMid,
			&w.Spread, &w.CrossingReturn, &w.Volatility, &w.Intensity,
			&w.BidVolume, &w.AskVolume,
			&w.Lixi, &w.Label, &w.Ratio, &w.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan window row: %w", err)
		}
		windows = append(windows, &w)
	}
	return windows, rows.Err()
}

// Prune deletes windows completed before the retention horizon and
// returns how many rows went.
func (s *WindowStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tag, err := s.pool.Exec(ctx, `DELETE FROM windows WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune windows: %w", err)
	}
	return tag.RowsAffected(), nil
}
