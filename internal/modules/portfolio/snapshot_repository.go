// Package portfolio provides persistence for portfolio snapshot history.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/database"
	"github.com/aristomenis/vigil/internal/domain"
)

// SnapshotRepository is the sqlite-backed SnapshotStore. History is
// append-only: snapshots are inserted and read, never updated or deleted by
// the analytics core.
type SnapshotRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *database.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Init creates the snapshot tables if they do not exist.
func (r *SnapshotRepository) Init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL UNIQUE,
			equity REAL NOT NULL,
			margin_used REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON portfolio_snapshots(timestamp)`,
		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id INTEGER NOT NULL REFERENCES portfolio_snapshots(id),
			venue TEXT NOT NULL,
			instrument TEXT NOT NULL,
			side TEXT NOT NULL,
			size REAL NOT NULL,
			entry_price REAL NOT NULL,
			mark_price REAL NOT NULL,
			notional REAL NOT NULL,
			unrealized_pnl REAL NOT NULL,
			leverage REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_snapshot ON position_snapshots(snapshot_id)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create snapshot schema: %w", err)
		}
	}
	return nil
}

// Save appends one snapshot and its positions in a single transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.PortfolioSnapshot) error {
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO portfolio_snapshots (timestamp, equity, margin_used) VALUES (?, ?, ?)`,
		snapshot.Timestamp.UnixNano(), snapshot.Equity, snapshot.MarginUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	snapshotID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get snapshot id: %w", err)
	}

	for _, pos := range snapshot.Positions {
		var leverage interface{}
		if pos.Leverage != 0 {
			leverage = pos.Leverage
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO position_snapshots
				(snapshot_id, venue, instrument, side, size, entry_price, mark_price, notional, unrealized_pnl, leverage)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snapshotID, pos.Venue, pos.Instrument, pos.Side, pos.Size,
			pos.EntryPrice, pos.MarkPrice, pos.Notional, pos.UnrealizedPnl, leverage,
		); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", pos.Instrument, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or nil if the store is empty.
func (r *SnapshotRepository) Latest(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		`SELECT id, timestamp, equity, margin_used FROM portfolio_snapshots
		 ORDER BY timestamp DESC LIMIT 1`)
	return r.scanSnapshot(ctx, row)
}

// Before returns the most recent snapshot strictly older than ts, or nil.
func (r *SnapshotRepository) Before(ctx context.Context, ts time.Time) (*domain.PortfolioSnapshot, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		`SELECT id, timestamp, equity, margin_used FROM portfolio_snapshots
		 WHERE timestamp < ? ORDER BY timestamp DESC LIMIT 1`, ts.UnixNano())
	return r.scanSnapshot(ctx, row)
}

func (r *SnapshotRepository) scanSnapshot(ctx context.Context, row *sql.Row) (*domain.PortfolioSnapshot, error) {
	var id int64
	var tsNano int64
	var snapshot domain.PortfolioSnapshot

	err := row.Scan(&id, &tsNano, &snapshot.Equity, &snapshot.MarginUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	snapshot.Timestamp = time.Unix(0, tsNano).UTC()

	positions, err := r.loadPositions(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot.Positions = positions
	return &snapshot, nil
}

func (r *SnapshotRepository) loadPositions(ctx context.Context, snapshotID int64) ([]domain.NormalizedPosition, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT venue, instrument, side, size, entry_price, mark_price, notional, unrealized_pnl, leverage
		 FROM position_snapshots WHERE snapshot_id = ? ORDER BY id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.NormalizedPosition
	for rows.Next() {
		var pos domain.NormalizedPosition
		var leverage sql.NullFloat64
		if err := rows.Scan(&pos.Venue, &pos.Instrument, &pos.Side, &pos.Size,
			&pos.EntryPrice, &pos.MarkPrice, &pos.Notional, &pos.UnrealizedPnl, &leverage); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if leverage.Valid {
			pos.Leverage = leverage.Float64
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}
