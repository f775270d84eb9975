// Package market provides market tick persistence and the exchange data
// feed clients.
package market

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

// TickRepository is the sqlite-backed TickStore. Ticks are keyed by
// (instrument, timestamp); the analytics core only ever reads the latest
// tick at-or-before a reference time.
type TickRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewTickRepository creates a new tick repository
func NewTickRepository(db *database.DB, log zerolog.Logger) *TickRepository {
	return &TickRepository{
		db:  db,
		log: log.With().Str("repo", "tick").Logger(),
	}
}

// Init creates the tick table if it does not exist.
func (r *TickRepository) Init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS market_ticks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			venue TEXT NOT NULL,
			instrument TEXT NOT NULL,
			price REAL NOT NULL,
			funding_rate REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_instrument_time ON market_ticks(instrument, timestamp)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tick schema: %w", err)
		}
	}
	return nil
}

// Save appends one tick.
func (r *TickRepository) Save(ctx context.Context, tick domain.MarketTick) error {
	var funding interface{}
	if tick.FundingRate != nil {
		funding = *tick.FundingRate
	}
	_, err := r.db.Conn().ExecContext(ctx,
		`INSERT INTO market_ticks (timestamp, venue, instrument, price, funding_rate)
		 VALUES (?, ?, ?, ?, ?)`,
		tick.Timestamp.UnixNano(), tick.Venue, tick.Instrument, tick.Price, funding,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tick: %w", err)
	}
	return nil
}

// PriceAt returns the latest tick for the instrument at or before ts, or
// nil when no tick exists.
func (r *TickRepository) PriceAt(ctx context.Context, instrument string, ts time.Time) (*domain.MarketTick, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		`SELECT timestamp, venue, instrument, price, funding_rate FROM market_ticks
		 WHERE instrument = ? AND timestamp <= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		instrument, ts.UnixNano(),
	)

	var tick domain.MarketTick
	var tsNano int64
	var funding sql.NullFloat64
	err := row.Scan(&tsNano, &tick.Venue, &tick.Instrument, &tick.Price, &funding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tick: %w", err)
	}
	tick.Timestamp = time.Unix(0, tsNano).UTC()
	if funding.Valid {
		rate := funding.Float64
		tick.FundingRate = &rate
	}
	return &tick, nil
}

// RecentPrices returns up to limit prices for the instrument, oldest first.
func (r *TickRepository) RecentPrices(ctx context.Context, instrument string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT price FROM (
			SELECT price, timestamp FROM market_ticks
			WHERE instrument = ? ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`,
		instrument, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

// Prune deletes ticks older than the retention horizon.
func (r *TickRepository) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixNano()
	result, err := r.db.Exec(`DELETE FROM market_ticks WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ticks: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}
