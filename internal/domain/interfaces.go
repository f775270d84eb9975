package domain

import (
	"context"
	"time"
)

// SnapshotStore is the read/append interface over portfolio snapshot history.
// The analytics core only reads; the portfolio collaborator appends.
// Implementations must return snapshots with strictly increasing timestamps
// and never mutate stored history.
type SnapshotStore interface {
	// Latest returns the most recent snapshot, or nil if the store is empty.
	Latest(ctx context.Context) (*PortfolioSnapshot, error)

	// Before returns the most recent snapshot strictly older than ts,
	// or nil if none exists.
	Before(ctx context.Context, ts time.Time) (*PortfolioSnapshot, error)

	// Save appends a snapshot to the history.
	Save(ctx context.Context, snapshot PortfolioSnapshot) error
}

// TickStore is the read/append interface over per-instrument market ticks.
type TickStore interface {
	// PriceAt returns the latest tick for the instrument at or before ts,
	// or nil if no tick exists.
	PriceAt(ctx context.Context, instrument string, ts time.Time) (*MarketTick, error)

	// RecentPrices returns up to limit prices for the instrument, oldest first.
	RecentPrices(ctx context.Context, instrument string, limit int) ([]float64, error)

	// Save appends a tick.
	Save(ctx context.Context, tick MarketTick) error
}

// Publisher receives each AnalyticsSnapshot as it is produced. Downstream
// consumers (LLM synthesis, UI, reports) sit behind this interface.
type Publisher interface {
	Publish(snapshot AnalyticsSnapshot)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(snapshot AnalyticsSnapshot)

// Publish calls f(snapshot).
func (f PublisherFunc) Publish(snapshot AnalyticsSnapshot) { f(snapshot) }
