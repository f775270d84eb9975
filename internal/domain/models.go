// Package domain provides core domain models and types.
package domain

import "time"

// Venue identifies an exchange
type Venue string

const (
	VenueBinance     Venue = "binance"
	VenueHyperliquid Venue = "hyperliquid"
	VenueOKX         Venue = "okx"
	VenueDelta       Venue = "delta"
)

// Side represents the direction of a position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for long positions and -1 for short positions.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// NormalizedPosition is a single exchange position normalized to a common
// shape. Produced by the portfolio collaborator; immutable once it is part
// of a snapshot.
type NormalizedPosition struct {
	Venue         Venue   `json:"venue"`
	Instrument    string  `json:"instrument"` // e.g. "BTC/USDT"
	Side          Side    `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	Notional      float64 `json:"notional"` // size * mark_price, always >= 0
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	Leverage      float64 `json:"leverage,omitempty"`
}

// PortfolioSnapshot is one point-in-time view of the whole portfolio.
// Equity and positions are reconciled upstream and treated as given truths.
type PortfolioSnapshot struct {
	Timestamp  time.Time            `json:"timestamp"`
	Equity     float64              `json:"equity"`
	MarginUsed float64              `json:"margin_used"`
	Positions  []NormalizedPosition `json:"positions"`
}

// Clone returns a deep copy of the snapshot. Scenario simulation operates on
// copies so stored history is never touched.
func (s PortfolioSnapshot) Clone() PortfolioSnapshot {
	out := s
	out.Positions = make([]NormalizedPosition, len(s.Positions))
	copy(out.Positions, s.Positions)
	return out
}

// MarketTick is a normalized price observation for one instrument.
type MarketTick struct {
	Timestamp   time.Time `json:"timestamp"`
	Venue       Venue     `json:"venue"`
	Instrument  string    `json:"instrument"`
	Price       float64   `json:"price"`
	FundingRate *float64  `json:"funding_rate,omitempty"`
}

// ExposureMetrics captures gross/net exposure and concentration for one
// snapshot.
type ExposureMetrics struct {
	GrossExposure float64            `json:"gross_exposure"`
	NetExposure   float64            `json:"net_exposure"`
	HHI           float64            `json:"hhi"` // [0,1], 0 only for empty portfolio
	Weights       map[string]float64 `json:"per_instrument_weight"`
}

// RiskMetrics captures drawdown and VaR state for one cycle. Var95 is nil
// when the rolling window holds too few return observations.
type RiskMetrics struct {
	PeakEquity      float64  `json:"peak_equity"`
	CurrentDrawdown float64  `json:"current_drawdown"`
	MaxDrawdown     float64  `json:"max_drawdown"`
	Var95           *float64 `json:"var_95_1d"`
}

// AttributionResult decomposes the equity change between two consecutive
// snapshots. sum(PerAsset) + Unexplained equals the equity delta exactly.
type AttributionResult struct {
	FromTimestamp time.Time          `json:"from_timestamp"`
	ToTimestamp   time.Time          `json:"to_timestamp"`
	PerAsset      map[string]float64 `json:"per_asset"`
	Unexplained   float64            `json:"unexplained"`
	EquityDelta   float64            `json:"equity_delta"`
}

// ScenarioSpec maps instruments to price multipliers (1.0 = unshocked).
// Immutable input, never persisted as portfolio truth.
type ScenarioSpec struct {
	Shocks map[string]float64 `json:"shocks"`
}

// ScenarioResult is the output of one what-if simulation. The synthetic
// snapshot is disposable and never written to the snapshot store.
// Simulation is deterministic: identical inputs produce identical results.
type ScenarioResult struct {
	BaseTime  time.Time         `json:"base_time"`
	Synthetic PortfolioSnapshot `json:"synthetic"`
	Exposure  ExposureMetrics   `json:"exposure"`
	Risk      RiskMetrics       `json:"risk"`
	Ignored   []string          `json:"ignored_instruments,omitempty"`
}

// AnalyticsSnapshot is the single published artifact of one analytics cycle.
// All metrics are derived from the same portfolio snapshot timestamp.
// Attribution is nil on the first cycle after startup.
type AnalyticsSnapshot struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Exposure    ExposureMetrics    `json:"exposure"`
	Risk        RiskMetrics        `json:"risk"`
	Attribution *AttributionResult `json:"attribution"`
}
