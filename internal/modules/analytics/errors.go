// Package analytics implements the portfolio analytics core: exposure,
// rolling-window risk, PnL attribution, and what-if scenario simulation.
package analytics

import "fmt"

// MalformedSnapshotError reports a snapshot with non-finite data, either on
// a position field or on the snapshot itself. The affected cycle's output
// is suppressed; the error surfaces to the caller and the driver carries on.
type MalformedSnapshotError struct {
	Instrument string // empty for snapshot-level fields like equity
	Field      string
	Value      float64
}

func (e *MalformedSnapshotError) Error() string {
	if e.Instrument == "" {
		return fmt.Sprintf("malformed snapshot: non-finite %s (%v)", e.Field, e.Value)
	}
	return fmt.Sprintf("malformed snapshot: position %s has non-finite %s (%v)", e.Instrument, e.Field, e.Value)
}

// InsufficientHistoryError reports that the rolling window holds too few
// return observations for VaR. Non-fatal: the cycle proceeds with a nil
// VaR field.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for VaR: have %d return observations, need %d", e.Have, e.Need)
}

// DataGapError reports that a cycle could not obtain the snapshots it needs.
// The cycle is skipped and the last published analytics snapshot remains
// current.
type DataGapError struct {
	Reason string
}

func (e *DataGapError) Error() string {
	return "data gap: " + e.Reason
}

// InvalidShockError reports a rejected scenario request. Live state is
// unaffected.
type InvalidShockError struct {
	Instrument string
	Multiplier float64
}

func (e *InvalidShockError) Error() string {
	return fmt.Sprintf("invalid shock for %s: multiplier %v must be positive and finite", e.Instrument, e.Multiplier)
}
