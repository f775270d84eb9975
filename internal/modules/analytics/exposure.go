package analytics

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/config"
	"github.com/aristomenis/vigil/internal/domain"
)

// ExposureCalculator derives exposure and concentration metrics from a
// single portfolio snapshot. It is pure: no internal state, no side effects.
type ExposureCalculator struct {
	mode config.AggregationMode
	log  zerolog.Logger
}

// NewExposureCalculator creates a new exposure calculator
func NewExposureCalculator(mode config.AggregationMode, log zerolog.Logger) *ExposureCalculator {
	return &ExposureCalculator{
		mode: mode,
		log:  log.With().Str("component", "exposure").Logger(),
	}
}

// Compute calculates gross/net exposure, per-instrument weights and HHI for
// one snapshot. HHI is on a [0,1] scale: 1 means fully concentrated in one
// instrument, 0 only for the degenerate empty portfolio.
//
// Positions on the same instrument are summed across venues before
// weighting unless venue-level aggregation is configured.
func (c *ExposureCalculator) Compute(snapshot domain.PortfolioSnapshot) (domain.ExposureMetrics, error) {
	if err := validatePositions(snapshot.Positions); err != nil {
		return domain.ExposureMetrics{}, err
	}

	metrics := domain.ExposureMetrics{
		Weights: make(map[string]float64),
	}

	// Aggregate absolute notionals per group key.
	notionals := make(map[string]float64)
	for _, pos := range snapshot.Positions {
		notional := math.Abs(pos.Notional)
		metrics.GrossExposure += notional
		metrics.NetExposure += notional * pos.Side.Sign()
		notionals[c.groupKey(pos)] += notional
	}

	if metrics.GrossExposure == 0 {
		// Empty (or all-zero) portfolio: weights empty, HHI defined as 0.
		return metrics, nil
	}

	for key, notional := range notionals {
		weight := notional / metrics.GrossExposure
		metrics.Weights[key] = weight
		metrics.HHI += weight * weight
	}

	return metrics, nil
}

func (c *ExposureCalculator) groupKey(pos domain.NormalizedPosition) string {
	if c.mode == config.AggregateByInstrumentVenue {
		return pos.Instrument + "@" + string(pos.Venue)
	}
	return pos.Instrument
}

func validatePositions(positions []domain.NormalizedPosition) error {
	for _, pos := range positions {
		for _, check := range []struct {
			field string
			value float64
		}{
			{"size", pos.Size},
			{"mark_price", pos.MarkPrice},
			{"entry_price", pos.EntryPrice},
			{"notional", pos.Notional},
		} {
			if math.IsNaN(check.value) || math.IsInf(check.value, 0) {
				return &MalformedSnapshotError{
					Instrument: pos.Instrument,
					Field:      check.field,
					Value:      check.value,
				}
			}
		}
	}
	return nil
}
