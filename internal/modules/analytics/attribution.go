package analytics

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/domain"
)

// AttributionCalculator decomposes the equity change between two
// consecutive snapshots into per-instrument contributions. Pure: no state.
//
// Positions can open, close, or change size between snapshots, so a naive
// price-move-times-size sweep cannot account for the full equity delta.
// The residual (funding, fees, deposits, withdrawals, intra-interval flow
// effects) is solved as an exact remainder, never estimated independently:
//
//	sum(perAsset) + unexplained == to.equity - from.equity
type AttributionCalculator struct {
	log zerolog.Logger
}

// NewAttributionCalculator creates a new attribution calculator
func NewAttributionCalculator(log zerolog.Logger) *AttributionCalculator {
	return &AttributionCalculator{
		log: log.With().Str("component", "attribution").Logger(),
	}
}

// Compute decomposes the from→to equity delta. The ordering of the two
// snapshots is enforced, not assumed.
func (c *AttributionCalculator) Compute(from, to domain.PortfolioSnapshot) (domain.AttributionResult, error) {
	if !to.Timestamp.After(from.Timestamp) {
		return domain.AttributionResult{}, fmt.Errorf("attribution requires from < to, got %s >= %s",
			from.Timestamp.Format("2006-01-02T15:04:05Z07:00"), to.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	}
	if err := validatePositions(from.Positions); err != nil {
		return domain.AttributionResult{}, err
	}
	if err := validatePositions(to.Positions); err != nil {
		return domain.AttributionResult{}, err
	}

	fromByKey := indexPositions(from.Positions)
	toByKey := indexPositions(to.Positions)

	result := domain.AttributionResult{
		FromTimestamp: from.Timestamp,
		ToTimestamp:   to.Timestamp,
		PerAsset:      make(map[string]float64),
		EquityDelta:   to.Equity - from.Equity,
	}

	for key, fromPos := range fromByKey {
		if toPos, ok := toByKey[key]; ok {
			// Present in both: price effect using the earlier size.
			// Intra-interval size changes land in unexplained by design
			// of the conservation law below.
			move := toPos.MarkPrice - fromPos.MarkPrice
			result.PerAsset[key] += fromPos.Size * move * fromPos.Side.Sign()
		} else {
			// Closed during the interval: the position's unrealized PnL
			// left the book; attribute its disappearance.
			result.PerAsset[key] += -fromPos.UnrealizedPnl
		}
	}

	for key, toPos := range toByKey {
		if _, ok := fromByKey[key]; !ok {
			// Opened during the interval: attribute whatever PnL it has
			// accumulated since opening.
			result.PerAsset[key] += toPos.UnrealizedPnl
		}
	}

	explained := 0.0
	for _, contribution := range result.PerAsset {
		explained += contribution
	}
	result.Unexplained = result.EquityDelta - explained

	return result, nil
}

// indexPositions keys positions by instrument, merging venues. Sizes and
// PnL are summed; the mark price is shared across venues for one
// instrument, so the last one wins.
func indexPositions(positions []domain.NormalizedPosition) map[string]domain.NormalizedPosition {
	out := make(map[string]domain.NormalizedPosition, len(positions))
	for _, pos := range positions {
		if existing, ok := out[pos.Instrument]; ok {
			existing.Size += pos.Size * pos.Side.Sign() * existing.Side.Sign()
			existing.UnrealizedPnl += pos.UnrealizedPnl
			existing.MarkPrice = pos.MarkPrice
			out[pos.Instrument] = existing
			continue
		}
		out[pos.Instrument] = pos
	}
	return out
}
