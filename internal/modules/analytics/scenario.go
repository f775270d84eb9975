package analytics

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/domain"
)

// ScenarioEngine answers hypothetical "what if prices moved" questions
// against a base snapshot. It operates on value-semantics copies: no call
// ever touches stored history or the live risk calculator's rolling window.
type ScenarioEngine struct {
	exposure *ExposureCalculator
	risk     *RiskCalculator
	log      zerolog.Logger
}

// NewScenarioEngine creates a new scenario engine. The risk calculator is
// the live instance; the engine only reads its state through Preview.
func NewScenarioEngine(exposure *ExposureCalculator, risk *RiskCalculator, log zerolog.Logger) *ScenarioEngine {
	return &ScenarioEngine{
		exposure: exposure,
		risk:     risk,
		log:      log.With().Str("component", "scenario").Logger(),
	}
}

// Simulate applies the shock map to a copy of the base snapshot and
// re-derives exposure and risk metrics on the synthetic result.
//
// Multipliers must be positive and finite; 1.0 means unshocked. Shocked
// instruments absent from the base snapshot are ignored with a warning
// since they carry zero exposure.
func (e *ScenarioEngine) Simulate(base domain.PortfolioSnapshot, spec domain.ScenarioSpec) (domain.ScenarioResult, error) {
	for instrument, multiplier := range spec.Shocks {
		if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
			return domain.ScenarioResult{}, &InvalidShockError{Instrument: instrument, Multiplier: multiplier}
		}
	}
	if err := validatePositions(base.Positions); err != nil {
		return domain.ScenarioResult{}, err
	}

	synthetic := base.Clone()
	held := make(map[string]bool, len(base.Positions))
	deltaUnrealized := 0.0

	for i := range synthetic.Positions {
		pos := &synthetic.Positions[i]
		held[pos.Instrument] = true

		multiplier, shocked := spec.Shocks[pos.Instrument]
		if !shocked || multiplier == 1 {
			continue
		}

		pos.MarkPrice = pos.MarkPrice * multiplier
		pos.Notional = pos.Size * pos.MarkPrice

		newPnl := (pos.MarkPrice - pos.EntryPrice) * pos.Size * pos.Side.Sign()
		deltaUnrealized += newPnl - pos.UnrealizedPnl
		pos.UnrealizedPnl = newPnl
	}

	synthetic.Equity = base.Equity + deltaUnrealized

	var ignored []string
	for instrument := range spec.Shocks {
		if !held[instrument] {
			ignored = append(ignored, instrument)
			e.log.Warn().Str("instrument", instrument).Msg("Shock references instrument with no position, ignoring")
		}
	}
	// Map iteration order would otherwise leak into the result.
	sort.Strings(ignored)

	// The synthetic snapshot goes through the same exposure algorithm as a
	// live one; no special-casing.
	exposure, err := e.exposure.Compute(synthetic)
	if err != nil {
		return domain.ScenarioResult{}, err
	}

	risk := e.risk.Preview(synthetic.Equity)

	return domain.ScenarioResult{
		BaseTime:  base.Timestamp,
		Synthetic: synthetic,
		Exposure:  exposure,
		Risk:      risk,
		Ignored:   ignored,
	}, nil
}
