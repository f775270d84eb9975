package analytics

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/domain"
	"github.com/aristomenis/vigil/pkg/formulas"
)

// equityPoint is one rolling-window observation.
type equityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// RiskCalculator maintains a bounded rolling window of equity observations
// and derives drawdown and parametric VaR from it. It is the only
// calculator with cross-cycle mutable state; Observe is serialized with a
// mutex so overlapping cycles cannot interleave window updates.
//
// Max drawdown is recomputed over the retained window each cycle rather
// than kept as a permanent record: once the observations that produced a
// deep drawdown are evicted, the reported max decays with them. This keeps
// memory bounded and the metric's meaning well-defined.
type RiskCalculator struct {
	windowSize   int
	minReturnObs int

	mu         sync.RWMutex
	window     []equityPoint
	peakEquity float64

	log zerolog.Logger
}

// NewRiskCalculator creates a new risk calculator with an empty window.
func NewRiskCalculator(windowSize, minReturnObs int, log zerolog.Logger) *RiskCalculator {
	if windowSize < 2 {
		windowSize = 2
	}
	if minReturnObs < 2 {
		minReturnObs = 2
	}
	return &RiskCalculator{
		windowSize:   windowSize,
		minReturnObs: minReturnObs,
		window:       make([]equityPoint, 0, windowSize),
		log:          log.With().Str("component", "risk").Logger(),
	}
}

// Observe appends one (timestamp, equity) observation, evicts anything
// beyond the window size, and returns the derived risk metrics.
//
// A nil Var95 together with an *InsufficientHistoryError means the window
// holds too few return observations yet; the caller treats this as a
// degraded field, not a failed cycle.
//
// Non-finite equity is rejected before anything is recorded: a NaN or Inf
// observation would poison the peak and every VaR derived from the window.
func (c *RiskCalculator) Observe(ts time.Time, equity float64) (domain.RiskMetrics, error) {
	if math.IsNaN(equity) || math.IsInf(equity, 0) {
		return domain.RiskMetrics{}, &MalformedSnapshotError{Field: "equity", Value: equity}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, equityPoint{Timestamp: ts, Equity: equity})
	if len(c.window) > c.windowSize {
		c.window = c.window[len(c.window)-c.windowSize:]
	}

	if equity > c.peakEquity {
		c.peakEquity = equity
	}

	return c.metricsLocked(equity)
}

// metricsLocked derives metrics from the current window. Callers must hold
// at least a read lock.
func (c *RiskCalculator) metricsLocked(equity float64) (domain.RiskMetrics, error) {
	curve := make([]float64, len(c.window))
	for i, p := range c.window {
		curve[i] = p.Equity
	}

	dd := formulas.CalculateDrawdown(curve)

	// The process-lifetime peak can exceed the windowed peak once early
	// observations are evicted; drawdown is measured against the higher
	// of the two.
	peak := c.peakEquity
	currentDD := 0.0
	if peak > 0 && equity < peak {
		currentDD = (peak - equity) / peak
	}
	maxDD := dd.MaxDrawdown
	if currentDD > maxDD {
		maxDD = currentDD
	}

	metrics := domain.RiskMetrics{
		PeakEquity:      peak,
		CurrentDrawdown: currentDD,
		MaxDrawdown:     maxDD,
	}

	returns := formulas.SimpleReturns(curve)
	metrics.Var95 = formulas.ParametricVaR(equity, returns, formulas.Z95, c.minReturnObs)
	if metrics.Var95 == nil {
		return metrics, &InsufficientHistoryError{Have: len(returns), Need: c.minReturnObs}
	}

	return metrics, nil
}

// Preview derives metrics for a hypothetical equity value against the
// existing window and peak without recording an observation. The scenario
// engine asks "what if this equity happened now", not "replay history", so
// the hypothetical point never enters the return series. Live state is
// read-locked and never mutated.
func (c *RiskCalculator) Preview(equity float64) domain.RiskMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics, err := c.metricsLocked(equity)
	if err != nil {
		// Insufficient history degrades VaR to nil, same as a live cycle.
		c.log.Debug().Err(err).Msg("Scenario risk preview with degraded VaR")
	}
	return metrics
}

// Reset discards all rolling state. Restart behavior is an explicit
// contract: a fresh process starts with an empty window and zero peak.
func (c *RiskCalculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = c.window[:0]
	c.peakEquity = 0
}

// Snapshot returns a copy of the retained equity curve, oldest first.
func (c *RiskCalculator) Snapshot() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	curve := make([]float64, len(c.window))
	for i, p := range c.window {
		curve[i] = p.Equity
	}
	return curve
}

// WindowLen returns the number of retained observations.
func (c *RiskCalculator) WindowLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.window)
}
