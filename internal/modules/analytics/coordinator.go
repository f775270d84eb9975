package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/domain"
	"github.com/aristomenis/vigil/internal/metrics"
)

// Coordinator composes the calculators over one point-in-time view and
// publishes the resulting AnalyticsSnapshot. All three metric families are
// computed from the same snapshot timestamp; a cycle is all-or-nothing.
//
// Cycles are serialized with a mutex. If the periodic driver fires while a
// cycle is still running, the new cycle is skipped rather than interleaved,
// because the risk calculator's window must be mutated by one cycle at a
// time.
type Coordinator struct {
	snapshots   domain.SnapshotStore
	exposure    *ExposureCalculator
	risk        *RiskCalculator
	attribution *AttributionCalculator
	publisher   domain.Publisher

	cycleMu sync.Mutex
	running bool

	stateMu       sync.RWMutex
	lastProcessed time.Time
	lastPublished *domain.AnalyticsSnapshot
	lastSuccess   time.Time

	log zerolog.Logger
}

// NewCoordinator creates a new analytics coordinator
func NewCoordinator(
	snapshots domain.SnapshotStore,
	exposure *ExposureCalculator,
	risk *RiskCalculator,
	attribution *AttributionCalculator,
	publisher domain.Publisher,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		snapshots:   snapshots,
		exposure:    exposure,
		risk:        risk,
		attribution: attribution,
		publisher:   publisher,
		log:         log.With().Str("component", "coordinator").Logger(),
	}
}

// RunCycle executes one analytics cycle: pull the latest snapshot and its
// predecessor, compute all metrics, assemble and publish the result.
//
// A *DataGapError means the cycle was skipped and the previously published
// snapshot remains the last good value. Malformed input suppresses the
// cycle's output the same way. Nothing returned here is fatal to the driver.
func (c *Coordinator) RunCycle(ctx context.Context) (*domain.AnalyticsSnapshot, error) {
	if !c.tryBeginCycle() {
		metrics.CyclesSkipped.Inc()
		return nil, &DataGapError{Reason: "previous cycle still running"}
	}
	defer c.endCycle()

	started := time.Now()
	result, err := c.runCycleLocked(ctx)
	metrics.CycleDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		var gap *DataGapError
		if errors.As(err, &gap) {
			metrics.CyclesSkipped.Inc()
			c.log.Warn().Str("reason", gap.Reason).Msg("Analytics cycle skipped")
		} else {
			metrics.CyclesFailed.Inc()
			c.log.Error().Err(err).Msg("Analytics cycle failed")
		}
		return nil, err
	}

	metrics.CyclesCompleted.Inc()
	metrics.LastCycleSuccess.SetToCurrentTime()
	return result, nil
}

func (c *Coordinator) runCycleLocked(ctx context.Context) (*domain.AnalyticsSnapshot, error) {
	latest, err := c.snapshots.Latest(ctx)
	if err != nil {
		return nil, &DataGapError{Reason: "snapshot store unavailable: " + err.Error()}
	}
	if latest == nil {
		return nil, &DataGapError{Reason: "no portfolio snapshot available"}
	}

	c.stateMu.RLock()
	lastProcessed := c.lastProcessed
	c.stateMu.RUnlock()

	if !lastProcessed.IsZero() && !latest.Timestamp.After(lastProcessed) {
		return nil, &DataGapError{Reason: "no new snapshot since last cycle"}
	}

	exposure, err := c.exposure.Compute(*latest)
	if err != nil {
		return nil, err
	}

	// Attribution needs the preceding snapshot. On the first cycle after
	// startup it is omitted, never computed against a synthetic baseline.
	var attribution *domain.AttributionResult
	previous, err := c.snapshots.Before(ctx, latest.Timestamp)
	if err != nil {
		return nil, &DataGapError{Reason: "snapshot store unavailable: " + err.Error()}
	}
	if previous != nil {
		result, err := c.attribution.Compute(*previous, *latest)
		if err != nil {
			return nil, err
		}
		attribution = &result
	} else {
		c.log.Info().Time("snapshot", latest.Timestamp).Msg("No preceding snapshot, attribution omitted")
	}

	// The window mutation happens last, after every step that can fail the
	// cycle. A cycle that fails because the pair is malformed re-runs on the
	// next tick without having recorded anything.
	risk, riskErr := c.risk.Observe(latest.Timestamp, latest.Equity)
	if riskErr != nil {
		var insufficient *InsufficientHistoryError
		if !errors.As(riskErr, &insufficient) {
			return nil, riskErr
		}
		// Degraded, not fatal: VaR stays nil for this cycle.
		c.log.Debug().Err(riskErr).Msg("VaR degraded to null")
	}

	published := &domain.AnalyticsSnapshot{
		ID:          uuid.New().String(),
		Timestamp:   latest.Timestamp,
		Exposure:    exposure,
		Risk:        risk,
		Attribution: attribution,
	}

	c.stateMu.Lock()
	c.lastProcessed = latest.Timestamp
	c.lastPublished = published
	c.lastSuccess = time.Now()
	c.stateMu.Unlock()

	if c.publisher != nil {
		c.publisher.Publish(*published)
	}

	c.log.Info().
		Time("snapshot", latest.Timestamp).
		Float64("equity", latest.Equity).
		Float64("gross_exposure", exposure.GrossExposure).
		Float64("current_drawdown", risk.CurrentDrawdown).
		Bool("attribution", attribution != nil).
		Msg("Analytics cycle complete")

	return published, nil
}

// LastPublished returns the most recent successfully published snapshot,
// or nil when no cycle has succeeded yet.
func (c *Coordinator) LastPublished() *domain.AnalyticsSnapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastPublished
}

// LastSuccess returns the wall-clock time of the last successful cycle.
// Consumers compare it to the current time to detect a stuck pipeline.
func (c *Coordinator) LastSuccess() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastSuccess
}

func (c *Coordinator) tryBeginCycle() bool {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Coordinator) endCycle() {
	c.cycleMu.Lock()
	c.running = false
	c.cycleMu.Unlock()
}
