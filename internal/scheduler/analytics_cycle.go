package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/events"
	"github.com/aristomenis/vigil/internal/modules/analytics"
)

// AnalyticsCycleJob runs one analytics cycle per tick of its schedule.
// Data gaps and malformed input skip the cycle without surfacing as job
// failures; the coordinator already accounts for them.
type AnalyticsCycleJob struct {
	coordinator *analytics.Coordinator
	eventBus    *events.Manager
	log         zerolog.Logger
}

// NewAnalyticsCycleJob creates the periodic analytics cycle job
func NewAnalyticsCycleJob(coordinator *analytics.Coordinator, eventBus *events.Manager, log zerolog.Logger) *AnalyticsCycleJob {
	return &AnalyticsCycleJob{
		coordinator: coordinator,
		eventBus:    eventBus,
		log:         log.With().Str("job", "analytics_cycle").Logger(),
	}
}

// Name returns the job name
func (j *AnalyticsCycleJob) Name() string { return "analytics_cycle" }

// Run executes one analytics cycle.
func (j *AnalyticsCycleJob) Run(ctx context.Context) error {
	result, err := j.coordinator.RunCycle(ctx)
	if err != nil {
		var gap *analytics.DataGapError
		if errors.As(err, &gap) {
			j.eventBus.Emit(events.CycleSkipped, "analytics", map[string]interface{}{
				"reason": gap.Reason,
			})
			return nil
		}
		j.eventBus.EmitError("analytics", err, nil)
		return nil
	}

	j.eventBus.Emit(events.CycleComplete, "analytics", map[string]interface{}{
		"snapshot_id": result.ID,
		"timestamp":   result.Timestamp,
	})
	return nil
}

// HistoryPruneJob bounds on-disk history: analytics snapshots and market
// ticks older than the retention horizon are deleted.
type HistoryPruneJob struct {
	analyticsRepo Pruner
	tickRepo      Pruner
	retention     time.Duration
	log           zerolog.Logger
}

// Pruner deletes rows older than a retention horizon.
type Pruner interface {
	Prune(retention time.Duration) (int64, error)
}

// NewHistoryPruneJob creates the retention job
func NewHistoryPruneJob(analyticsRepo, tickRepo Pruner, retention time.Duration, log zerolog.Logger) *HistoryPruneJob {
	return &HistoryPruneJob{
		analyticsRepo: analyticsRepo,
		tickRepo:      tickRepo,
		retention:     retention,
		log:           log.With().Str("job", "history_prune").Logger(),
	}
}

// Name returns the job name
func (j *HistoryPruneJob) Name() string { return "history_prune" }

// Run prunes stale history from both stores.
func (j *HistoryPruneJob) Run(_ context.Context) error {
	analyticsDeleted, err := j.analyticsRepo.Prune(j.retention)
	if err != nil {
		return err
	}
	ticksDeleted, err := j.tickRepo.Prune(j.retention)
	if err != nil {
		return err
	}
	if analyticsDeleted+ticksDeleted > 0 {
		j.log.Info().
			Int64("analytics", analyticsDeleted).
			Int64("ticks", ticksDeleted).
			Msg("Pruned stale history")
	}
	return nil
}
