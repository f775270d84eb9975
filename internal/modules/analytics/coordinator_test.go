package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristomenis/vigil/internal/config"
	"github.com/aristomenis/vigil/internal/domain"
)

// memStore is an in-memory SnapshotStore for coordinator tests.
type memStore struct {
	snapshots []domain.PortfolioSnapshot
	err       error
}

func (s *memStore) Latest(_ context.Context) (*domain.PortfolioSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.snapshots) == 0 {
		return nil, nil
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap, nil
}

func (s *memStore) Before(_ context.Context, ts time.Time) (*domain.PortfolioSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].Timestamp.Before(ts) {
			snap := s.snapshots[i]
			return &snap, nil
		}
	}
	return nil, nil
}

func (s *memStore) Save(_ context.Context, snapshot domain.PortfolioSnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

type capturingPublisher struct {
	published []domain.AnalyticsSnapshot
}

func (p *capturingPublisher) Publish(snapshot domain.AnalyticsSnapshot) {
	p.published = append(p.published, snapshot)
}

func newCoordinator(store domain.SnapshotStore, publisher domain.Publisher) *Coordinator {
	log := zerolog.Nop()
	return NewCoordinator(
		store,
		NewExposureCalculator(config.AggregateByInstrument, log),
		NewRiskCalculator(100, 2, log),
		NewAttributionCalculator(log),
		publisher,
		log,
	)
}

func TestCoordinator_FirstCycleOmitsAttribution(t *testing.T) {
	store := &memStore{}
	publisher := &capturingPublisher{}
	coord := newCoordinator(store, publisher)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshotAt(time.Now(), 100000,
		position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, 50000),
	)))

	result, err := coord.RunCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Nil(t, result.Attribution)
	assert.NotEmpty(t, result.ID)
	assert.Nil(t, result.Risk.Var95) // one observation, VaR degraded
	assert.InDelta(t, 50000, result.Exposure.GrossExposure, 1e-9)
	require.Len(t, publisher.published, 1)
}

func TestCoordinator_SecondCycleComputesAttribution(t *testing.T) {
	store := &memStore{}
	publisher := &capturingPublisher{}
	coord := newCoordinator(store, publisher)
	ctx := context.Background()
	t0 := time.Now()

	require.NoError(t, store.Save(ctx, snapshotAt(t0, 100000,
		position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, 50000),
	)))
	_, err := coord.RunCycle(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, snapshotAt(t0.Add(time.Minute), 101000,
		position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, 51000),
	)))
	result, err := coord.RunCycle(ctx)
	require.NoError(t, err)

	require.NotNil(t, result.Attribution)
	assert.InDelta(t, 1000, result.Attribution.PerAsset["BTC/USDT"], 1e-9)
	assert.Equal(t, result.Timestamp, result.Attribution.ToTimestamp)
	// Exposure, risk and attribution all derive from the same snapshot.
	assert.Equal(t, t0.Add(time.Minute).Unix(), result.Timestamp.Unix())
}

func TestCoordinator_DataGaps(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		coord := newCoordinator(&memStore{}, nil)
		_, err := coord.RunCycle(ctx)
		var gap *DataGapError
		require.ErrorAs(t, err, &gap)
		assert.Nil(t, coord.LastPublished())
	})

	t.Run("store failure", func(t *testing.T) {
		coord := newCoordinator(&memStore{err: errors.New("disk on fire")}, nil)
		_, err := coord.RunCycle(ctx)
		var gap *DataGapError
		require.ErrorAs(t, err, &gap)
	})

	t.Run("stale snapshot keeps last published", func(t *testing.T) {
		store := &memStore{}
		coord := newCoordinator(store, nil)

		require.NoError(t, store.Save(ctx, snapshotAt(time.Now(), 100000)))
		first, err := coord.RunCycle(ctx)
		require.NoError(t, err)

		// No new snapshot arrived; cycle skipped, last value retained.
		_, err = coord.RunCycle(ctx)
		var gap *DataGapError
		require.ErrorAs(t, err, &gap)
		assert.Equal(t, first, coord.LastPublished())
	})
}

func TestCoordinator_MalformedSnapshotSuppressesCycle(t *testing.T) {
	store := &memStore{}
	coord := newCoordinator(store, nil)
	ctx := context.Background()

	bad := position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, 50000)
	bad.Notional = math.Inf(1)
	require.NoError(t, store.Save(ctx, snapshotAt(time.Now(), 100000, bad)))

	_, err := coord.RunCycle(ctx)
	var malformed *MalformedSnapshotError
	require.ErrorAs(t, err, &malformed)
	assert.Nil(t, coord.LastPublished())
	assert.True(t, coord.LastSuccess().IsZero())
}

func TestCoordinator_FailedCycleLeavesRiskWindowClean(t *testing.T) {
	store := &memStore{}
	publisher := &capturingPublisher{}
	log := zerolog.Nop()
	riskCalc := NewRiskCalculator(100, 2, log)
	coord := NewCoordinator(
		store,
		NewExposureCalculator(config.AggregateByInstrument, log),
		riskCalc,
		NewAttributionCalculator(log),
		publisher,
		log,
	)
	ctx := context.Background()

	// The preceding snapshot is malformed, the latest one is valid.
	// Attribution over the pair fails, so the cycle fails on every tick
	// until a new snapshot supersedes the pair.
	now := time.Now()
	bad := position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, math.NaN())
	require.NoError(t, store.Save(ctx, snapshotAt(now, 100000, bad)))
	require.NoError(t, store.Save(ctx, snapshotAt(now.Add(time.Minute), 101000,
		position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, 50000),
	)))

	for i := 0; i < 3; i++ {
		_, err := coord.RunCycle(ctx)
		var malformed *MalformedSnapshotError
		require.ErrorAs(t, err, &malformed)
	}

	// Failed cycles record nothing: no duplicated observations, no publish.
	assert.Equal(t, 0, riskCalc.WindowLen())
	assert.Empty(t, publisher.published)
	assert.Nil(t, coord.LastPublished())

	// Once a valid pair exists the pipeline recovers with a clean window.
	require.NoError(t, store.Save(ctx, snapshotAt(now.Add(2*time.Minute), 102000,
		position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 1, 51000),
	)))

	result, err := coord.RunCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Attribution)
	assert.Equal(t, []float64{102000}, riskCalc.Snapshot())
}
