package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristomenis/vigil/internal/config"
	"github.com/aristomenis/vigil/internal/domain"
)

func position(venue domain.Venue, instrument string, side domain.Side, size, mark float64) domain.NormalizedPosition {
	return domain.NormalizedPosition{
		Venue:         venue,
		Instrument:    instrument,
		Side:          side,
		Size:          size,
		EntryPrice:    mark,
		MarkPrice:     mark,
		Notional:      size * mark,
		UnrealizedPnl: 0,
	}
}

func snapshotAt(ts time.Time, equity float64, positions ...domain.NormalizedPosition) domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		Timestamp: ts,
		Equity:    equity,
		Positions: positions,
	}
}

func TestExposureCalculator_Compute(t *testing.T) {
	calc := NewExposureCalculator(config.AggregateByInstrument, zerolog.Nop())
	now := time.Now()

	t.Run("two equal positions same sign", func(t *testing.T) {
		snap := snapshotAt(now, 2000,
			position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.02, 50000), // notional 1000
			position(domain.VenueBinance, "ETH/USDT", domain.SideLong, 0.5, 2000),   // notional 1000
		)

		m, err := calc.Compute(snap)
		require.NoError(t, err)
		assert.InDelta(t, 2000, m.GrossExposure, 1e-9)
		assert.InDelta(t, 2000, m.NetExposure, 1e-9)
		assert.InDelta(t, 0.5, m.HHI, 1e-9)
		assert.InDelta(t, 0.5, m.Weights["BTC/USDT"], 1e-9)
		assert.InDelta(t, 0.5, m.Weights["ETH/USDT"], 1e-9)
	})

	t.Run("opposite sides net to zero", func(t *testing.T) {
		snap := snapshotAt(now, 2000,
			position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.02, 50000),
			position(domain.VenueOKX, "ETH/USDT", domain.SideShort, 0.5, 2000),
		)

		m, err := calc.Compute(snap)
		require.NoError(t, err)
		assert.InDelta(t, 2000, m.GrossExposure, 1e-9)
		assert.InDelta(t, 0, m.NetExposure, 1e-9)
	})

	t.Run("single instrument is fully concentrated", func(t *testing.T) {
		snap := snapshotAt(now, 1000,
			position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.02, 50000),
		)

		m, err := calc.Compute(snap)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, m.HHI, 1e-9)
	})

	t.Run("empty portfolio has zero HHI", func(t *testing.T) {
		m, err := calc.Compute(snapshotAt(now, 1000))
		require.NoError(t, err)
		assert.Equal(t, 0.0, m.HHI)
		assert.Equal(t, 0.0, m.GrossExposure)
		assert.Empty(t, m.Weights)
	})

	t.Run("same instrument across venues counted once", func(t *testing.T) {
		snap := snapshotAt(now, 2000,
			position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.01, 50000),
			position(domain.VenueHyperliquid, "BTC/USDT", domain.SideLong, 0.01, 50000),
		)

		m, err := calc.Compute(snap)
		require.NoError(t, err)
		assert.Len(t, m.Weights, 1)
		assert.InDelta(t, 1.0, m.HHI, 1e-9)
	})

	t.Run("HHI always within bounds", func(t *testing.T) {
		snap := snapshotAt(now, 10000,
			position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.02, 50000),
			position(domain.VenueBinance, "ETH/USDT", domain.SideShort, 1.5, 2000),
			position(domain.VenueOKX, "SOL/USDT", domain.SideLong, 20, 150),
			position(domain.VenueDelta, "DOGE/USDT", domain.SideShort, 10000, 0.12),
		)

		m, err := calc.Compute(snap)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m.HHI, 0.0)
		assert.LessOrEqual(t, m.HHI, 1.0)

		weightSum := 0.0
		for _, w := range m.Weights {
			weightSum += w
		}
		assert.InDelta(t, 1.0, weightSum, 1e-9)
	})

	t.Run("non-finite mark price rejected", func(t *testing.T) {
		bad := position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.02, 50000)
		bad.MarkPrice = math.NaN()
		_, err := calc.Compute(snapshotAt(now, 1000, bad))

		var malformed *MalformedSnapshotError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "BTC/USDT", malformed.Instrument)
		assert.Equal(t, "mark_price", malformed.Field)
	})

	t.Run("infinite size rejected", func(t *testing.T) {
		bad := position(domain.VenueBinance, "ETH/USDT", domain.SideShort, 1, 2000)
		bad.Size = math.Inf(1)
		_, err := calc.Compute(snapshotAt(now, 1000, bad))

		var malformed *MalformedSnapshotError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "size", malformed.Field)
	})
}

func TestExposureCalculator_VenueAggregation(t *testing.T) {
	calc := NewExposureCalculator(config.AggregateByInstrumentVenue, zerolog.Nop())
	snap := snapshotAt(time.Now(), 2000,
		position(domain.VenueBinance, "BTC/USDT", domain.SideLong, 0.01, 50000),
		position(domain.VenueHyperliquid, "BTC/USDT", domain.SideLong, 0.01, 50000),
	)

	m, err := calc.Compute(snap)
	require.NoError(t, err)
	assert.Len(t, m.Weights, 2)
	assert.InDelta(t, 0.5, m.HHI, 1e-9)
	assert.InDelta(t, 0.5, m.Weights["BTC/USDT@binance"], 1e-9)
}
