package market

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristomenis/vigil/internal/database"
	"github.com/aristomenis/vigil/internal/domain"
)

func newTestTickRepo(t *testing.T) *TickRepository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewTickRepository(db, zerolog.Nop())
	require.NoError(t, repo.Init())
	return repo
}

func saveTick(t *testing.T, repo *TickRepository, instrument string, ts time.Time, price float64) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), domain.MarketTick{
		Timestamp:  ts,
		Venue:      domain.VenueBinance,
		Instrument: instrument,
		Price:      price,
	}))
}

func TestTickRepository_PriceAt(t *testing.T) {
	repo := newTestTickRepo(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	saveTick(t, repo, "BTC/USDT", t0, 50000)
	saveTick(t, repo, "BTC/USDT", t0.Add(10*time.Second), 50100)
	saveTick(t, repo, "BTC/USDT", t0.Add(20*time.Second), 50200)
	saveTick(t, repo, "ETH/USDT", t0.Add(15*time.Second), 2000)

	t.Run("latest at-or-before reference time", func(t *testing.T) {
		tick, err := repo.PriceAt(ctx, "BTC/USDT", t0.Add(15*time.Second))
		require.NoError(t, err)
		require.NotNil(t, tick)
		assert.Equal(t, 50100.0, tick.Price)
	})

	t.Run("exact timestamp included", func(t *testing.T) {
		tick, err := repo.PriceAt(ctx, "BTC/USDT", t0)
		require.NoError(t, err)
		require.NotNil(t, tick)
		assert.Equal(t, 50000.0, tick.Price)
	})

	t.Run("nothing before earliest tick", func(t *testing.T) {
		tick, err := repo.PriceAt(ctx, "BTC/USDT", t0.Add(-time.Second))
		require.NoError(t, err)
		assert.Nil(t, tick)
	})

	t.Run("unknown instrument", func(t *testing.T) {
		tick, err := repo.PriceAt(ctx, "SOL/USDT", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, tick)
	})
}

func TestTickRepository_RecentPrices(t *testing.T) {
	repo := newTestTickRepo(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	for i, price := range []float64{100, 101, 102, 103, 104} {
		saveTick(t, repo, "BTC/USDT", t0.Add(time.Duration(i)*time.Second), price)
	}

	prices, err := repo.RecentPrices(ctx, "BTC/USDT", 3)
	require.NoError(t, err)
	// Last 3 ticks, oldest first.
	assert.Equal(t, []float64{102, 103, 104}, prices)
}

func TestTickRepository_FundingRateRoundTrip(t *testing.T) {
	repo := newTestTickRepo(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	rate := 0.0001
	require.NoError(t, repo.Save(ctx, domain.MarketTick{
		Timestamp:   t0,
		Venue:       domain.VenueHyperliquid,
		Instrument:  "BTC/USDT",
		Price:       50000,
		FundingRate: &rate,
	}))

	tick, err := repo.PriceAt(ctx, "BTC/USDT", t0)
	require.NoError(t, err)
	require.NotNil(t, tick)
	require.NotNil(t, tick.FundingRate)
	assert.Equal(t, 0.0001, *tick.FundingRate)
}

func TestNormalizeBinanceSymbol(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"BTCUSDT", "BTC/USDT"},
		{"btcusdt", "BTC/USDT"},
		{"ETHBTC", "ETH/BTC"},
		{"SOLUSDC", "SOL/USDC"},
		{"USDT", "USDT"}, // bare quote asset passes through
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeBinanceSymbol(tt.in))
		})
	}
}

func TestVolatilityService_SuggestedShocks(t *testing.T) {
	repo := newTestTickRepo(t)
	svc := NewVolatilityService(repo, 100, zerolog.Nop())
	ctx := context.Background()
	t0 := time.Now().UTC()

	// Alternating moves give a clearly positive realized volatility.
	prices := []float64{100, 105, 99, 106, 98, 107, 100}
	for i, p := range prices {
		saveTick(t, repo, "BTC/USDT", t0.Add(time.Duration(i)*time.Second), p)
	}

	suggestions, err := svc.SuggestedShocks(ctx, []string{"BTC/USDT", "ETH/USDT"})
	require.NoError(t, err)
	// ETH has no history and is skipped.
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, "BTC/USDT", s.Instrument)
	assert.Greater(t, s.Volatility, 0.0)
	assert.Less(t, s.Down, 1.0)
	assert.Greater(t, s.Up, 1.0)
	assert.InDelta(t, 2.0, s.Down+s.Up, 1e-9)
}
