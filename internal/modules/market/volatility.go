package market

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/pkg/formulas"
)

// DefaultVolatilityLookback is the number of ticks used for realized
// volatility estimates.
const DefaultVolatilityLookback = 500

// ShockSuggestion is a volatility-derived scenario preset for one
// instrument: the multipliers corresponding to a z-scaled one-period move
// in either direction.
type ShockSuggestion struct {
	Instrument string  `json:"instrument"`
	Volatility float64 `json:"volatility"` // per-tick return stddev
	Down       float64 `json:"down"`       // e.g. 0.92
	Up         float64 `json:"up"`         // e.g. 1.08
}

// VolatilityService estimates realized volatility per instrument from the
// tick history and turns it into suggested scenario shocks.
type VolatilityService struct {
	ticks    *TickRepository
	lookback int
	log      zerolog.Logger
}

// NewVolatilityService creates a new volatility service
func NewVolatilityService(ticks *TickRepository, lookback int, log zerolog.Logger) *VolatilityService {
	if lookback <= 0 {
		lookback = DefaultVolatilityLookback
	}
	return &VolatilityService{
		ticks:    ticks,
		lookback: lookback,
		log:      log.With().Str("service", "volatility").Logger(),
	}
}

// RealizedVolatility returns the rolling standard deviation of tick-to-tick
// returns for the instrument, or nil when the history is too short.
func (s *VolatilityService) RealizedVolatility(ctx context.Context, instrument string) (*float64, error) {
	prices, err := s.ticks.RecentPrices(ctx, instrument, s.lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices for %s: %w", instrument, err)
	}
	if len(prices) < 3 {
		return nil, nil
	}

	returns := formulas.SimpleReturns(prices)
	if len(returns) < 2 {
		return nil, nil
	}

	period := len(returns)
	stddev := talib.StdDev(returns, period, 1)
	vol := stddev[len(stddev)-1]
	if math.IsNaN(vol) {
		return nil, nil
	}
	return &vol, nil
}

// SuggestedShocks builds scenario presets for the given instruments. An
// instrument without enough tick history is skipped.
func (s *VolatilityService) SuggestedShocks(ctx context.Context, instruments []string) ([]ShockSuggestion, error) {
	var out []ShockSuggestion
	for _, instrument := range instruments {
		vol, err := s.RealizedVolatility(ctx, instrument)
		if err != nil {
			return nil, err
		}
		if vol == nil {
			s.log.Debug().Str("instrument", instrument).Msg("Insufficient tick history for shock suggestion")
			continue
		}

		move := formulas.Z95 * *vol
		out = append(out, ShockSuggestion{
			Instrument: instrument,
			Volatility: *vol,
			Down:       math.Max(0.01, 1-move),
			Up:         1 + move,
		})
	}
	return out, nil
}
