package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleReturns(t *testing.T) {
	tests := []struct {
		name     string
		equity   []float64
		expected []float64
	}{
		{
			name:     "basic series",
			equity:   []float64{100, 110, 99},
			expected: []float64{0.1, -0.1},
		},
		{
			name:     "too short",
			equity:   []float64{100},
			expected: nil,
		},
		{
			name:     "non-positive denominator skipped",
			equity:   []float64{100, 0, 50},
			expected: []float64{-1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SimpleReturns(tt.equity)
			require.Len(t, got, len(tt.expected))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], got[i], 1e-12)
			}
		})
	}
}

func TestParametricVaR(t *testing.T) {
	t.Run("insufficient observations returns nil", func(t *testing.T) {
		assert.Nil(t, ParametricVaR(100000, []float64{0.01}, Z95, 2))
	})

	t.Run("flat returns give zero VaR", func(t *testing.T) {
		v := ParametricVaR(100000, []float64{0.02, 0.02, 0.02}, Z95, 2)
		require.NotNil(t, v)
		// sigma = 0, mu > 0 -> max(0, -mu) = 0
		assert.Equal(t, 0.0, *v)
	})

	t.Run("volatile returns give positive VaR", func(t *testing.T) {
		v := ParametricVaR(100000, []float64{0.05, -0.05, 0.04, -0.04}, Z95, 2)
		require.NotNil(t, v)
		assert.Greater(t, *v, 0.0)
		assert.Less(t, *v, 100000.0)
	})
}

func TestCalculateDrawdown(t *testing.T) {
	t.Run("spec example", func(t *testing.T) {
		dd := CalculateDrawdown([]float64{100, 120, 90})
		assert.InDelta(t, 120.0, dd.PeakEquity, 1e-12)
		assert.InDelta(t, 0.25, dd.CurrentDrawdown, 1e-12)
		assert.InDelta(t, 0.25, dd.MaxDrawdown, 1e-12)
	})

	t.Run("recovery reduces current but not max", func(t *testing.T) {
		dd := CalculateDrawdown([]float64{100, 120, 90, 118})
		assert.InDelta(t, 0.25, dd.MaxDrawdown, 1e-12)
		assert.InDelta(t, (120.0-118.0)/120.0, dd.CurrentDrawdown, 1e-12)
	})

	t.Run("monotone rise has zero drawdown", func(t *testing.T) {
		dd := CalculateDrawdown([]float64{100, 110, 125})
		assert.Equal(t, 0.0, dd.MaxDrawdown)
		assert.Equal(t, 0.0, dd.CurrentDrawdown)
		assert.Equal(t, 125.0, dd.PeakEquity)
	})

	t.Run("empty curve", func(t *testing.T) {
		assert.Equal(t, DrawdownMetrics{}, CalculateDrawdown(nil))
	})
}
