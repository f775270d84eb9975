package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observeSeries(t *testing.T, calc *RiskCalculator, equities ...float64) {
	t.Helper()
	base := time.Now()
	for i, e := range equities {
		_, _ = calc.Observe(base.Add(time.Duration(i)*time.Minute), e)
	}
}

func TestRiskCalculator_Drawdown(t *testing.T) {
	t.Run("peak 120 drawdown quarter", func(t *testing.T) {
		calc := NewRiskCalculator(100, 2, zerolog.Nop())
		base := time.Now()

		_, err := calc.Observe(base, 100)
		var insufficient *InsufficientHistoryError
		require.ErrorAs(t, err, &insufficient)

		_, err = calc.Observe(base.Add(time.Minute), 120)
		require.ErrorAs(t, err, &insufficient)

		m, err := calc.Observe(base.Add(2*time.Minute), 90)
		require.NoError(t, err)

		assert.InDelta(t, 120, m.PeakEquity, 1e-12)
		assert.InDelta(t, 0.25, m.CurrentDrawdown, 1e-12)
		assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-12)
		require.NotNil(t, m.Var95)
	})

	t.Run("max at least current, both non-negative", func(t *testing.T) {
		calc := NewRiskCalculator(100, 2, zerolog.Nop())
		observeSeries(t, calc, 100, 80, 110, 95, 130, 90)

		m, err := calc.Observe(time.Now().Add(time.Hour), 125)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m.MaxDrawdown, m.CurrentDrawdown)
		assert.GreaterOrEqual(t, m.CurrentDrawdown, 0.0)
	})

	t.Run("peak never decreases on rising equity", func(t *testing.T) {
		calc := NewRiskCalculator(100, 2, zerolog.Nop())
		base := time.Now()
		prevPeak := 0.0
		for i, e := range []float64{100, 105, 111, 120, 128} {
			m, _ := calc.Observe(base.Add(time.Duration(i)*time.Minute), e)
			assert.GreaterOrEqual(t, m.PeakEquity, prevPeak)
			assert.Equal(t, 0.0, m.CurrentDrawdown)
			prevPeak = m.PeakEquity
		}
		assert.Equal(t, 128.0, prevPeak)
	})

	t.Run("window eviction decays max drawdown", func(t *testing.T) {
		calc := NewRiskCalculator(3, 2, zerolog.Nop())
		// The 100->50 crash falls out of the 3-observation window.
		observeSeries(t, calc, 100, 50, 98, 99, 100)

		m, err := calc.Observe(time.Now().Add(time.Hour), 101)
		require.NoError(t, err)
		// Windowed curve no longer contains the crash; only the
		// process-lifetime peak survives, and equity is above it.
		assert.Less(t, m.MaxDrawdown, 0.5)
		assert.Equal(t, 3, calc.WindowLen())
	})
}

func TestRiskCalculator_VaR(t *testing.T) {
	t.Run("insufficient history degrades to nil", func(t *testing.T) {
		calc := NewRiskCalculator(100, 5, zerolog.Nop())
		observeSeries(t, calc, 100, 101, 102)

		m, err := calc.Observe(time.Now().Add(time.Hour), 103)
		var insufficient *InsufficientHistoryError
		require.ErrorAs(t, err, &insufficient)
		assert.Nil(t, m.Var95)
		// Drawdown fields still populated.
		assert.Equal(t, 103.0, m.PeakEquity)
	})

	t.Run("non-positive equity excluded from returns", func(t *testing.T) {
		calc := NewRiskCalculator(100, 2, zerolog.Nop())
		// The 0 -> 100 transition has a non-positive denominator and
		// must be dropped rather than produce an undefined ratio.
		observeSeries(t, calc, 100, 0, 100)

		m, err := calc.Observe(time.Now().Add(time.Hour), 101)
		require.NoError(t, err)
		require.NotNil(t, m.Var95)
		assert.GreaterOrEqual(t, *m.Var95, 0.0)
	})

	t.Run("volatile series yields positive VaR", func(t *testing.T) {
		calc := NewRiskCalculator(100, 2, zerolog.Nop())
		observeSeries(t, calc, 100000, 104000, 99000, 103000, 97000)

		m, err := calc.Observe(time.Now().Add(time.Hour), 100000)
		require.NoError(t, err)
		require.NotNil(t, m.Var95)
		assert.Greater(t, *m.Var95, 0.0)
	})
}

func TestRiskCalculator_Preview(t *testing.T) {
	calc := NewRiskCalculator(100, 2, zerolog.Nop())
	observeSeries(t, calc, 100, 120, 110)

	before := calc.Snapshot()

	// Preview against the existing peak, repeatedly.
	for i := 0; i < 5; i++ {
		m := calc.Preview(90)
		assert.InDelta(t, 0.25, m.CurrentDrawdown, 1e-12)
		assert.InDelta(t, 120, m.PeakEquity, 1e-12)
	}

	// Live rolling state is bit-identical after any number of previews.
	assert.Equal(t, before, calc.Snapshot())
	assert.Equal(t, 3, calc.WindowLen())
}

func TestRiskCalculator_RejectsNonFiniteEquity(t *testing.T) {
	calc := NewRiskCalculator(100, 2, zerolog.Nop())
	observeSeries(t, calc, 100, 120)

	for _, equity := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := calc.Observe(time.Now(), equity)
		var malformed *MalformedSnapshotError
		require.ErrorAs(t, err, &malformed, "equity=%v", equity)
		assert.Equal(t, "equity", malformed.Field)
	}

	// Nothing was recorded and the peak is intact.
	assert.Equal(t, []float64{100, 120}, calc.Snapshot())

	m, err := calc.Observe(time.Now(), 110)
	require.NoError(t, err)
	assert.Equal(t, 120.0, m.PeakEquity)
}

func TestRiskCalculator_Reset(t *testing.T) {
	calc := NewRiskCalculator(100, 2, zerolog.Nop())
	observeSeries(t, calc, 100, 120, 90)

	calc.Reset()
	assert.Equal(t, 0, calc.WindowLen())

	m, err := calc.Observe(time.Now(), 50)
	var insufficient *InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 50.0, m.PeakEquity)
	assert.Equal(t, 0.0, m.CurrentDrawdown)
}
