// Package formulas provides the statistical primitives used by the analytics
// calculators.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Z95 is the one-sided z-score for a 95% confidence level.
const Z95 = 1.645

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// SimpleReturns converts an equity curve to simple returns.
// Returns[i] = equity[i+1]/equity[i] - 1. Observations with a non-positive
// denominator are skipped rather than producing an undefined ratio.
func SimpleReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

// ParametricVaR computes a one-period parametric Value-at-Risk at the given
// z-score from a return series, expressed in the same units as equity.
// Returns nil when fewer than minObservations returns are available.
//
//	VaR = equity * max(0, z*sigma - mu)
func ParametricVaR(equity float64, returns []float64, z float64, minObservations int) *float64 {
	if minObservations < 2 {
		minObservations = 2
	}
	if len(returns) < minObservations {
		return nil
	}

	mu := Mean(returns)
	sigma := StdDev(returns)
	v := equity * math.Max(0, z*sigma-mu)
	return &v
}

// AnnualizedVolatility calculates annualized volatility from daily returns.
// Crypto trades continuously, so 365 periods per year.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(365)
}
