package formulas

// DrawdownMetrics represents drawdown analysis over an equity curve
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Largest peak-to-trough loss (0.25 = 25%)
	CurrentDrawdown float64 `json:"current_drawdown"` // Drawdown from peak at the last observation
	PeakEquity      float64 `json:"peak_equity"`      // High-water mark within the curve
}

// CalculateDrawdown walks an equity curve and returns the running peak,
// the drawdown at the final observation, and the largest drawdown seen.
//
// Drawdown formula:
//
//	drawdown = (peak - equity) / peak
//
// Non-positive peaks contribute zero drawdown.
func CalculateDrawdown(equity []float64) DrawdownMetrics {
	if len(equity) == 0 {
		return DrawdownMetrics{}
	}

	peak := equity[0]
	maxDD := 0.0
	currentDD := 0.0

	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak
			currentDD = dd
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return DrawdownMetrics{
		MaxDrawdown:     maxDD,
		CurrentDrawdown: currentDD,
		PeakEquity:      peak,
	}
}
