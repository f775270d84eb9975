// Package metrics provides Prometheus instrumentation for the analytics
// service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesCompleted counts successfully published analytics cycles.
	CyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_cycles_completed_total",
		Help: "Total analytics cycles that published a snapshot",
	})

	// CyclesSkipped counts cycles skipped due to data gaps or overlap.
	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_cycles_skipped_total",
		Help: "Analytics cycles skipped (data gap or overlapping run)",
	})

	// CyclesFailed counts cycles whose output was suppressed by bad input.
	CyclesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_cycles_failed_total",
		Help: "Analytics cycles that failed with suppressed output",
	})

	// CycleDuration tracks analytics cycle duration.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vigil_cycle_duration_seconds",
		Help:    "Analytics cycle duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})

	// LastCycleSuccess records the unix time of the last successful cycle.
	// Stale values indicate a stuck pipeline.
	LastCycleSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_last_cycle_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful analytics cycle",
	})

	// ScenarioRequests counts scenario simulations by outcome.
	ScenarioRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_scenario_requests_total",
		Help: "Scenario simulation requests",
	}, []string{"outcome"})

	// TicksIngested counts market ticks persisted per venue.
	TicksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_ticks_ingested_total",
		Help: "Market ticks ingested",
	}, []string{"venue"})

	// FeedReconnects counts websocket feed reconnections per venue.
	FeedReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_feed_reconnects_total",
		Help: "Market data feed reconnections",
	}, []string{"venue"})
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
