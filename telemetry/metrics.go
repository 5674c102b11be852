package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors the optimizer drivers report
// to. Unlike the teacher's metrics.go (package-level vars registered in
// init()), this is an explicit, injectable value: a caller that never
// constructs one never registers anything with the default registry, so
// importing optimize/* has no metrics side effect.
type Metrics struct {
	GridCombinations  prometheus.Counter
	WFOPeriods        prometheus.Counter
	MCSimulations     prometheus.Counter
	GridDuration      prometheus.Histogram
	WFODuration       prometheus.Histogram
	MCDuration        prometheus.Histogram
}

// NewMetrics builds a fresh Metrics bundle and registers it with reg.
// Passing a prometheus.NewRegistry() keeps it isolated from the global
// default registry, which matters for tests that construct more than
// one Metrics in the same process.
func NewMetrics(reg prometheus.Registerer) Metrics {
	m := Metrics{
		GridCombinations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratester_grid_combinations_total",
			Help: "Total grid parameter combinations evaluated.",
		}),
		WFOPeriods: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratester_wfo_periods_total",
			Help: "Total walk-forward periods evaluated.",
		}),
		MCSimulations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratester_mc_simulations_total",
			Help: "Total Monte Carlo draws evaluated.",
		}),
		GridDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "stratester_grid_run_duration_seconds",
			Help: "Duration of a complete grid optimizer run.",
		}),
		WFODuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "stratester_wfo_run_duration_seconds",
			Help: "Duration of a complete walk-forward optimizer run.",
		}),
		MCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "stratester_mc_run_duration_seconds",
			Help: "Duration of a complete Monte Carlo run.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.GridCombinations, m.WFOPeriods, m.MCSimulations, m.GridDuration, m.WFODuration, m.MCDuration)
	}
	return m
}
