// Package telemetry exports Prometheus metrics for the error monitoring
// pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the pipeline. A nil *Metrics
// is valid; every method is a no-op on it so components can run without
// telemetry wired.
type Metrics struct {
	errorsIngested prometheus.Counter
	alertsFired    *prometheus.CounterVec
	sweepRuns      prometheus.Counter
	sweepFailures  prometheus.Counter
	patterns       prometheus.Gauge
	historyEntries prometheus.Gauge
}

// New creates and registers the pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		errorsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errwatch",
			Name:      "errors_ingested_total",
			Help:      "Raw error records ingested.",
		}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "errwatch",
			Name:      "alerts_fired_total",
			Help:      "Alerts fired, by rule.",
		}, []string{"rule"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errwatch",
			Name:      "sweep_runs_total",
			Help:      "Background sweep iterations completed.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errwatch",
			Name:      "sweep_failures_total",
			Help:      "Per-pattern evaluation failures during sweeps.",
		}),
		patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "errwatch",
			Name:      "patterns_tracked",
			Help:      "Distinct error patterns currently tracked.",
		}),
		historyEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "errwatch",
			Name:      "history_entries",
			Help:      "Entries retained in the global error history.",
		}),
	}
	reg.MustRegister(
		m.errorsIngested,
		m.alertsFired,
		m.sweepRuns,
		m.sweepFailures,
		m.patterns,
		m.historyEntries,
	)
	return m
}

// ErrorIngested counts one ingested error record.
func (m *Metrics) ErrorIngested() {
	if m == nil {
		return
	}
	m.errorsIngested.Inc()
}

// AlertFired counts one fired alert for the given rule.
func (m *Metrics) AlertFired(rule string) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(rule).Inc()
}

// SweepRun counts one completed sweep iteration.
func (m *Metrics) SweepRun() {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
}

// SweepFailure counts one per-pattern evaluation failure.
func (m *Metrics) SweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

// SetPatterns records the current number of tracked patterns.
func (m *Metrics) SetPatterns(n int) {
	if m == nil {
		return
	}
	m.patterns.Set(float64(n))
}

// SetHistoryEntries records the current history buffer size.
func (m *Metrics) SetHistoryEntries(n int) {
	if m == nil {
		return
	}
	m.historyEntries.Set(float64(n))
}
