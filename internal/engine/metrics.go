package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricActionsTotal    = "engine_actions_total"
	MetricActionsDuration = "engine_action_duration_seconds"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeNoOp    = "noop"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Metrics contains Prometheus metrics for action dispatch.
// All operations are thread-safe.
type Metrics struct {
	actionsTotal    *prometheus.CounterVec
	actionsDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricActionsTotal,
				Help: "Total number of dispatched actions by action name and outcome",
			},
			[]string{"action", "outcome"},
		),
		actionsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricActionsDuration,
				Help:    "Histogram of action dispatch duration in seconds by action name",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"action"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.actionsTotal, m.actionsDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// observe records one dispatch. Nil receiver is a no-op so the engine works
// without metrics wired.
func (m *Metrics) observe(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, outcome).Inc()
	m.actionsDuration.WithLabelValues(action).Observe(seconds)
}
