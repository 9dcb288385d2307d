// Package jobs runs periodic background scans: certificate expiry detection
// and ledger hash-chain verification. Jobs are read-only; state transitions
// always go through the action engine under a crew member's authority.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBackgroundJobsTotal    = "background_jobs_total"
	MetricBackgroundJobsDuration = "background_jobs_duration_seconds"
	MetricBackgroundJobErrors    = "background_job_errors_total"
)

// Job names used as metric labels.
const (
	JobCertificateExpiryScan = "certificate_expiry_scan"
	JobLedgerChainVerify     = "ledger_chain_verify"
)

// Run outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics tracks background job executions. Collectors are unregistered until
// Register is called.
type Metrics struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
}

// NewMetrics creates the job metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobsTotal,
				Help: "Total background job runs by job and status.",
			},
			[]string{"job", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBackgroundJobsDuration,
				Help:    "Background job run duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobErrors,
				Help: "Total background job errors by job.",
			},
			[]string{"job"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.jobsTotal, m.jobDuration, m.jobErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRun records one completed job run.
func (m *Metrics) ObserveRun(job string, err error, seconds float64) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		m.jobErrors.WithLabelValues(job).Inc()
	}
	m.jobsTotal.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}
