// Package metrics exposes Prometheus instruments for the jobs and the linker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mining-bot/internal/mining"
	"mining-bot/internal/referral"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	jobRuns     *prometheus.CounterVec
	jobRecords  *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	links       *prometheus.CounterVec
	linkSteps   *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_job_runs_total",
			Help: "Job passes by job and result.",
		}, []string{"job", "result"}),
		jobRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_job_records_total",
			Help: "Records handled by job passes, by outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mining_job_duration_seconds",
			Help:    "Duration of job passes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"job"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_contacts_total",
			Help: "Handled contacts by outcome.",
		}, []string{"outcome"}),
		linkSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_referral_bonus_steps_total",
			Help: "Referral bonus updates by level and result.",
		}, []string{"level", "result"}),
	}
	reg.MustRegister(m.jobRuns, m.jobRecords, m.jobDuration, m.links, m.linkSteps)
	return m
}

// ObserveJob records one job pass.
func (m *Metrics) ObserveJob(job string, report mining.Report, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
	m.jobRecords.WithLabelValues(job, "updated").Add(float64(report.Updated))
	m.jobRecords.WithLabelValues(job, "skipped").Add(float64(report.Skipped))
	m.jobRecords.WithLabelValues(job, "failed").Add(float64(report.Failed))
	m.jobRecords.WithLabelValues(job, "malformed").Add(float64(report.Malformed))
}

// ObserveSkippedRun records a pass that did not start because the job lock was held.
func (m *Metrics) ObserveSkippedRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, "skipped").Inc()
}

// ObserveContact records the outcome of one Linker call.
func (m *Metrics) ObserveContact(res *referral.Result, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.links.WithLabelValues("error").Inc()
		return
	case res.Linked:
		m.links.WithLabelValues("linked").Inc()
	case res.Created:
		m.links.WithLabelValues("organic").Inc()
	default:
		m.links.WithLabelValues("returning").Inc()
	}
	for _, step := range res.Steps {
		m.linkSteps.WithLabelValues(step.Level.String(), result(step.Err)).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// JobRuns exposes the job run counter for inspection.
func (m *Metrics) JobRuns() *prometheus.CounterVec {
	return m.jobRuns
}

// JobRecords exposes the per-record job counter for inspection.
func (m *Metrics) JobRecords() *prometheus.CounterVec {
	return m.jobRecords
}
