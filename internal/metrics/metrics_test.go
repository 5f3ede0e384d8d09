package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"mining-bot/internal/mining"
	"mining-bot/internal/models"
	"mining-bot/internal/referral"
)

func TestObserveContact(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveContact(&referral.Result{Created: true}, nil)
	m.ObserveContact(&referral.Result{Created: true, Linked: true, Steps: []referral.Step{
		{Level: models.Level1, RecordID: "1"},
		{Level: models.Level2, RecordID: "2", Err: errors.New("down")},
	}}, nil)
	m.ObserveContact(&referral.Result{}, nil)
	m.ObserveContact(nil, errors.New("down"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.links.WithLabelValues("organic")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.links.WithLabelValues("linked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.links.WithLabelValues("returning")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.links.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.linkSteps.WithLabelValues("1", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.linkSteps.WithLabelValues("2", "error")))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveJob("accrual_tick", mining.Report{Updated: 1}, nil, time.Second)
		m.ObserveSkippedRun("accrual_tick")
		m.ObserveContact(&referral.Result{}, nil)
	})
}

func TestObserveJob(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveJob("expiry_reset", mining.Report{Updated: 4, Skipped: 1}, nil, time.Millisecond)
	m.ObserveSkippedRun("expiry_reset")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobRuns.WithLabelValues("expiry_reset", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobRuns.WithLabelValues("expiry_reset", "skipped")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.jobRecords.WithLabelValues("expiry_reset", "updated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobRecords.WithLabelValues("expiry_reset", "skipped")))
}
