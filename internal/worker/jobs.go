package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mining-bot/internal/metrics"
	"mining-bot/internal/mining"
)

// Ticker is satisfied by mining.Engine.
type Ticker interface {
	Tick(ctx context.Context) (mining.Report, error)
}

// ExpiryResetter is satisfied by mining.Resetter.
type ExpiryResetter interface {
	ResetExpired(ctx context.Context) (mining.Report, error)
}

// AccrualJob advances balances on every tick.
type AccrualJob struct {
	engine  Ticker
	metrics *metrics.Metrics
}

func NewAccrualJob(engine Ticker, m *metrics.Metrics) *AccrualJob {
	return &AccrualJob{engine: engine, metrics: m}
}

func (j *AccrualJob) Name() string {
	return "accrual_tick"
}

func (j *AccrualJob) Run(ctx context.Context) error {
	start := time.Now()
	report, err := j.engine.Tick(ctx)
	j.metrics.ObserveJob(j.Name(), report, err, time.Since(start))
	logReport(zerolog.Ctx(ctx), report, time.Since(start), zerolog.DebugLevel)
	return err
}

// ExpiryJob resets lapsed accrual windows, normally once a day.
type ExpiryJob struct {
	resetter ExpiryResetter
	metrics  *metrics.Metrics
}

func NewExpiryJob(resetter ExpiryResetter, m *metrics.Metrics) *ExpiryJob {
	return &ExpiryJob{resetter: resetter, metrics: m}
}

func (j *ExpiryJob) Name() string {
	return "expiry_reset"
}

func (j *ExpiryJob) Run(ctx context.Context) error {
	start := time.Now()
	report, err := j.resetter.ResetExpired(ctx)
	j.metrics.ObserveJob(j.Name(), report, err, time.Since(start))
	logReport(zerolog.Ctx(ctx), report, time.Since(start), zerolog.InfoLevel)
	return err
}

func logReport(log *zerolog.Logger, report mining.Report, took time.Duration, level zerolog.Level) {
	ev := log.WithLevel(level)
	if report.Failed > 0 || report.Malformed > 0 {
		ev = log.Warn()
	}
	ev.Int("scanned", report.Scanned).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("malformed", report.Malformed).
		Dur("took", took).
		Msg("Job pass finished")
}
