package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mining-bot/internal/metrics"
)

// Job is a unit of periodic work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler runs jobs on cron schedules. Overlapping runs of one job are
// skipped in-process by the cron chain and across processes by the Locker.
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	metrics *metrics.Metrics
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler whose schedules take a leading seconds field.
func New(locker Locker, m *metrics.Metrics, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		locker:  locker,
		metrics: m,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	s.cancel()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under schedule, e.g. "@every 1s" or "0 0 0 * * *".
// lockTTL bounds how long a stuck run can block the next one.
func (s *Scheduler) AddJob(schedule string, job Job, lockTTL time.Duration) error {
	_, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(s.ctx, job, lockTTL)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job, lockTTL time.Duration) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(s.ctx, job, lockTTL)
}

func (s *Scheduler) run(ctx context.Context, job Job, lockTTL time.Duration) error {
	log := s.log.With().Str("job", job.Name()).Str("run_id", uuid.NewString()).Logger()

	release, err := s.locker.Acquire(ctx, job.Name(), lockTTL)
	if errors.Is(err, ErrLocked) {
		s.metrics.ObserveSkippedRun(job.Name())
		log.Warn().Msg("Job skipped, previous run still holds the lock")
		return err
	}
	if err != nil {
		log.Error().Err(err).Msg("Job skipped, lock not acquired")
		return err
	}
	defer release()

	log.Debug().Msg("Running job")
	if err := job.Run(log.WithContext(ctx)); err != nil {
		log.Error().Err(err).Msg("Job failed")
		return err
	}
	log.Debug().Msg("Job completed")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
