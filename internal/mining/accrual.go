package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
)

// Engine applies accrual ticks.
type Engine struct {
	store       store.Store
	log         zerolog.Logger
	now         func() time.Time
	concurrency int
}

func NewEngine(st store.Store, log zerolog.Logger, now func() time.Time, concurrency int) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:       st,
		log:         log.With().Str("component", "accrual_engine").Logger(),
		now:         now,
		concurrency: concurrency,
	}
}

// Tick adds one tick of accrual to every eligible record. Eligibility is
// decided from the scanned snapshot: a positive rate and a window that is
// absent or still open. Ineligible records are left untouched.
func (e *Engine) Tick(ctx context.Context) (Report, error) {
	now := e.now()
	report, err := sweep(ctx, e.store, e.log, e.concurrency,
		func(rec *models.UserRecord) bool {
			return rec.AccrualEligible(now) && rec.AccrualRate.PerTick() > 0
		},
		func(ctx context.Context, rec *models.UserRecord) (bool, error) {
			if err := e.store.Update(ctx, rec.ID, store.IncrementBalance(rec.AccrualRate.PerTick())); err != nil {
				return false, err
			}
			return true, nil
		},
	)
	if err != nil {
		return report, fmt.Errorf("accrual tick: %w", err)
	}
	return report, nil
}
