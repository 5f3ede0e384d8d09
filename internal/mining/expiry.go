package mining

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
)

// Resetter returns users with a lapsed accrual window to the baseline rate.
type Resetter struct {
	store       store.Store
	baseline    models.Rate
	log         zerolog.Logger
	now         func() time.Time
	concurrency int
}

func NewResetter(st store.Store, baseline models.Rate, log zerolog.Logger, now func() time.Time, concurrency int) *Resetter {
	if now == nil {
		now = time.Now
	}
	return &Resetter{
		store:       st,
		baseline:    baseline,
		log:         log.With().Str("component", "expiry_resetter").Logger(),
		now:         now,
		concurrency: concurrency,
	}
}

// ResetExpired sets the rate of every expired record to the baseline and
// clears its window. Accumulated rate bonuses are forfeited. A record whose
// window was renewed after the scan is skipped.
func (r *Resetter) ResetExpired(ctx context.Context) (Report, error) {
	now := r.now()
	report, err := sweep(ctx, r.store, r.log, r.concurrency,
		func(rec *models.UserRecord) bool {
			return rec.AccrualState(now) == models.Expired
		},
		func(ctx context.Context, rec *models.UserRecord) (bool, error) {
			err := r.store.Update(ctx, rec.ID,
				store.SetRate(r.baseline),
				store.ClearWindowExpiry(),
				store.IfWindowExpiredAt(now),
			)
			switch {
			case errors.Is(err, store.ErrPreconditionFailed):
				r.log.Debug().Str("user_id", rec.ID).Msg("Window renewed since scan, reset skipped")
				return false, nil
			case err != nil:
				return false, err
			}
			r.log.Info().
				Str("user_id", rec.ID).
				Str("previous_rate", rec.AccrualRate.String()).
				Msg("Accrual rate reset")
			return true, nil
		},
	)
	if err != nil {
		return report, fmt.Errorf("expiry reset: %w", err)
	}
	return report, nil
}
