// Package mining advances balances on every accrual tick and resets lapsed
// accrual windows once a day.
package mining

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
)

// DefaultConcurrency caps in-flight record updates during a scan.
const DefaultConcurrency = 16

// Report summarizes one pass over the user collection.
type Report struct {
	Scanned   int
	Updated   int
	Malformed int
	Failed    int
	// Skipped counts records that stopped qualifying between scan and update.
	Skipped int
}

// apply is the per-record update of a pass. It returns false when the record
// turned out not to need the change.
type apply func(ctx context.Context, rec *models.UserRecord) (bool, error)

// sweep scans st and runs fn for every record selected by want, with at most
// limit updates in flight. A scan error stops feeding new work but in-flight
// updates are always awaited.
func sweep(ctx context.Context, st store.Store, log zerolog.Logger, limit int, want func(*models.UserRecord) bool, fn apply) (Report, error) {
	var (
		report                   Report
		updated, failed, skipped atomic.Int64
		scanErr                  error
		g                        errgroup.Group
	)
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g.SetLimit(limit)

	for rec, err := range st.Scan(ctx) {
		if err != nil {
			if errors.Is(err, store.ErrMalformedRecord) {
				report.Malformed++
				log.Warn().Err(err).Msg("Skipping malformed record")
				continue
			}
			scanErr = err
			break
		}
		report.Scanned++
		if !want(rec) {
			continue
		}
		g.Go(func() error {
			changed, err := fn(ctx, rec)
			switch {
			case err != nil:
				failed.Add(1)
				log.Error().Err(err).Str("user_id", rec.ID).Msg("Record update failed")
			case changed:
				updated.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Updated = int(updated.Load())
	report.Failed = int(failed.Load())
	report.Skipped = int(skipped.Load())
	return report, scanErr
}
