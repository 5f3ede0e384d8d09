package store

import (
	"time"

	"gorm.io/gorm"

	"mining-bot/internal/models"
)

// Op is one field-level change applied by Store.Update.
type Op func(*update)

type condition struct {
	query string
	args  []any
}

type update struct {
	columns   map[string]any
	referrals []models.ReferralLink
	where     []condition
}

func newUpdate(ops []Op) *update {
	u := &update{columns: make(map[string]any)}
	for _, op := range ops {
		op(u)
	}
	return u
}

func (u *update) empty() bool {
	return len(u.columns) == 0 && len(u.referrals) == 0 && len(u.where) == 0
}

// IncrementBalance adds delta to the balance.
func IncrementBalance(delta models.Coins) Op {
	return func(u *update) {
		u.columns["balance"] = gorm.Expr("balance + ?", int64(delta))
	}
}

// IncrementRate adds delta to the accrual rate.
func IncrementRate(delta models.Rate) Op {
	return func(u *update) {
		u.columns["accrual_rate"] = gorm.Expr("accrual_rate + ?", int64(delta))
	}
}

// SetRate overwrites the accrual rate.
func SetRate(r models.Rate) Op {
	return func(u *update) {
		u.columns["accrual_rate"] = int64(r)
	}
}

// SetWindowExpiry sets the accrual window expiry.
func SetWindowExpiry(t time.Time) Op {
	return func(u *update) {
		u.columns["accrual_window_expiry"] = t.UTC()
	}
}

// ClearWindowExpiry removes the accrual window.
func ClearWindowExpiry() Op {
	return func(u *update) {
		u.columns["accrual_window_expiry"] = nil
	}
}

// SetDisplayName overwrites the display name.
func SetDisplayName(name string) Op {
	return func(u *update) {
		u.columns["display_name"] = name
	}
}

// SetAvatarURL overwrites the avatar url.
func SetAvatarURL(url string) Op {
	return func(u *update) {
		u.columns["avatar_url"] = url
	}
}

// SetAncestry records the three referrers of a record that has none yet.
// Empty level 2/3 ids are stored as absent. The update fails with
// ErrPreconditionFailed when the record already has a referrer.
func SetAncestry(level1, level2, level3 string) Op {
	return func(u *update) {
		u.columns["referrer_id"] = level1
		u.columns["referrer_id_level2"] = nullable(level2)
		u.columns["referrer_id_level3"] = nullable(level3)
		u.where = append(u.where, condition{query: "referrer_id IS NULL"})
	}
}

// AddReferral appends descendantID to the referral set of the given level.
// Appending an id already in the set is a no-op.
func AddReferral(level models.Level, descendantID string) Op {
	return func(u *update) {
		u.referrals = append(u.referrals, models.ReferralLink{
			DescendantID: descendantID,
			Level:        level,
		})
	}
}

// IfWindowExpiredAt guards the update on the accrual window having lapsed at t.
func IfWindowExpiredAt(t time.Time) Op {
	return func(u *update) {
		u.where = append(u.where, condition{
			query: "accrual_window_expiry IS NOT NULL AND accrual_window_expiry <= ?",
			args:  []any{t.UTC()},
		})
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
