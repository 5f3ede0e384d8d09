package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformed marks a stored record whose fields break the record invariants.
var ErrMalformed = errors.New("malformed user record")

// UserRecord is one participant of the mining game, keyed by the Telegram chat id.
type UserRecord struct {
	ID                  string         `gorm:"column:id;primaryKey;size:64"`
	ReferrerID          *string        `gorm:"column:referrer_id;size:64;index"`
	ReferrerIDLevel2    *string        `gorm:"column:referrer_id_level2;size:64;index"`
	ReferrerIDLevel3    *string        `gorm:"column:referrer_id_level3;size:64;index"`
	Balance             Coins          `gorm:"column:balance;not null;default:0"`
	AccrualRate         Rate           `gorm:"column:accrual_rate;not null;default:0"`
	AccrualWindowExpiry *time.Time     `gorm:"column:accrual_window_expiry;index"`
	DisplayName         string         `gorm:"column:display_name;size:255"`
	AvatarURL           string         `gorm:"column:avatar_url;size:1024"`
	Referrals           []ReferralLink `gorm:"foreignKey:AncestorID;references:ID"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewUserRecord returns an organic record accruing at the baseline rate.
func NewUserRecord(id string, baseline Rate) *UserRecord {
	return &UserRecord{
		ID:          id,
		AccrualRate: baseline,
	}
}

// AccrualState is the position of a record in the accrual window state machine.
type AccrualState int

const (
	// NoWindow accrues perpetually at the current rate.
	NoWindow AccrualState = iota
	// ActiveWindow accrues until the window expiry.
	ActiveWindow
	// Expired no longer accrues; the rate waits for the daily reset.
	Expired
)

func (s AccrualState) String() string {
	switch s {
	case NoWindow:
		return "no_window"
	case ActiveWindow:
		return "active_window"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("AccrualState(%d)", int(s))
	}
}

// AccrualState reports the window state of u at now.
func (u *UserRecord) AccrualState(now time.Time) AccrualState {
	switch {
	case u.AccrualWindowExpiry == nil:
		return NoWindow
	case u.AccrualWindowExpiry.After(now):
		return ActiveWindow
	default:
		return Expired
	}
}

// AccrualEligible reports whether an accrual tick at now should advance u.
func (u *UserRecord) AccrualEligible(now time.Time) bool {
	return u.AccrualRate > 0 && u.AccrualState(now) != Expired
}

// Descendants returns the ids recruited at the given level.
func (u *UserRecord) Descendants(level Level) []string {
	var ids []string
	for _, link := range u.Referrals {
		if link.Level == level {
			ids = append(ids, link.DescendantID)
		}
	}
	return ids
}

// HasDescendant reports whether id appears in any of u's referral sets.
func (u *UserRecord) HasDescendant(id string) bool {
	for _, link := range u.Referrals {
		if link.DescendantID == id {
			return true
		}
	}
	return false
}

// Ancestors returns the stored ancestry, nearest first, skipping unset levels.
func (u *UserRecord) Ancestors() []string {
	var ids []string
	for _, p := range []*string{u.ReferrerID, u.ReferrerIDLevel2, u.ReferrerIDLevel3} {
		if p != nil && *p != "" {
			ids = append(ids, *p)
		}
	}
	return ids
}

// Validate checks the invariants a stored record must satisfy.
func (u *UserRecord) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformed)
	}
	if u.Balance < 0 {
		return fmt.Errorf("%w: %s: negative balance", ErrMalformed, u.ID)
	}
	if u.AccrualRate < 0 {
		return fmt.Errorf("%w: %s: negative accrual rate", ErrMalformed, u.ID)
	}
	for _, a := range u.Ancestors() {
		if a == u.ID {
			return fmt.Errorf("%w: %s: refers to itself", ErrMalformed, u.ID)
		}
	}
	if u.ReferrerID == nil && (u.ReferrerIDLevel2 != nil || u.ReferrerIDLevel3 != nil) {
		return fmt.Errorf("%w: %s: ancestry without direct referrer", ErrMalformed, u.ID)
	}
	for _, link := range u.Referrals {
		if !link.Level.Valid() {
			return fmt.Errorf("%w: %s: referral level %d", ErrMalformed, u.ID, link.Level)
		}
	}
	return nil
}
