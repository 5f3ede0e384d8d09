// Package referral attaches new players to the referral tree and pays the
// signup bonuses to their ancestors.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
)

// maxAncestryDepth bounds the ancestor walk used to reject cycles.
const maxAncestryDepth = 64

// Contact is an inbound first-contact event from the chat front-end.
type Contact struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Step is the outcome of paying one ancestor.
type Step struct {
	Level    models.Level
	RecordID string
	Err      error
}

// Result describes what Attach did for one contact.
type Result struct {
	Record  *models.UserRecord
	Created bool
	// Linked is true when this call attached the user under a referrer.
	Linked bool
	Steps  []Step
}

// Failed returns the fan-out steps that did not apply.
func (r *Result) Failed() []Step {
	var failed []Step
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

type ancestry struct {
	level1, level2, level3 string
}

func (a ancestry) at(l models.Level) string {
	switch l {
	case models.Level1:
		return a.level1
	case models.Level2:
		return a.level2
	case models.Level3:
		return a.level3
	default:
		return ""
	}
}

type Linker struct {
	store   store.Store
	rewards models.Rewards
	log     zerolog.Logger
	now     func() time.Time
}

func NewLinker(st store.Store, rewards models.Rewards, log zerolog.Logger, now func() time.Time) *Linker {
	if now == nil {
		now = time.Now
	}
	return &Linker{
		store:   st,
		rewards: rewards,
		log:     log.With().Str("component", "referral_linker").Logger(),
		now:     now,
	}
}

// Attach records a contact from c.UserID, linking it under referrerID when
// that is possible. An error is returned only when the user's own record could
// not be read or written; ancestor bonus failures are reported in Result.Steps.
func (l *Linker) Attach(ctx context.Context, c Contact, referrerID string) (*Result, error) {
	rec, err := l.store.Get(ctx, c.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return l.create(ctx, c, referrerID)
	case err != nil:
		return nil, fmt.Errorf("load user %s: %w", c.UserID, err)
	}
	return l.refresh(ctx, rec, c, referrerID)
}

func (l *Linker) create(ctx context.Context, c Contact, referrerID string) (*Result, error) {
	anc, ok, err := l.resolve(ctx, c.UserID, referrerID, false)
	if err != nil {
		return nil, err
	}

	rec := models.NewUserRecord(c.UserID, l.rewards.BaselineRate)
	rec.DisplayName = c.DisplayName
	rec.AvatarURL = c.AvatarURL
	if ok {
		rec.ReferrerID = optional(anc.level1)
		rec.ReferrerIDLevel2 = optional(anc.level2)
		rec.ReferrerIDLevel3 = optional(anc.level3)
	}

	if err := l.store.Set(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// a concurrent contact from the same user created it first
			existing, gerr := l.store.Get(ctx, c.UserID)
			if gerr != nil {
				return nil, fmt.Errorf("reload user %s: %w", c.UserID, gerr)
			}
			return l.refresh(ctx, existing, c, referrerID)
		}
		return nil, fmt.Errorf("create user %s: %w", c.UserID, err)
	}

	res := &Result{Record: rec, Created: true}
	if ok {
		res.Linked = true
		res.Steps = l.distribute(ctx, c.UserID, anc)
	}
	l.log.Info().
		Str("user_id", c.UserID).
		Str("referrer_id", anc.level1).
		Bool("linked", res.Linked).
		Msg("User created")
	return res, nil
}

func (l *Linker) refresh(ctx context.Context, rec *models.UserRecord, c Contact, referrerID string) (*Result, error) {
	res := &Result{Record: rec}

	switch {
	case referrerID == "":
	case rec.ReferrerID != nil:
		if *rec.ReferrerID != referrerID {
			l.log.Debug().
				Str("user_id", rec.ID).
				Str("referrer_id", *rec.ReferrerID).
				Str("ignored_referrer_id", referrerID).
				Msg("User already linked, referrer ignored")
		}
	default:
		anc, ok, err := l.resolve(ctx, rec.ID, referrerID, true)
		if err != nil {
			return nil, err
		}
		if ok {
			err := l.store.Update(ctx, rec.ID, store.SetAncestry(anc.level1, anc.level2, anc.level3))
			switch {
			case errors.Is(err, store.ErrPreconditionFailed):
				l.log.Debug().Str("user_id", rec.ID).Msg("User linked concurrently, referrer ignored")
			case err != nil:
				return nil, fmt.Errorf("link user %s: %w", rec.ID, err)
			default:
				rec.ReferrerID = optional(anc.level1)
				rec.ReferrerIDLevel2 = optional(anc.level2)
				rec.ReferrerIDLevel3 = optional(anc.level3)
				res.Linked = true
				res.Steps = l.distribute(ctx, rec.ID, anc)
				l.log.Info().Str("user_id", rec.ID).Str("referrer_id", anc.level1).Msg("Existing user linked")
			}
		}
	}

	ops := []store.Op{store.SetDisplayName(c.DisplayName)}
	if c.AvatarURL != "" {
		ops = append(ops, store.SetAvatarURL(c.AvatarURL))
	}
	if err := l.store.Update(ctx, rec.ID, ops...); err != nil {
		l.log.Warn().Err(err).Str("user_id", rec.ID).Msg("Failed to refresh display fields")
	} else {
		rec.DisplayName = c.DisplayName
		if c.AvatarURL != "" {
			rec.AvatarURL = c.AvatarURL
		}
	}
	return res, nil
}

// resolve snapshots the ancestry a user gets when joining under referrerID.
// ok is false when the user stays organic. Only a failed read of the
// referrer is returned as an error.
func (l *Linker) resolve(ctx context.Context, userID, referrerID string, checkCycle bool) (ancestry, bool, error) {
	if referrerID == "" {
		return ancestry{}, false, nil
	}
	if referrerID == userID {
		l.log.Debug().Str("user_id", userID).Msg("Self referral ignored")
		return ancestry{}, false, nil
	}

	ref, err := l.store.Get(ctx, referrerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		l.log.Info().Str("user_id", userID).Str("referrer_id", referrerID).Msg("Unknown referrer, joining as organic")
		return ancestry{}, false, nil
	case errors.Is(err, store.ErrMalformedRecord):
		l.log.Warn().Err(err).Str("user_id", userID).Str("referrer_id", referrerID).Msg("Malformed referrer, joining as organic")
		return ancestry{}, false, nil
	case err != nil:
		return ancestry{}, false, fmt.Errorf("load referrer %s: %w", referrerID, err)
	}

	if checkCycle {
		cyclic, err := l.reaches(ctx, ref, userID)
		if err != nil {
			return ancestry{}, false, err
		}
		if cyclic {
			l.log.Warn().Str("user_id", userID).Str("referrer_id", referrerID).Msg("Referral would create a cycle, ignored")
			return ancestry{}, false, nil
		}
	}

	return ancestry{
		level1: ref.ID,
		level2: deref(ref.ReferrerID),
		level3: deref(ref.ReferrerIDLevel2),
	}, true, nil
}

// reaches reports whether userID is an ancestor of ref.
func (l *Linker) reaches(ctx context.Context, ref *models.UserRecord, userID string) (bool, error) {
	cur := ref
	for range maxAncestryDepth {
		if cur.ReferrerID == nil {
			return false, nil
		}
		next := *cur.ReferrerID
		if next == userID {
			return true, nil
		}
		var err error
		cur, err = l.store.Get(ctx, next)
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrMalformedRecord):
			return false, nil
		case err != nil:
			return false, fmt.Errorf("walk ancestry of %s: %w", ref.ID, err)
		}
	}
	// a chain this deep is treated as cyclic
	return true, nil
}

// distribute pays every known ancestor of newID, nearest first. Each level is
// an independent update; a failure never stops the remaining levels.
func (l *Linker) distribute(ctx context.Context, newID string, anc ancestry) []Step {
	var steps []Step
	for _, level := range models.Levels {
		id := anc.at(level)
		if id == "" {
			continue
		}
		step := Step{Level: level, RecordID: id}
		step.Err = l.store.Update(ctx, id, l.bonusOps(level, newID)...)
		if step.Err != nil {
			ev := l.log.Error()
			if errors.Is(step.Err, store.ErrNotFound) {
				ev = l.log.Info()
			}
			ev.Err(step.Err).
				Str("user_id", newID).
				Str("ancestor_id", id).
				Int("level", int(level)).
				Msg("Referral bonus not applied")
		}
		steps = append(steps, step)
	}
	return steps
}

func (l *Linker) bonusOps(level models.Level, newID string) []store.Op {
	reward := l.rewards.For(level)
	ops := []store.Op{
		store.IncrementBalance(reward.Balance),
		store.IncrementRate(reward.Rate),
		store.AddReferral(level, newID),
	}
	if reward.ExtendsWindow {
		ops = append(ops, store.SetWindowExpiry(l.now().Add(l.rewards.Window)))
	}
	return ops
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
