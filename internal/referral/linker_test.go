package referral

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
	"mining-bot/internal/store/storetest"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestLinker(st store.Store) *Linker {
	return NewLinker(st, models.DefaultRewards(), zerolog.Nop(), func() time.Time { return testNow })
}

// join creates id under referrerID, failing the test on error.
func join(t *testing.T, l *Linker, id, referrerID string) *Result {
	t.Helper()
	res, err := l.Attach(context.Background(), Contact{UserID: id, DisplayName: "user " + id}, referrerID)
	require.NoError(t, err)
	return res
}

func TestAttachOrganicUser(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	res := join(t, l, "1", "")
	assert.True(t, res.Created)
	assert.False(t, res.Linked)
	assert.Empty(t, res.Steps)

	got := storetest.MustGet(t, st, "1")
	assert.Equal(t, "user 1", got.DisplayName)
	assert.Equal(t, models.DefaultRewards().BaselineRate, got.AccrualRate)
	assert.Equal(t, models.Coins(0), got.Balance)
	assert.Nil(t, got.ReferrerID)
	assert.Nil(t, got.AccrualWindowExpiry)
}

func TestAttachDirectReferral(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)
	rewards := models.DefaultRewards()

	join(t, l, "U1", "")
	res := join(t, l, "U2", "U1")

	assert.True(t, res.Created)
	assert.True(t, res.Linked)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, Step{Level: models.Level1, RecordID: "U1"}, res.Steps[0])
	assert.Empty(t, res.Failed())

	u1 := storetest.MustGet(t, st, "U1")
	assert.Equal(t, rewards.Level1.Balance, u1.Balance)
	assert.Equal(t, rewards.BaselineRate+rewards.Level1.Rate, u1.AccrualRate)
	assert.Equal(t, "0.00000011628", u1.AccrualRate.String())
	require.NotNil(t, u1.AccrualWindowExpiry)
	assert.True(t, u1.AccrualWindowExpiry.Equal(testNow.Add(30*24*time.Hour)))
	assert.Equal(t, []string{"U2"}, u1.Descendants(models.Level1))

	u2 := storetest.MustGet(t, st, "U2")
	require.NotNil(t, u2.ReferrerID)
	assert.Equal(t, "U1", *u2.ReferrerID)
	assert.Nil(t, u2.ReferrerIDLevel2)
	assert.Nil(t, u2.ReferrerIDLevel3)
}

func TestAttachThreeGenerations(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)
	rewards := models.DefaultRewards()

	join(t, l, "A", "")
	join(t, l, "B", "A")
	before := storetest.MustGet(t, st, "A")

	res := join(t, l, "C", "B")
	require.Len(t, res.Steps, 2)

	a := storetest.MustGet(t, st, "A")
	assert.Equal(t, []string{"C"}, a.Descendants(models.Level2))
	assert.Equal(t, before.AccrualRate+rewards.Level2.Rate, a.AccrualRate)
	assert.Equal(t, before.Balance+rewards.Level2.Balance, a.Balance)
	assert.Equal(t, "150", a.Balance.String())
	// level 2 bonuses never touch the window
	assert.True(t, a.AccrualWindowExpiry.Equal(*before.AccrualWindowExpiry))

	c := storetest.MustGet(t, st, "C")
	assert.Equal(t, "B", *c.ReferrerID)
	assert.Equal(t, "A", *c.ReferrerIDLevel2)
	assert.Nil(t, c.ReferrerIDLevel3)

	res = join(t, l, "D", "C")
	require.Len(t, res.Steps, 3)
	a = storetest.MustGet(t, st, "A")
	assert.Equal(t, []string{"D"}, a.Descendants(models.Level3))
	assert.Equal(t, "175", a.Balance.String())
	assert.Equal(t, rewards.BaselineRate+rewards.Level1.Rate+rewards.Level2.Rate+rewards.Level3.Rate, a.AccrualRate)

	d := storetest.MustGet(t, st, "D")
	assert.Equal(t, "C", *d.ReferrerID)
	assert.Equal(t, "B", *d.ReferrerIDLevel2)
	assert.Equal(t, "A", *d.ReferrerIDLevel3)
}

func TestAncestryIsASnapshot(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	join(t, l, "B", "")
	join(t, l, "C", "B")
	// B gets a referrer only after C joined
	join(t, l, "A", "")
	join(t, l, "B", "A")

	c := storetest.MustGet(t, st, "C")
	assert.Equal(t, "B", *c.ReferrerID)
	assert.Nil(t, c.ReferrerIDLevel2)
}

func TestReferrerIsImmutable(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	join(t, l, "1", "")
	join(t, l, "2", "")
	join(t, l, "3", "1")

	res := join(t, l, "3", "2")
	assert.False(t, res.Created)
	assert.False(t, res.Linked)
	assert.Empty(t, res.Steps)

	got := storetest.MustGet(t, st, "3")
	assert.Equal(t, "1", *got.ReferrerID)
	assert.Empty(t, storetest.MustGet(t, st, "2").Descendants(models.Level1))
	assert.Equal(t, models.Coins(0), storetest.MustGet(t, st, "2").Balance)
}

func TestRepeatedStartDoesNotDuplicate(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	join(t, l, "1", "")
	join(t, l, "2", "1")
	join(t, l, "2", "1")

	u1 := storetest.MustGet(t, st, "1")
	assert.Equal(t, []string{"2"}, u1.Descendants(models.Level1))
	assert.Equal(t, "100", u1.Balance.String())
}

func TestLateReferralLinksExistingUser(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)
	rewards := models.DefaultRewards()

	join(t, l, "A", "")
	join(t, l, "B", "A")
	join(t, l, "X", "")

	res, err := l.Attach(context.Background(), Contact{UserID: "X", DisplayName: "Renamed"}, "B")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Linked)
	require.Len(t, res.Steps, 2)

	x := storetest.MustGet(t, st, "X")
	assert.Equal(t, "B", *x.ReferrerID)
	assert.Equal(t, "A", *x.ReferrerIDLevel2)
	assert.Equal(t, "Renamed", x.DisplayName)

	b := storetest.MustGet(t, st, "B")
	assert.Equal(t, []string{"X"}, b.Descendants(models.Level1))
	assert.Equal(t, rewards.Level1.Balance, b.Balance)
	a := storetest.MustGet(t, st, "A")
	assert.Equal(t, []string{"X"}, a.Descendants(models.Level2))
}

func TestMissingReferrerJoinsAsOrganic(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	res := join(t, l, "1", "ghost")
	assert.True(t, res.Created)
	assert.False(t, res.Linked)

	got := storetest.MustGet(t, st, "1")
	assert.Nil(t, got.ReferrerID)
	assert.Nil(t, got.ReferrerIDLevel2)

	// an unknown referrer on a later contact is just as silent
	res = join(t, l, "1", "ghost")
	assert.False(t, res.Linked)
}

func TestSelfReferralIgnored(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	join(t, l, "1", "1")
	join(t, l, "1", "1")
	got := storetest.MustGet(t, st, "1")
	assert.Nil(t, got.ReferrerID)
	assert.Empty(t, got.Referrals)
}

func TestCycleRejected(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	join(t, l, "A", "")
	join(t, l, "B", "A")
	join(t, l, "C", "B")
	join(t, l, "D", "C")
	join(t, l, "E", "D")

	// A is organic and tries to join under its own level-4 descendant
	res := join(t, l, "A", "E")
	assert.False(t, res.Linked)
	assert.Nil(t, storetest.MustGet(t, st, "A").ReferrerID)
}

func TestFanOutFailureDoesNotBlockOtherLevels(t *testing.T) {
	inner := storetest.New(t)
	st := storetest.NewFaulty(inner)
	l := newTestLinker(st)
	rewards := models.DefaultRewards()

	join(t, l, "A", "")
	join(t, l, "B", "A")
	join(t, l, "C", "B")

	st.FailUpdate("B", fmt.Errorf("%w: connection reset", store.ErrUnavailable))
	res := join(t, l, "D", "C")

	require.Len(t, res.Steps, 3)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, models.Level2, failed[0].Level)
	assert.ErrorIs(t, failed[0].Err, store.ErrUnavailable)

	// level 1 and level 3 were still credited
	c := storetest.MustGet(t, inner, "C")
	assert.Equal(t, []string{"D"}, c.Descendants(models.Level1))
	a := storetest.MustGet(t, inner, "A")
	assert.Equal(t, []string{"D"}, a.Descendants(models.Level3))
	// B is silently under-credited
	b := storetest.MustGet(t, inner, "B")
	assert.Empty(t, b.Descendants(models.Level2))
	assert.Equal(t, rewards.Level1.Balance, b.Balance)

	d := storetest.MustGet(t, inner, "D")
	assert.Equal(t, "C", *d.ReferrerID)
}

func TestReferrerReadFailureAbandonsContact(t *testing.T) {
	st := storetest.NewFaulty(storetest.New(t))
	l := newTestLinker(st)

	join(t, l, "1", "")
	st.FailGet("1", fmt.Errorf("%w: timeout", store.ErrUnavailable))

	_, err := l.Attach(context.Background(), Contact{UserID: "2"}, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = st.Get(context.Background(), "2")
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing is persisted, the next contact retries")
}

func TestOwnRecordReadFailure(t *testing.T) {
	st := storetest.NewFaulty(storetest.New(t))
	l := newTestLinker(st)
	st.FailGet("1", errors.New("boom"))

	_, err := l.Attach(context.Background(), Contact{UserID: "1"}, "")
	assert.Error(t, err)
}

func TestDisplayRefreshFailureIsNotFatal(t *testing.T) {
	st := storetest.NewFaulty(storetest.New(t))
	l := newTestLinker(st)
	join(t, l, "1", "")

	st.FailUpdate("1", fmt.Errorf("%w: timeout", store.ErrUnavailable))
	res, err := l.Attach(context.Background(), Contact{UserID: "1", DisplayName: "New"}, "")
	require.NoError(t, err)
	assert.Equal(t, "user 1", res.Record.DisplayName)
}

func TestAvatarKeptWhenNotSupplied(t *testing.T) {
	st := storetest.New(t)
	l := newTestLinker(st)

	_, err := l.Attach(context.Background(), Contact{UserID: "1", AvatarURL: "https://cdn/a.jpg"}, "")
	require.NoError(t, err)
	_, err = l.Attach(context.Background(), Contact{UserID: "1", DisplayName: "Bob"}, "")
	require.NoError(t, err)

	got := storetest.MustGet(t, st, "1")
	assert.Equal(t, "https://cdn/a.jpg", got.AvatarURL)
	assert.Equal(t, "Bob", got.DisplayName)
}
