package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	r, err := ParseRate("0.0000001157")
	require.NoError(t, err)
	assert.Equal(t, Rate(115_700), r)

	r, err = ParseRate("0.000000000174")
	require.NoError(t, err)
	assert.Equal(t, Rate(174), r)

	_, err = ParseRate("0.0000000000001")
	assert.Error(t, err, "13 fractional digits cannot be represented")

	_, err = ParseRate("-1")
	assert.Error(t, err)

	_, err = ParseRate("abc")
	assert.Error(t, err)
}

func TestParseCoins(t *testing.T) {
	c, err := ParseCoins("100")
	require.NoError(t, err)
	assert.Equal(t, Coins(100_000_000_000), c)
	assert.Equal(t, "100", c.String())

	c, err = ParseCoins(" 0.5 ")
	require.NoError(t, err)
	assert.Equal(t, Coins(500_000_000), c)

	_, err = ParseCoins("1e30")
	assert.Error(t, err)
}

func TestRatePerTick(t *testing.T) {
	assert.Equal(t, Coins(116), Rate(115_700).PerTick())
	assert.Equal(t, Coins(116), Rate(116_280).PerTick())
	assert.Equal(t, Coins(200), Rate(200_000).PerTick())
	assert.Equal(t, Coins(1), Rate(500).PerTick())
	assert.Equal(t, Coins(0), Rate(499).PerTick())
	assert.Equal(t, Coins(0), Rate(0).PerTick())
}

func TestAmountsMarshalAsDecimalStrings(t *testing.T) {
	out, err := json.Marshal(struct {
		Balance Coins `json:"balance"`
		Rate    Rate  `json:"rate"`
	}{Balance: 100_000_000_116, Rate: 116_280})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"100.000000116","rate":"0.00000011628"}`, string(out))

	var back Rate
	require.NoError(t, back.UnmarshalText([]byte("0.00000011628")))
	assert.Equal(t, Rate(116_280), back)
}

func TestAccrualState(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	u := NewUserRecord("1", DefaultRewards().BaselineRate)
	assert.Equal(t, NoWindow, u.AccrualState(now))
	assert.True(t, u.AccrualEligible(now))

	u.AccrualWindowExpiry = &future
	assert.Equal(t, ActiveWindow, u.AccrualState(now))
	assert.True(t, u.AccrualEligible(now))

	u.AccrualWindowExpiry = &past
	assert.Equal(t, Expired, u.AccrualState(now))
	assert.False(t, u.AccrualEligible(now))

	// expiry exactly at now has lapsed
	u.AccrualWindowExpiry = &now
	assert.Equal(t, Expired, u.AccrualState(now))

	u.AccrualWindowExpiry = nil
	u.AccrualRate = 0
	assert.False(t, u.AccrualEligible(now))
}

func TestValidate(t *testing.T) {
	self := "1"
	other := "2"

	assert.NoError(t, NewUserRecord("1", 1).Validate())
	assert.ErrorIs(t, (&UserRecord{}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&UserRecord{ID: "1", Balance: -1}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&UserRecord{ID: "1", ReferrerID: &self}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&UserRecord{ID: "1", ReferrerIDLevel2: &other}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&UserRecord{ID: "1", Referrals: []ReferralLink{{AncestorID: "1", DescendantID: "2", Level: 4}}}).Validate(), ErrMalformed)
}

func TestDescendants(t *testing.T) {
	u := &UserRecord{ID: "1", Referrals: []ReferralLink{
		{AncestorID: "1", DescendantID: "2", Level: Level1},
		{AncestorID: "1", DescendantID: "3", Level: Level2},
		{AncestorID: "1", DescendantID: "4", Level: Level1},
	}}
	assert.ElementsMatch(t, []string{"2", "4"}, u.Descendants(Level1))
	assert.Equal(t, []string{"3"}, u.Descendants(Level2))
	assert.Empty(t, u.Descendants(Level3))
	assert.True(t, u.HasDescendant("3"))
	assert.False(t, u.HasDescendant("9"))
}

func TestDefaultRewardsMatchDecimalConstants(t *testing.T) {
	r := DefaultRewards()
	assert.Equal(t, "0.0000001157", r.BaselineRate.String())
	assert.Equal(t, "0.00000000058", r.For(Level1).Rate.String())
	assert.Equal(t, "0.000000000232", r.For(Level2).Rate.String())
	assert.Equal(t, "0.000000000174", r.For(Level3).Rate.String())
	assert.Equal(t, "100", r.For(Level1).Balance.String())
	assert.Equal(t, "50", r.For(Level2).Balance.String())
	assert.Equal(t, "25", r.For(Level3).Balance.String())
	assert.True(t, r.For(Level1).ExtendsWindow)
	assert.False(t, r.For(Level2).ExtendsWindow)
	assert.Equal(t, LevelReward{}, r.For(Level(7)))
}
