package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// CoinsScale is the number of fractional digits kept for balances.
	CoinsScale = 9
	// RateScale is the number of fractional digits kept for accrual rates.
	RateScale = 12

	rateToCoins = 1000 // 10^(RateScale-CoinsScale)
)

// Coins is a balance amount stored as an integer number of 1e-9 units.
type Coins int64

// Rate is a per-tick accrual rate stored as an integer number of 1e-12 units.
type Rate int64

// ParseCoins parses a decimal string such as "100" or "0.000000116".
func ParseCoins(s string) (Coins, error) {
	v, err := parseFixed(s, CoinsScale)
	if err != nil {
		return 0, fmt.Errorf("parse coins: %w", err)
	}
	return Coins(v), nil
}

// ParseRate parses a decimal string such as "0.0000001157".
func ParseRate(s string) (Rate, error) {
	v, err := parseFixed(s, RateScale)
	if err != nil {
		return 0, fmt.Errorf("parse rate: %w", err)
	}
	return Rate(v), nil
}

func parseFixed(s string, scale int32) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%q: negative amount", s)
	}
	scaled := d.Shift(scale)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%q: more than %d fractional digits", s, scale)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%q: out of range", s)
	}
	return scaled.IntPart(), nil
}

// Decimal returns the exact decimal value of c.
func (c Coins) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -CoinsScale)
}

func (c Coins) String() string {
	return c.Decimal().String()
}

func (c Coins) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Coins) UnmarshalText(text []byte) error {
	v, err := ParseCoins(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Decimal returns the exact decimal value of r.
func (r Rate) Decimal() decimal.Decimal {
	return decimal.New(int64(r), -RateScale)
}

func (r Rate) String() string {
	return r.Decimal().String()
}

func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rate) UnmarshalText(text []byte) error {
	v, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// PerTick is the balance increment one accrual tick applies: the rate
// rounded half-up to CoinsScale fractional digits.
func (r Rate) PerTick() Coins {
	if r <= 0 {
		return 0
	}
	return Coins((int64(r) + rateToCoins/2) / rateToCoins)
}
