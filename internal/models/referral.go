package models

import (
	"strconv"
	"time"
)

// Level is the distance between a recruit and one of its ancestors.
type Level int

const (
	Level1 Level = iota + 1
	Level2
	Level3
)

// Levels lists the referral levels in fan-out order.
var Levels = []Level{Level1, Level2, Level3}

func (l Level) Valid() bool {
	return l >= Level1 && l <= Level3
}

// ReferralLink records that DescendantID joined under AncestorID at Level.
// The composite primary key makes each referral set append-unique.
type ReferralLink struct {
	AncestorID   string `gorm:"primaryKey;size:64"`
	DescendantID string `gorm:"primaryKey;size:64;index"`
	Level        Level  `gorm:"primaryKey"`
	CreatedAt    time.Time
}

func (l Level) String() string {
	return strconv.Itoa(int(l))
}
