package models

import "time"

// LevelReward is the one-time bonus an ancestor receives when a recruit joins.
type LevelReward struct {
	Balance Coins
	Rate    Rate
	// ExtendsWindow renews the ancestor's accrual window to now + Rewards.Window.
	ExtendsWindow bool
}

// Rewards holds the game constants shared by the linker and the jobs.
type Rewards struct {
	BaselineRate Rate
	Window       time.Duration
	Level1       LevelReward
	Level2       LevelReward
	Level3       LevelReward
}

// DefaultRewards returns the stock game constants.
func DefaultRewards() Rewards {
	return Rewards{
		BaselineRate: 115_700,
		Window:       30 * 24 * time.Hour,
		Level1:       LevelReward{Balance: 100_000_000_000, Rate: 580, ExtendsWindow: true},
		Level2:       LevelReward{Balance: 50_000_000_000, Rate: 232},
		Level3:       LevelReward{Balance: 25_000_000_000, Rate: 174},
	}
}

// For returns the reward paid to the ancestor at level l.
func (r Rewards) For(l Level) LevelReward {
	switch l {
	case Level1:
		return r.Level1
	case Level2:
		return r.Level2
	case Level3:
		return r.Level3
	default:
		return LevelReward{}
	}
}
