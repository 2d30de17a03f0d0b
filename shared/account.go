package shared

import (
	"time"
)

// PositionState represents whether a position is open.
type PositionState int

const (
	Flat PositionState = iota
	Long
)

// String stringifies the provided position state.
func (s PositionState) String() string {
	switch s {
	case Flat:
		return "flat"
	case Long:
		return "long"
	default:
		return "unknown"
	}
}

// Position represents the single open (or absent) position of an account.
type Position struct {
	State      PositionState
	EntryPrice float64
	Amount     float64
}

// AccountState represents the balances and counters of a trading account.
type AccountState struct {
	Cash                float64
	Holdings            float64
	TradesToday         int
	SessionStartBalance float64
}

// Value returns the total account value at the provided price.
func (a *AccountState) Value(price float64) float64 {
	return a.Cash + a.Holdings*price
}

// Trade represents a committed position transition.
type Trade struct {
	ID         string
	OrderID    string
	Side       Side
	Price      float64
	Amount     float64
	Fee        float64
	Cash       float64
	Holdings   float64
	Reasons    string
	Recovery   bool
	PNLPercent float64
	Date       time.Time
}
