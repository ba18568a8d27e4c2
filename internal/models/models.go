// Package models provides domain models for the backtesting engine.
package models

import (
	"fmt"
	"time"
)

// OptionType represents the type of an option contract.
type OptionType string

const (
	OptionTypeCall OptionType = "CE"
	OptionTypePut  OptionType = "PE"
)

// Action represents the side a leg is opened with.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// IsLong returns true for a bought leg.
func (a Action) IsLong() bool {
	return a == ActionBuy
}

// Role identifies a leg inside a position.
type Role string

const (
	RoleCall        Role = "CE"
	RolePut         Role = "PE"
	RoleCurrentWeek Role = "CURRENT_WEEK" // Bought leg of a calendar spread
	RoleNextWeek    Role = "NEXT_WEEK"    // Sold leg of a calendar spread
	RoleSpread      Role = "CALENDAR"     // Net result of a calendar spread
)

// Bar represents one minute of option or index prices.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	OI        int64
}

// SeriesKey identifies one option price series.
type SeriesKey struct {
	Script     string
	Strike     int
	OptionType OptionType
	Expiry     time.Time
}

// Symbol returns the display symbol, e.g. "NIFTY 17400 CE".
func (k SeriesKey) Symbol() string {
	return fmt.Sprintf("%s %d %s", k.Script, k.Strike, k.OptionType)
}

// Holiday represents an exchange holiday.
type Holiday struct {
	Date time.Time
}
