package models

import "time"

// EventType classifies a ledger row.
type EventType string

const (
	EventEntrySignal    EventType = "Entry Signal"
	EventSoftEntry      EventType = "Soft Entry"
	EventExitSignal     EventType = "Exit Signal"
	EventSLExit         EventType = "SL Exit"
	EventTakeProfitExit EventType = "Take Profit Exit"
	EventExpiryExit     EventType = "Expiry Exit"
	EventSoftExit       EventType = "Soft Exit"
)

// IsEntry returns true for entry events.
func (e EventType) IsEntry() bool {
	return e == EventEntrySignal || e == EventSoftEntry
}

// Skip reasons recorded on a fill whose leg was not traded.
const (
	NotePremiumCheck = "CE not traded due to premium check"
	NoteMissingData  = "Missing Data"
)

// Fill is one immutable row of the output ledger.
type Fill struct {
	Trade      int
	Script     string
	Role       Role
	Symbol     string
	Strike     int
	OptionType OptionType
	Expiry     time.Time
	Action     Action
	LotSize    int
	Time       time.Time
	Price      float64
	ProfitLoss float64
	Event      EventType
	Skipped    bool
	Note       string
}
