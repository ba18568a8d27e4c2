package models

import (
	"fmt"
	"strings"
	"time"
)

// SignalKind represents the kind of a trade signal.
type SignalKind string

const (
	SignalEntry      SignalKind = "ET"
	SignalExit       SignalKind = "EX"
	SignalEntryLong  SignalKind = "ETL"
	SignalExitLong   SignalKind = "EXL"
	SignalEntryShort SignalKind = "ETS"
	SignalExitShort  SignalKind = "EXS"
)

var signalAliases = map[string]SignalKind{
	"ET":          SignalEntry,
	"ENTRY":       SignalEntry,
	"EX":          SignalExit,
	"EXIT":        SignalExit,
	"ETL":         SignalEntryLong,
	"ENTRY_LONG":  SignalEntryLong,
	"EXL":         SignalExitLong,
	"EXIT_LONG":   SignalExitLong,
	"ETS":         SignalEntryShort,
	"ENTRY_SHORT": SignalEntryShort,
	"EXS":         SignalExitShort,
	"EXIT_SHORT":  SignalExitShort,
}

// ParseSignalKind parses a signal code or its long name.
func ParseSignalKind(s string) (SignalKind, error) {
	kind, ok := signalAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown signal kind %q", s)
	}
	return kind, nil
}

// IsEntry returns true for any entry kind.
func (k SignalKind) IsEntry() bool {
	return k == SignalEntry || k == SignalEntryLong || k == SignalEntryShort
}

// IsExit returns true for any exit kind.
func (k SignalKind) IsExit() bool {
	return k == SignalExit || k == SignalExitLong || k == SignalExitShort
}

// Signal is one row of the chronological signal stream.
type Signal struct {
	Timestamp time.Time
	Kind      SignalKind
	Price     float64
	Contracts int
}
