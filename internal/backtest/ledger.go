package backtest

import "options-backtester/internal/models"

// Ledger is the append-only list of fills produced by a run.
type Ledger struct {
	fills []models.Fill
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a fill.
func (l *Ledger) Append(fill models.Fill) {
	l.fills = append(l.fills, fill)
}

// Fills returns a copy of every fill in append order.
func (l *Ledger) Fills() []models.Fill {
	out := make([]models.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Len returns the number of fills.
func (l *Ledger) Len() int {
	return len(l.fills)
}
