package backtest

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

// Leg is one open option position.
type Leg struct {
	Role       models.Role
	Key        models.SeriesKey
	Action     models.Action
	EntryTime  time.Time
	EntryPrice float64
	Lots       int

	// StopLoss and TakeProfit hold absolute prices. They are set once at the
	// true entry and survive soft re-entries; a trailing stop only lowers StopLoss.
	StopLoss   optional.Option[float64]
	TakeProfit optional.Option[float64]
	// TrailPct is set on short legs whose stop follows the close downwards.
	TrailPct optional.Option[float64]

	series *pricing.Series
}

// Symbol returns the display symbol of the leg.
func (l *Leg) Symbol() string {
	return l.Key.Symbol()
}

// IsLong returns true for a bought leg.
func (l *Leg) IsLong() bool {
	return l.Action.IsLong()
}

// IsClosed returns true once every lot has been exited.
func (l *Leg) IsClosed() bool {
	return l.Lots == 0
}

// Reduce removes lots from the leg.
func (l *Leg) Reduce(lots int) error {
	if lots <= 0 || lots > l.Lots {
		return fmt.Errorf("%w: cannot exit %d lots of %s with %d remaining",
			apperrors.ErrInvariantViolated, lots, l.Symbol(), l.Lots)
	}
	l.Lots -= lots
	return nil
}

// ProfitLoss returns the P&L of exiting lots at price.
func (l *Leg) ProfitLoss(price float64, lots, quantityPerLot int) float64 {
	diff := price - l.EntryPrice
	if !l.IsLong() {
		diff = -diff
	}
	return diff * float64(lots*quantityPerLot)
}

// Position maps leg roles to open legs. At most one leg is open per role.
type Position struct {
	roles []models.Role
	legs  map[models.Role]*Leg
}

// NewPosition creates an empty position over an ordered set of roles.
func NewPosition(roles ...models.Role) *Position {
	return &Position{
		roles: roles,
		legs:  make(map[models.Role]*Leg, len(roles)),
	}
}

// Leg returns the open leg for a role.
func (p *Position) Leg(role models.Role) (*Leg, bool) {
	leg, ok := p.legs[role]
	return leg, ok
}

// Open stores a leg under its role.
func (p *Position) Open(leg *Leg) error {
	if _, ok := p.legs[leg.Role]; ok {
		return fmt.Errorf("%w: role %s already has an open leg", apperrors.ErrInvariantViolated, leg.Role)
	}
	p.legs[leg.Role] = leg
	return nil
}

// Close removes the leg for a role.
func (p *Position) Close(role models.Role) {
	delete(p.legs, role)
}

// Legs returns open legs in role order.
func (p *Position) Legs() []*Leg {
	out := make([]*Leg, 0, len(p.legs))
	for _, role := range p.roles {
		if leg, ok := p.legs[role]; ok {
			out = append(out, leg)
		}
	}
	return out
}

// IsOpen returns true while any leg is open.
func (p *Position) IsOpen() bool {
	return len(p.legs) > 0
}

// CalendarSpread is a bought current week leg and a sold next week leg
// at the same strike. Both legs always carry the same number of lots.
type CalendarSpread struct {
	Buy  *Leg
	Sell *Leg
}

// CheckLots verifies both legs hold equal remaining lots.
func (c *CalendarSpread) CheckLots() error {
	if c.Buy.Lots != c.Sell.Lots {
		return fmt.Errorf("%w: lot size for buy (%d) and sell (%d) legs are different",
			apperrors.ErrInvariantViolated, c.Buy.Lots, c.Sell.Lots)
	}
	return nil
}

// Reduce removes lots from both legs and re-checks the lot invariant.
func (c *CalendarSpread) Reduce(lots int) error {
	if err := c.Buy.Reduce(lots); err != nil {
		return err
	}
	if err := c.Sell.Reduce(lots); err != nil {
		return err
	}
	return c.CheckLots()
}

// Lots returns the remaining spread size.
func (c *CalendarSpread) Lots() int {
	return c.Buy.Lots
}
