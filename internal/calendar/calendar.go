// Package calendar provides expiry and trading-day calculations for NSE index options.
package calendar

import (
	"fmt"
	"time"

	apperrors "options-backtester/internal/errors"
)

// Session clock times used by the simulation.
const (
	OpenHour, OpenMinute               = 9, 15
	LastHour, LastMinute               = 15, 29
	SpreadCloseHour, SpreadCloseMinute = 15, 25
)

// DefaultMaxSearchDays bounds the walk over weekends and holidays.
const DefaultMaxSearchDays = 30

// HolidayChecker reports whether a date is an exchange holiday.
type HolidayChecker interface {
	IsHoliday(date time.Time) bool
}

// HolidaySet is an in-memory HolidayChecker keyed by date.
type HolidaySet map[string]bool

// NewHolidaySet builds a set from a list of dates.
func NewHolidaySet(dates ...time.Time) HolidaySet {
	s := make(HolidaySet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

// Add marks a date as a holiday.
func (s HolidaySet) Add(date time.Time) {
	s[date.Format("2006-01-02")] = true
}

// IsHoliday checks if a date is a market holiday.
func (s HolidaySet) IsHoliday(date time.Time) bool {
	return s[date.Format("2006-01-02")]
}

// Date truncates a timestamp to midnight of its calendar day.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// At returns the date at the given wall clock time.
func At(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsWeekend returns true on Saturday and Sunday.
func IsWeekend(date time.Time) bool {
	return date.Weekday() == time.Saturday || date.Weekday() == time.Sunday
}

// CurrentWeekExpiry returns the Thursday on or after date.
func CurrentWeekExpiry(date time.Time) time.Time {
	offset := (int(time.Thursday) - int(date.Weekday()) + 7) % 7
	return Date(date).AddDate(0, 0, offset)
}

// NextWeekExpiry returns the Thursday one week after the current week expiry.
func NextWeekExpiry(date time.Time) time.Time {
	return CurrentWeekExpiry(date).AddDate(0, 0, 7)
}

// MonthExpiry returns the last Thursday of date's month, rolling to the
// following month once that Thursday has passed.
func MonthExpiry(date time.Time) time.Time {
	day := Date(date)
	expiry := lastThursday(day.Year(), day.Month(), day.Location())
	if day.After(expiry) {
		next := time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, day.Location())
		expiry = lastThursday(next.Year(), next.Month(), next.Location())
	}
	return expiry
}

func lastThursday(year int, month time.Month, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	for lastDay.Weekday() != time.Thursday {
		lastDay = lastDay.AddDate(0, 0, -1)
	}
	return lastDay
}

// Calendar resolves holiday-adjusted expiries and trading days.
// The holiday set is treated as read-only for the lifetime of a run.
type Calendar struct {
	holidays      HolidayChecker
	maxSearchDays int
}

// New creates a calendar over the given holidays. A nil checker means no holidays.
func New(holidays HolidayChecker, maxSearchDays int) *Calendar {
	if holidays == nil {
		holidays = HolidaySet{}
	}
	if maxSearchDays <= 0 {
		maxSearchDays = DefaultMaxSearchDays
	}
	return &Calendar{
		holidays:      holidays,
		maxSearchDays: maxSearchDays,
	}
}

// IsTradingDay returns true when date is neither a weekend nor a holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	return !IsWeekend(date) && !c.holidays.IsHoliday(date)
}

// ValidExpiry walks backward from expiry to the first trading day.
func (c *Calendar) ValidExpiry(expiry time.Time) (time.Time, error) {
	candidate := Date(expiry)
	for i := 0; i <= c.maxSearchDays; i++ {
		if c.IsTradingDay(candidate) {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, -1)
	}
	return time.Time{}, apperrors.NewConfigurationError(
		"holidays",
		fmt.Sprintf("no trading day within %d days before expiry %s", c.maxSearchDays, expiry.Format("2006-01-02")),
		apperrors.ErrNoTradingDay,
	)
}

// NextValidDate returns the first trading day strictly after date.
func (c *Calendar) NextValidDate(date time.Time) (time.Time, error) {
	candidate := Date(date)
	for i := 0; i < c.maxSearchDays; i++ {
		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate) {
			return candidate, nil
		}
	}
	return time.Time{}, apperrors.NewConfigurationError(
		"holidays",
		fmt.Sprintf("no trading day within %d days after %s", c.maxSearchDays, date.Format("2006-01-02")),
		apperrors.ErrNoTradingDay,
	)
}

// Expiry returns the holiday-adjusted weekly or monthly expiry for a signal date.
// When a holiday pulls the expiry before date, the following cycle is used.
func (c *Calendar) Expiry(date time.Time, monthly bool) (time.Time, error) {
	day := Date(date)
	raw := CurrentWeekExpiry(day)
	if monthly {
		raw = MonthExpiry(day)
	}
	expiry, err := c.ValidExpiry(raw)
	if err != nil {
		return time.Time{}, err
	}
	if expiry.Before(day) {
		return c.Expiry(raw.AddDate(0, 0, 1), monthly)
	}
	return expiry, nil
}

// MarketHour maps a signal time onto the trading session: before the open
// moves to 09:15 the same day, after 15:29 moves to 09:15 of the next trading day.
func (c *Calendar) MarketHour(ts time.Time) (time.Time, error) {
	minutes := ts.Hour()*60 + ts.Minute()
	switch {
	case minutes < OpenHour*60+OpenMinute:
		return At(ts, OpenHour, OpenMinute), nil
	case minutes > LastHour*60+LastMinute:
		next, err := c.NextValidDate(ts)
		if err != nil {
			return time.Time{}, err
		}
		return At(next, OpenHour, OpenMinute), nil
	}
	return ts, nil
}
