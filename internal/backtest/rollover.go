package backtest

import (
	"context"
	"time"

	"options-backtester/internal/calendar"
)

// book is an open position that can be closed and re-opened at day boundaries.
type book interface {
	isOpen() bool
	// segmentStart is the entry time of the current holding segment.
	segmentStart() time.Time
	expiry() time.Time
	// exit closes lots of every open leg at nominal. A soft exit closes all
	// lots and keeps legs for re-entry unless a stop or target fired.
	exit(ctx context.Context, nominal time.Time, lots int, soft bool) error
	reenter(ctx context.Context, at time.Time) error
	flatten()
}

// rollover closes the book at the end of every day between the segment start
// and min(exit date, expiry), re-entering at the next trading day's open, then
// performs the real exit on the final day.
func rollover(ctx context.Context, cal *calendar.Calendar, b book, nominal time.Time, lots int, closeHour, closeMinute int) error {
	final := calendar.Date(nominal)
	if expiry := calendar.Date(b.expiry()); final.After(expiry) {
		final = expiry
	}

	day := calendar.Date(b.segmentStart())
	for day.Before(final) {
		if err := b.exit(ctx, calendar.At(day, closeHour, closeMinute), 0, true); err != nil {
			return err
		}
		if !b.isOpen() {
			return nil
		}

		next, err := cal.NextValidDate(day)
		if err != nil {
			return err
		}
		if next.After(final) {
			// The exit date is not a trading day; the soft exit was the last fill.
			b.flatten()
			return nil
		}

		if err := b.reenter(ctx, calendar.At(next, calendar.OpenHour, calendar.OpenMinute)); err != nil {
			return err
		}
		day = next
	}

	return b.exit(ctx, nominal, lots, false)
}
