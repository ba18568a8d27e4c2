// Package pricing adapts historical price series for fill and stop scanning queries.
package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/moznion/go-optional"

	"options-backtester/internal/calendar"
	"options-backtester/internal/models"
)

// Source supplies option price series ordered by timestamp.
type Source interface {
	FetchSeries(ctx context.Context, key models.SeriesKey) ([]models.Bar, error)
}

// IndexSource supplies the underlying index minute bars for a trading day.
type IndexSource interface {
	FetchIndexBars(ctx context.Context, script string, date time.Time) ([]models.Bar, error)
}

// Series is one option price series fetched for an expiry cycle.
type Series struct {
	Key  models.SeriesKey
	Bars []models.Bar
}

// NewSeries wraps bars that are already ascending and deduplicated by timestamp.
func NewSeries(key models.SeriesKey, bars []models.Bar) *Series {
	return &Series{Key: key, Bars: bars}
}

// Fetch loads a series from the source.
func Fetch(ctx context.Context, src Source, key models.SeriesKey) (*Series, error) {
	bars, err := src.FetchSeries(ctx, key)
	if err != nil {
		return nil, err
	}
	return NewSeries(key, bars), nil
}

// PriceAtOrAfter returns the first bar on ts's calendar day whose timestamp is >= ts.
func (s *Series) PriceAtOrAfter(ts time.Time) optional.Option[models.Bar] {
	return BarAtOrAfter(s.Bars, ts)
}

// BarsBetween returns the bars strictly between start and end. Only used for
// stop-loss and take-profit scanning, never for fills.
func (s *Series) BarsBetween(start, end time.Time) []models.Bar {
	return BarsBetween(s.Bars, start, end)
}

// BarAtOrAfter is PriceAtOrAfter over a raw ascending slice.
func BarAtOrAfter(bars []models.Bar, ts time.Time) optional.Option[models.Bar] {
	i := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Timestamp.Before(ts)
	})
	if i < len(bars) && calendar.SameDay(bars[i].Timestamp, ts) {
		return optional.Some(bars[i])
	}
	return optional.None[models.Bar]()
}

// BarsBetween is Series.BarsBetween over a raw ascending slice.
func BarsBetween(bars []models.Bar, start, end time.Time) []models.Bar {
	lo := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.After(start)
	})
	hi := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Timestamp.Before(end)
	})
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}
