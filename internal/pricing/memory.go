package pricing

import (
	"context"
	"sort"
	"time"

	"options-backtester/internal/calendar"
	"options-backtester/internal/models"
)

// MemorySource is an in-memory Source and IndexSource.
type MemorySource struct {
	series map[models.SeriesKey][]models.Bar
	index  map[string][]models.Bar
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		series: make(map[models.SeriesKey][]models.Bar),
		index:  make(map[string][]models.Bar),
	}
}

func normalizeKey(key models.SeriesKey) models.SeriesKey {
	key.Expiry = calendar.Date(key.Expiry)
	return key
}

// AddBars appends bars to a series, keeping it ascending and unique by timestamp.
func (m *MemorySource) AddBars(key models.SeriesKey, bars ...models.Bar) {
	key = normalizeKey(key)
	m.series[key] = mergeBars(m.series[key], bars)
}

// AddIndexBars appends index minute bars for a script.
func (m *MemorySource) AddIndexBars(script string, bars ...models.Bar) {
	m.index[script] = mergeBars(m.index[script], bars)
}

// FetchSeries implements Source.
func (m *MemorySource) FetchSeries(_ context.Context, key models.SeriesKey) ([]models.Bar, error) {
	bars := m.series[normalizeKey(key)]
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// FetchIndexBars implements IndexSource.
func (m *MemorySource) FetchIndexBars(_ context.Context, script string, date time.Time) ([]models.Bar, error) {
	var out []models.Bar
	for _, b := range m.index[script] {
		if calendar.SameDay(b.Timestamp, date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func mergeBars(existing, added []models.Bar) []models.Bar {
	byTime := make(map[time.Time]models.Bar, len(existing)+len(added))
	for _, b := range existing {
		byTime[b.Timestamp] = b
	}
	for _, b := range added {
		byTime[b.Timestamp] = b
	}
	out := make([]models.Bar, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
