// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-backtester/internal/analytics"
	"options-backtester/internal/calendar"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

// DataStore defines the interface for market data and run persistence.
type DataStore interface {
	pricing.Source
	pricing.IndexSource

	// Market data
	SaveOptionBars(ctx context.Context, key models.SeriesKey, bars []models.Bar) (int, error)
	SaveOptionSeries(ctx context.Context, series []SeriesBars) (int, error)
	SaveIndexBars(ctx context.Context, script string, bars []models.Bar) (int, error)
	CountOptionBars(ctx context.Context, key models.SeriesKey) (int, error)

	// Holidays
	SaveHolidays(ctx context.Context, dates []time.Time) (int, error)
	LoadHolidays(ctx context.Context) (calendar.HolidaySet, error)

	// Runs
	SaveRun(ctx context.Context, run *Run) error
	GetRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)

	// Lifecycle
	Close() error
}

// SeriesBars is the bars of one option series.
type SeriesBars struct {
	Key  models.SeriesKey
	Bars []models.Bar
}

// Run is one completed backtest persisted with its ledger.
type Run struct {
	ID        string              `json:"id"`
	Engine    string              `json:"engine"`
	Script    string              `json:"script"`
	CreatedAt time.Time           `json:"created_at"`
	NetPnL    float64             `json:"net_pnl"`
	Fills     []models.Fill       `json:"fills,omitempty"`
	Summaries []analytics.Summary `json:"summaries"`
}

// RunFilter represents filters for querying runs.
type RunFilter struct {
	Engine string
	Script string
	Limit  int
}
