// Package backtest replays trade signals against historical option prices.
package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"options-backtester/internal/analytics"
	"options-backtester/internal/calendar"
	"options-backtester/internal/config"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

// Engine runs one backtest. A run either completes with a Result or fails
// as a whole; partial results are never returned.
type Engine interface {
	Name() string
	Run(ctx context.Context, signals []models.Signal) (*Result, error)
}

// Deps are the collaborators an engine reads from.
type Deps struct {
	Source   pricing.Source
	Index    pricing.IndexSource
	Calendar *calendar.Calendar
	Logger   zerolog.Logger
}

// Result is the output of a completed run.
type Result struct {
	Fills    []models.Fill
	Analyses []*analytics.StrategyAnalysis
}

// Summaries finalizes every analysis in the result.
func (r *Result) Summaries() []analytics.Summary {
	out := make([]analytics.Summary, 0, len(r.Analyses))
	for _, a := range r.Analyses {
		out = append(out, a.Summarize())
	}
	return out
}

// New builds the engine named by cfg.Engine.
func New(cfg *config.Config, deps Deps) (Engine, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("price source is required")
	}
	if deps.Calendar == nil {
		deps.Calendar = calendar.New(nil, cfg.MaxHolidaySearchDays)
	}

	switch cfg.Engine {
	case config.EngineHullMA:
		return NewHullMA(&cfg.Strategy, deps), nil
	case config.EngineStraddle:
		if deps.Index == nil {
			return nil, fmt.Errorf("index source is required for the straddle engine")
		}
		return NewStraddle(&cfg.Strategy, deps), nil
	case config.EngineCalendar:
		return NewCalendarSpread(&cfg.Strategy, deps), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

// NearestStrike rounds price down to a multiple of increment.
func NearestStrike(price float64, increment int) int {
	if increment <= 0 {
		return int(price)
	}
	return int(math.Floor(price/float64(increment))) * increment
}
