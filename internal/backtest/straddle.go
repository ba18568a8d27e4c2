package backtest

import (
	"context"
	"time"

	"options-backtester/internal/calendar"
	"options-backtester/internal/config"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

// Straddle sells a call and a put around the index ATM strike on every
// trading day between the configured dates and closes both the same day.
type Straddle struct {
	sim   *simulator
	book  *pairBook
	index pricing.IndexSource
}

// NewStraddle creates the straddle engine.
func NewStraddle(cfg *config.StrategyConfig, deps Deps) *Straddle {
	sim := newSimulator("straddle", cfg, deps, models.RoleCall, models.RolePut)
	return &Straddle{
		sim:   sim,
		index: deps.Index,
		book: newPairBook(sim,
			legSpec{role: models.RoleCall, optionType: models.OptionTypeCall, action: models.ActionSell, offset: cfg.CEStrike},
			legSpec{role: models.RolePut, optionType: models.OptionTypePut, action: models.ActionSell, offset: cfg.PEStrike},
		),
	}
}

// Name implements Engine.
func (e *Straddle) Name() string {
	return e.sim.name
}

// Run implements Engine. Signals are not used; the date range drives entries.
func (e *Straddle) Run(ctx context.Context, _ []models.Signal) (*Result, error) {
	s := e.sim
	entryHour, entryMinute, err := s.cfg.EntryClock()
	if err != nil {
		return nil, err
	}
	exitHour, exitMinute, err := s.cfg.ExitClock()
	if err != nil {
		return nil, err
	}

	start := calendar.Date(s.cfg.BacktestingStartDate)
	end := calendar.Date(s.cfg.BacktestingEndDate)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !s.cal.IsTradingDay(day) {
			continue
		}
		entryAt := calendar.At(day, entryHour, entryMinute)
		exitAt := calendar.At(day, exitHour, exitMinute)
		if err := e.tradeDay(ctx, entryAt, exitAt); err != nil {
			return nil, s.fail("trade day "+day.Format("2006-01-02"), err)
		}
	}
	return s.result(), nil
}

func (e *Straddle) tradeDay(ctx context.Context, entryAt, exitAt time.Time) error {
	s := e.sim
	atm, ok, err := e.atmStrike(ctx, entryAt)
	if err != nil {
		return err
	}
	if !ok {
		if s.cfg.IsMissingIndexData(entryAt) {
			s.logger.Warn().
				Time("at", entryAt).
				Str("script", s.cfg.Script).
				Msg("Index minute data is missing, skipping day")
			return nil
		}
		return apperrors.NewDataError("index", s.cfg.Script,
			"minute data is missing for "+entryAt.Format(config.DateTimeLayout), apperrors.ErrDataNotFound)
	}

	expiry, err := s.cal.Expiry(entryAt, s.cfg.MonthlyExpiry)
	if err != nil {
		return err
	}
	if err := e.book.entry(ctx, entryAt, atm, s.cfg.LotSize, expiry); err != nil {
		return err
	}
	return e.book.exit(ctx, exitAt, 0, false)
}

// atmStrike rounds the first index close at or after at down to the strike increment.
func (e *Straddle) atmStrike(ctx context.Context, at time.Time) (int, bool, error) {
	bars, err := e.index.FetchIndexBars(ctx, e.sim.cfg.Script, calendar.Date(at))
	if err != nil {
		return 0, false, err
	}
	bar, err := pricing.BarAtOrAfter(bars, at).Take()
	if err != nil {
		return 0, false, nil
	}
	return NearestStrike(bar.Close, e.sim.cfg.StrikeIncrement), true, nil
}
