package backtest

import (
	"context"
	"time"

	"options-backtester/internal/calendar"
	"options-backtester/internal/config"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// spreadBook holds at most one calendar spread.
type spreadBook struct {
	sim    *simulator
	spread *CalendarSpread
}

func (b *spreadBook) isOpen() bool {
	return b.spread != nil
}

func (b *spreadBook) segmentStart() time.Time {
	return b.spread.Buy.EntryTime
}

func (b *spreadBook) expiry() time.Time {
	return b.spread.Buy.Key.Expiry
}

func (b *spreadBook) flatten() {
	b.spread = nil
}

// entry buys the current week and sells the next week at the same strike.
// Only the sold leg carries a stop-loss and take-profit.
func (b *spreadBook) entry(ctx context.Context, at time.Time, strike int, optionType models.OptionType, lots int, current, next time.Time) error {
	s := b.sim
	buySeries, err := s.fetch(ctx, strike, optionType, current)
	if err != nil {
		return err
	}
	sellSeries, err := s.fetch(ctx, strike, optionType, next)
	if err != nil {
		return err
	}

	buy, buyNote, err := s.openLeg(models.RoleCurrentWeek, buySeries, models.ActionBuy, at, lots)
	if err != nil {
		return err
	}
	sell, sellNote, err := s.openLeg(models.RoleNextWeek, sellSeries, models.ActionSell, at, lots)
	if err != nil {
		return err
	}
	s.arm(sell)

	spread := &CalendarSpread{Buy: buy, Sell: sell}
	if err := spread.CheckLots(); err != nil {
		return err
	}
	b.spread = spread

	s.trade++
	s.analyses[models.RoleSpread].RecordEntry(lots)
	s.record(buy, models.EventEntrySignal, at, buy.EntryPrice, lots, 0, buyNote)
	s.record(sell, models.EventEntrySignal, at, sell.EntryPrice, lots, 0, sellNote)
	return nil
}

// exit closes both legs at the same time. When the sold leg's stop or target
// fires, the bought leg is priced at the trigger time.
func (b *spreadBook) exit(_ context.Context, nominal time.Time, lots int, soft bool) error {
	s := b.sim
	sp := b.spread

	exitLots := lots
	if soft || exitLots <= 0 || exitLots > sp.Lots() {
		exitLots = sp.Lots()
	}

	end := nominal
	event := models.EventExitSignal
	if soft {
		event = models.EventSoftExit
	}
	if calendar.Date(nominal).After(calendar.Date(sp.Buy.Key.Expiry)) {
		end = calendar.At(sp.Buy.Key.Expiry, calendar.SpreadCloseHour, calendar.SpreadCloseMinute)
		event = models.EventExpiryExit
	}

	var (
		buyPrice, sellPrice float64
		buyNote, sellNote   string
		err                 error
	)
	if t := s.evaluator.Evaluate(sp.Sell, sp.Sell.series.BarsBetween(sp.Sell.EntryTime, end)); t.Triggered {
		end = t.At
		event = t.Event
		sellPrice = t.Price
		if buyPrice, buyNote, err = s.price(sp.Buy.series, end); err != nil {
			return err
		}
	} else {
		if buyPrice, buyNote, err = s.price(sp.Buy.series, end); err != nil {
			return err
		}
		if sellPrice, sellNote, err = s.price(sp.Sell.series, end); err != nil {
			return err
		}
	}

	qty := s.cfg.QuantityPerLot
	buyPnL := utils.Round2(sp.Buy.ProfitLoss(buyPrice, exitLots, qty))
	sellPnL := utils.Round2(sp.Sell.ProfitLoss(sellPrice, exitLots, qty))
	s.analyses[models.RoleSpread].RecordExit(utils.Round2(buyPnL + sellPnL))
	s.record(sp.Buy, event, end, buyPrice, exitLots, buyPnL, buyNote)
	s.record(sp.Sell, event, end, sellPrice, exitLots, sellPnL, sellNote)

	if soft {
		if event != models.EventSoftExit {
			b.spread = nil
		}
		return nil
	}

	if err := sp.Reduce(exitLots); err != nil {
		return err
	}
	if sp.Lots() == 0 {
		b.spread = nil
	}
	return nil
}

func (b *spreadBook) reenter(_ context.Context, at time.Time) error {
	s := b.sim
	for _, leg := range []*Leg{b.spread.Buy, b.spread.Sell} {
		note, err := s.reprice(leg, at)
		if err != nil {
			return err
		}
		s.record(leg, models.EventSoftEntry, at, leg.EntryPrice, leg.Lots, 0, note)
	}
	return nil
}

// CalendarSpreadEngine trades PE calendars on ETL signals and CE calendars on
// ETS signals. EXL and EXS close whichever spread is open.
type CalendarSpreadEngine struct {
	sim  *simulator
	book *spreadBook
}

// NewCalendarSpread creates the calendar engine.
func NewCalendarSpread(cfg *config.StrategyConfig, deps Deps) *CalendarSpreadEngine {
	sim := newSimulator("calendar", cfg, deps, models.RoleSpread)
	return &CalendarSpreadEngine{
		sim:  sim,
		book: &spreadBook{sim: sim},
	}
}

// Name implements Engine.
func (e *CalendarSpreadEngine) Name() string {
	return e.sim.name
}

// Spread returns the open spread, or nil when flat.
func (e *CalendarSpreadEngine) Spread() *CalendarSpread {
	return e.book.spread
}

// Result returns the fills and analytics accumulated so far.
func (e *CalendarSpreadEngine) Result() *Result {
	return e.sim.result()
}

// Run implements Engine.
func (e *CalendarSpreadEngine) Run(ctx context.Context, signals []models.Signal) (*Result, error) {
	for _, sig := range signals {
		if err := e.Step(ctx, sig); err != nil {
			return nil, err
		}
	}
	return e.Result(), nil
}

// Step processes one signal.
func (e *CalendarSpreadEngine) Step(ctx context.Context, sig models.Signal) error {
	s := e.sim
	isEntry := sig.Kind == models.SignalEntryLong || sig.Kind == models.SignalEntryShort
	isExit := sig.Kind == models.SignalExitLong || sig.Kind == models.SignalExitShort

	switch {
	case isEntry && !e.book.isOpen():
		if err := e.enter(ctx, sig); err != nil {
			return s.fail("entry", err)
		}
	case isExit && e.book.isOpen():
		if err := e.leave(ctx, sig); err != nil {
			return s.fail("exit", err)
		}
	default:
		s.logger.Debug().
			Str("signal", string(sig.Kind)).
			Time("at", sig.Timestamp).
			Bool("open", e.book.isOpen()).
			Msg("Signal ignored")
	}
	return nil
}

func (e *CalendarSpreadEngine) enter(ctx context.Context, sig models.Signal) error {
	s := e.sim
	if sig.Contracts <= 0 {
		return apperrors.NewValidationError("contracts", sig.Contracts, "must be positive")
	}
	at, err := s.cal.MarketHour(sig.Timestamp)
	if err != nil {
		return err
	}
	current, err := s.cal.Expiry(at, false)
	if err != nil {
		return err
	}
	next, err := s.cal.ValidExpiry(calendar.NextWeekExpiry(current))
	if err != nil {
		return err
	}

	optionType, offset := models.OptionTypeCall, s.cfg.CEStrike
	if sig.Kind == models.SignalEntryLong {
		optionType, offset = models.OptionTypePut, s.cfg.PEStrike
	}
	strike := NearestStrike(sig.Price, s.cfg.SpreadStrikeIncrement) + offset

	s.logger.Info().
		Time("at", at).
		Float64("price", sig.Price).
		Str("option_type", string(optionType)).
		Int("strike", strike).
		Msg("Calendar entry signal")
	return e.book.entry(ctx, at, strike, optionType, sig.Contracts, current, next)
}

func (e *CalendarSpreadEngine) leave(ctx context.Context, sig models.Signal) error {
	s := e.sim
	at, err := s.cal.MarketHour(sig.Timestamp)
	if err != nil {
		return err
	}

	s.logger.Info().
		Time("at", at).
		Float64("price", sig.Price).
		Msg("Calendar exit signal")
	if s.cfg.ClosePositionAtDayEnd {
		return rollover(ctx, s.cal, e.book, at, sig.Contracts, calendar.SpreadCloseHour, calendar.SpreadCloseMinute)
	}
	return e.book.exit(ctx, at, sig.Contracts, false)
}
