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

// legSpec describes one leg opened by a pair entry.
type legSpec struct {
	role       models.Role
	optionType models.OptionType
	action     models.Action
	offset     int
}

// pairBook holds up to one call and one put leg opened together.
type pairBook struct {
	sim      *simulator
	specs    []legSpec
	position *Position
}

func newPairBook(sim *simulator, specs ...legSpec) *pairBook {
	roles := make([]models.Role, 0, len(specs))
	for _, spec := range specs {
		roles = append(roles, spec.role)
	}
	return &pairBook{
		sim:      sim,
		specs:    specs,
		position: NewPosition(roles...),
	}
}

// entry opens every leg at atm plus its offset. A bought call whose premium
// for the traded lots exceeds the configured cap is recorded as skipped.
func (b *pairBook) entry(ctx context.Context, at time.Time, atm, lots int, expiry time.Time) error {
	s := b.sim
	s.trade++

	for _, spec := range b.specs {
		series, err := s.fetch(ctx, atm+spec.offset, spec.optionType, expiry)
		if err != nil {
			return err
		}
		leg, note, err := s.openLeg(spec.role, series, spec.action, at, lots)
		if err != nil {
			return err
		}

		if spec.action.IsLong() && spec.optionType == models.OptionTypeCall {
			if limit, err := s.cfg.PremiumCap().Take(); err == nil {
				premium := leg.EntryPrice * float64(lots*s.cfg.QuantityPerLot)
				if premium > limit {
					s.skip(spec.role, series.Key, spec.action, at, leg.EntryPrice, lots, models.NotePremiumCheck)
					continue
				}
			}
		}

		s.arm(leg)
		if err := b.position.Open(leg); err != nil {
			return err
		}
		s.analyses[spec.role].RecordEntry(lots)
		s.record(leg, models.EventEntrySignal, at, leg.EntryPrice, lots, 0, note)
	}
	return nil
}

func (b *pairBook) isOpen() bool {
	return b.position.IsOpen()
}

func (b *pairBook) segmentStart() time.Time {
	var start time.Time
	for _, leg := range b.position.Legs() {
		if leg.EntryTime.After(start) {
			start = leg.EntryTime
		}
	}
	return start
}

func (b *pairBook) expiry() time.Time {
	legs := b.position.Legs()
	if len(legs) == 0 {
		return time.Time{}
	}
	return legs[0].Key.Expiry
}

func (b *pairBook) exit(_ context.Context, nominal time.Time, lots int, soft bool) error {
	s := b.sim
	nominalEvent := models.EventExitSignal
	if soft {
		nominalEvent = models.EventSoftExit
	}

	for _, leg := range b.position.Legs() {
		exitLots := lots
		if soft || exitLots <= 0 || exitLots > leg.Lots {
			if !soft && exitLots > leg.Lots {
				s.logger.Warn().
					Str("symbol", leg.Symbol()).
					Int("requested", exitLots).
					Int("remaining", leg.Lots).
					Msg("Exit lots exceed open lots, closing remaining")
			}
			exitLots = leg.Lots
		}

		pin := calendar.At(leg.Key.Expiry, calendar.LastHour, calendar.LastMinute)
		plan, err := s.resolveExit(leg, nominal, pin, nominalEvent)
		if err != nil {
			return err
		}

		pnl := utils.Round2(leg.ProfitLoss(plan.price, exitLots, s.cfg.QuantityPerLot))
		s.analyses[leg.Role].RecordExit(pnl)
		s.record(leg, plan.event, plan.at, plan.price, exitLots, pnl, plan.note)

		if soft {
			// Stopped legs stay flat for the rest of the signal.
			if plan.event != models.EventSoftExit {
				b.position.Close(leg.Role)
			}
			continue
		}

		if err := leg.Reduce(exitLots); err != nil {
			return err
		}
		if leg.IsClosed() {
			b.position.Close(leg.Role)
		}
	}
	return nil
}

func (b *pairBook) reenter(_ context.Context, at time.Time) error {
	s := b.sim
	for _, leg := range b.position.Legs() {
		note, err := s.reprice(leg, at)
		if err != nil {
			return err
		}
		s.record(leg, models.EventSoftEntry, at, leg.EntryPrice, leg.Lots, 0, note)
	}
	return nil
}

func (b *pairBook) flatten() {
	for _, leg := range b.position.Legs() {
		b.position.Close(leg.Role)
	}
}

// HullMA buys the ATM call and sells the ATM put on ET signals and closes
// both on EX signals.
type HullMA struct {
	sim  *simulator
	book *pairBook
}

// NewHullMA creates the hull_ma engine.
func NewHullMA(cfg *config.StrategyConfig, deps Deps) *HullMA {
	sim := newSimulator("hull_ma", cfg, deps, models.RoleCall, models.RolePut)
	return &HullMA{
		sim: sim,
		book: newPairBook(sim,
			legSpec{role: models.RoleCall, optionType: models.OptionTypeCall, action: models.ActionBuy, offset: cfg.CEStrike},
			legSpec{role: models.RolePut, optionType: models.OptionTypePut, action: models.ActionSell, offset: cfg.PEStrike},
		),
	}
}

// Name implements Engine.
func (e *HullMA) Name() string {
	return e.sim.name
}

// Position returns the open legs.
func (e *HullMA) Position() *Position {
	return e.book.position
}

// Run implements Engine.
func (e *HullMA) Run(ctx context.Context, signals []models.Signal) (*Result, error) {
	for _, sig := range signals {
		if err := e.Step(ctx, sig); err != nil {
			return nil, err
		}
	}
	return e.Result(), nil
}

// Result returns the fills and analytics accumulated so far.
func (e *HullMA) Result() *Result {
	return e.sim.result()
}

// Step processes one signal.
func (e *HullMA) Step(ctx context.Context, sig models.Signal) error {
	s := e.sim
	switch {
	case sig.Kind == models.SignalEntry && !e.book.isOpen():
		if err := e.enter(ctx, sig); err != nil {
			return s.fail("entry", err)
		}
	case sig.Kind == models.SignalExit && e.book.isOpen():
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

func (e *HullMA) enter(ctx context.Context, sig models.Signal) error {
	s := e.sim
	if sig.Contracts <= 0 {
		return apperrors.NewValidationError("contracts", sig.Contracts, "must be positive")
	}
	at, err := s.cal.MarketHour(sig.Timestamp)
	if err != nil {
		return err
	}
	expiry, err := s.cal.Expiry(at, s.cfg.MonthlyExpiry)
	if err != nil {
		return err
	}

	s.logger.Info().
		Time("at", at).
		Float64("price", sig.Price).
		Msg("Entry signal")
	return e.book.entry(ctx, at, NearestStrike(sig.Price, s.cfg.StrikeIncrement), sig.Contracts, expiry)
}

func (e *HullMA) leave(ctx context.Context, sig models.Signal) error {
	s := e.sim
	at, err := s.cal.MarketHour(sig.Timestamp)
	if err != nil {
		return err
	}

	s.logger.Info().
		Time("at", at).
		Float64("price", sig.Price).
		Msg("Exit signal")
	if s.cfg.ClosePositionAtDayEnd {
		return rollover(ctx, s.cal, e.book, at, sig.Contracts, calendar.LastHour, calendar.LastMinute)
	}
	return e.book.exit(ctx, at, sig.Contracts, false)
}
