package backtest

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"

	"options-backtester/internal/analytics"
	"options-backtester/internal/calendar"
	"options-backtester/internal/config"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
	"options-backtester/pkg/utils"
)

// simulator holds the state shared by every engine for one run.
type simulator struct {
	name      string
	cfg       *config.StrategyConfig
	cal       *calendar.Calendar
	src       pricing.Source
	evaluator *Evaluator
	logger    zerolog.Logger

	ledger   *Ledger
	roles    []models.Role
	analyses map[models.Role]*analytics.StrategyAnalysis
	trade    int
}

func newSimulator(name string, cfg *config.StrategyConfig, deps Deps, roles ...models.Role) *simulator {
	logger := logging.WithStrategy(deps.Logger, name)
	s := &simulator{
		name:      name,
		cfg:       cfg,
		cal:       deps.Calendar,
		src:       deps.Source,
		evaluator: NewEvaluator(logger),
		logger:    logger,
		ledger:    NewLedger(),
		roles:     roles,
		analyses:  make(map[models.Role]*analytics.StrategyAnalysis, len(roles)),
	}
	for _, role := range roles {
		s.analyses[role] = analytics.New(string(role), cfg.Capital(role))
	}
	return s
}

func (s *simulator) result() *Result {
	out := make([]*analytics.StrategyAnalysis, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, s.analyses[role])
	}
	return &Result{Fills: s.ledger.Fills(), Analyses: out}
}

func (s *simulator) fail(operation string, err error) error {
	return apperrors.NewSimulationError(s.name, operation, err)
}

// fetch loads the series for one instrument.
func (s *simulator) fetch(ctx context.Context, strike int, optionType models.OptionType, expiry time.Time) (*pricing.Series, error) {
	key := models.SeriesKey{
		Script:     s.cfg.Script,
		Strike:     strike,
		OptionType: optionType,
		Expiry:     expiry,
	}
	series, err := pricing.Fetch(ctx, s.src, key)
	if err != nil {
		return nil, apperrors.Wrapf(err, "fetching %s expiry %s", key.Symbol(), expiry.Format("2006-01-02"))
	}
	return series, nil
}

// price resolves a fill price. A gap listed in missing_data is priced at 0
// and reported with a note; any other gap aborts the run.
func (s *simulator) price(series *pricing.Series, at time.Time) (float64, string, error) {
	if bar, err := series.PriceAtOrAfter(at).Take(); err == nil {
		return bar.Close, "", nil
	}

	key := series.Key
	if s.cfg.IsMissingData(key.Strike, at) {
		logging.LogMissingPrice(s.logger, key.Symbol(), key.Strike, at)
		return 0, models.NoteMissingData, nil
	}
	return 0, "", apperrors.NewPriceMissingError(key.Symbol(), key.Strike, string(key.OptionType), key.Expiry, at)
}

// openLeg prices a new leg. Stops are armed separately.
func (s *simulator) openLeg(role models.Role, series *pricing.Series, action models.Action, at time.Time, lots int) (*Leg, string, error) {
	price, note, err := s.price(series, at)
	if err != nil {
		return nil, "", err
	}

	leg := &Leg{
		Role:       role,
		Key:        series.Key,
		Action:     action,
		EntryTime:  at,
		EntryPrice: price,
		Lots:       lots,
		series:     series,
	}
	return leg, note, nil
}

// arm sets the stop-loss and take-profit prices from the entry price.
func (s *simulator) arm(leg *Leg) {
	long := leg.IsLong()
	optionType := leg.Key.OptionType
	if pct, err := s.cfg.StopLoss(optionType).Take(); err == nil {
		leg.StopLoss = optional.Some(StopLossPrice(leg.EntryPrice, pct, long))
		if !long && s.cfg.Trailing() {
			leg.TrailPct = optional.Some(pct)
		}
	}
	if pct, err := s.cfg.TakeProfit(optionType).Take(); err == nil {
		leg.TakeProfit = optional.Some(TakeProfitPrice(leg.EntryPrice, pct, long))
	}
}

// reprice moves a leg to a soft re-entry. Stop and target prices are kept.
func (s *simulator) reprice(leg *Leg, at time.Time) (string, error) {
	price, note, err := s.price(leg.series, at)
	if err != nil {
		return "", err
	}
	leg.EntryTime = at
	leg.EntryPrice = price
	return note, nil
}

// record appends a fill row for a leg and logs it.
func (s *simulator) record(leg *Leg, event models.EventType, at time.Time, price float64, lots int, pnl float64, note string) {
	fill := models.Fill{
		Trade:      s.trade,
		Script:     s.cfg.Script,
		Role:       leg.Role,
		Symbol:     leg.Symbol(),
		Strike:     leg.Key.Strike,
		OptionType: leg.Key.OptionType,
		Expiry:     leg.Key.Expiry,
		Action:     leg.Action,
		LotSize:    lots,
		Time:       at,
		Price:      price,
		ProfitLoss: utils.Round2(pnl),
		Event:      event,
		Note:       note,
	}
	s.ledger.Append(fill)
	logging.LogFill(logging.WithRole(s.logger, string(leg.Role)), fill.Symbol, string(event), string(leg.Action), lots, price, fill.ProfitLoss, at)
}

// skip records a leg that was not traded.
func (s *simulator) skip(role models.Role, key models.SeriesKey, action models.Action, at time.Time, price float64, lots int, note string) {
	s.ledger.Append(models.Fill{
		Trade:      s.trade,
		Script:     s.cfg.Script,
		Role:       role,
		Symbol:     key.Symbol(),
		Strike:     key.Strike,
		OptionType: key.OptionType,
		Expiry:     key.Expiry,
		Action:     action,
		LotSize:    lots,
		Time:       at,
		Price:      price,
		Event:      models.EventEntrySignal,
		Skipped:    true,
		Note:       note,
	})
	logger := logging.WithRole(s.logger, string(role))
	logger.Info().
		Str("symbol", key.Symbol()).
		Float64("price", price).
		Str("reason", note).
		Msg("Leg skipped")
}

// exitPlan is the resolved exit for one leg.
type exitPlan struct {
	event models.EventType
	at    time.Time
	price float64
	note  string
}

// resolveExit picks the exit time and type for a leg:
// stop-loss or take-profit before the nominal exit, then expiry, then the
// nominal exit itself.
func (s *simulator) resolveExit(leg *Leg, nominal time.Time, expiryPin time.Time, nominalEvent models.EventType) (exitPlan, error) {
	end := nominal
	event := nominalEvent
	if calendar.Date(nominal).After(calendar.Date(leg.Key.Expiry)) {
		end = expiryPin
		event = models.EventExpiryExit
	}

	if t := s.evaluator.Evaluate(leg, leg.series.BarsBetween(leg.EntryTime, end)); t.Triggered {
		return exitPlan{event: t.Event, at: t.At, price: t.Price}, nil
	}

	price, note, err := s.price(leg.series, end)
	if err != nil {
		return exitPlan{}, err
	}
	return exitPlan{event: event, at: end, price: price, note: note}, nil
}
