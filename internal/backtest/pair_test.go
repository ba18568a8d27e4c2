package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/config"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

func TestHullMAExitSignal(t *testing.T) {
	e := NewHullMA(strategyConfig(), deps(pairSource()))

	res, err := e.Run(context.Background(), []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(wed, 14, 0), 17500, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Fills, 4)

	ceEntry, peEntry, ceExit, peExit := res.Fills[0], res.Fills[1], res.Fills[2], res.Fills[3]
	assert.Equal(t, models.EventEntrySignal, ceEntry.Event)
	assert.Equal(t, models.ActionBuy, ceEntry.Action)
	assert.Equal(t, 17400, ceEntry.Strike)
	assert.Equal(t, 100.0, ceEntry.Price)
	assert.Equal(t, models.ActionSell, peEntry.Action)
	assert.Equal(t, 80.0, peEntry.Price)

	assert.Equal(t, models.EventExitSignal, ceExit.Event)
	assert.Equal(t, at(wed, 14, 0), ceExit.Time)
	assert.Equal(t, 1000.0, ceExit.ProfitLoss)
	assert.Equal(t, models.EventExitSignal, peExit.Event)
	assert.Equal(t, 500.0, peExit.ProfitLoss)

	assert.False(t, e.Position().IsOpen())

	require.Len(t, res.Analyses, 2)
	assert.Equal(t, "CE", res.Analyses[0].Name)
	assert.Equal(t, 1, res.Analyses[0].TotalTrades)
	assert.Equal(t, 1000.0, res.Analyses[0].ProfitLoss())
	assert.Equal(t, 500.0, res.Analyses[1].ProfitLoss())
}

func TestHullMAExpiryExit(t *testing.T) {
	e := NewHullMA(strategyConfig(), deps(pairSource()))

	res, err := e.Run(context.Background(), []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(fri, 11, 0), 17500, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Fills, 4)

	for _, f := range res.Fills[2:] {
		assert.Equal(t, models.EventExpiryExit, f.Event)
		assert.Equal(t, at(thu, 15, 29), f.Time)
	}
	assert.Equal(t, 130.0, res.Fills[2].Price)
	assert.Equal(t, 1000.0, res.Fills[3].ProfitLoss)
}

func TestHullMAStopLoss(t *testing.T) {
	src := pairSource()
	src.AddBars(key(17400, models.OptionTypeCall, thu), step(wed, 120, 45, 11, 0)...)

	cfg := strategyConfig()
	cfg.SLCheck = &config.LegPercents{CE: pct(50)}
	e := NewHullMA(cfg, deps(src))

	res, err := e.Run(context.Background(), []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(wed, 14, 0), 17500, 1),
	})
	require.NoError(t, err)

	ceExit, peExit := res.Fills[2], res.Fills[3]
	assert.Equal(t, models.EventSLExit, ceExit.Event)
	assert.Equal(t, at(wed, 11, 0), ceExit.Time)
	assert.Equal(t, 45.0, ceExit.Price)
	assert.Equal(t, -2750.0, ceExit.ProfitLoss)
	assert.Equal(t, models.EventExitSignal, peExit.Event)
}

func TestHullMATakeProfit(t *testing.T) {
	cfg := strategyConfig()
	cfg.TPCheck = &config.LegPercents{CE: pct(10), PE: pct(10)}
	e := NewHullMA(cfg, deps(pairSource()))

	res, err := e.Run(context.Background(), []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(wed, 14, 0), 17500, 1),
	})
	require.NoError(t, err)

	// Targets are 110 for CE and 72 for PE; CE opens Wednesday at 120, PE at 70.
	for _, f := range res.Fills[2:] {
		assert.Equal(t, models.EventTakeProfitExit, f.Event)
		assert.Equal(t, at(wed, 9, 15), f.Time)
	}
}

func TestHullMAPremiumCap(t *testing.T) {
	cfg := strategyConfig()
	cfg.CEPremiumCheck = &config.PremiumCheck{Premium: 4000}
	e := NewHullMA(cfg, deps(pairSource()))

	require.NoError(t, e.Step(context.Background(), signal(models.SignalEntry, at(tue, 10, 0), 17420, 1)))

	res := e.Result()
	require.Len(t, res.Fills, 2)
	assert.True(t, res.Fills[0].Skipped)
	assert.Equal(t, models.NotePremiumCheck, res.Fills[0].Note)
	assert.Equal(t, models.RoleCall, res.Fills[0].Role)
	assert.False(t, res.Fills[1].Skipped)

	_, ceOpen := e.Position().Leg(models.RoleCall)
	_, peOpen := e.Position().Leg(models.RolePut)
	assert.False(t, ceOpen)
	assert.True(t, peOpen)
	assert.Equal(t, 0, res.Analyses[0].TotalTrades)
	assert.Equal(t, 1, res.Analyses[1].TotalTrades)
}

func TestHullMAPartialExit(t *testing.T) {
	e := NewHullMA(strategyConfig(), deps(pairSource()))
	ctx := context.Background()

	require.NoError(t, e.Step(ctx, signal(models.SignalEntry, at(tue, 10, 0), 17420, 3)))
	require.NoError(t, e.Step(ctx, signal(models.SignalExit, at(wed, 10, 0), 17420, 2)))

	ce, ok := e.Position().Leg(models.RoleCall)
	require.True(t, ok)
	assert.Equal(t, 1, ce.Lots)

	// A second entry while legs are open is ignored.
	require.NoError(t, e.Step(ctx, signal(models.SignalEntry, at(wed, 11, 0), 17420, 3)))
	assert.Len(t, e.Result().Fills, 4)

	require.NoError(t, e.Step(ctx, signal(models.SignalExit, at(wed, 12, 0), 17420, 1)))
	assert.False(t, e.Position().IsOpen())

	res := e.Result()
	require.Len(t, res.Fills, 6)
	assert.Equal(t, 2000.0, res.Fills[2].ProfitLoss)
	assert.Equal(t, 1000.0, res.Fills[4].ProfitLoss)
	assert.Equal(t, 2, res.Analyses[0].WinTrades)
	assert.Equal(t, 1, res.Analyses[0].TotalTrades)
}

func TestHullMAMissingData(t *testing.T) {
	src := pricing.NewMemorySource()
	src.AddBars(key(17400, models.OptionTypeCall, thu), flat(tue, 100)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), flat(tue, 80)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), flat(wed, 70)...)

	signals := []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(wed, 14, 0), 17500, 1),
	}

	t.Run("fatal", func(t *testing.T) {
		_, err := NewHullMA(strategyConfig(), deps(src)).Run(context.Background(), signals)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrPriceMissing))

		var simErr *apperrors.SimulationError
		require.True(t, apperrors.As(err, &simErr))
		assert.Equal(t, "exit", simErr.Operation)
	})

	t.Run("allow-listed", func(t *testing.T) {
		cfg := strategyConfig()
		cfg.MissingData = []config.MissingDataRange{
			{Strike: 17400, StartDatetime: at(wed, 9, 15), EndDatetime: at(wed, 15, 29)},
		}
		res, err := NewHullMA(cfg, deps(src)).Run(context.Background(), signals)
		require.NoError(t, err)

		ceExit := res.Fills[2]
		assert.Equal(t, 0.0, ceExit.Price)
		assert.Equal(t, models.NoteMissingData, ceExit.Note)
		assert.Equal(t, -5000.0, ceExit.ProfitLoss)
	})
}

func TestHullMAMarketHour(t *testing.T) {
	e := NewHullMA(strategyConfig(), deps(pairSource()))

	// An entry after the close fills at the next day's open.
	res, err := e.Run(context.Background(), []models.Signal{
		signal(models.SignalEntry, at(tue, 15, 45), 17420, 1),
		signal(models.SignalExit, at(wed, 14, 0), 17500, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, at(wed, 9, 15), res.Fills[0].Time)
	assert.Equal(t, 120.0, res.Fills[0].Price)
}

func softSource() *pricing.MemorySource {
	src := pricing.NewMemorySource()
	ce := key(17400, models.OptionTypeCall, thu)
	src.AddBars(ce, step(tue, 100, 110, 12, 0)...)
	src.AddBars(ce, step(wed, 120, 125, 12, 0)...)
	src.AddBars(ce, step(thu, 130, 140, 10, 30)...)
	pe := key(17400, models.OptionTypePut, thu)
	src.AddBars(pe, flat(tue, 80)...)
	src.AddBars(pe, flat(wed, 70)...)
	src.AddBars(pe, flat(thu, 60)...)
	return src
}

func softSignals() []models.Signal {
	return []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(thu, 11, 0), 17500, 1),
	}
}

func TestSoftEntryExit(t *testing.T) {
	cfg := strategyConfig()
	cfg.ClosePositionAtDayEnd = true
	res, err := NewHullMA(cfg, deps(softSource())).Run(context.Background(), softSignals())
	require.NoError(t, err)
	require.Len(t, res.Fills, 12)

	var ce []models.Fill
	for _, f := range res.Fills {
		if f.Role == models.RoleCall {
			ce = append(ce, f)
		}
	}
	want := []struct {
		event models.EventType
		at    time.Time
		price float64
		pnl   float64
	}{
		{models.EventEntrySignal, at(tue, 10, 0), 100, 0},
		{models.EventSoftExit, at(tue, 15, 29), 110, 500},
		{models.EventSoftEntry, at(wed, 9, 15), 120, 0},
		{models.EventSoftExit, at(wed, 15, 29), 125, 250},
		{models.EventSoftEntry, at(thu, 9, 15), 130, 0},
		{models.EventExitSignal, at(thu, 11, 0), 140, 500},
	}
	require.Len(t, ce, len(want))
	for i, w := range want {
		assert.Equal(t, w.event, ce[i].Event, "fill %d", i)
		assert.Equal(t, w.at, ce[i].Time, "fill %d", i)
		assert.Equal(t, w.price, ce[i].Price, "fill %d", i)
		assert.Equal(t, w.pnl, ce[i].ProfitLoss, "fill %d", i)
	}

	a := res.Analyses[0]
	assert.Equal(t, 1, a.TotalTrades)
	assert.Equal(t, 3, a.WinTrades)
	assert.Equal(t, 100.0, a.WinPercent())
	assert.Equal(t, 1250.0, a.ProfitLoss())
	assert.Equal(t, 3, res.Analyses[1].LossTrades)
}

func TestSoftExitStoppedLegStaysFlat(t *testing.T) {
	src := softSource()
	src.AddBars(key(17400, models.OptionTypePut, thu), step(tue, 80, 90, 13, 0)...)

	cfg := strategyConfig()
	cfg.ClosePositionAtDayEnd = true
	cfg.SLCheck = &config.LegPercents{PE: pct(10)}
	res, err := NewHullMA(cfg, deps(src)).Run(context.Background(), softSignals())
	require.NoError(t, err)
	require.Len(t, res.Fills, 8)

	var pe []models.Fill
	for _, f := range res.Fills {
		if f.Role == models.RolePut {
			pe = append(pe, f)
		}
	}
	require.Len(t, pe, 2)
	assert.Equal(t, models.EventSLExit, pe[1].Event)
	assert.Equal(t, at(tue, 13, 0), pe[1].Time)
	assert.Equal(t, -500.0, pe[1].ProfitLoss)
}

func TestSoftReentryKeepsStopAnchor(t *testing.T) {
	src := softSource()
	// PE re-enters at 70 on Wednesday; a stop anchored on the new price (77)
	// would fire at 85, the original anchor (88) does not.
	src.AddBars(key(17400, models.OptionTypePut, thu), step(wed, 70, 85, 12, 0)...)

	cfg := strategyConfig()
	cfg.ClosePositionAtDayEnd = true
	cfg.SLCheck = &config.LegPercents{PE: pct(10)}
	fixed := false
	cfg.TrailingSL = &fixed
	e := NewHullMA(cfg, deps(src))
	res, err := e.Run(context.Background(), softSignals())
	require.NoError(t, err)

	for _, f := range res.Fills {
		assert.NotEqual(t, models.EventSLExit, f.Event)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := strategyConfig()
	cfg.ClosePositionAtDayEnd = true
	cfg.SLCheck = &config.LegPercents{CE: pct(30), PE: pct(30)}
	v := 100000.0
	cfg.InitialCapitalCE = &v
	cfg.InitialCapitalPE = &v

	run := func() *Result {
		res, err := NewHullMA(cfg, deps(softSource())).Run(context.Background(), softSignals())
		require.NoError(t, err)
		return res
	}

	first, second := run(), run()
	assert.Equal(t, first.Fills, second.Fills)
	assert.Equal(t, first.Summaries(), second.Summaries())
}

func TestStraddle(t *testing.T) {
	src := pricing.NewMemorySource()
	src.AddIndexBars("NIFTY", step(tue, 17380, 17430, 9, 20)...)
	src.AddBars(key(17400, models.OptionTypeCall, thu), step(tue, 100, 90, 12, 0)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), step(tue, 80, 100, 12, 0)...)

	cfg := strategyConfig()
	cfg.LotSize = 2
	cfg.BacktestingStartDate = tue
	cfg.BacktestingEndDate = wed
	cfg.EntryTime = "09:20"
	cfg.ExitTime = "15:15"
	cfg.SLCheck = &config.LegPercents{CE: pct(20), PE: pct(20)}

	t.Run("missing index data is fatal", func(t *testing.T) {
		_, err := NewStraddle(cfg, deps(src)).Run(context.Background(), nil)
		assert.True(t, apperrors.Is(err, apperrors.ErrDataNotFound))
	})

	t.Run("allow-listed day is skipped", func(t *testing.T) {
		withGap := *cfg
		withGap.MissingIndexData = []time.Time{wed}
		res, err := NewStraddle(&withGap, deps(src)).Run(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, res.Fills, 4)

		ce, pe := res.Fills[2], res.Fills[3]
		assert.Equal(t, models.ActionSell, res.Fills[0].Action)
		assert.Equal(t, models.ActionSell, res.Fills[1].Action)

		// CE trails down to 108 and never breaches it.
		assert.Equal(t, models.EventExitSignal, ce.Event)
		assert.Equal(t, at(tue, 15, 15), ce.Time)
		assert.Equal(t, 1000.0, ce.ProfitLoss)

		// PE stop at 96 fires on the jump to 100.
		assert.Equal(t, models.EventSLExit, pe.Event)
		assert.Equal(t, at(tue, 12, 0), pe.Time)
		assert.Equal(t, -2000.0, pe.ProfitLoss)
	})
}

// TestProperty_NominalAndExpiryExits checks that without stops an exit on or
// before expiry fills at the nominal time, and an exit after expiry is pinned
// to 15:29 on the expiry date.
func TestProperty_NominalAndExpiryExits(t *testing.T) {
	src := pricing.NewMemorySource()
	mon := date(2022, 1, 31)
	for _, d := range []time.Time{mon, tue, wed, thu} {
		d := d
		price := func(ts time.Time) float64 { return 100 + float64(ts.Minute()%7) + float64(d.Day()) }
		src.AddBars(key(17400, models.OptionTypeCall, thu), session(d, price)...)
		src.AddBars(key(17400, models.OptionTypePut, thu), session(d, price)...)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("exit type follows the expiry date", prop.ForAll(
		func(dayOffset, minute int) bool {
			exitDay := tue.AddDate(0, 0, dayOffset)
			if exitDay.Weekday() == time.Saturday || exitDay.Weekday() == time.Sunday {
				return true
			}
			exitAt := at(exitDay, 9, 15).Add(time.Duration(minute) * time.Minute)

			e := NewHullMA(strategyConfig(), deps(src))
			res, err := e.Run(context.Background(), []models.Signal{
				signal(models.SignalEntry, at(mon, 9, 30), 17420, 1),
				signal(models.SignalExit, exitAt, 17420, 1),
			})
			if err != nil || len(res.Fills) != 4 {
				return false
			}
			for _, f := range res.Fills[2:] {
				if exitDay.After(thu) {
					if f.Event != models.EventExpiryExit || !f.Time.Equal(at(thu, 15, 29)) {
						return false
					}
					continue
				}
				if f.Event != models.EventExitSignal || !f.Time.Equal(exitAt) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 374),
	))

	properties.TestingRun(t)
}

func TestShortLegTrailsByDefault(t *testing.T) {
	src := pricing.NewMemorySource()
	src.AddBars(key(17400, models.OptionTypeCall, thu), flat(tue, 100)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), session(tue, func(ts time.Time) float64 {
		switch {
		case ts.Before(at(tue, 11, 0)):
			return 100
		case ts.Before(at(tue, 12, 0)):
			return 90
		}
		return 110
	})...)

	cfg := strategyConfig()
	cfg.SLCheck = &config.LegPercents{PE: pct(20)}
	require.Nil(t, cfg.TrailingSL)

	e := NewHullMA(cfg, deps(src))
	res, err := e.Run(context.Background(), []models.Signal{
		signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
		signal(models.SignalExit, at(tue, 15, 0), 17420, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Fills, 4)

	// Stop starts at 120, trails to 108 on the 90 close, fires on 110.
	peExit := res.Fills[3]
	assert.Equal(t, models.RolePut, peExit.Role)
	assert.Equal(t, models.EventSLExit, peExit.Event)
	assert.Equal(t, at(tue, 12, 0), peExit.Time)
	assert.Equal(t, 110.0, peExit.Price)
	assert.Equal(t, -500.0, peExit.ProfitLoss)

	t.Run("fixed stop when disabled", func(t *testing.T) {
		fixed := false
		cfg.TrailingSL = &fixed
		res, err := NewHullMA(cfg, deps(src)).Run(context.Background(), []models.Signal{
			signal(models.SignalEntry, at(tue, 10, 0), 17420, 1),
			signal(models.SignalExit, at(tue, 15, 0), 17420, 1),
		})
		require.NoError(t, err)
		assert.Equal(t, models.EventExitSignal, res.Fills[3].Event)
		assert.Equal(t, at(tue, 15, 0), res.Fills[3].Time)
	})
}
