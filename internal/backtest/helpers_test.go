package backtest

import (
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/calendar"
	"options-backtester/internal/config"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

var (
	tue = date(2022, 2, 1)
	wed = date(2022, 2, 2)
	thu = date(2022, 2, 3) // weekly expiry
	fri = date(2022, 2, 4)
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(day time.Time, hour, minute int) time.Time {
	return calendar.At(day, hour, minute)
}

func pct(v float64) *float64 {
	return &v
}

// session returns one bar per minute from 09:15 to 15:29 priced by fn.
func session(day time.Time, fn func(time.Time) float64) []models.Bar {
	var bars []models.Bar
	for ts := at(day, 9, 15); !ts.After(at(day, 15, 29)); ts = ts.Add(time.Minute) {
		c := fn(ts)
		bars = append(bars, models.Bar{Timestamp: ts, Open: c, High: c, Low: c, Close: c})
	}
	return bars
}

func flat(day time.Time, close float64) []models.Bar {
	return session(day, func(time.Time) float64 { return close })
}

// step returns before until the given clock time, after from then on.
func step(day time.Time, before, after float64, hour, minute int) []models.Bar {
	pivot := at(day, hour, minute)
	return session(day, func(ts time.Time) float64 {
		if ts.Before(pivot) {
			return before
		}
		return after
	})
}

func key(strike int, optionType models.OptionType, expiry time.Time) models.SeriesKey {
	return models.SeriesKey{Script: "NIFTY", Strike: strike, OptionType: optionType, Expiry: expiry}
}

func strategyConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		Script:                "NIFTY",
		QuantityPerLot:        50,
		StrikeIncrement:       50,
		SpreadStrikeIncrement: 100,
	}
}

func deps(src *pricing.MemorySource) Deps {
	return Deps{
		Source:   src,
		Index:    src,
		Calendar: calendar.New(nil, 0),
		Logger:   zerolog.Nop(),
	}
}

func signal(kind models.SignalKind, ts time.Time, price float64, contracts int) models.Signal {
	return models.Signal{Timestamp: ts, Kind: kind, Price: price, Contracts: contracts}
}

// pairSource has 17400 CE at 100 on Tuesday and 120 on Wednesday,
// 17400 PE at 80 on Tuesday and 70 on Wednesday.
func pairSource() *pricing.MemorySource {
	src := pricing.NewMemorySource()
	src.AddBars(key(17400, models.OptionTypeCall, thu), flat(tue, 100)...)
	src.AddBars(key(17400, models.OptionTypeCall, thu), flat(wed, 120)...)
	src.AddBars(key(17400, models.OptionTypeCall, thu), flat(thu, 130)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), flat(tue, 80)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), flat(wed, 70)...)
	src.AddBars(key(17400, models.OptionTypePut, thu), flat(thu, 60)...)
	return src
}
