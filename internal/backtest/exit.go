package backtest

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"

	"options-backtester/internal/logging"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// StopLossPrice returns the stop price for a leg entered at entry.
// Long legs stop below entry, short legs above.
func StopLossPrice(entry, pct float64, long bool) float64 {
	if long {
		return utils.PercentOf(entry, -pct)
	}
	return utils.PercentOf(entry, pct)
}

// TakeProfitPrice returns the target price for a leg entered at entry.
// Long legs target above entry, short legs below.
func TakeProfitPrice(entry, pct float64, long bool) float64 {
	if long {
		return utils.PercentOf(entry, pct)
	}
	return utils.PercentOf(entry, -pct)
}

// Trigger is the outcome of scanning a leg for stop-loss and take-profit.
type Trigger struct {
	Triggered bool
	Event     models.EventType
	Price     float64
	At        time.Time
}

// Evaluator scans bars for stop-loss and take-profit breaches.
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate scans bars, ascending and strictly inside the holding window.
// The stop-loss is checked across the whole range first; take-profit is only
// checked when the stop never fires. A trailed stop is written back to the leg.
func (e *Evaluator) Evaluate(leg *Leg, bars []models.Bar) Trigger {
	if t := e.scanStopLoss(leg, bars); t.Triggered {
		return t
	}
	return e.scanTakeProfit(leg, bars)
}

func (e *Evaluator) scanStopLoss(leg *Leg, bars []models.Bar) Trigger {
	if leg.StopLoss.IsNone() {
		return Trigger{}
	}
	sl := leg.StopLoss.Unwrap()
	long := leg.IsLong()

	defer func() {
		leg.StopLoss = optional.Some(sl)
	}()

	for _, bar := range bars {
		if long {
			if bar.Close < sl {
				return Trigger{Triggered: true, Event: models.EventSLExit, Price: bar.Close, At: bar.Timestamp}
			}
			continue
		}

		if bar.Close > sl {
			return Trigger{Triggered: true, Event: models.EventSLExit, Price: bar.Close, At: bar.Timestamp}
		}
		if pct, err := leg.TrailPct.Take(); err == nil {
			if candidate := utils.PercentOf(bar.Close, pct); candidate < sl {
				logging.LogStopTrail(e.logger, leg.Symbol(), sl, candidate, bar.Timestamp)
				sl = candidate
			}
		}
	}
	return Trigger{}
}

func (e *Evaluator) scanTakeProfit(leg *Leg, bars []models.Bar) Trigger {
	if leg.TakeProfit.IsNone() {
		return Trigger{}
	}
	tp := leg.TakeProfit.Unwrap()
	long := leg.IsLong()

	for _, bar := range bars {
		if (long && bar.Close >= tp) || (!long && bar.Close <= tp) {
			return Trigger{Triggered: true, Event: models.EventTakeProfitExit, Price: bar.Close, At: bar.Timestamp}
		}
	}
	return Trigger{}
}
