// Package analytics provides running performance statistics for a backtest.
package analytics

import (
	"math"

	"github.com/moznion/go-optional"

	"options-backtester/pkg/utils"
)

// StrategyAnalysis accumulates results for one leg role or one spread.
// It is updated once per completed leg exit.
type StrategyAnalysis struct {
	Name           string
	LotSize        int
	TotalTrades    int
	Profit         float64
	Loss           float64 // Sum of non-positive P&L, always <= 0
	WinTrades      int
	LossTrades     int
	Streak         StreakTracker
	InitialCapital optional.Option[float64]
	EquityCurve    []float64
}

// New creates an empty analysis. Pass optional.None to disable the equity curve.
func New(name string, initialCapital optional.Option[float64]) *StrategyAnalysis {
	return &StrategyAnalysis{
		Name:           name,
		InitialCapital: initialCapital,
	}
}

// RecordEntry counts a true entry and tracks the largest lot size traded.
// Soft re-entries are not counted.
func (a *StrategyAnalysis) RecordEntry(lotSize int) {
	a.TotalTrades++
	a.LotSize = max(a.LotSize, lotSize)
}

// RecordExit books the P&L of one leg exit.
func (a *StrategyAnalysis) RecordExit(pnl float64) {
	if pnl > 0 {
		a.Profit += pnl
		a.WinTrades++
	} else {
		a.Loss += pnl
		a.LossTrades++
	}
	a.Streak.Record(pnl)

	if capital, err := a.InitialCapital.Take(); err == nil {
		prev := capital
		if n := len(a.EquityCurve); n > 0 {
			prev = a.EquityCurve[n-1]
		}
		a.EquityCurve = append(a.EquityCurve, utils.Round2(prev+pnl))
	}
}

// ProfitLoss returns net P&L.
func (a *StrategyAnalysis) ProfitLoss() float64 {
	return utils.Round2(a.Profit + a.Loss)
}

// AvgWin returns the mean winning P&L.
func (a *StrategyAnalysis) AvgWin() float64 {
	return utils.Round2(utils.SafeDiv(a.Profit, float64(a.WinTrades)))
}

// AvgLoss returns the mean losing P&L (non-positive).
func (a *StrategyAnalysis) AvgLoss() float64 {
	return utils.Round2(utils.SafeDiv(a.Loss, float64(a.LossTrades)))
}

// Exits returns the number of booked leg exits, soft and partial exits included.
func (a *StrategyAnalysis) Exits() int {
	return a.WinTrades + a.LossTrades
}

// WinPercent returns wins as a percentage of booked exits.
func (a *StrategyAnalysis) WinPercent() float64 {
	return utils.Round2(utils.SafeDiv(float64(a.WinTrades), float64(a.Exits())) * 100)
}

// LossPercent returns losses as a percentage of booked exits.
func (a *StrategyAnalysis) LossPercent() float64 {
	return utils.Round2(utils.SafeDiv(float64(a.LossTrades), float64(a.Exits())) * 100)
}

// WinRatio returns win trades per loss trade.
func (a *StrategyAnalysis) WinRatio() float64 {
	return utils.Round2(utils.SafeDiv(float64(a.WinTrades), float64(a.LossTrades)))
}

// AvgWinLoss returns average win over the magnitude of average loss.
func (a *StrategyAnalysis) AvgWinLoss() float64 {
	return utils.Round2(utils.SafeDiv(a.AvgWin(), math.Abs(a.AvgLoss())))
}

// ProfitPotential returns gross average win over gross average loss.
func (a *StrategyAnalysis) ProfitPotential() float64 {
	gross := math.Abs(a.AvgLoss()) * float64(a.LossTrades)
	return utils.Round2(utils.SafeDiv(a.AvgWin()*float64(a.WinTrades), gross))
}

// EndingCapital returns initial capital plus net P&L.
func (a *StrategyAnalysis) EndingCapital() optional.Option[float64] {
	if a.InitialCapital.IsNone() {
		return optional.None[float64]()
	}
	return optional.Some(utils.Round2(a.InitialCapital.Unwrap() + a.ProfitLoss()))
}

// Returns returns net P&L as a percentage of initial capital.
func (a *StrategyAnalysis) Returns() optional.Option[float64] {
	if a.InitialCapital.IsNone() {
		return optional.None[float64]()
	}
	return optional.Some(utils.Round2(utils.SafeDiv(a.ProfitLoss(), a.InitialCapital.Unwrap()) * 100))
}

// Drawdown returns the peak minus trough at the point of largest decline
// in the equity curve, in currency units.
func (a *StrategyAnalysis) Drawdown() optional.Option[float64] {
	if a.InitialCapital.IsNone() || len(a.EquityCurve) < 2 {
		return optional.None[float64]()
	}
	return optional.Some(MaxDrawdown(a.EquityCurve))
}

// MaxDrawdown returns the largest running-peak to value decline of a curve.
func MaxDrawdown(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	worst := 0.0
	for _, v := range curve[1:] {
		if v > peak {
			peak = v
			continue
		}
		if d := peak - v; d > worst {
			worst = d
		}
	}
	return utils.Round2(worst)
}
