package analytics

import "github.com/moznion/go-optional"

// Summary is a finalized snapshot of a StrategyAnalysis.
type Summary struct {
	Name              string                   `json:"name"`
	InitialCapital    optional.Option[float64] `json:"initial_capital"`
	LotSize           int                      `json:"lot_size"`
	TotalTrades       int                      `json:"total_trades"`
	ProfitLoss        float64                  `json:"profit_loss"`
	EndingCapital     optional.Option[float64] `json:"ending_capital"`
	Returns           optional.Option[float64] `json:"returns"`
	WinTrades         int                      `json:"win_trades"`
	WinPercent        float64                  `json:"win_percent"`
	LossTrades        int                      `json:"loss_trades"`
	LossPercent       float64                  `json:"loss_percent"`
	WinRatio          float64                  `json:"win_ratio"`
	AvgWin            float64                  `json:"avg_win"`
	AvgLoss           float64                  `json:"avg_loss"`
	AvgWinLoss        float64                  `json:"avg_win_loss"`
	ProfitPotential   float64                  `json:"profit_potential"`
	ConsecutiveWins   int                      `json:"consecutive_wins"`
	ConsecutiveLosses int                      `json:"consecutive_losses"`
	Drawdown          optional.Option[float64] `json:"drawdown"`
}

// Summarize finalizes the analysis.
func (a *StrategyAnalysis) Summarize() Summary {
	return Summary{
		Name:              a.Name,
		InitialCapital:    a.InitialCapital,
		LotSize:           a.LotSize,
		TotalTrades:       a.TotalTrades,
		ProfitLoss:        a.ProfitLoss(),
		EndingCapital:     a.EndingCapital(),
		Returns:           a.Returns(),
		WinTrades:         a.WinTrades,
		WinPercent:        a.WinPercent(),
		LossTrades:        a.LossTrades,
		LossPercent:       a.LossPercent(),
		WinRatio:          a.WinRatio(),
		AvgWin:            a.AvgWin(),
		AvgLoss:           a.AvgLoss(),
		AvgWinLoss:        a.AvgWinLoss(),
		ProfitPotential:   a.ProfitPotential(),
		ConsecutiveWins:   a.Streak.MaxWin,
		ConsecutiveLosses: a.Streak.MaxLoss,
		Drawdown:          a.Drawdown(),
	}
}
