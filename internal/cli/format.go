package cli

import (
	"fmt"

	"github.com/moznion/go-optional"

	"options-backtester/internal/analytics"
	"options-backtester/pkg/utils"
)

// FormatOptionalCurrency formats a value that may be undefined.
func FormatOptionalCurrency(v optional.Option[float64]) string {
	if v.IsNone() {
		return "-"
	}
	return utils.FormatIndianCurrency(v.Unwrap())
}

// FormatOptionalPercent formats an optional percentage.
func FormatOptionalPercent(v optional.Option[float64]) string {
	if v.IsNone() {
		return "-"
	}
	return utils.FormatPercent(v.Unwrap())
}

// summaryRows lays out one analysis summary as label/value pairs.
func summaryRows(o *Output, s analytics.Summary) [][2]string {
	return [][2]string{
		{"Initial Capital", FormatOptionalCurrency(s.InitialCapital)},
		{"Lot Size", fmt.Sprintf("%d", s.LotSize)},
		{"Total Trades", fmt.Sprintf("%d", s.TotalTrades)},
		{"Profit/Loss", o.FormatPnL(s.ProfitLoss)},
		{"Ending Capital", FormatOptionalCurrency(s.EndingCapital)},
		{"Returns", FormatOptionalPercent(s.Returns)},
		{"Win Trades", fmt.Sprintf("%d", s.WinTrades)},
		{"Loss Trades", fmt.Sprintf("%d", s.LossTrades)},
		{"Win %", fmt.Sprintf("%.2f%%", s.WinPercent)},
		{"Loss %", fmt.Sprintf("%.2f%%", s.LossPercent)},
		{"Win Ratio", fmt.Sprintf("%.2f", s.WinRatio)},
		{"Avg Win", utils.FormatIndianCurrency(s.AvgWin)},
		{"Avg Loss", utils.FormatIndianCurrency(s.AvgLoss)},
		{"Avg Win / Avg Loss", fmt.Sprintf("%.2f", s.AvgWinLoss)},
		{"Profit Potential", fmt.Sprintf("%.2f", s.ProfitPotential)},
		{"Consecutive Wins", fmt.Sprintf("%d", s.ConsecutiveWins)},
		{"Consecutive Losses", fmt.Sprintf("%d", s.ConsecutiveLosses)},
		{"Drawdown", FormatOptionalCurrency(s.Drawdown)},
	}
}

// printSummaries renders one table per analysis.
func printSummaries(o *Output, summaries []analytics.Summary) {
	for i, s := range summaries {
		if i > 0 {
			o.Println()
		}
		o.Bold("%s analysis", s.Name)
		table := NewTable(o, "Metric", "Value")
		for _, row := range summaryRows(o, s) {
			table.AddRow(row[0], row[1])
		}
		table.Render()
	}
}
