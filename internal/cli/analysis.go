package cli

import (
	"github.com/spf13/cobra"

	"options-backtester/internal/store"
	"options-backtester/pkg/utils"
)

func newAnalysisCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysis [run-id]",
		Short: "List stored runs or show the analysis of one run",
		Example: `  backtester analysis --db backtest.db
  backtester analysis --db backtest.db 2f1c... --export ledger.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path, err := resolveDBPath(cmd, app)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(path)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				engine, _ := cmd.Flags().GetString("engine")
				limit, _ := cmd.Flags().GetInt("limit")
				return listRuns(cmd, output, st, store.RunFilter{Engine: engine, Limit: limit})
			}

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if export, _ := cmd.Flags().GetString("export"); export != "" {
				if err := store.WriteLedgerFile(export, run.Fills); err != nil {
					return err
				}
				if !output.IsJSON() {
					output.Success("✓ Ledger written to %s", export)
				}
			}

			if output.IsJSON() {
				return output.JSON(run)
			}
			output.Bold("Run %s", run.ID)
			output.Printf("  Engine:  %s\n", run.Engine)
			output.Printf("  Script:  %s\n", run.Script)
			output.Printf("  Created: %s\n", run.CreatedAt.Format("02-Jan-2006 15:04:05"))
			output.Printf("  Fills:   %d\n", len(run.Fills))
			output.Println()
			printSummaries(output, run.Summaries)
			return nil
		},
	}

	cmd.Flags().String("db", "", "database path (default: db_file_path from --config or BACKTEST_DB_PATH)")
	cmd.Flags().String("engine", "", "only list runs of this engine")
	cmd.Flags().Int("limit", 20, "maximum runs to list")
	cmd.Flags().String("export", "", "write the run's ledger to this CSV file")

	return cmd
}

func listRuns(cmd *cobra.Command, output *Output, st store.DataStore, filter store.RunFilter) error {
	runs, err := st.GetRuns(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(runs)
	}
	if len(runs) == 0 {
		output.Dim("No runs stored")
		return nil
	}

	table := NewTable(output, "Run ID", "Engine", "Script", "Created", "Net P&L")
	for _, r := range runs {
		table.AddRow(r.ID, r.Engine, r.Script, r.CreatedAt.Format("02-Jan-2006 15:04"), output.FormatPnL(r.NetPnL))
	}
	table.Render()
	output.Dim("%d runs, total %s", len(runs), utils.FormatPnL(sumNet(runs)))
	return nil
}

func sumNet(runs []store.Run) float64 {
	total := 0.0
	for _, r := range runs {
		total += r.NetPnL
	}
	return total
}
