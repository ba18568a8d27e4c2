package cli

import (
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/analytics"
	"options-backtester/internal/backtest"
	"options-backtester/internal/calendar"
	"options-backtester/internal/config"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
	"options-backtester/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest",
		Long: `Run the engine named in the parameter set against the historical database.

The ledger CSV and the stored run are written only when the whole run
completes; a failed run leaves no output behind.`,
		Example: `  backtester run --config hull.json
  backtester run --config straddle.toml --output straddle.csv --no-save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}

			if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
				cfg.Engine = engine
			}
			if input, _ := cmd.Flags().GetString("input"); input != "" {
				cfg.Paths.InputFilePath = input
			}
			if out, _ := cmd.Flags().GetString("output"); out != "" {
				cfg.Paths.OutputFilePath = out
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			noSave, _ := cmd.Flags().GetBool("no-save")
			return runBacktest(cmd, app, cfg, !noSave)
		},
	}

	cmd.Flags().String("engine", "", "override the engine in the parameter set")
	cmd.Flags().StringP("input", "i", "", "signal CSV (overrides input_file_path)")
	cmd.Flags().StringP("output", "o", "", "ledger CSV (overrides output_file_path)")
	cmd.Flags().Bool("no-save", false, "do not persist the run in the database")

	return cmd
}

func runBacktest(cmd *cobra.Command, app *App, cfg *config.Config, save bool) error {
	ctx := cmd.Context()
	output := NewOutput(cmd)
	logger := logging.WithStrategy(app.Logger, cfg.Engine)

	st, err := app.OpenStore(cfg.Paths.DBFilePath)
	if err != nil {
		return err
	}

	start := time.Now()
	holidays, err := st.LoadHolidays(ctx)
	if err != nil {
		return err
	}
	logging.LogStage(logger, "load_holidays", time.Since(start), nil)

	engine, err := backtest.New(cfg, backtest.Deps{
		Source:   st,
		Index:    st,
		Calendar: calendar.New(holidays, cfg.MaxHolidaySearchDays),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var signals []models.Signal
	if cfg.Engine != config.EngineStraddle {
		if signals, err = store.ReadSignalsFile(cfg.Paths.InputFilePath); err != nil {
			return err
		}
		logger.Info().Int("signals", len(signals)).Str("file", cfg.Paths.InputFilePath).Msg("Signals loaded")
	}

	start = time.Now()
	result, err := engine.Run(ctx, signals)
	logging.LogStage(logger, "simulate", time.Since(start), err)
	if err != nil {
		return err
	}

	if err := store.WriteLedgerFile(cfg.Paths.OutputFilePath, result.Fills); err != nil {
		return err
	}

	summaries := result.Summaries()
	run := &store.Run{
		Engine:    cfg.Engine,
		Script:    cfg.Strategy.Script,
		NetPnL:    netPnL(summaries),
		Fills:     result.Fills,
		Summaries: summaries,
	}
	if save {
		if err := st.SaveRun(ctx, run); err != nil {
			return apperrors.Wrap(err, "ledger written but run not saved")
		}
		runLogger := logging.WithRun(logger, run.ID)
		runLogger.Info().Int("fills", len(run.Fills)).Msg("Run saved")
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"run_id":    run.ID,
			"engine":    run.Engine,
			"ledger":    cfg.Paths.OutputFilePath,
			"fills":     len(run.Fills),
			"net_pnl":   run.NetPnL,
			"summaries": summaries,
		})
	}

	output.Success("✓ Backtest complete: %d ledger rows written to %s", len(run.Fills), cfg.Paths.OutputFilePath)
	if run.ID != "" {
		output.Dim("Run ID: %s", run.ID)
	}
	output.Println()
	printSummaries(output, summaries)
	output.Println()
	output.Printf("Net P&L: %s\n", output.FormatPnL(run.NetPnL))
	return nil
}

func netPnL(summaries []analytics.Summary) float64 {
	total := 0.0
	for _, s := range summaries {
		total += s.ProfitLoss
	}
	return total
}
