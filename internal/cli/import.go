package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"options-backtester/internal/calendar"
	"options-backtester/internal/store"
)

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import historical data into the database",
		Long: `Import vendor CSV exports into the SQLite database used by backtests.

Import holidays first: monthly option expiries in bar file names are
resolved against the stored holiday calendar.`,
	}
	cmd.PersistentFlags().String("db", "", "database path (default: db_file_path from --config or BACKTEST_DB_PATH)")

	cmd.AddCommand(newImportBarsCmd(app))
	cmd.AddCommand(newImportHolidaysCmd(app))
	cmd.AddCommand(newImportIndexCmd(app))
	return cmd
}

// resolveDBPath picks the database from --db, the parameter set or the environment.
func resolveDBPath(cmd *cobra.Command, app *App) (string, error) {
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		return path, nil
	}
	if app.ConfigPath != "" {
		cfg, err := app.LoadConfig()
		if err != nil {
			return "", err
		}
		return cfg.Paths.DBFilePath, nil
	}
	if path := os.Getenv("BACKTEST_DB_PATH"); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("no database given: use --db, --config or BACKTEST_DB_PATH")
}

func (a *App) importer(cmd *cobra.Command) (*store.Importer, error) {
	path, err := resolveDBPath(cmd, a)
	if err != nil {
		return nil, err
	}
	st, err := a.OpenStore(path)
	if err != nil {
		return nil, err
	}
	holidays, err := st.LoadHolidays(cmd.Context())
	if err != nil {
		return nil, err
	}
	maxDays := 0
	if a.Config != nil {
		maxDays = a.Config.MaxHolidaySearchDays
	}
	return store.NewImporter(st, calendar.New(holidays, maxDays), a.Logger), nil
}

func newImportBarsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bars <dir|file.csv>",
		Short: "Import option minute bars",
		Long: `Import option minute bars. A directory is walked one level deep
(per-year sub-directories); each file is named after its contract, e.g.
NIFTY17400FEB22CE.csv (monthly) or NIFTY1740003FEB22CE.csv (weekly).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			workers, _ := cmd.Flags().GetInt("workers")
			im, err := app.importer(cmd)
			if err != nil {
				return err
			}

			files := []string{args[0]}
			if info, err := os.Stat(args[0]); err != nil {
				return err
			} else if info.IsDir() {
				if files, err = store.BarFiles(args[0]); err != nil {
					return err
				}
			}

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetDescription("Importing bars"),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionSetVisibility(!output.IsJSON()),
			)
			stats, err := im.ImportBarFiles(cmd.Context(), files, workers, func(string, int, error) {
				bar.Add(1)
			})
			bar.Finish()
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(stats)
			}
			output.Println()
			output.Success("✓ Imported %d bars from %d files", stats.Bars, stats.Files-stats.Failed)
			if stats.Failed > 0 {
				output.Warning("%d files skipped, see log for details", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().Int("workers", 4, "parallel file parsers")
	return cmd
}

func newImportHolidaysCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "holidays <file>",
		Short: "Import exchange holidays (one DD-Mon-YYYY date per line)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			im, err := app.importer(cmd)
			if err != nil {
				return err
			}
			added, err := im.ImportHolidayFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"added": added})
			}
			output.Success("✓ Added %d holidays", added)
			return nil
		},
	}
}

func newImportIndexCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <file.csv>...",
		Short: "Import underlying index minute bars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			script, _ := cmd.Flags().GetString("script")
			im, err := app.importer(cmd)
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(len(args),
				progressbar.OptionSetDescription("Importing index"),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionSetVisibility(!output.IsJSON()),
			)

			total := 0
			for _, f := range args {
				n, err := im.ImportIndexFile(cmd.Context(), f, script)
				if err != nil {
					return err
				}
				total += n
				bar.Add(1)
			}
			bar.Finish()

			if output.IsJSON() {
				return output.JSON(map[string]int{"bars": total})
			}
			output.Println()
			output.Success("✓ Imported %d index bars", total)
			return nil
		},
	}
	cmd.Flags().String("script", "", "index name (default: Ticker column)")
	return cmd
}
