// Package cli provides the command-line interface for the backtester.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-backtester/internal/config"
	"options-backtester/internal/logging"
	"options-backtester/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
	Store      store.DataStore
	debug      bool
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "Options backtesting engine for NSE index options",
		Long: `Backtester replays trade signals against historical minute-level option
prices and produces a trade ledger plus per-leg performance analytics.

Engines:
  hull_ma    buy CE / sell PE at the ATM strike on ET/EX signals
  straddle   sell CE and PE every trading day from index data
  calendar   CE/PE calendar spreads on ETL/EXL/ETS/EXS signals

Use 'backtester config init --engine <name>' to write a starter parameter file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.ConfigPath, _ = cmd.Flags().GetString("config")
			app.debug, _ = cmd.Flags().GetBool("debug")
			if app.debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "parameter set file (json, toml or yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newAnalysisCmd(app))

	return rootCmd
}

// LoadConfig loads the parameter set named by --config and rebuilds the
// logger from its log section.
func (a *App) LoadConfig() (*config.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	if a.ConfigPath == "" {
		return nil, fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLoggerWithConfig(cfg.Log)
	if a.debug {
		logger = logger.Level(zerolog.DebugLevel)
	}
	a.Logger = logger
	a.Config = cfg
	return cfg, nil
}

// OpenStore opens the SQLite database at path, reusing an open store.
func (a *App) OpenStore(path string) (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	a.Store = s
	return s, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Backtester v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Validate parameter sets and write starter templates.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the parameter set given by --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg, err := app.LoadConfig()
			if err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"valid": true, "engine": cfg.Engine})
			}
			output.Success("✓ Configuration is valid (engine %s)", cfg.Engine)
			return nil
		},
	})

	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a starter parameter file for an engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			engine, _ := cmd.Flags().GetString("engine")
			if err := config.WriteTemplate(args[0], engine); err != nil {
				return err
			}
			output.Success("✓ Wrote %s template to %s", engine, args[0])
			return nil
		},
	}
	initCmd.Flags().String("engine", config.EngineHullMA, "engine: hull_ma, straddle or calendar")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the loaded parameter set",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	s := cfg.Strategy
	output.Bold("Engine")
	output.Printf("  Name:             %s\n", cfg.Engine)
	output.Printf("  Script:           %s\n", s.Script)
	output.Printf("  Quantity/Lot:     %d\n", s.QuantityPerLot)
	output.Printf("  Strike Increment: %d\n", s.StrikeIncrement)
	output.Printf("  Monthly Expiry:   %v\n", s.MonthlyExpiry)
	output.Printf("  Day-End Close:    %v\n", s.ClosePositionAtDayEnd)
	output.Printf("  Trailing SL:      %v\n", s.Trailing())
	output.Println()

	output.Bold("Paths")
	output.Printf("  Input:            %s\n", cfg.Paths.InputFilePath)
	output.Printf("  Output:           %s\n", cfg.Paths.OutputFilePath)
	output.Printf("  Database:         %s\n", cfg.Paths.DBFilePath)
}
