// Package config provides configuration management for backtest runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/moznion/go-optional"
	"github.com/spf13/viper"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
)

// Engine names.
const (
	EngineHullMA   = "hull_ma"
	EngineStraddle = "straddle"
	EngineCalendar = "calendar"
)

// Layouts accepted for date and datetime values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Config holds one backtest parameter set.
type Config struct {
	Engine               string            `mapstructure:"engine" validate:"required,oneof=hull_ma straddle calendar"`
	Strategy             StrategyConfig    `mapstructure:",squash"`
	Paths                PathsConfig       `mapstructure:",squash"`
	Log                  logging.LogConfig `mapstructure:"log"`
	MaxHolidaySearchDays int               `mapstructure:"max_holiday_search_days" validate:"gte=0"`
}

// StrategyConfig holds the values the simulation core consumes.
type StrategyConfig struct {
	Script                string             `mapstructure:"script" validate:"required"`
	QuantityPerLot        int                `mapstructure:"quantity_per_lot" validate:"gte=0"`
	LotSize               int                `mapstructure:"lot_size" validate:"gte=0"`
	StrikeIncrement       int                `mapstructure:"strike_increment" validate:"gte=0"`
	SpreadStrikeIncrement int                `mapstructure:"spread_strike_increment" validate:"gte=0"`
	CEStrike              int                `mapstructure:"ce_strike"`
	PEStrike              int                `mapstructure:"pe_strike"`
	MonthlyExpiry         bool               `mapstructure:"monthly_expiry"`
	CEPremiumCheck        *PremiumCheck      `mapstructure:"ce_premium_check"`
	SLCheck               *LegPercents       `mapstructure:"sl_check"`
	TPCheck               *LegPercents       `mapstructure:"tp_check"`
	TrailingSL            *bool              `mapstructure:"trailing_sl"`
	ClosePositionAtDayEnd bool               `mapstructure:"close_position_at_day_end"`
	InitialCapitalCE      *float64           `mapstructure:"initial_capital_ce" validate:"omitempty,gt=0"`
	InitialCapitalPE      *float64           `mapstructure:"initial_capital_pe" validate:"omitempty,gt=0"`
	InitialCapital        *float64           `mapstructure:"initial_capital" validate:"omitempty,gt=0"`
	MissingData           []MissingDataRange `mapstructure:"missing_data" validate:"dive"`
	MissingIndexData      []time.Time        `mapstructure:"missing_index_data"`
	BacktestingStartDate  time.Time          `mapstructure:"backtesting_start_date"`
	BacktestingEndDate    time.Time          `mapstructure:"backtesting_end_date"`
	EntryTime             string             `mapstructure:"entry_time"`
	ExitTime              string             `mapstructure:"exit_time"`
}

// PremiumCheck caps the premium paid for a bought call.
type PremiumCheck struct {
	Premium float64 `mapstructure:"premium" validate:"gt=0"`
}

// LegPercents holds an optional percentage per leg role.
type LegPercents struct {
	CE *float64 `mapstructure:"ce" validate:"omitempty,gte=0,lte=100"`
	PE *float64 `mapstructure:"pe" validate:"omitempty,gte=0,lte=100"`
}

// MissingDataRange marks a known gap in the historical data for one strike.
type MissingDataRange struct {
	Strike        int       `mapstructure:"strike" validate:"gt=0"`
	StartDatetime time.Time `mapstructure:"start_datetime" validate:"required"`
	EndDatetime   time.Time `mapstructure:"end_datetime" validate:"required,gtefield=StartDatetime"`
}

// PathsConfig holds input and output locations.
type PathsConfig struct {
	InputFilePath  string `mapstructure:"input_file_path"`
	OutputFilePath string `mapstructure:"output_file_path"`
	DBFilePath     string `mapstructure:"db_file_path"`
}

// For returns the percentage configured for an option type.
func (p *LegPercents) For(optionType models.OptionType) optional.Option[float64] {
	if p == nil {
		return optional.None[float64]()
	}
	var v *float64
	switch optionType {
	case models.OptionTypeCall:
		v = p.CE
	case models.OptionTypePut:
		v = p.PE
	}
	if v == nil {
		return optional.None[float64]()
	}
	return optional.Some(*v)
}

// StopLoss returns the stop-loss percentage for an option type.
func (s *StrategyConfig) StopLoss(optionType models.OptionType) optional.Option[float64] {
	return s.SLCheck.For(optionType)
}

// TakeProfit returns the take-profit percentage for an option type.
func (s *StrategyConfig) TakeProfit(optionType models.OptionType) optional.Option[float64] {
	return s.TPCheck.For(optionType)
}

// Trailing reports whether short legs trail their stop-loss. Unset means true.
func (s *StrategyConfig) Trailing() bool {
	return s.TrailingSL == nil || *s.TrailingSL
}

// PremiumCap returns the call premium cap, if any.
func (s *StrategyConfig) PremiumCap() optional.Option[float64] {
	if s.CEPremiumCheck == nil {
		return optional.None[float64]()
	}
	return optional.Some(s.CEPremiumCheck.Premium)
}

// Capital returns the initial capital for a role. Calendar spreads use initial_capital.
func (s *StrategyConfig) Capital(role models.Role) optional.Option[float64] {
	var v *float64
	switch role {
	case models.RoleCall:
		v = s.InitialCapitalCE
	case models.RolePut:
		v = s.InitialCapitalPE
	default:
		v = s.InitialCapital
	}
	if v == nil {
		return optional.None[float64]()
	}
	return optional.Some(*v)
}

// IsMissingData reports whether a strike and timestamp fall in a known gap.
func (s *StrategyConfig) IsMissingData(strike int, at time.Time) bool {
	for _, r := range s.MissingData {
		if r.Strike == strike && !at.Before(r.StartDatetime) && !at.After(r.EndDatetime) {
			return true
		}
	}
	return false
}

// IsMissingIndexData reports whether the index series is known to be absent on a date.
func (s *StrategyConfig) IsMissingIndexData(date time.Time) bool {
	for _, d := range s.MissingIndexData {
		if d.Year() == date.Year() && d.YearDay() == date.YearDay() {
			return true
		}
	}
	return false
}

// EntryClock parses entry_time as hour and minute.
func (s *StrategyConfig) EntryClock() (int, int, error) {
	return parseClock("entry_time", s.EntryTime)
}

// ExitClock parses exit_time as hour and minute.
func (s *StrategyConfig) ExitClock() (int, int, error) {
	return parseClock("exit_time", s.ExitTime)
}

func parseClock(field, value string) (int, int, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, apperrors.NewConfigurationError(field, fmt.Sprintf("invalid clock time %q", value), nil)
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-backtester"
	}
	return filepath.Join(home, ".config", "options-backtester")
}

// Load reads a parameter set file (JSON, TOML or YAML by extension).
// A .env file next to the config is loaded before env overrides are applied.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.NewConfigurationError("config", fmt.Sprintf("config file %s doesn't exist", path), err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, apperrors.NewConfigurationError("env", "loading .env", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.NewConfigurationError("config", "reading "+path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToTimeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, apperrors.NewConfigurationError("config", "decoding "+path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", EngineHullMA)
	v.SetDefault("strike_increment", 50)
	v.SetDefault("spread_strike_increment", 100)
	v.SetDefault("max_holiday_search_days", 30)
	v.SetDefault("entry_time", "09:20")
	v.SetDefault("exit_time", "15:15")

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.console", logDefaults.Console)
	v.SetDefault("log.file", logDefaults.File)
	v.SetDefault("log.file_path", logDefaults.FilePath)
	v.SetDefault("log.max_size", logDefaults.MaxSize)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age", logDefaults.MaxAge)
}

// stringToTimeHook decodes datetime, date and clock strings into time.Time (UTC wall clock).
func stringToTimeHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Time{}) {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{DateTimeLayout, DateLayout, time.RFC3339} {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as date or datetime", s)
	}
}

func applyEnvOverrides(cfg *Config) {
	// Legacy variable name kept for existing scripts
	if v := os.Getenv("db_file_path"); v != "" {
		cfg.Paths.DBFilePath = v
	}
	if v := os.Getenv("BACKTEST_DB_PATH"); v != "" {
		cfg.Paths.DBFilePath = v
	}
	if v := os.Getenv("BACKTEST_INPUT"); v != "" {
		cfg.Paths.InputFilePath = v
	}
	if v := os.Getenv("BACKTEST_OUTPUT"); v != "" {
		cfg.Paths.OutputFilePath = v
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewConfigurationError(
				fe.Namespace(),
				fmt.Sprintf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
				nil,
			)
		}
		return apperrors.NewConfigurationError("config", "validation failed", err)
	}

	s := &c.Strategy
	if s.CEPremiumCheck != nil && s.QuantityPerLot == 0 {
		return apperrors.NewConfigurationError("quantity_per_lot", "required when ce_premium_check is set", nil)
	}
	if s.QuantityPerLot == 0 {
		return apperrors.NewConfigurationError("quantity_per_lot", "must be set", nil)
	}
	if c.Paths.DBFilePath == "" {
		return apperrors.NewConfigurationError("db_file_path", "must be set", nil)
	}
	if c.Paths.OutputFilePath == "" {
		return apperrors.NewConfigurationError("output_file_path", "must be set", nil)
	}

	switch c.Engine {
	case EngineHullMA, EngineCalendar:
		if c.Paths.InputFilePath == "" {
			return apperrors.NewConfigurationError("input_file_path", "required for signal driven engines", nil)
		}
		if c.Engine == EngineHullMA && s.StrikeIncrement == 0 {
			return apperrors.NewConfigurationError("strike_increment", "must be positive", nil)
		}
		if c.Engine == EngineCalendar && s.SpreadStrikeIncrement == 0 {
			return apperrors.NewConfigurationError("spread_strike_increment", "must be positive", nil)
		}
	case EngineStraddle:
		if s.BacktestingStartDate.IsZero() || s.BacktestingEndDate.IsZero() {
			return apperrors.NewConfigurationError("backtesting_start_date", "start and end dates are required", nil)
		}
		if s.BacktestingEndDate.Before(s.BacktestingStartDate) {
			return apperrors.NewConfigurationError("backtesting_end_date", "before backtesting_start_date", nil)
		}
		if s.LotSize == 0 {
			return apperrors.NewConfigurationError("lot_size", "required for straddle engine", nil)
		}
		if s.StrikeIncrement == 0 {
			return apperrors.NewConfigurationError("strike_increment", "must be positive", nil)
		}
		if _, _, err := s.EntryClock(); err != nil {
			return err
		}
		if _, _, err := s.ExitClock(); err != nil {
			return err
		}
	}

	if s.SLCheck != nil && s.SLCheck.CE == nil && s.SLCheck.PE == nil {
		return apperrors.NewConfigurationError("sl_check", "needs at least one of CE or PE", nil)
	}
	if s.TPCheck != nil && s.TPCheck.CE == nil && s.TPCheck.PE == nil {
		return apperrors.NewConfigurationError("tp_check", "needs at least one of CE or PE", nil)
	}

	return nil
}
