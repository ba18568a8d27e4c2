package config

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "options-backtester/internal/errors"
)

const hullMATemplate = `# Options backtester: hull_ma engine
# Buys CE and sells PE at the ATM strike on ET signals, exits on EX.

engine = "hull_ma"
script = "NIFTY"
quantity_per_lot = 50
# ATM strike is the signal price rounded down to this increment
strike_increment = 50
# Use the monthly (last Thursday) expiry instead of the weekly one
monthly_expiry = false
# Close every open leg at 15:29 and re-enter at 09:15 on the next trading day
close_position_at_day_end = false

input_file_path = "signals.csv"
output_file_path = "ledger.csv"
db_file_path = "backtest.db"

# initial_capital_ce = 200000.0
# initial_capital_pe = 200000.0

# Skip the call leg when price * lots * quantity_per_lot exceeds the premium
# [ce_premium_check]
# premium = 10000.0

# Stop-loss percentage per leg
# [sl_check]
# CE = 50.0
# PE = 50.0

# Take-profit percentage per leg
# [tp_check]
# CE = 100.0
# PE = 50.0

# Known gaps in the historical data, priced at 0
# [[missing_data]]
# strike = 17400
# start_datetime = "2022-02-03 09:15:00"
# end_datetime = "2022-02-03 15:29:00"

[log]
level = "info"
console = true
file = false
`

const straddleTemplate = `# Options backtester: straddle engine
# Sells CE and PE around the index ATM strike every trading day.

engine = "straddle"
script = "NIFTY"
quantity_per_lot = 50
lot_size = 1
strike_increment = 50
# Offsets added to the ATM strike
ce_strike = 0
pe_strike = 0
backtesting_start_date = "2022-01-03"
backtesting_end_date = "2022-03-31"
entry_time = "09:20"
exit_time = "15:15"
trailing_sl = true

output_file_path = "ledger.csv"
db_file_path = "backtest.db"

# Dates without index data, skipped instead of failing the run
# missing_index_data = ["2022-02-24"]

[sl_check]
CE = 25.0
PE = 25.0

[log]
level = "info"
console = true
file = false
`

const calendarTemplate = `# Options backtester: calendar engine
# ETL trades a PE calendar, ETS a CE calendar. Buys the current week and
# sells the next week at the same strike.

engine = "calendar"
script = "NIFTY"
quantity_per_lot = 50
spread_strike_increment = 100
# Offsets added to the nearest strike
ce_strike = 0
pe_strike = 0
# Set false to keep the sold leg stop fixed at entry
trailing_sl = true

input_file_path = "signals.csv"
output_file_path = "ledger.csv"
db_file_path = "backtest.db"

# initial_capital = 300000.0

# Stop-loss on the sold leg; both legs exit when it triggers
# [sl_check]
# CE = 30.0
# PE = 30.0

[log]
level = "info"
console = true
file = false
`

// Template returns the sample configuration for an engine.
func Template(engine string) (string, error) {
	switch engine {
	case EngineHullMA:
		return hullMATemplate, nil
	case EngineStraddle:
		return straddleTemplate, nil
	case EngineCalendar:
		return calendarTemplate, nil
	}
	return "", fmt.Errorf("unknown engine %q", engine)
}

// WriteTemplate writes a sample configuration for an engine. Existing files are kept.
func WriteTemplate(path, engine string) error {
	content, err := Template(engine)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrap(err, "creating config directory")
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return apperrors.Wrap(err, "writing config template")
	}

	return nil
}
