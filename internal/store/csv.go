package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// signalTimeLayouts are tried in order when parsing a signal timestamp.
var signalTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// SignalTime is a CSV cell holding a wall-clock timestamp.
type SignalTime struct {
	time.Time
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *SignalTime) UnmarshalCSV(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, layout := range signalTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

// signalRow is one row of the signal spreadsheet export.
type signalRow struct {
	Signal    string     `csv:"Signal"`
	Timestamp SignalTime `csv:"Date/Time"`
	Price     float64    `csv:"Price"`
	Contracts int        `csv:"Contracts"`
}

// ReadSignals parses a signal CSV in file order. Rows are never re-sorted.
func ReadSignals(r io.Reader) ([]models.Signal, error) {
	var rows []*signalRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, apperrors.NewDataError("signals", "", "failed to parse signal csv", err)
	}

	signals := make([]models.Signal, 0, len(rows))
	for i, row := range rows {
		kind, err := models.ParseSignalKind(row.Signal)
		if err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("row %d Signal", i+1), row.Signal, err.Error())
		}
		if row.Contracts <= 0 {
			return nil, apperrors.NewValidationError(fmt.Sprintf("row %d Contracts", i+1), row.Contracts, "must be positive")
		}
		signals = append(signals, models.Signal{
			Timestamp: row.Timestamp.Time,
			Kind:      kind,
			Price:     row.Price,
			Contracts: row.Contracts,
		})
	}
	return signals, nil
}

// ReadSignalsFile opens and parses a signal CSV.
func ReadSignalsFile(path string) ([]models.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signals: %w", err)
	}
	defer f.Close()
	return ReadSignals(f)
}

// ledgerRow is the CSV shape of a fill.
type ledgerRow struct {
	Trade      int     `csv:"Trade"`
	Script     string  `csv:"Script"`
	Role       string  `csv:"Role"`
	Symbol     string  `csv:"Symbol"`
	Strike     int     `csv:"Strike"`
	OptionType string  `csv:"OptionType"`
	Expiry     string  `csv:"Expiry"`
	Action     string  `csv:"Action"`
	LotSize    int     `csv:"LotSize"`
	Time       string  `csv:"EntryExitTime"`
	Price      float64 `csv:"Price"`
	ProfitLoss float64 `csv:"ProfitLoss"`
	Event      string  `csv:"ExitType"`
	Note       string  `csv:"Note"`
}

// WriteLedger writes fills as CSV with a header row.
// Skipped legs are written with an empty action and their note.
func WriteLedger(w io.Writer, fills []models.Fill) error {
	rows := make([]*ledgerRow, 0, len(fills))
	for _, f := range fills {
		action := string(f.Action)
		if f.Skipped {
			action = ""
		}
		rows = append(rows, &ledgerRow{
			Trade:      f.Trade,
			Script:     f.Script,
			Role:       string(f.Role),
			Symbol:     f.Symbol,
			Strike:     f.Strike,
			OptionType: string(f.OptionType),
			Expiry:     f.Expiry.Format(dateLayout),
			Action:     action,
			LotSize:    f.LotSize,
			Time:       f.Time.Format(timestampLayout),
			Price:      f.Price,
			ProfitLoss: f.ProfitLoss,
			Event:      string(f.Event),
			Note:       f.Note,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WriteLedgerFile writes the ledger to path, replacing any existing file.
func WriteLedgerFile(path string, fills []models.Fill) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	if err := WriteLedger(f, fills); err != nil {
		f.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return f.Close()
}

// barRow is one minute of a vendor bar export:
// Ticker,Date,Time,Open,High,Low,Close,Volume,OI with Date as YYYYMMDD.
type barRow struct {
	Ticker string  `csv:"Ticker"`
	Date   string  `csv:"Date"`
	Time   string  `csv:"Time"`
	Open   float64 `csv:"Open"`
	High   float64 `csv:"High"`
	Low    float64 `csv:"Low"`
	Close  float64 `csv:"Close"`
	Volume int64   `csv:"Volume"`
	OI     int64   `csv:"OI"`
}

// ReadBars parses a vendor bar export. The returned ticker is taken from the
// first row.
func ReadBars(r io.Reader) (string, []models.Bar, error) {
	var rows []*barRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return "", nil, fmt.Errorf("failed to parse bars: %w", err)
	}

	var ticker string
	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		ts, err := time.ParseInLocation("20060102 15:04:05", strings.TrimSpace(row.Date)+" "+strings.TrimSpace(row.Time), time.UTC)
		if err != nil {
			return "", nil, fmt.Errorf("row %d: invalid date/time %q %q: %w", i+1, row.Date, row.Time, err)
		}
		if ticker == "" {
			ticker = strings.TrimSpace(row.Ticker)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
			OI:        row.OI,
		})
	}
	return ticker, bars, nil
}

// ReadHolidays parses one DD-Mon-YYYY date per line. Blank lines are skipped.
func ReadHolidays(r io.Reader) ([]time.Time, error) {
	var dates []time.Time
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		d, err := time.ParseInLocation("02-Jan-2006", raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid holiday %q: %w", line, raw, err)
		}
		dates = append(dates, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read holidays: %w", err)
	}
	return dates, nil
}
