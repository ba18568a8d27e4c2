package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/calendar"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/performance"
)

// filenamePattern matches e.g. NIFTY17400FEB22CE (monthly) and
// NIFTY1740003FEB22CE (weekly, expiry day appended to the strike).
var filenamePattern = regexp.MustCompile(`([A-Za-z]+)(\d+)([A-Za-z]+)(\d+)([A-Za-z]+)`)

// Instrument is the option series a bar file belongs to.
type Instrument struct {
	Name string
	Key  models.SeriesKey
}

// ParseInstrument derives the series from a bar file name. A strike that is
// a multiple of 50 is a monthly contract expiring on the holiday-adjusted last
// Thursday; otherwise the last two digits are the weekly expiry day.
func ParseInstrument(name string, cal *calendar.Calendar) (Instrument, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	m := filenamePattern.FindStringSubmatch(stem)
	if m == nil {
		return Instrument{}, apperrors.NewValidationError("filename", stem, "does not name an option series")
	}

	month, err := time.Parse("Jan", strings.ToUpper(m[3][:1])+strings.ToLower(m[3][1:]))
	if err != nil {
		return Instrument{}, apperrors.NewValidationError("filename", stem, fmt.Sprintf("invalid month %q", m[3]))
	}
	yy, _ := strconv.Atoi(m[4])
	year := 2000 + yy

	optionType := models.OptionType(strings.ToUpper(m[5]))
	if optionType != models.OptionTypeCall && optionType != models.OptionTypePut {
		return Instrument{}, apperrors.NewValidationError("filename", stem, fmt.Sprintf("invalid option type %q", m[5]))
	}

	digits := m[2]
	strike, _ := strconv.Atoi(digits)

	var expiry time.Time
	if strike%50 == 0 {
		expiry, err = cal.ValidExpiry(calendar.MonthExpiry(time.Date(year, month.Month(), 1, 0, 0, 0, 0, time.UTC)))
		if err != nil {
			return Instrument{}, err
		}
	} else {
		if len(digits) < 3 {
			return Instrument{}, apperrors.NewValidationError("filename", stem, "strike too short for a weekly contract")
		}
		strike, _ = strconv.Atoi(digits[:len(digits)-2])
		day, _ := strconv.Atoi(digits[len(digits)-2:])
		expiry = time.Date(year, month.Month(), day, 0, 0, 0, 0, time.UTC)
		if expiry.Day() != day {
			return Instrument{}, apperrors.NewValidationError("filename", stem, fmt.Sprintf("invalid expiry day %d", day))
		}
	}

	return Instrument{
		Name: stem,
		Key: models.SeriesKey{
			Script:     strings.ToUpper(m[1]),
			Strike:     strike,
			OptionType: optionType,
			Expiry:     expiry,
		},
	}, nil
}

// Importer loads vendor CSV exports into a DataStore.
type Importer struct {
	store  DataStore
	cal    *calendar.Calendar
	logger zerolog.Logger
}

// NewImporter creates an importer. The calendar resolves monthly expiries.
func NewImporter(store DataStore, cal *calendar.Calendar, logger zerolog.Logger) *Importer {
	return &Importer{store: store, cal: cal, logger: logger}
}

// barFile is a parsed bar export waiting to be saved.
type barFile struct {
	path   string
	series SeriesBars
}

func (im *Importer) parseBarFile(path string) (barFile, error) {
	inst, err := ParseInstrument(path, im.cal)
	if err != nil {
		return barFile{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return barFile{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	_, bars, err := ReadBars(f)
	if err != nil {
		return barFile{}, apperrors.NewDataError("bars", inst.Name, "failed to read", err)
	}
	return barFile{path: path, series: SeriesBars{Key: inst.Key, Bars: bars}}, nil
}

// ImportBarFile imports one option bar file named after its instrument.
func (im *Importer) ImportBarFile(ctx context.Context, path string) (int, error) {
	file, err := im.parseBarFile(path)
	if err != nil {
		return 0, err
	}

	n, err := im.store.SaveOptionBars(ctx, file.series.Key, file.series.Bars)
	if err != nil {
		return 0, apperrors.NewDataError("bars", file.series.Key.Symbol(), "failed to save", err)
	}

	im.logBarFile(file, n)
	return n, nil
}

func (im *Importer) logBarFile(file barFile, n int) {
	im.logger.Debug().
		Str("file", file.path).
		Str("symbol", file.series.Key.Symbol()).
		Str("expiry", file.series.Key.Expiry.Format(dateLayout)).
		Int("bars", n).
		Msg("Imported bars")
}

// ImportStats summarizes a bulk bar import.
type ImportStats struct {
	Files  int `json:"files"`
	Failed int `json:"failed"`
	Bars   int `json:"bars"`
}

// ProgressFunc is called once per file after it is saved or rejected.
type ProgressFunc func(path string, bars int, err error)

// importBatchSize is the number of parsed files saved per transaction.
const importBatchSize = 16

// ImportBarFiles parses files on a worker pool and saves them in batches
// from a single writer. Files that fail to parse are reported and skipped;
// a save failure stops the import.
func (im *Importer) ImportBarFiles(ctx context.Context, files []string, workers int, progress ProgressFunc) (ImportStats, error) {
	if progress == nil {
		progress = func(string, int, error) {}
	}

	type parsed struct {
		file barFile
		path string
		err  error
	}
	results := make(chan parsed, importBatchSize)

	pool := performance.NewWorkerPool(workers)
	pool.Start()
	go func() {
		defer close(results)
		for _, path := range files {
			path := path
			if !pool.Submit(ctx, func() {
				file, err := im.parseBarFile(path)
				results <- parsed{file: file, path: path, err: err}
			}) {
				break
			}
		}
		pool.Stop()
	}()

	var stats ImportStats
	batch := performance.NewBatchProcessor(importBatchSize, func(items []barFile) error {
		series := make([]SeriesBars, len(items))
		for i, f := range items {
			series[i] = f.series
		}
		if _, err := im.store.SaveOptionSeries(ctx, series); err != nil {
			return apperrors.NewDataError("bars", items[0].path, "failed to save batch", err)
		}
		for _, f := range items {
			stats.Bars += len(f.series.Bars)
			im.logBarFile(f, len(f.series.Bars))
			progress(f.path, len(f.series.Bars), nil)
		}
		return nil
	})

	var saveErr error
	for r := range results {
		stats.Files++
		if r.err != nil {
			stats.Failed++
			im.logger.Warn().Err(r.err).Str("file", r.path).Msg("Skipping bar file")
			progress(r.path, 0, r.err)
			continue
		}
		if saveErr == nil {
			saveErr = batch.Add(r.file)
		}
	}
	if saveErr == nil {
		saveErr = batch.Flush()
	}
	if saveErr != nil {
		return stats, saveErr
	}
	return stats, ctx.Err()
}

// ImportIndexFile imports underlying index minute bars. An empty script uses
// the Ticker column of the file.
func (im *Importer) ImportIndexFile(ctx context.Context, path, script string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ticker, bars, err := ReadBars(f)
	if err != nil {
		return 0, apperrors.NewDataError("index", path, "failed to read", err)
	}
	if script == "" {
		script = ticker
	}
	if script == "" {
		return 0, apperrors.NewValidationError("script", path, "no script given and no Ticker column")
	}

	n, err := im.store.SaveIndexBars(ctx, strings.ToUpper(script), bars)
	if err != nil {
		return 0, apperrors.NewDataError("index", script, "failed to save", err)
	}
	im.logger.Info().Str("file", path).Str("script", script).Int("bars", n).Msg("Imported index bars")
	return n, nil
}

// ImportHolidayFile imports a DD-Mon-YYYY holiday list and returns the
// number of new dates.
func (im *Importer) ImportHolidayFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("holiday file %s: %w", path, err)
	}
	defer f.Close()

	dates, err := ReadHolidays(f)
	if err != nil {
		return 0, err
	}
	added, err := im.store.SaveHolidays(ctx, dates)
	if err != nil {
		return 0, err
	}
	im.logger.Info().Int("read", len(dates)).Int("added", added).Msg("Imported holidays")
	return added, nil
}

// BarFiles lists the CSV files of a vendor export: files directly in dir and
// in its per-year sub-directories, sorted by path.
func BarFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if isCSV(e.Name()) {
				files = append(files, path)
			}
			continue
		}
		sub, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for _, s := range sub {
			if !s.IsDir() && isCSV(s.Name()) {
				files = append(files, filepath.Join(path, s.Name()))
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

func isCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
