package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"options-backtester/internal/calendar"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// Column layouts. Timestamps are stored as UTC wall-clock text so lexical
// order matches chronological order.
const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

var (
	optionBarColumns = []string{"script", "strike", "option_type", "expiry", "ts", "open", "high", "low", "close", "volume", "oi"}
	indexBarColumns  = []string{"script", "ts", "open", "high", "low", "close", "volume"}
	fillColumns      = []string{
		"run_id", "seq", "trade", "script", "role", "symbol", "strike", "option_type", "expiry",
		"action", "lot_size", "ts", "price", "pnl", "event", "skipped", "note",
	}
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Option minute bars, one series per (script, strike, option_type, expiry)
	CREATE TABLE IF NOT EXISTS option_bars (
		script TEXT NOT NULL,
		strike INTEGER NOT NULL,
		option_type TEXT NOT NULL,
		expiry TEXT NOT NULL,
		ts TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL DEFAULT 0,
		oi INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (script, strike, option_type, expiry, ts)
	);

	-- Underlying index minute bars
	CREATE TABLE IF NOT EXISTS index_bars (
		script TEXT NOT NULL,
		ts TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (script, ts)
	);

	-- Exchange holidays
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Completed backtest runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		engine TEXT NOT NULL,
		script TEXT NOT NULL,
		created_at TEXT NOT NULL,
		fill_count INTEGER NOT NULL,
		net_pnl REAL NOT NULL,
		summaries TEXT NOT NULL
	);

	-- Ledger rows of a run
	CREATE TABLE IF NOT EXISTS fills (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		trade INTEGER NOT NULL,
		script TEXT NOT NULL,
		role TEXT NOT NULL,
		symbol TEXT NOT NULL,
		strike INTEGER NOT NULL,
		option_type TEXT NOT NULL,
		expiry TEXT NOT NULL,
		action TEXT NOT NULL,
		lot_size INTEGER NOT NULL,
		ts TEXT NOT NULL,
		price REAL NOT NULL,
		pnl REAL NOT NULL,
		event TEXT NOT NULL,
		skipped INTEGER NOT NULL DEFAULT 0,
		note TEXT,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_index_bars_ts ON index_bars(ts);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// insertStatement renders a single-row insert with positional placeholders.
func (s *SQLiteStore) insertStatement(table, options string, columns []string) (string, error) {
	builder := s.sq.Insert(table).Columns(columns...).Values(make([]interface{}, len(columns))...)
	if options != "" {
		builder = builder.Options(options)
	}
	query, _, err := builder.ToSql()
	return query, err
}

// SaveOptionBars stores bars for one option series, replacing existing minutes.
func (s *SQLiteStore) SaveOptionBars(ctx context.Context, key models.SeriesKey, bars []models.Bar) (int, error) {
	return s.SaveOptionSeries(ctx, []SeriesBars{{Key: key, Bars: bars}})
}

// SaveOptionSeries stores several option series in one transaction.
func (s *SQLiteStore) SaveOptionSeries(ctx context.Context, series []SeriesBars) (int, error) {
	type row struct {
		key    models.SeriesKey
		expiry string
		bar    models.Bar
	}
	var rows []row
	for _, sb := range series {
		expiry := sb.Key.Expiry.Format(dateLayout)
		for _, b := range sb.Bars {
			rows = append(rows, row{key: sb.Key, expiry: expiry, bar: b})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query, err := s.insertStatement("option_bars", "OR REPLACE", optionBarColumns)
	if err != nil {
		return 0, fmt.Errorf("failed to build insert: %w", err)
	}

	return s.execBatch(ctx, query, len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{
			r.key.Script, r.key.Strike, string(r.key.OptionType), r.expiry, r.bar.Timestamp.Format(timestampLayout),
			r.bar.Open, r.bar.High, r.bar.Low, r.bar.Close, r.bar.Volume, r.bar.OI,
		}
	})
}

// SaveIndexBars stores underlying index bars, replacing existing minutes.
func (s *SQLiteStore) SaveIndexBars(ctx context.Context, script string, bars []models.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	query, err := s.insertStatement("index_bars", "OR REPLACE", indexBarColumns)
	if err != nil {
		return 0, fmt.Errorf("failed to build insert: %w", err)
	}

	return s.execBatch(ctx, query, len(bars), func(i int) []interface{} {
		b := bars[i]
		return []interface{}{script, b.Timestamp.Format(timestampLayout), b.Open, b.High, b.Low, b.Close, b.Volume}
	})
}

// execBatch runs one prepared statement n times inside a transaction.
func (s *SQLiteStore) execBatch(ctx context.Context, query string, n int, args func(i int) []interface{}) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return n, nil
}

// FetchSeries returns the bars of one option series ascending by timestamp.
func (s *SQLiteStore) FetchSeries(ctx context.Context, key models.SeriesKey) ([]models.Bar, error) {
	query, args, err := s.sq.
		Select("ts", "open", "high", "low", "close", "volume", "oi").
		From("option_bars").
		Where(squirrel.Eq{
			"script":      key.Script,
			"strike":      key.Strike,
			"option_type": string(key.OptionType),
			"expiry":      key.Expiry.Format(dateLayout),
		}).
		OrderBy("ts ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", apperrors.ErrDatabaseError, key.Symbol(), err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var (
			b  models.Bar
			ts string
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OI); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// FetchIndexBars returns the index bars of one trading day ascending by timestamp.
func (s *SQLiteStore) FetchIndexBars(ctx context.Context, script string, date time.Time) ([]models.Bar, error) {
	day := calendar.Date(date)
	query, args, err := s.sq.
		Select("ts", "open", "high", "low", "close", "volume").
		From("index_bars").
		Where(squirrel.Eq{"script": script}).
		Where(squirrel.GtOrEq{"ts": day.Format(timestampLayout)}).
		Where(squirrel.Lt{"ts": day.AddDate(0, 0, 1).Format(timestampLayout)}).
		OrderBy("ts ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query index %s: %v", apperrors.ErrDatabaseError, script, err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var (
			b  models.Bar
			ts string
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan index bar: %w", err)
		}
		if b.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

// CountOptionBars returns how many bars are stored for a series.
func (s *SQLiteStore) CountOptionBars(ctx context.Context, key models.SeriesKey) (int, error) {
	query, args, err := s.sq.
		Select("COUNT(*)").
		From("option_bars").
		Where(squirrel.Eq{
			"script":      key.Script,
			"strike":      key.Strike,
			"option_type": string(key.OptionType),
			"expiry":      key.Expiry.Format(dateLayout),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return count, nil
}

// SaveHolidays stores holiday dates, skipping ones already present.
// It returns the number of newly added dates.
func (s *SQLiteStore) SaveHolidays(ctx context.Context, dates []time.Time) (int, error) {
	query, err := s.insertStatement("holidays", "OR IGNORE", []string{"date"})
	if err != nil {
		return 0, fmt.Errorf("failed to build insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, d := range dates {
		res, err := stmt.ExecContext(ctx, d.Format(dateLayout))
		if err != nil {
			return 0, fmt.Errorf("failed to insert holiday: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// LoadHolidays reads every stored holiday into an in-memory set.
func (s *SQLiteStore) LoadHolidays(ctx context.Context) (calendar.HolidaySet, error) {
	query, args, err := s.sq.Select("date").From("holidays").OrderBy("date ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	set := calendar.HolidaySet{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", raw, err)
		}
		set.Add(d)
	}

	return set, rows.Err()
}

// SaveRun persists a completed run and its ledger in one transaction.
// An empty ID is filled with a new UUID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	summaries, err := json.Marshal(run.Summaries)
	if err != nil {
		return fmt.Errorf("failed to encode summaries: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery, runArgs, err := s.sq.
		Insert("runs").
		Columns("id", "engine", "script", "created_at", "fill_count", "net_pnl", "summaries").
		Values(run.ID, run.Engine, run.Script, run.CreatedAt.Format(timestampLayout), len(run.Fills), run.NetPnL, string(summaries)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, runQuery, runArgs...); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	fillQuery, err := s.insertStatement("fills", "", fillColumns)
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fillQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, f := range run.Fills {
		_, err := stmt.ExecContext(ctx,
			run.ID, i, f.Trade, f.Script, string(f.Role), f.Symbol, f.Strike, string(f.OptionType),
			f.Expiry.Format(dateLayout), string(f.Action), f.LotSize, f.Time.Format(timestampLayout),
			f.Price, f.ProfitLoss, string(f.Event), boolToInt(f.Skipped), f.Note,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fill %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRuns lists runs newest first, without their fills.
func (s *SQLiteStore) GetRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	builder := s.sq.
		Select("id", "engine", "script", "created_at", "net_pnl", "summaries").
		From("runs").
		OrderBy("created_at DESC")

	if filter.Engine != "" {
		builder = builder.Where(squirrel.Eq{"engine": filter.Engine})
	}
	if filter.Script != "" {
		builder = builder.Where(squirrel.Eq{"script": filter.Script})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// GetRun loads one run with its ledger in original order.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query, args, err := s.sq.
		Select("id", "engine", "script", "created_at", "net_pnl", "summaries").
		From("runs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDataError("run", id, "not found", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, err
	}

	fills, err := s.getFills(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Fills = fills
	return run, nil
}

func (s *SQLiteStore) getFills(ctx context.Context, runID string) ([]models.Fill, error) {
	query, args, err := s.sq.
		Select("trade", "script", "role", "symbol", "strike", "option_type", "expiry", "action",
			"lot_size", "ts", "price", "pnl", "event", "skipped", "note").
		From("fills").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []models.Fill
	for rows.Next() {
		var (
			f                             models.Fill
			role, optionType, action, evt string
			expiry, ts                    string
			skipped                       int
			note                          sql.NullString
		)
		if err := rows.Scan(&f.Trade, &f.Script, &role, &f.Symbol, &f.Strike, &optionType, &expiry, &action,
			&f.LotSize, &ts, &f.Price, &f.ProfitLoss, &evt, &skipped, &note); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Role = models.Role(role)
		f.OptionType = models.OptionType(optionType)
		f.Action = models.Action(action)
		f.Event = models.EventType(evt)
		f.Skipped = skipped != 0
		f.Note = note.String
		if f.Expiry, err = time.ParseInLocation(dateLayout, expiry, time.UTC); err != nil {
			return nil, fmt.Errorf("invalid expiry %q: %w", expiry, err)
		}
		if f.Time, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}

	return fills, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		createdAt string
		summaries string
	)
	if err := row.Scan(&run.ID, &run.Engine, &run.Script, &createdAt, &run.NetPnL, &summaries); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if run.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(summaries), &run.Summaries); err != nil {
		return nil, fmt.Errorf("failed to decode summaries of run %s: %w", run.ID, err)
	}
	return &run, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
