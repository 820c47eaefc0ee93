// Package persistence records run history to SQLite: daily reports, the
// event log and compressed power frames. Nothing here restores a running
// simulation.
package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridcity/internal/engine"
)

// ErrNoRun is returned by writers called before StartRun.
var ErrNoRun = errors.New("persistence: no run started")

// DB wraps a SQLite connection for run history.
type DB struct {
	conn *sqlx.DB
	run  *Run
}

// Run identifies one simulation session.
type Run struct {
	ID        string `db:"id" json:"id"`
	StartedAt int64  `db:"started_at" json:"started_at"` // Unix seconds
	Seed      int64  `db:"seed" json:"seed"`
	Rows      int    `db:"grid_rows" json:"rows"`
	Cols      int    `db:"grid_cols" json:"cols"`
}

// DailyReport is one row of per-day statistics.
type DailyReport struct {
	Day          int     `db:"day" json:"day"`
	PoweredTiles int     `db:"powered_tiles" json:"powered_tiles"`
	Buildings    int     `db:"buildings" json:"buildings"`
	ResPop       float64 `db:"res_pop" json:"res_pop"`
	ComPop       float64 `db:"com_pop" json:"com_pop"`
	IndPop       float64 `db:"ind_pop" json:"ind_pop"`
	ResValve     float64 `db:"res_valve" json:"res_valve"`
	ComValve     float64 `db:"com_valve" json:"com_valve"`
	IndValve     float64 `db:"ind_valve" json:"ind_valve"`
}

// ReportFromStats flattens simulation statistics into a report row.
func ReportFromStats(s engine.SimStats) DailyReport {
	return DailyReport{
		Day:          s.Day,
		PoweredTiles: s.PoweredTiles,
		Buildings:    s.Buildings,
		ResPop:       s.Population.Residential,
		ComPop:       s.Population.Commercial,
		IndPop:       s.Population.Industrial,
		ResValve:     s.Valves.Residential,
		ComValve:     s.Valves.Commercial,
		IndValve:     s.Valves.Industrial,
	}
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		grid_rows INTEGER NOT NULL,
		grid_cols INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_reports (
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		powered_tiles INTEGER NOT NULL,
		buildings INTEGER NOT NULL,
		res_pop REAL NOT NULL,
		com_pop REAL NOT NULL,
		ind_pop REAL NOT NULL,
		res_valve REAL NOT NULL,
		com_valve REAL NOT NULL,
		ind_valve REAL NOT NULL,
		PRIMARY KEY (run_id, day)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS power_frames (
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		min_row INTEGER NOT NULL,
		min_col INTEGER NOT NULL,
		max_row INTEGER NOT NULL,
		max_col INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (run_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_day ON events(run_id, day);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartRun records a new run and makes it the target of later writes.
func (db *DB) StartRun(seed int64, rows, cols int) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().Unix(),
		Seed:      seed,
		Rows:      rows,
		Cols:      cols,
	}
	_, err := db.conn.NamedExec(
		"INSERT INTO runs (id, started_at, seed, grid_rows, grid_cols) VALUES (:id, :started_at, :seed, :grid_rows, :grid_cols)",
		run,
	)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	db.run = &run
	slog.Info("run started", "run", run.ID, "seed", seed, "rows", rows, "cols", cols)
	return run, nil
}

// CurrentRun returns the run being written, if any.
func (db *DB) CurrentRun() (Run, bool) {
	if db.run == nil {
		return Run{}, false
	}
	return *db.run, true
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT id, started_at, seed, grid_rows, grid_cols FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

func (db *DB) runID() (string, error) {
	if db.run == nil {
		return "", ErrNoRun
	}
	return db.run.ID, nil
}

// SaveReport upserts the report for its day.
func (db *DB) SaveReport(r DailyReport) error {
	id, err := db.runID()
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`INSERT OR REPLACE INTO daily_reports
		(run_id, day, powered_tiles, buildings, res_pop, com_pop, ind_pop, res_valve, com_valve, ind_valve)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Day, r.PoweredTiles, r.Buildings,
		r.ResPop, r.ComPop, r.IndPop,
		r.ResValve, r.ComValve, r.IndValve,
	)
	if err != nil {
		return fmt.Errorf("save report day %d: %w", r.Day, err)
	}
	return nil
}

// LoadReports returns a run's reports in day order.
func (db *DB) LoadReports(runID string) ([]DailyReport, error) {
	var reports []DailyReport
	err := db.conn.Select(&reports, `SELECT day, powered_tiles, buildings,
		res_pop, com_pop, ind_pop, res_valve, com_valve, ind_valve
		FROM daily_reports WHERE run_id = ? ORDER BY day`, runID)
	return reports, err
}

// SaveEvents appends events to the current run.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}
	id, err := db.runID()
	if err != nil {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (run_id, day, description, category) VALUES (?, ?, ?, ?)",
			id, e.Day, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT day, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

// SavePowerFrame stores the compressed supplier grid of a frame.
func (db *DB) SavePowerFrame(f Frame) error {
	id, err := db.runID()
	if err != nil {
		return err
	}
	data, err := EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode frame day %d: %w", f.Day, err)
	}
	_, err = db.conn.Exec(`INSERT OR REPLACE INTO power_frames
		(run_id, day, min_row, min_col, max_row, max_col, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, f.Day, f.Region.MinRow, f.Region.MinCol, f.Region.MaxRow, f.Region.MaxCol, data,
	)
	if err != nil {
		return fmt.Errorf("save frame day %d: %w", f.Day, err)
	}
	return nil
}

type frameRow struct {
	Day    int    `db:"day"`
	MinRow int    `db:"min_row"`
	MinCol int    `db:"min_col"`
	MaxRow int    `db:"max_row"`
	MaxCol int    `db:"max_col"`
	Data   []byte `db:"data"`
}

// LoadPowerFrame reads back the frame a run stored for day.
func (db *DB) LoadPowerFrame(runID string, day int) (Frame, error) {
	var row frameRow
	err := db.conn.Get(&row, `SELECT day, min_row, min_col, max_row, max_col, data
		FROM power_frames WHERE run_id = ? AND day = ?`, runID, day)
	if err != nil {
		return Frame{}, fmt.Errorf("load frame day %d: %w", day, err)
	}
	region := engine.DirtyRegion{MinRow: row.MinRow, MinCol: row.MinCol, MaxRow: row.MaxRow, MaxCol: row.MaxCol}
	return DecodeFrame(row.Day, region, row.Data)
}

// FrameDays lists the days a run stored frames for.
func (db *DB) FrameDays(runID string) ([]int, error) {
	var days []int
	err := db.conn.Select(&days, "SELECT day FROM power_frames WHERE run_id = ? ORDER BY day", runID)
	return days, err
}
