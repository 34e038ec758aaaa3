package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/matk/internal/model"

	_ "modernc.org/sqlite"
)

const createSweepsTable = `
CREATE TABLE IF NOT EXISTS sweeps (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    model        TEXT NOT NULL,
    par_names    TEXT NOT NULL,
    obs_names    TEXT NOT NULL,
    num_samples  INTEGER NOT NULL,
    num_workers  INTEGER NOT NULL,
    num_failed   INTEGER NOT NULL DEFAULT 0,
    workdir_base TEXT,
    error        TEXT,
    duration_ms  INTEGER,
    created_at   DATETIME NOT NULL,
    started_at   DATETIME,
    finished_at  DATETIME
)`

const createSamplesTable = `
CREATE TABLE IF NOT EXISTS samples (
    sweep_id    TEXT NOT NULL REFERENCES sweeps(id),
    position    INTEGER NOT NULL,
    idx         TEXT NOT NULL,
    status      TEXT NOT NULL,
    params      TEXT NOT NULL,
    vals        TEXT NOT NULL,
    error       TEXT,
    duration_ms INTEGER NOT NULL,
    PRIMARY KEY (sweep_id, position)
)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS log_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    sweep_id   TEXT NOT NULL REFERENCES sweeps(id),
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createLogLinesIndex = `
CREATE INDEX IF NOT EXISTS idx_log_lines_sweep ON log_lines (sweep_id, seq)`

const sweepColumns = `id, status, model, par_names, obs_names, num_samples, num_workers,
	num_failed, workdir_base, error, duration_ms, created_at, started_at, finished_at`

// ErrNotFound is returned when a sweep is not found.
var ErrNotFound = errors.New("sweep not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every pooled connection to ":memory:" would get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createSweepsTable, createSamplesTable, createLogLinesTable, createLogLinesIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSweep inserts a new sweep record.
func (s *SQLiteStore) CreateSweep(ctx context.Context, sw *model.Sweep) error {
	parNames, err := encodeNames(sw.ParNames)
	if err != nil {
		return err
	}
	obsNames, err := encodeNames(sw.ObsNames)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sweeps (`+sweepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sw.ID, sw.Status, sw.Model, parNames, obsNames, sw.NumSamples, sw.NumWorkers,
		sw.NumFailed, sw.WorkdirBase, sw.Error, sw.DurationMS, sw.CreatedAt, sw.StartedAt, sw.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sweep: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSweep(row rowScanner) (*model.Sweep, error) {
	sw := &model.Sweep{}
	var parNames, obsNames string
	var workdirBase, errMsg sql.NullString
	if err := row.Scan(
		&sw.ID, &sw.Status, &sw.Model, &parNames, &obsNames, &sw.NumSamples, &sw.NumWorkers,
		&sw.NumFailed, &workdirBase, &errMsg, &sw.DurationMS, &sw.CreatedAt, &sw.StartedAt, &sw.FinishedAt,
	); err != nil {
		return nil, err
	}
	sw.WorkdirBase = workdirBase.String
	sw.Error = errMsg.String
	var err error
	if sw.ParNames, err = decodeNames(parNames); err != nil {
		return nil, err
	}
	if sw.ObsNames, err = decodeNames(obsNames); err != nil {
		return nil, err
	}
	return sw, nil
}

// GetSweep retrieves a sweep by ID.
func (s *SQLiteStore) GetSweep(ctx context.Context, id string) (*model.Sweep, error) {
	sw, err := scanSweep(s.db.QueryRowContext(ctx,
		`SELECT `+sweepColumns+` FROM sweeps WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sweep: %w", err)
	}
	return sw, nil
}

// ListSweeps returns a paginated list of sweeps ordered by created_at DESC,
// along with the total count of all sweeps.
func (s *SQLiteStore) ListSweeps(ctx context.Context, limit, offset int) ([]*model.Sweep, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sweeps").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sweeps: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+sweepColumns+` FROM sweeps ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list sweeps: %w", err)
	}
	defer rows.Close()

	var sweeps []*model.Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sweep: %w", err)
		}
		sweeps = append(sweeps, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sweeps: %w", err)
	}

	return sweeps, total, nil
}

// UpdateSweepStatus moves a sweep to status. The transition must be allowed
// by model.ValidTransition. Running sets started_at; terminal statuses set
// finished_at.
func (s *SQLiteStore) UpdateSweepStatus(ctx context.Context, id, status string) error {
	var current string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM sweeps WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get sweep status: %w", err)
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = s.db.ExecContext(ctx,
			"UPDATE sweeps SET status = ?, started_at = ? WHERE id = ? AND status = ?",
			status, now, id, current,
		)
	case model.IsTerminal(status):
		_, err = s.db.ExecContext(ctx,
			"UPDATE sweeps SET status = ?, finished_at = ? WHERE id = ? AND status = ?",
			status, now, id, current,
		)
	default:
		_, err = s.db.ExecContext(ctx,
			"UPDATE sweeps SET status = ? WHERE id = ? AND status = ?",
			status, id, current,
		)
	}
	if err != nil {
		return fmt.Errorf("update sweep status: %w", err)
	}
	return nil
}

// UpdateSweep writes the final state of a sweep: status, obs names, failure
// count, error, duration and timestamps.
func (s *SQLiteStore) UpdateSweep(ctx context.Context, sw *model.Sweep) error {
	obsNames, err := encodeNames(sw.ObsNames)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sweeps SET status = ?, obs_names = ?, num_failed = ?, error = ?,
			duration_ms = ?, started_at = COALESCE(?, started_at), finished_at = ?
		WHERE id = ?`,
		sw.Status, obsNames, sw.NumFailed, sw.Error,
		sw.DurationMS, sw.StartedAt, sw.FinishedAt, sw.ID,
	)
	if err != nil {
		return fmt.Errorf("update sweep: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSample stores the outcome of one sample, replacing an earlier record
// for the same position.
func (s *SQLiteStore) RecordSample(ctx context.Context, rec *model.SampleRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO samples (sweep_id, position, idx, status, params, vals, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SweepID, rec.Position, string(rec.Index), rec.Status,
		encodeFloats(rec.Params), encodeFloats(rec.Values), rec.Error, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// GetSamples returns a sweep's sample records ordered by position.
func (s *SQLiteStore) GetSamples(ctx context.Context, sweepID string) ([]model.SampleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sweep_id, position, idx, status, params, vals, error, duration_ms
		FROM samples WHERE sweep_id = ? ORDER BY position`, sweepID,
	)
	if err != nil {
		return nil, fmt.Errorf("get samples: %w", err)
	}
	defer rows.Close()

	var recs []model.SampleRecord
	for rows.Next() {
		var rec model.SampleRecord
		var idx, params, vals string
		var errMsg sql.NullString
		if err := rows.Scan(&rec.SweepID, &rec.Position, &idx, &rec.Status, &params, &vals, &errMsg, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		rec.Index = model.SampleIndex(idx)
		rec.Error = errMsg.String
		if rec.Params, err = decodeFloats(params); err != nil {
			return nil, fmt.Errorf("sample %d params: %w", rec.Position, err)
		}
		if rec.Values, err = decodeFloats(vals); err != nil {
			return nil, fmt.Errorf("sample %d values: %w", rec.Position, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return recs, nil
}

// GetSweepStats aggregates counts by status and model, sample totals and the
// mean duration of finished sweeps.
func (s *SQLiteStore) GetSweepStats(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{
		CountByStatus: make(map[string]int),
		CountByModel:  make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(num_samples), 0), COALESCE(SUM(num_failed), 0), AVG(duration_ms) FROM sweeps`,
	).Scan(&stats.Total, &stats.TotalSamples, &stats.FailedSamples, &avg); err != nil {
		return nil, fmt.Errorf("sweep totals: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	for _, group := range []struct {
		column string
		into   map[string]int
	}{
		{"status", stats.CountByStatus},
		{"model", stats.CountByModel},
	} {
		rows, err := s.db.QueryContext(ctx, "SELECT "+group.column+", COUNT(*) FROM sweeps GROUP BY "+group.column)
		if err != nil {
			return nil, fmt.Errorf("count by %s: %w", group.column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s count: %w", group.column, err)
			}
			group.into[key] = n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate %s counts: %w", group.column, err)
		}
	}

	return stats, nil
}

// InsertLogLine appends one log line to a sweep's history.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, sweepID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO log_lines (sweep_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		sweepID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns a sweep's log lines in sequence order.
func (s *SQLiteStore) GetLogLines(ctx context.Context, sweepID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sweep_id, seq, line, created_at FROM log_lines WHERE sweep_id = ? ORDER BY seq",
		sweepID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.SweepID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

func encodeNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("encode names: %w", err)
	}
	return string(b), nil
}

func decodeNames(s string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("decode names: %w", err)
	}
	return names, nil
}

// encodeFloats stores vectors as text since JSON has no NaN.
func encodeFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func decodeFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
