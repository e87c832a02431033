package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/windrose-labs/wxbench/internal/model"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS forecasts (
	source      TEXT NOT NULL,
	variable    TEXT NOT NULL,
	init_time   DATETIME NOT NULL,
	lead_hours  INTEGER NOT NULL,
	valid_time  DATETIME NOT NULL,
	member      INTEGER NOT NULL DEFAULT -1,
	lat         REAL NOT NULL,
	lon         REAL NOT NULL,
	value       REAL NOT NULL,
	unit        TEXT NOT NULL,
	ingested_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source, variable, init_time, lead_hours, member, lat, lon)
);

CREATE INDEX IF NOT EXISTS idx_forecasts_valid
	ON forecasts(source, variable, valid_time);

CREATE TABLE IF NOT EXISTS verification_runs (
	id            TEXT PRIMARY KEY,
	target        TEXT NOT NULL,
	variable      TEXT NOT NULL,
	models        TEXT NOT NULL,
	from_time     DATETIME NOT NULL,
	to_time       DATETIME NOT NULL,
	lead_hours    INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	row_count     INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON verification_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON verification_runs(started_at);
`

// SQLiteArchive implements Store on a local SQLite file.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite archive at path.
func NewSQLite(path string) (*SQLiteArchive, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open sqlite at %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "archive: ping sqlite at %s", path)
	}
	return &SQLiteArchive{db: db}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLiteArchive) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "archive: run sqlite migration")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

// UpsertForecasts writes rows, replacing any that share the archive key.
// Re-ingesting the same export is therefore idempotent.
func (s *SQLiteArchive) UpsertForecasts(ctx context.Context, rows []ForecastRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "archive: begin upsert transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecasts (source, variable, init_time, lead_hours, valid_time, member, lat, lon, value, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, variable, init_time, lead_hours, member, lat, lon)
		DO UPDATE SET valid_time = excluded.valid_time, value = excluded.value, unit = excluded.unit,
			ingested_at = datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "archive: prepare upsert statement")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			string(r.Source), string(r.Variable), r.InitTime.UTC(), r.LeadHours, r.ValidTime.UTC(),
			memberToDB(r.Member), r.Lat, r.Lon, r.Value, r.Unit,
		); err != nil {
			return 0, eris.Wrapf(err, "archive: upsert forecast row for %s", r.Source)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "archive: commit upsert transaction")
	}
	return int64(len(rows)), nil
}

// AppendForecasts inserts rows without conflict handling. Faster than upsert
// for first-time loads; duplicate keys fail the whole batch.
func (s *SQLiteArchive) AppendForecasts(ctx context.Context, rows []ForecastRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "archive: begin append transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecasts (source, variable, init_time, lead_hours, valid_time, member, lat, lon, value, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "archive: prepare append statement")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			string(r.Source), string(r.Variable), r.InitTime.UTC(), r.LeadHours, r.ValidTime.UTC(),
			memberToDB(r.Member), r.Lat, r.Lon, r.Value, r.Unit,
		); err != nil {
			return 0, eris.Wrapf(err, "archive: append forecast row for %s", r.Source)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "archive: commit append transaction")
	}
	return int64(len(rows)), nil
}

// ForecastRows returns archive rows matching q, ordered by valid time then
// member so ensemble groups come out contiguous.
func (s *SQLiteArchive) ForecastRows(ctx context.Context, q RowQuery) ([]ForecastRow, error) {
	query := `
		SELECT source, variable, init_time, lead_hours, valid_time, member, lat, lon, value, unit
		FROM forecasts
		WHERE source = ? AND variable = ?
			AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
			AND valid_time >= ? AND valid_time <= ?`
	args := []any{
		string(q.Source), string(q.Variable),
		q.Lat - coordEpsilon, q.Lat + coordEpsilon,
		q.Lon - coordEpsilon, q.Lon + coordEpsilon,
		q.From.UTC(), q.To.UTC(),
	}
	if q.LeadHours > 0 {
		query += " AND lead_hours = ?"
		args = append(args, q.LeadHours)
	}
	query += " ORDER BY valid_time, member"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: query forecast rows for %s", q.Source)
	}
	defer rows.Close()

	var out []ForecastRow
	for rows.Next() {
		r, err := scanForecastRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "archive: iterate forecast rows")
	}
	return out, nil
}

// CountForecasts reports how many archive rows a source currently holds.
func (s *SQLiteArchive) CountForecasts(ctx context.Context, source model.SourceID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM forecasts WHERE source = ?", string(source)).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "archive: count forecasts for %s", source)
	}
	return n, nil
}

// CreateRun records a verification run in the running state.
func (s *SQLiteArchive) CreateRun(ctx context.Context, run model.VerificationRun) error {
	target, err := json.Marshal(run.Target)
	if err != nil {
		return eris.Wrap(err, "archive: marshal run target")
	}
	models, err := json.Marshal(run.Models)
	if err != nil {
		return eris.Wrap(err, "archive: marshal run models")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_runs (id, target, variable, models, from_time, to_time, lead_hours, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(target), string(run.Variable), string(models),
		run.From.UTC(), run.To.UTC(), run.LeadHours, string(run.Status), run.StartedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "archive: insert run %s", run.ID)
	}
	return nil
}

// CompleteRun finalizes a run with its outcome counters.
func (s *SQLiteArchive) CompleteRun(ctx context.Context, runID string, status model.RunStatus, rowCount, failures int, runErr string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_runs
		SET status = ?, row_count = ?, failure_count = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		string(status), rowCount, failures, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "archive: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// GetRun returns the run with the given ID, or nil if it does not exist.
func (s *SQLiteArchive) GetRun(ctx context.Context, runID string) (*model.VerificationRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target, variable, models, from_time, to_time, lead_hours,
			status, row_count, failure_count, error, started_at, completed_at
		FROM verification_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *SQLiteArchive) ListRuns(ctx context.Context, filter RunFilter) ([]model.VerificationRun, error) {
	query := `
		SELECT id, target, variable, models, from_time, to_time, lead_hours,
			status, row_count, failure_count, error, started_at, completed_at
		FROM verification_runs`
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unlimited.
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "archive: list runs")
	}
	defer rows.Close()

	var out []model.VerificationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "archive: scan run")
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "archive: iterate runs")
	}
	return out, nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanForecastRow(sc scannable) (ForecastRow, error) {
	var (
		r      ForecastRow
		src    string
		vn     string
		member int
	)
	err := sc.Scan(&src, &vn, &r.InitTime, &r.LeadHours, &r.ValidTime,
		&member, &r.Lat, &r.Lon, &r.Value, &r.Unit)
	if err != nil {
		return ForecastRow{}, eris.Wrap(err, "archive: scan forecast row")
	}
	r.Source = model.SourceID(src)
	r.Variable = model.Variable(vn)
	r.Member = memberFromDB(member)
	r.InitTime = r.InitTime.UTC()
	r.ValidTime = r.ValidTime.UTC()
	return r, nil
}

func scanRun(sc scannable) (*model.VerificationRun, error) {
	var (
		run       model.VerificationRun
		target    string
		variable  string
		models    string
		status    string
		completed sql.NullTime
	)
	err := sc.Scan(&run.ID, &target, &variable, &models, &run.From, &run.To,
		&run.LeadHours, &status, &run.Rows, &run.Failures, &run.Error,
		&run.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(target), &run.Target); err != nil {
		return nil, eris.Wrap(err, "archive: unmarshal run target")
	}
	if err := json.Unmarshal([]byte(models), &run.Models); err != nil {
		return nil, eris.Wrap(err, "archive: unmarshal run models")
	}
	run.Variable = model.Variable(variable)
	run.Status = model.RunStatus(status)
	run.From = run.From.UTC()
	run.To = run.To.UTC()
	run.StartedAt = run.StartedAt.UTC()
	if completed.Valid {
		t := completed.Time.UTC()
		run.CompletedAt = &t
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "archive: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("archive: %s %s not found", kind, id)
	}
	return nil
}
