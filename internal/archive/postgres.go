package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/db"
	"github.com/windrose-labs/wxbench/internal/model"
)

const pgMigration = `
CREATE TABLE IF NOT EXISTS forecasts (
	source      TEXT NOT NULL,
	variable    TEXT NOT NULL,
	init_time   TIMESTAMPTZ NOT NULL,
	lead_hours  INTEGER NOT NULL,
	valid_time  TIMESTAMPTZ NOT NULL,
	member      INTEGER NOT NULL DEFAULT -1,
	lat         DOUBLE PRECISION NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        TEXT NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, variable, init_time, lead_hours, member, lat, lon)
);

CREATE INDEX IF NOT EXISTS idx_forecasts_valid
	ON forecasts(source, variable, valid_time);

CREATE TABLE IF NOT EXISTS verification_runs (
	id            TEXT PRIMARY KEY,
	target        JSONB NOT NULL,
	variable      TEXT NOT NULL,
	models        JSONB NOT NULL,
	from_time     TIMESTAMPTZ NOT NULL,
	to_time       TIMESTAMPTZ NOT NULL,
	lead_hours    INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	row_count     INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON verification_runs(status);
`

const (
	sqlInsertRun = `
		INSERT INTO verification_runs (id, target, variable, models, from_time, to_time, lead_hours, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	sqlCompleteRun = `
		UPDATE verification_runs
		SET status = $1, row_count = $2, failure_count = $3, error = $4, completed_at = $5
		WHERE id = $6`
	sqlGetRun = `
		SELECT id, target, variable, models, from_time, to_time, lead_hours,
			status, row_count, failure_count, error, started_at, completed_at
		FROM verification_runs WHERE id = $1`
	sqlCountForecasts = `SELECT COUNT(*) FROM forecasts WHERE source = $1`
)

// preparedStatements are registered on every new pool connection so the hot
// paths skip per-call parsing.
var preparedStatements = map[string]string{
	"insert_run":      sqlInsertRun,
	"complete_run":    sqlCompleteRun,
	"get_run":         sqlGetRun,
	"count_forecasts": sqlCountForecasts,
}

// PostgresConfig tunes the connection pool. Zero values fall back to
// defaults suitable for a small shared archive.
type PostgresConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c *PostgresConfig) withDefaults() PostgresConfig {
	out := PostgresConfig{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
	if c == nil {
		return out
	}
	if c.MaxConns > 0 {
		out.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		out.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		out.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		out.MaxConnIdleTime = c.MaxConnIdleTime
	}
	return out
}

// PostgresArchive implements Store on a pgx connection pool.
type PostgresArchive struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to the archive database and verifies the connection.
func NewPostgres(ctx context.Context, connString string, cfg *PostgresConfig) (*PostgresArchive, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "archive: parse postgres connection string")
	}

	settings := cfg.withDefaults()
	poolCfg.MaxConns = settings.MaxConns
	poolCfg.MinConns = settings.MinConns
	poolCfg.MaxConnLifetime = settings.MaxConnLifetime
	poolCfg.MaxConnIdleTime = settings.MaxConnIdleTime
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, stmt := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, stmt); err != nil {
				return eris.Wrapf(err, "archive: prepare statement %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "archive: create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "archive: ping postgres")
	}
	return &PostgresArchive{pool: pool, closeFn: pool.Close}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresArchive) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgMigration); err != nil {
		return eris.Wrap(err, "archive: run postgres migration")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresArchive) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertForecasts bulk-loads rows through a temp table and resolves key
// conflicts in favor of the incoming export.
func (s *PostgresArchive) UpsertForecasts(ctx context.Context, rows []ForecastRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	keys := []string{"source", "variable", "init_time", "lead_hours", "member", "lat", "lon"}
	return db.BulkUpsert(ctx, s.pool, "forecasts", forecastColumns, keys, forecastRowValues(rows))
}

// AppendForecasts streams rows with COPY. Duplicate keys fail the batch.
func (s *PostgresArchive) AppendForecasts(ctx context.Context, rows []ForecastRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return db.CopyFrom(ctx, s.pool, "forecasts", forecastColumns, forecastRowValues(rows))
}

// ForecastRows returns archive rows matching q, ordered by valid time then
// member so ensemble groups come out contiguous.
func (s *PostgresArchive) ForecastRows(ctx context.Context, q RowQuery) ([]ForecastRow, error) {
	query := `
		SELECT source, variable, init_time, lead_hours, valid_time, member, lat, lon, value, unit
		FROM forecasts
		WHERE source = $1 AND variable = $2
			AND lat BETWEEN $3 AND $4 AND lon BETWEEN $5 AND $6
			AND valid_time >= $7 AND valid_time <= $8`
	args := []any{
		string(q.Source), string(q.Variable),
		q.Lat - coordEpsilon, q.Lat + coordEpsilon,
		q.Lon - coordEpsilon, q.Lon + coordEpsilon,
		q.From.UTC(), q.To.UTC(),
	}
	if q.LeadHours > 0 {
		query += " AND lead_hours = $9"
		args = append(args, q.LeadHours)
	}
	query += " ORDER BY valid_time, member"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: query forecast rows for %s", q.Source)
	}
	defer rows.Close()

	var out []ForecastRow
	for rows.Next() {
		var (
			r      ForecastRow
			src    string
			vn     string
			member int
		)
		if err := rows.Scan(&src, &vn, &r.InitTime, &r.LeadHours, &r.ValidTime,
			&member, &r.Lat, &r.Lon, &r.Value, &r.Unit); err != nil {
			return nil, eris.Wrap(err, "archive: scan forecast row")
		}
		r.Source = model.SourceID(src)
		r.Variable = model.Variable(vn)
		r.Member = memberFromDB(member)
		r.InitTime = r.InitTime.UTC()
		r.ValidTime = r.ValidTime.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "archive: iterate forecast rows")
	}
	return out, nil
}

// CountForecasts reports how many archive rows a source currently holds.
func (s *PostgresArchive) CountForecasts(ctx context.Context, source model.SourceID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, sqlCountForecasts, string(source)).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "archive: count forecasts for %s", source)
	}
	return n, nil
}

// CreateRun records a verification run in the running state.
func (s *PostgresArchive) CreateRun(ctx context.Context, run model.VerificationRun) error {
	target, err := json.Marshal(run.Target)
	if err != nil {
		return eris.Wrap(err, "archive: marshal run target")
	}
	models, err := json.Marshal(run.Models)
	if err != nil {
		return eris.Wrap(err, "archive: marshal run models")
	}
	_, err = s.pool.Exec(ctx, sqlInsertRun,
		run.ID, target, string(run.Variable), models,
		run.From.UTC(), run.To.UTC(), run.LeadHours, string(run.Status), run.StartedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "archive: insert run %s", run.ID)
	}
	return nil
}

// CompleteRun finalizes a run with its outcome counters.
func (s *PostgresArchive) CompleteRun(ctx context.Context, runID string, status model.RunStatus, rowCount, failures int, runErr string) error {
	tag, err := s.pool.Exec(ctx, sqlCompleteRun,
		string(status), rowCount, failures, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "archive: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("archive: run %s not found", runID)
	}
	return nil
}

// GetRun returns the run with the given ID, or nil if it does not exist.
func (s *PostgresArchive) GetRun(ctx context.Context, runID string) (*model.VerificationRun, error) {
	row := s.pool.QueryRow(ctx, sqlGetRun, runID)
	run, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *PostgresArchive) ListRuns(ctx context.Context, filter RunFilter) ([]model.VerificationRun, error) {
	query := `
		SELECT id, target, variable, models, from_time, to_time, lead_hours,
			status, row_count, failure_count, error, started_at, completed_at
		FROM verification_runs`
	var args []any
	if filter.Status != "" {
		query += " WHERE status = $1"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += argPlaceholder(" LIMIT", len(args)+1)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += argPlaceholder(" OFFSET", len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "archive: list runs")
	}
	defer rows.Close()

	var out []model.VerificationRun
	for rows.Next() {
		run, err := scanPgRun(rows)
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

// pgScannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type pgScannable interface {
	Scan(dest ...any) error
}

func scanPgRun(sc pgScannable) (*model.VerificationRun, error) {
	var (
		run       model.VerificationRun
		target    []byte
		variable  string
		models    []byte
		status    string
		completed *time.Time
	)
	err := sc.Scan(&run.ID, &target, &variable, &models, &run.From, &run.To,
		&run.LeadHours, &status, &run.Rows, &run.Failures, &run.Error,
		&run.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(target, &run.Target); err != nil {
		return nil, eris.Wrap(err, "archive: unmarshal run target")
	}
	if err := json.Unmarshal(models, &run.Models); err != nil {
		return nil, eris.Wrap(err, "archive: unmarshal run models")
	}
	run.Variable = model.Variable(variable)
	run.Status = model.RunStatus(status)
	run.From = run.From.UTC()
	run.To = run.To.UTC()
	run.StartedAt = run.StartedAt.UTC()
	if completed != nil {
		t := completed.UTC()
		run.CompletedAt = &t
	}
	return &run, nil
}

func forecastRowValues(rows []ForecastRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{
			string(r.Source), string(r.Variable), r.InitTime.UTC(), r.LeadHours,
			r.ValidTime.UTC(), memberToDB(r.Member), r.Lat, r.Lon, r.Value, r.Unit,
		}
	}
	return out
}

func argPlaceholder(keyword string, n int) string {
	return fmt.Sprintf("%s $%d", keyword, n)
}
