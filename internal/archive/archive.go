// Package archive persists ingested forecast exports and verification run
// history. Two backends: PostgreSQL (pgx pool) for shared archives and
// SQLite (modernc) for local single-user work.
package archive

import (
	"context"
	"time"

	"github.com/windrose-labs/wxbench/internal/model"
)

// ForecastRow is one raw archive row. Value stays in the source's native
// unit; the unit column says which. Normalization happens in the adapters,
// never here.
type ForecastRow struct {
	Source    model.SourceID
	Variable  model.Variable
	InitTime  time.Time
	LeadHours int
	ValidTime time.Time
	Member    *int // nil for deterministic sources
	Lat       float64
	Lon       float64
	Value     float64
	Unit      string
}

// RowQuery selects archive rows for one adapter fetch. Lat/Lon match the
// resolved grid cell within coordEpsilon to absorb float formatting drift
// between ingest and locate.
type RowQuery struct {
	Source    model.SourceID
	Variable  model.Variable
	Lat       float64
	Lon       float64
	From      time.Time
	To        time.Time
	LeadHours int // 0 = no lead filter
}

const coordEpsilon = 1e-6

// RunFilter specifies criteria for listing verification runs.
type RunFilter struct {
	Status model.RunStatus
	Limit  int
	Offset int
}

// Store is the persistence interface for the forecast archive.
type Store interface {
	// Forecasts
	ForecastRows(ctx context.Context, q RowQuery) ([]ForecastRow, error)
	UpsertForecasts(ctx context.Context, rows []ForecastRow) (int64, error)
	AppendForecasts(ctx context.Context, rows []ForecastRow) (int64, error)
	CountForecasts(ctx context.Context, source model.SourceID) (int64, error)

	// Verification run history
	CreateRun(ctx context.Context, run model.VerificationRun) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, rows, failures int, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.VerificationRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.VerificationRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// forecastColumns is the canonical column order shared by both backends and
// the bulk loaders.
var forecastColumns = []string{
	"source", "variable", "init_time", "lead_hours", "valid_time",
	"member", "lat", "lon", "value", "unit",
}

// deterministicMember marks single-value sources in the member column, which
// participates in the primary key and therefore cannot be NULL.
const deterministicMember = -1

func memberToDB(m *int) int {
	if m == nil {
		return deterministicMember
	}
	return *m
}

func memberFromDB(m int) *int {
	if m == deterministicMember {
		return nil
	}
	v := m
	return &v
}
