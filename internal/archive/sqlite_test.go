package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windrose-labs/wxbench/internal/model"
)

func newTestSQLiteArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
	})
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func intPtr(v int) *int { return &v }

func testRows(init time.Time) []ForecastRow {
	valid := init.Add(24 * time.Hour)
	return []ForecastRow{
		{
			Source: model.SourceGenCast, Variable: model.VarTemperature2m,
			InitTime: init, LeadHours: 24, ValidTime: valid,
			Member: intPtr(0), Lat: 40.75, Lon: -74.0, Value: 278.15, Unit: "K",
		},
		{
			Source: model.SourceGenCast, Variable: model.VarTemperature2m,
			InitTime: init, LeadHours: 24, ValidTime: valid,
			Member: intPtr(1), Lat: 40.75, Lon: -74.0, Value: 279.05, Unit: "K",
		},
		{
			Source: model.SourceGenCast, Variable: model.VarTemperature2m,
			InitTime: init, LeadHours: 24, ValidTime: valid,
			Member: intPtr(2), Lat: 40.75, Lon: -74.0, Value: 277.65, Unit: "K",
		},
	}
}

func TestSQLiteArchive_UpsertAndQuery(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	init := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	rows := testRows(init)

	n, err := st.UpsertForecasts(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.ForecastRows(ctx, RowQuery{
		Source:   model.SourceGenCast,
		Variable: model.VarTemperature2m,
		Lat:      40.75,
		Lon:      -74.0,
		From:     init,
		To:       init.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ordered by valid time then member.
	for i, r := range got {
		require.NotNil(t, r.Member)
		assert.Equal(t, i, *r.Member)
		assert.Equal(t, model.SourceGenCast, r.Source)
		assert.Equal(t, "K", r.Unit)
		assert.WithinDuration(t, init.Add(24*time.Hour), r.ValidTime, time.Second)
		assert.WithinDuration(t, init, r.InitTime, time.Second)
	}
	assert.InDelta(t, 278.15, got[0].Value, 1e-9)
}

func TestSQLiteArchive_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	init := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	rows := testRows(init)

	_, err := st.UpsertForecasts(ctx, rows)
	require.NoError(t, err)

	// Second ingest of the same export revises values without duplicating.
	rows[0].Value = 280.00
	_, err = st.UpsertForecasts(ctx, rows)
	require.NoError(t, err)

	count, err := st.CountForecasts(ctx, model.SourceGenCast)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	got, err := st.ForecastRows(ctx, RowQuery{
		Source:   model.SourceGenCast,
		Variable: model.VarTemperature2m,
		Lat:      40.75,
		Lon:      -74.0,
		From:     init,
		To:       init.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 280.00, got[0].Value, 1e-9)
}

func TestSQLiteArchive_AppendRejectsDuplicates(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	init := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	rows := testRows(init)

	n, err := st.AppendForecasts(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = st.AppendForecasts(ctx, rows)
	require.Error(t, err)

	count, err := st.CountForecasts(ctx, model.SourceGenCast)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSQLiteArchive_LeadFilter(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	init := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	rows := []ForecastRow{
		{
			Source: model.SourceGraphCast, Variable: model.VarTemperature2m,
			InitTime: init, LeadHours: 24, ValidTime: init.Add(24 * time.Hour),
			Lat: 40.75, Lon: -74.0, Value: 275.0, Unit: "K",
		},
		{
			Source: model.SourceGraphCast, Variable: model.VarTemperature2m,
			InitTime: init.Add(-24 * time.Hour), LeadHours: 48, ValidTime: init.Add(24 * time.Hour),
			Lat: 40.75, Lon: -74.0, Value: 276.0, Unit: "K",
		},
	}
	_, err := st.UpsertForecasts(ctx, rows)
	require.NoError(t, err)

	got, err := st.ForecastRows(ctx, RowQuery{
		Source:    model.SourceGraphCast,
		Variable:  model.VarTemperature2m,
		Lat:       40.75,
		Lon:       -74.0,
		From:      init.Add(-48 * time.Hour),
		To:        init.Add(72 * time.Hour),
		LeadHours: 24,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 24, got[0].LeadHours)
	assert.InDelta(t, 275.0, got[0].Value, 1e-9)

	// Deterministic rows come back without a member index.
	assert.Nil(t, got[0].Member)
}

func TestSQLiteArchive_CellToleranceExcludesNeighbors(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	init := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	rows := []ForecastRow{
		{
			Source: model.SourceFourCastNet, Variable: model.VarTemperature2m,
			InitTime: init, LeadHours: 24, ValidTime: init.Add(24 * time.Hour),
			Lat: 40.75, Lon: -74.0, Value: 3.2, Unit: "degC",
		},
		{
			Source: model.SourceFourCastNet, Variable: model.VarTemperature2m,
			InitTime: init, LeadHours: 24, ValidTime: init.Add(24 * time.Hour),
			Lat: 40.50, Lon: -74.0, Value: 4.1, Unit: "degC",
		},
	}
	_, err := st.UpsertForecasts(ctx, rows)
	require.NoError(t, err)

	got, err := st.ForecastRows(ctx, RowQuery{
		Source:   model.SourceFourCastNet,
		Variable: model.VarTemperature2m,
		Lat:      40.75,
		Lon:      -74.0,
		From:     init,
		To:       init.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 3.2, got[0].Value, 1e-9)
}

func TestSQLiteArchive_RunLifecycle(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	started := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	run := model.VerificationRun{
		ID:        "run-0001",
		Target:    model.GeoPoint{Lat: 40.7128, Lon: -74.0060},
		Variable:  model.VarTemperature2m,
		Models:    []string{"gencast", "graphcast"},
		From:      started.Add(-72 * time.Hour),
		To:        started,
		LeadHours: 24,
		Status:    model.RunStatusRunning,
		StartedAt: started,
	}
	require.NoError(t, st.CreateRun(ctx, run))

	got, err := st.GetRun(ctx, "run-0001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Equal(t, []string{"gencast", "graphcast"}, got.Models)
	assert.InDelta(t, 40.7128, got.Target.Lat, 1e-9)
	assert.Nil(t, got.CompletedAt)

	err = st.CompleteRun(ctx, "run-0001", model.RunStatusComplete, 42, 1, "")
	require.NoError(t, err)

	got, err = st.GetRun(ctx, "run-0001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 42, got.Rows)
	assert.Equal(t, 1, got.Failures)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLiteArchive_GetRunMissing(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)

	got, err := st.GetRun(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteArchive_CompleteRunMissing(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)

	err := st.CompleteRun(context.Background(), "no-such-run", model.RunStatusFailed, 0, 0, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteArchive_ListRuns(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []model.RunStatus{
		model.RunStatusComplete, model.RunStatusFailed, model.RunStatusComplete,
	} {
		run := model.VerificationRun{
			ID:        "run-" + string(rune('a'+i)),
			Target:    model.GeoPoint{Lat: 40.7128, Lon: -74.0060},
			Variable:  model.VarTemperature2m,
			Models:    []string{"gencast"},
			From:      base.Add(-24 * time.Hour),
			To:        base,
			LeadHours: 24,
			Status:    model.RunStatusRunning,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, st.CreateRun(ctx, run))
		require.NoError(t, st.CompleteRun(ctx, run.ID, status, 10, 0, ""))
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "run-c", all[0].ID)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "run-b", failed[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
