package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/model"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	assert.Nil(t, reg.Get(model.SourceGenCast))
	assert.Empty(t, reg.List())

	reg.Register(NewArchiveAdapter(gencastEntry(), &fakeArchive{}))
	reg.Register(NewOpenMeteoAdapter(aifsEntry(), &fakeOpenMeteo{}))

	require.NotNil(t, reg.Get(model.SourceGenCast))
	assert.Equal(t, []model.SourceID{model.SourceAIFS, model.SourceGenCast}, reg.List())
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	reg, err := BuildRegistry(catalog.Default(), BuildDeps{
		Store:     &fakeArchive{},
		OpenMeteo: &fakeOpenMeteo{},
		OpenERA5: func(string) (ERA5Data, error) {
			return &fakeERA5{}, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []model.SourceID{
		model.SourceAIFS, model.SourceERA5, model.SourceFourCastNet,
		model.SourceGenCast, model.SourceGraphCast,
	}, reg.List())
}

func TestBuildRegistry_ArchiveNeedsStore(t *testing.T) {
	t.Parallel()

	_, err := BuildRegistry(catalog.Default(), BuildDeps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs an archive store")
}

func TestBuildRegistry_UnknownBackend(t *testing.T) {
	t.Parallel()

	cat := &catalog.Catalog{Sources: map[model.SourceID]catalog.Source{
		"mystery": {ID: "mystery", Backend: "carrier-pigeon"},
	}}
	_, err := BuildRegistry(cat, BuildDeps{Store: &fakeArchive{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestCollect(t *testing.T) {
	t.Parallel()

	records := []model.ForecastRecord{
		{Source: model.SourceGenCast, Value: 1},
		{Source: model.SourceGenCast, Value: 2},
	}
	got, err := Collect(context.Background(), IteratorOver(records))
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestCollect_Cancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, IteratorOver([]model.ForecastRecord{
		{Source: model.SourceGenCast, ValidTime: time.Now()},
	}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestIteratorIsRestartable(t *testing.T) {
	t.Parallel()

	records := []model.ForecastRecord{{Value: 1}, {Value: 2}}

	// Separate fetches get independent cursors.
	first := IteratorOver(records)
	second := IteratorOver(records)

	require.True(t, first.Next())
	require.True(t, first.Next())
	require.False(t, first.Next())

	require.True(t, second.Next())
	assert.InDelta(t, 1.0, second.Record().Value, 1e-12)
	require.NoError(t, second.Close())
}
