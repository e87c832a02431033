package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/pkg/era5"
)

type fakeERA5 struct {
	series map[string][]era5.Point
	err    error
}

func (f *fakeERA5) Series(varName string, _, _ float64, from, to time.Time) ([]era5.Point, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []era5.Point
	for _, p := range f.series[varName] {
		if p.Time.Before(from) || p.Time.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func era5Entry() catalog.Source {
	entry, ok := catalog.Default().Get(model.SourceERA5)
	if !ok {
		panic("era5 missing from default catalog")
	}
	return entry
}

func era5Adapter(data ERA5Data) *ERA5Adapter {
	return NewERA5Adapter(era5Entry(), func(string) (ERA5Data, error) {
		return data, nil
	})
}

func TestERA5Adapter_Temperature(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	data := &fakeERA5{series: map[string][]era5.Point{
		"t2m": {
			{Time: from, Value: 278.15},
			{Time: from.Add(time.Hour), Value: 277.9},
		},
	}}

	a := era5Adapter(data)
	it, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell:     model.GridCell{Source: model.SourceERA5, Lat: 40.75, Lon: -74.0},
		From:     from,
		To:       from.Add(2 * time.Hour),
		Variable: model.VarTemperature2m,
	})
	require.NoError(t, err)

	records, err := Collect(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.InDelta(t, 278.15, records[0].Value, 1e-9)
	// A reanalysis has no forecast horizon.
	assert.Equal(t, time.Duration(0), records[0].LeadTime)
	assert.Nil(t, records[0].Member)
	assert.Equal(t, model.SourceERA5, records[0].Source)
}

func TestERA5Adapter_WindFromComponents(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	data := &fakeERA5{series: map[string][]era5.Point{
		"u10": {
			{Time: from, Value: 3.0},
			{Time: from.Add(time.Hour), Value: 1.0},
		},
		"v10": {
			{Time: from, Value: 4.0},
			// Second instant missing from u10's pair is fine, but this one
			// has no matching u10 value at +2h and is dropped.
			{Time: from.Add(2 * time.Hour), Value: 2.0},
		},
	}}

	a := era5Adapter(data)
	it, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell:     model.GridCell{Source: model.SourceERA5, Lat: 40.75, Lon: -74.0},
		From:     from,
		To:       from.Add(3 * time.Hour),
		Variable: model.VarWindSpeed10m,
	})
	require.NoError(t, err)

	records, err := Collect(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// 3-4-5 triangle.
	assert.InDelta(t, 5.0, records[0].Value, 1e-9)
}

func TestERA5Adapter_OpenFailureIsTransient(t *testing.T) {
	t.Parallel()

	a := NewERA5Adapter(era5Entry(), func(string) (ERA5Data, error) {
		return nil, eris.New("era5: no netcdf exports under data/era5")
	})

	_, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell:     model.GridCell{Source: model.SourceERA5, Lat: 40.75, Lon: -74.0},
		From:     time.Now(),
		To:       time.Now(),
		Variable: model.VarTemperature2m,
	})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestERA5Adapter_ReadFailureIsSchema(t *testing.T) {
	t.Parallel()

	a := era5Adapter(&fakeERA5{err: eris.New("era5: variable t2m not in file")})
	_, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell:     model.GridCell{Source: model.SourceERA5, Lat: 40.75, Lon: -74.0},
		From:     time.Now(),
		To:       time.Now(),
		Variable: model.VarTemperature2m,
	})
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
}
