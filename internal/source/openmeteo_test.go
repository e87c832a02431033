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
	"github.com/windrose-labs/wxbench/pkg/openmeteo"
)

type fakeOpenMeteo struct {
	resp *openmeteo.PreviousRunsResponse
	err  error
	got  openmeteo.PreviousRunsRequest
}

func (f *fakeOpenMeteo) PreviousRuns(_ context.Context, req openmeteo.PreviousRunsRequest) (*openmeteo.PreviousRunsResponse, error) {
	f.got = req
	return f.resp, f.err
}

func aifsEntry() catalog.Source {
	entry, ok := catalog.Default().Get(model.SourceAIFS)
	if !ok {
		panic("aifs missing from default catalog")
	}
	return entry
}

func aifsCell() model.GridCell {
	return model.GridCell{Source: model.SourceAIFS, Lat: 40.75, Lon: -74.0, DistanceMeters: 4200}
}

func fptr(v float64) *float64 { return &v }

func TestOpenMeteoAdapter_FetchForecast(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(36 * time.Hour)
	client := &fakeOpenMeteo{resp: &openmeteo.PreviousRunsResponse{
		Latitude:  40.75,
		Longitude: -74.0,
		Unit:      "°C",
		Times: []time.Time{
			from.Add(-2 * time.Hour), // before the window, dropped
			from.Add(12 * time.Hour),
			from.Add(13 * time.Hour),
			from.Add(14 * time.Hour),
		},
		Values: []*float64{fptr(1.0), fptr(5.0), nil, fptr(6.5)},
	}}

	a := NewOpenMeteoAdapter(aifsEntry(), client)
	it, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell: aifsCell(), From: from, To: to,
		Variable: model.VarTemperature2m, Lead: 24 * time.Hour,
	})
	require.NoError(t, err)

	records, err := Collect(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Celsius from the API comes out canonical.
	assert.InDelta(t, 278.15, records[0].Value, 1e-9)
	assert.InDelta(t, 279.65, records[1].Value, 1e-9)
	assert.Equal(t, 24*time.Hour, records[0].LeadTime)
	assert.Nil(t, records[0].Member)

	// A 24h lead maps to the previous-day-1 series.
	assert.Equal(t, 1, client.got.PreviousDays)
	assert.Equal(t, "ecmwf_aifs025", client.got.Model)
	assert.Equal(t, "temperature_2m", client.got.Variable)
}

func TestOpenMeteoAdapter_MapsPrecipitationName(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	client := &fakeOpenMeteo{resp: &openmeteo.PreviousRunsResponse{
		Latitude: 40.75, Longitude: -74.0, Unit: "mm",
		Times:  []time.Time{from.Add(time.Hour)},
		Values: []*float64{fptr(2.5)},
	}}

	a := NewOpenMeteoAdapter(aifsEntry(), client)
	it, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell: aifsCell(), From: from, To: from.Add(2 * time.Hour),
		Variable: model.VarPrecipitation,
	})
	require.NoError(t, err)

	assert.Equal(t, "precipitation", client.got.Variable)

	records, err := Collect(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, records, 1)
	// 2.5 mm in canonical meters.
	assert.InDelta(t, 0.0025, records[0].Value, 1e-12)
}

func TestOpenMeteoAdapter_CellMismatch(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	client := &fakeOpenMeteo{resp: &openmeteo.PreviousRunsResponse{
		// More than half a grid step away from the requested cell.
		Latitude: 41.5, Longitude: -74.0, Unit: "°C",
	}}

	a := NewOpenMeteoAdapter(aifsEntry(), client)
	_, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell: aifsCell(), From: from, To: from, Variable: model.VarTemperature2m,
	})
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	assert.Contains(t, err.Error(), "resolved cell")
}

func TestOpenMeteoAdapter_TransportFailure(t *testing.T) {
	t.Parallel()

	client := &fakeOpenMeteo{err: eris.New("openmeteo: unexpected status 503")}
	a := NewOpenMeteoAdapter(aifsEntry(), client)

	_, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell:     aifsCell(),
		From:     time.Now(),
		To:       time.Now(),
		Variable: model.VarTemperature2m,
	})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestOpenMeteoAdapter_UnknownResponseUnit(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	client := &fakeOpenMeteo{resp: &openmeteo.PreviousRunsResponse{
		Latitude: 40.75, Longitude: -74.0, Unit: "furlongs",
		Times:  []time.Time{from},
		Values: []*float64{fptr(1)},
	}}

	a := NewOpenMeteoAdapter(aifsEntry(), client)
	_, err := a.FetchForecast(context.Background(), FetchRequest{
		Cell: aifsCell(), From: from, To: from, Variable: model.VarTemperature2m,
	})
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	assert.Contains(t, err.Error(), "furlongs")
}
