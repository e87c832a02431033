package ensemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windrose-labs/wxbench/internal/model"
)

var (
	testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	testLoc  = model.GeoPoint{Lat: 40.75, Lon: -74.0}
)

func member(value float64, member int) model.ForecastRecord {
	m := member
	return model.ForecastRecord{
		Source:    model.SourceGenCast,
		ValidTime: testTime,
		LeadTime:  24 * time.Hour,
		Location:  testLoc,
		Variable:  model.VarTemperature2m,
		Value:     value,
		Member:    &m,
	}
}

func TestReduceSingleMember(t *testing.T) {
	t.Parallel()

	sum, err := Reduce([]model.ForecastRecord{member(278.15, 0)})
	require.NoError(t, err)

	assert.Equal(t, 278.15, sum.Mean)
	assert.Nil(t, sum.StdDev)
	assert.Equal(t, 1, sum.MemberCount)
	assert.Equal(t, 278.15, sum.Min)
	assert.Equal(t, 278.15, sum.Max)
}

func TestReduceIdenticalMembersZeroSpread(t *testing.T) {
	t.Parallel()

	records := make([]model.ForecastRecord, 50)
	for i := range records {
		records[i] = member(278.15, i)
	}

	sum, err := Reduce(records)
	require.NoError(t, err)

	assert.Equal(t, 278.15, sum.Mean)
	require.NotNil(t, sum.StdDev)
	assert.Zero(t, *sum.StdDev)
	assert.Equal(t, 50, sum.MemberCount)
}

func TestReduceSampleStatistics(t *testing.T) {
	t.Parallel()

	sum, err := Reduce([]model.ForecastRecord{
		member(1, 0), member(2, 1), member(3, 2), member(4, 3),
	})
	require.NoError(t, err)

	assert.InDelta(t, 2.5, sum.Mean, 1e-12)
	require.NotNil(t, sum.StdDev)
	assert.InDelta(t, 1.2909944487, *sum.StdDev, 1e-9)
	assert.Equal(t, 1.0, sum.Min)
	assert.Equal(t, 4.0, sum.Max)
}

func TestReduceStableOnLargeOffsets(t *testing.T) {
	t.Parallel()

	// Sum-of-squares accumulation loses these digits; Welford must not.
	base := 1e8
	sum, err := Reduce([]model.ForecastRecord{
		member(base+1, 0), member(base+2, 1), member(base+3, 2),
	})
	require.NoError(t, err)

	require.NotNil(t, sum.StdDev)
	assert.InDelta(t, 1.0, *sum.StdDev, 1e-6)
}

func TestReduceHeterogeneousInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*model.ForecastRecord)
		field  string
	}{
		{"variable", func(r *model.ForecastRecord) { r.Variable = model.VarWindSpeed10m }, "variable"},
		{"source", func(r *model.ForecastRecord) { r.Source = model.SourceAIFS }, "source"},
		{"valid time", func(r *model.ForecastRecord) { r.ValidTime = testTime.Add(time.Hour) }, "valid_time"},
		{"location", func(r *model.ForecastRecord) { r.Location.Lat += 0.25 }, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bad := member(280, 1)
			tt.mutate(&bad)

			_, err := Reduce([]model.ForecastRecord{member(278.15, 0), bad})
			require.Error(t, err)
			assert.True(t, IsHeterogeneousInput(err))

			var hetero *HeterogeneousInputError
			require.ErrorAs(t, err, &hetero)
			assert.Equal(t, tt.field, hetero.Field)
		})
	}
}

func TestReduceEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Reduce(nil)
	assert.Error(t, err)
}

func TestAccumulatorCount(t *testing.T) {
	t.Parallel()

	var acc Accumulator
	assert.Zero(t, acc.Count())
	require.NoError(t, acc.Add(member(278.15, 0)))
	require.NoError(t, acc.Add(member(279.15, 1)))
	assert.Equal(t, 2, acc.Count())
}

func memberAt(valid time.Time, value float64, idx int) model.ForecastRecord {
	rec := member(value, idx)
	rec.ValidTime = valid
	return rec
}

func TestReduceSeriesGroupsByValidTime(t *testing.T) {
	t.Parallel()

	later := testTime.Add(6 * time.Hour)

	// Interleave instants to prove ordering comes from valid time, not input.
	summaries, err := ReduceSeries([]model.ForecastRecord{
		memberAt(later, 281, 0),
		memberAt(testTime, 278, 0),
		memberAt(later, 283, 1),
		memberAt(testTime, 280, 1),
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, testTime, summaries[0].ValidTime)
	assert.InDelta(t, 279.0, summaries[0].Mean, 1e-12)
	assert.Equal(t, 2, summaries[0].MemberCount)

	assert.Equal(t, later, summaries[1].ValidTime)
	assert.InDelta(t, 282.0, summaries[1].Mean, 1e-12)
}

func TestReduceSeriesEmpty(t *testing.T) {
	t.Parallel()

	summaries, err := ReduceSeries(nil)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestReduceSeriesRejectsMixedSources(t *testing.T) {
	t.Parallel()

	other := memberAt(testTime.Add(6*time.Hour), 280, 0)
	other.Source = model.SourceAIFS

	_, err := ReduceSeries([]model.ForecastRecord{member(278.15, 0), other})
	require.Error(t, err)
	assert.True(t, IsHeterogeneousInput(err))
}
