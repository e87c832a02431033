package era5

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeUnits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		units    string
		wantBase time.Time
		wantStep time.Duration
		wantErr  string
	}{
		{
			name:     "classic_hours_since_1900",
			units:    "hours since 1900-01-01 00:00:00.0",
			wantBase: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
			wantStep: time.Hour,
		},
		{
			name:     "cds_seconds_since_epoch",
			units:    "seconds since 1970-01-01",
			wantBase: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			wantStep: time.Second,
		},
		{
			name:     "days",
			units:    "days since 2000-01-01",
			wantBase: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			wantStep: 24 * time.Hour,
		},
		{
			name:    "unknown_step",
			units:   "fortnights since 1900-01-01",
			wantErr: "unsupported time step",
		},
		{
			name:    "garbage",
			units:   "whenever",
			wantErr: "unsupported time units",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			base, step, err := parseTimeUnits(tt.units)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, base.Equal(tt.wantBase), "base %v", base)
			assert.Equal(t, tt.wantStep, step)
		})
	}
}

func TestClassicEpochOffset(t *testing.T) {
	t.Parallel()
	base, step, err := parseTimeUnits("hours since 1900-01-01 00:00:00.0")
	require.NoError(t, err)

	// 1900-01-01 is 2208988800 seconds before the Unix epoch.
	assert.Equal(t, int64(-2208988800), base.Unix())

	// 1104720 hours lands on 2026-01-10 00:00 UTC.
	got := base.Add(time.Duration(1104720) * step)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), got.UTC())
}

func TestNearestIndex(t *testing.T) {
	t.Parallel()

	// ERA5 latitude axes descend.
	lats := []float64{41.0, 40.75, 40.5, 40.25}
	idx, err := nearestIndex(lats, 40.75)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	// Ascending longitude axis.
	lons := []float64{285.75, 286.0, 286.25}
	idx, err = nearestIndex(lons, 286.0)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	// A point far off the axis is a miss, not a snap to the edge.
	_, err = nearestIndex(lats, 52.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "off nearest grid point")

	_, err = nearestIndex(nil, 40.0)
	require.Error(t, err)
}

func TestAlignLon(t *testing.T) {
	t.Parallel()

	wrapped := []float64{0, 90, 180, 270, 359.75}
	assert.InDelta(t, 286.0, alignLon(wrapped, -74.0), 1e-9)
	assert.InDelta(t, 90.0, alignLon(wrapped, 90.0), 1e-9)

	signed := []float64{-180, -90, 0, 90}
	assert.InDelta(t, -74.0, alignLon(signed, -74.0), 1e-9)
}

func TestUnpacker(t *testing.T) {
	t.Parallel()

	packed := unpacker{scale: 0.001, offset: 250, fill: -32767, hasFill: true}
	v, ok := packed.value(28150)
	require.True(t, ok)
	assert.InDelta(t, 278.15, v, 1e-9)

	_, ok = packed.value(-32767)
	assert.False(t, ok)

	plain := unpacker{scale: 1}
	v, ok = plain.value(3.25)
	require.True(t, ok)
	assert.InDelta(t, 3.25, v, 1e-9)
}

func TestCellValue(t *testing.T) {
	t.Parallel()

	v, err := cellValue([][][]int16{{{100, 200}, {300, 400}}}, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 300, v, 1e-9)

	v, err = cellValue([][][]float32{{{1.5, 2.5}}}, 0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 1e-9)

	_, err = cellValue([]string{"nope"}, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported data layout")
}

func TestToFloat(t *testing.T) {
	t.Parallel()

	v, ok := toFloat(float32(0.5))
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	// Attributes sometimes arrive as single-element slices.
	v, ok = toFloat([]float64{0.001})
	require.True(t, ok)
	assert.InDelta(t, 0.001, v, 1e-9)

	_, ok = toFloat("not a number")
	assert.False(t, ok)

	_, ok = toFloat([]float64{1, 2})
	assert.False(t, ok)
}
