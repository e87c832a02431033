package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoPointValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		point   GeoPoint
		wantErr bool
	}{
		{"nyc", GeoPoint{Lat: 40.7128, Lon: -74.0060}, false},
		{"north pole", GeoPoint{Lat: 90, Lon: 0}, false},
		{"date line", GeoPoint{Lat: 0, Lon: -180}, false},
		{"lat too high", GeoPoint{Lat: 90.001, Lon: 0}, true},
		{"lat too low", GeoPoint{Lat: -91, Lon: 0}, true},
		{"lon too high", GeoPoint{Lat: 0, Lon: 180.5}, true},
		{"lon too low", GeoPoint{Lat: 0, Lon: -181}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.point.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGridCellPoint(t *testing.T) {
	t.Parallel()

	cell := GridCell{Source: SourceGenCast, Lat: 40.75, Lon: -74.0, DistanceMeters: 4150}
	assert.Equal(t, GeoPoint{Lat: 40.75, Lon: -74.0}, cell.Point())
}

func TestParseVariable(t *testing.T) {
	t.Parallel()

	v, err := ParseVariable("temperature_2m")
	require.NoError(t, err)
	assert.Equal(t, VarTemperature2m, v)

	_, err = ParseVariable("dew_point")
	assert.Error(t, err)
}
