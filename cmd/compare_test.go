package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windrose-labs/wxbench/internal/model"
)

func resetCompareFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		compareLat, compareLon = 0, 0
		compareFrom, compareTo = "", ""
		compareModels = nil
		compareVariable = string(model.VarTemperature2m)
		compareLead = 0
		compareMembers = -1
		for _, name := range []string{"lat", "lon"} {
			compareCmd.Flags().Lookup(name).Changed = false
		}
	}
	reset()
	t.Cleanup(reset)
}

// setCoordFlags goes through the flag set so Changed tracking matches a real
// invocation.
func setCoordFlags(t *testing.T, lat, lon string) {
	t.Helper()
	require.NoError(t, compareCmd.Flags().Set("lat", lat))
	require.NoError(t, compareCmd.Flags().Set("lon", lon))
}

func TestBuildCompareRequest_Defaults(t *testing.T) {
	setTestConfig(t)
	resetCompareFlags(t)
	compareFrom = "2026-01-10"

	req, err := buildCompareRequest()
	require.NoError(t, err)

	assert.InDelta(t, 40.7128, req.Target.Lat, 1e-9)
	assert.InDelta(t, -74.0060, req.Target.Lon, 1e-9)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), req.From)
	assert.Equal(t, time.Date(2026, 1, 10, 23, 0, 0, 0, time.UTC), req.To, "window covers the whole day")
	assert.Equal(t, 24*time.Hour, req.Lead)
	assert.Equal(t, 50, req.MaxMembers)
	assert.Equal(t, model.ForecastSources(), req.Models)
}

func TestBuildCompareRequest_ExplicitFlags(t *testing.T) {
	setTestConfig(t)
	resetCompareFlags(t)
	compareFrom = "2026-01-10"
	compareTo = "2026-01-12"
	setCoordFlags(t, "51.5", "-0.12")
	compareModels = []string{"gencast", "aifs"}
	compareLead = 48
	compareMembers = 0

	req, err := buildCompareRequest()
	require.NoError(t, err)

	assert.InDelta(t, 51.5, req.Target.Lat, 1e-9)
	assert.Equal(t, time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC), req.To)
	assert.Equal(t, 48*time.Hour, req.Lead)
	assert.Equal(t, 0, req.MaxMembers, "explicit zero means source default, not config fallback")
	assert.Equal(t, []model.SourceID{model.SourceGenCast, model.SourceAIFS}, req.Models)
}

func TestBuildCompareRequest_ZeroCoordinatesHonored(t *testing.T) {
	setTestConfig(t)
	resetCompareFlags(t)
	compareFrom = "2026-01-10"
	setCoordFlags(t, "0", "0")

	req, err := buildCompareRequest()
	require.NoError(t, err)

	assert.Zero(t, req.Target.Lat, "explicit --lat 0 must not fall back to the configured target")
	assert.Zero(t, req.Target.Lon, "explicit --lon 0 must not fall back to the configured target")
}

func TestBuildSkillRequest_ZeroCoordinatesHonored(t *testing.T) {
	setTestConfig(t)
	skillFrom = "2026-01-10"
	t.Cleanup(func() {
		skillFrom = ""
		skillLat, skillLon = 0, 0
		for _, name := range []string{"lat", "lon"} {
			skillCmd.Flags().Lookup(name).Changed = false
		}
	})
	require.NoError(t, skillCmd.Flags().Set("lat", "0"))
	require.NoError(t, skillCmd.Flags().Set("lon", "0"))

	req, err := buildSkillRequest()
	require.NoError(t, err)

	assert.Zero(t, req.Target.Lat)
	assert.Zero(t, req.Target.Lon)
}

func TestBuildCompareRequest_BadInput(t *testing.T) {
	setTestConfig(t)

	cases := []struct {
		name  string
		setup func()
	}{
		{"bad from", func() { compareFrom = "10/01/2026" }},
		{"bad to", func() { compareFrom = "2026-01-10"; compareTo = "later" }},
		{"bad variable", func() { compareFrom = "2026-01-10"; compareVariable = "humidity" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resetCompareFlags(t)
			tc.setup()
			_, err := buildCompareRequest()
			assert.Error(t, err)
		})
	}
}

func TestParseDay(t *testing.T) {
	got, err := parseDay("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseDay("2026-3-1")
	assert.Error(t, err)
}

func TestParseModels(t *testing.T) {
	assert.Equal(t, model.ForecastSources(), parseModels(nil))
	assert.Equal(t, []model.SourceID{model.SourceAIFS}, parseModels([]string{"aifs"}))
}
