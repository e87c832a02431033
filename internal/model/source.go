// Package model defines the shared domain types for forecast verification:
// sources, variables, grid cells, normalized forecast records, and the
// comparison rows the engine emits.
package model

import "fmt"

// SourceID identifies a forecast or reference dataset.
type SourceID string

const (
	SourceAIFS        SourceID = "aifs"
	SourceGenCast     SourceID = "gencast"
	SourceGraphCast   SourceID = "graphcast"
	SourceFourCastNet SourceID = "fourcastnet"
	SourceERA5        SourceID = "era5"
)

// ForecastSources lists the scoreable (non-reference) sources in canonical order.
func ForecastSources() []SourceID {
	return []SourceID{SourceAIFS, SourceFourCastNet, SourceGenCast, SourceGraphCast}
}

// Variable names a physical quantity from the fixed supported set.
type Variable string

const (
	VarTemperature2m Variable = "temperature_2m"
	VarWindSpeed10m  Variable = "wind_speed_10m"
	VarPrecipitation Variable = "total_precipitation"
)

// ParseVariable validates a user-supplied variable name.
func ParseVariable(s string) (Variable, error) {
	switch Variable(s) {
	case VarTemperature2m, VarWindSpeed10m, VarPrecipitation:
		return Variable(s), nil
	}
	return "", fmt.Errorf("unknown variable %q", s)
}
