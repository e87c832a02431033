// Package units owns the canonical SI unit of every supported variable and
// the conversions between native, canonical, and presentation units. All
// cross-source math happens in canonical units; conversion to a presentation
// unit is applied only at the rendering boundary.
package units

import (
	"fmt"

	"github.com/windrose-labs/wxbench/internal/model"
)

// System selects the presentation unit family.
type System string

const (
	SystemSI       System = "si"
	SystemMetric   System = "metric"
	SystemImperial System = "imperial"
)

// ParseSystem validates a user-supplied unit system name.
func ParseSystem(s string) (System, error) {
	switch System(s) {
	case SystemSI, SystemMetric, SystemImperial:
		return System(s), nil
	}
	return "", fmt.Errorf("unknown unit system %q", s)
}

// Unit is a concrete measurement unit. Each unit belongs to exactly one
// dimension; converting across dimensions is an error.
type Unit string

const (
	Kelvin     Unit = "K"
	Celsius    Unit = "degC"
	Fahrenheit Unit = "degF"

	MetersPerSecond   Unit = "m/s"
	KilometersPerHour Unit = "km/h"
	MilesPerHour      Unit = "mph"

	Meters      Unit = "m"
	Millimeters Unit = "mm"
	Inches      Unit = "in"
)

type dimension int

const (
	dimTemperature dimension = iota
	dimSpeed
	dimLength
)

// linear maps a unit to SI as si = value*scale + offset.
type linear struct {
	dim    dimension
	scale  float64
	offset float64
}

var conversions = map[Unit]linear{
	Kelvin:     {dimTemperature, 1, 0},
	Celsius:    {dimTemperature, 1, 273.15},
	Fahrenheit: {dimTemperature, 5.0 / 9.0, 273.15 - 32*5.0/9.0},

	MetersPerSecond:   {dimSpeed, 1, 0},
	KilometersPerHour: {dimSpeed, 1.0 / 3.6, 0},
	MilesPerHour:      {dimSpeed, 0.44704, 0},

	Meters:      {dimLength, 1, 0},
	Millimeters: {dimLength, 0.001, 0},
	Inches:      {dimLength, 0.0254, 0},
}

// Parse validates a unit name as it appears in the source catalog or an
// ingested export.
func Parse(s string) (Unit, error) {
	switch Unit(s) {
	case Kelvin, Celsius, Fahrenheit, MetersPerSecond, KilometersPerHour, MilesPerHour, Meters, Millimeters, Inches:
		return Unit(s), nil
	}
	// Common aliases seen in upstream exports.
	switch s {
	case "kelvin", "Kelvin":
		return Kelvin, nil
	case "C", "celsius", "°C":
		return Celsius, nil
	case "F", "fahrenheit", "°F":
		return Fahrenheit, nil
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// Label returns the display form of a unit.
func Label(u Unit) string {
	switch u {
	case Celsius:
		return "°C"
	case Fahrenheit:
		return "°F"
	default:
		return string(u)
	}
}

// Canonical returns the internal SI unit for a variable.
func Canonical(v model.Variable) Unit {
	switch v {
	case model.VarWindSpeed10m:
		return MetersPerSecond
	case model.VarPrecipitation:
		return Meters
	default:
		return Kelvin
	}
}

// Presentation returns the display unit for a variable under a system.
func Presentation(v model.Variable, sys System) Unit {
	switch v {
	case model.VarWindSpeed10m:
		switch sys {
		case SystemMetric:
			return KilometersPerHour
		case SystemImperial:
			return MilesPerHour
		default:
			return MetersPerSecond
		}
	case model.VarPrecipitation:
		switch sys {
		case SystemMetric:
			return Millimeters
		case SystemImperial:
			return Inches
		default:
			return Meters
		}
	default:
		switch sys {
		case SystemMetric:
			return Celsius
		case SystemImperial:
			return Fahrenheit
		default:
			return Kelvin
		}
	}
}

// Convert transforms a value between two units of the same dimension.
func Convert(value float64, from, to Unit) (float64, error) {
	f, ok := conversions[from]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", from)
	}
	t, ok := conversions[to]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", to)
	}
	if f.dim != t.dim {
		return 0, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	si := value*f.scale + f.offset
	return (si - t.offset) / t.scale, nil
}

// ConvertDelta transforms a difference (error, spread) between two units of
// the same dimension. Offsets do not apply to differences.
func ConvertDelta(value float64, from, to Unit) (float64, error) {
	f, ok := conversions[from]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", from)
	}
	t, ok := conversions[to]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", to)
	}
	if f.dim != t.dim {
		return 0, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	return value * f.scale / t.scale, nil
}
