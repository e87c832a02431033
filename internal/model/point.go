package model

import "fmt"

// GeoPoint is an immutable coordinate in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate against the valid lat/lon ranges.
func (p GeoPoint) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", p.Lon)
	}
	return nil
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}

// GridCell is a source-specific discretized location: the grid point of one
// dataset nearest to a requested target. Never mutated after creation; owned
// by the fetch call that requested it.
type GridCell struct {
	Source         SourceID `json:"source"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	DistanceMeters float64  `json:"distance_meters"`
}

// Point returns the cell's own coordinate.
func (c GridCell) Point() GeoPoint {
	return GeoPoint{Lat: c.Lat, Lon: c.Lon}
}
