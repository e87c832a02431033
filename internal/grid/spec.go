// Package grid maps target coordinates onto the regular lat/lon lattices of
// heterogeneous forecast sources. Pure computation, no I/O.
package grid

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/windrose-labs/wxbench/internal/model"
)

// Spec declares one source's regular grid: spacing in degrees, the offsets
// its grid lines pass through, and the coverage domain.
type Spec struct {
	Source     model.SourceID
	LatSpacing float64
	LonSpacing float64
	LatOrigin  float64
	LonOrigin  float64
	Coverage   Coverage
}

// Coverage is a source's declared domain: a lat/lon box, optionally refined
// by a polygon ring for regional models.
type Coverage struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
	Ring   []model.GeoPoint
}

// Global covers the whole sphere.
func Global() Coverage {
	return Coverage{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
}

// Contains reports whether p lies inside the coverage domain. The box check
// runs first; the ring, when present, refines it.
func (c Coverage) Contains(p model.GeoPoint) bool {
	if p.Lat < c.MinLat || p.Lat > c.MaxLat || p.Lon < c.MinLon || p.Lon > c.MaxLon {
		return false
	}
	if len(c.Ring) < 3 {
		return true
	}
	flat := make([]float64, 0, (len(c.Ring)+1)*2)
	for _, v := range c.Ring {
		flat = append(flat, v.Lon, v.Lat)
	}
	// Close the ring if the catalog left it open.
	if c.Ring[0] != c.Ring[len(c.Ring)-1] {
		flat = append(flat, c.Ring[0].Lon, c.Ring[0].Lat)
	}
	return xy.IsPointInRing(geom.XY, geom.Coord{p.Lon, p.Lat}, flat)
}

// OutOfDomainError reports a target outside a source's declared coverage.
// Fatal for that source only.
type OutOfDomainError struct {
	Source model.SourceID
	Target model.GeoPoint
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("grid: target %s outside coverage of source %q", e.Target, e.Source)
}

// IsOutOfDomain reports whether err wraps an OutOfDomainError.
func IsOutOfDomain(err error) bool {
	var e *OutOfDomainError
	return errors.As(err, &e)
}
