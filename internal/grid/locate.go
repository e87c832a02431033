package grid

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/model"
)

const (
	earthRadiusMeters = 6371000.0

	// Candidates closer than this are considered equidistant and the
	// lexicographically smaller (lat, lon) pair wins.
	tieToleranceMeters = 1e-6
)

// Distance returns the great-circle (haversine) distance between two points
// in meters. Geodesic, not planar: degree spacing compresses with latitude.
func Distance(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Locate returns the source grid cell nearest to target under great-circle
// distance. Ties within tieToleranceMeters resolve to the lexicographically
// smaller (lat, lon). Targets outside the source's coverage fail with
// *OutOfDomainError.
func Locate(target model.GeoPoint, spec Spec) (model.GridCell, error) {
	if err := target.Validate(); err != nil {
		return model.GridCell{}, eris.Wrap(err, "grid: invalid target")
	}
	if spec.LatSpacing <= 0 || spec.LonSpacing <= 0 {
		return model.GridCell{}, eris.Errorf("grid: source %q declares non-positive spacing", spec.Source)
	}
	if !spec.Coverage.Contains(target) {
		return model.GridCell{}, &OutOfDomainError{Source: spec.Source, Target: target}
	}

	// The geodesic nearest lattice point is one of the four corners of the
	// enclosing grid box.
	latLo := spec.LatOrigin + math.Floor((target.Lat-spec.LatOrigin)/spec.LatSpacing)*spec.LatSpacing
	lonLo := spec.LonOrigin + math.Floor((target.Lon-spec.LonOrigin)/spec.LonSpacing)*spec.LonSpacing

	candidates := [4]model.GeoPoint{
		{Lat: latLo, Lon: lonLo},
		{Lat: latLo, Lon: lonLo + spec.LonSpacing},
		{Lat: latLo + spec.LatSpacing, Lon: lonLo},
		{Lat: latLo + spec.LatSpacing, Lon: lonLo + spec.LonSpacing},
	}

	found := false
	var bestPoint model.GeoPoint
	var bestDist float64
	for _, cand := range candidates {
		if cand.Lat < -90 || cand.Lat > 90 {
			continue
		}
		cand.Lon = normalizeLon(cand.Lon)
		if !spec.Coverage.Contains(cand) {
			continue
		}
		d := Distance(target, cand)
		switch {
		case !found || d < bestDist-tieToleranceMeters:
			found, bestPoint, bestDist = true, cand, d
		case d <= bestDist+tieToleranceMeters && lexLess(cand, bestPoint):
			bestPoint, bestDist = cand, d
		}
	}
	if !found {
		return model.GridCell{}, &OutOfDomainError{Source: spec.Source, Target: target}
	}

	return model.GridCell{
		Source:         spec.Source,
		Lat:            bestPoint.Lat,
		Lon:            bestPoint.Lon,
		DistanceMeters: bestDist,
	}, nil
}

func lexLess(a, b model.GeoPoint) bool {
	if a.Lat != b.Lat {
		return a.Lat < b.Lat
	}
	return a.Lon < b.Lon
}

// normalizeLon folds a longitude into [-180, 180).
func normalizeLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
