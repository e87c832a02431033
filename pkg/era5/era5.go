// Package era5 reads ERA5 reanalysis NetCDF exports and extracts hourly
// series for single grid points. It handles both classic exports (packed
// int16 with scale/offset, hours since 1900) and newer CDS exports (float32,
// epoch seconds under valid_time).
package era5

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/rotisserie/eris"
)

// Point is one sampled value from a series.
type Point struct {
	Time  time.Time
	Value float64
}

// File is one open NetCDF export with its coordinate axes decoded.
type File struct {
	path  string
	nc    api.Group
	lats  []float64
	lons  []float64
	times []time.Time
}

// Open reads the coordinate axes of the export at path.
func Open(path string) (*File, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "era5: open %s", path)
	}
	f := &File{path: path, nc: nc}
	if f.lats, err = coordValues(nc, "latitude"); err != nil {
		nc.Close()
		return nil, err
	}
	if f.lons, err = coordValues(nc, "longitude"); err != nil {
		nc.Close()
		return nil, err
	}
	if f.times, err = timeValues(nc); err != nil {
		nc.Close()
		return nil, err
	}
	return f, nil
}

// Close releases the underlying file.
func (f *File) Close() {
	f.nc.Close()
}

// Times returns the file's time axis in UTC.
func (f *File) Times() []time.Time {
	return f.times
}

// Covers reports whether the file's time axis intersects [from, to].
func (f *File) Covers(from, to time.Time) bool {
	if len(f.times) == 0 {
		return false
	}
	first := f.times[0]
	last := f.times[len(f.times)-1]
	return !first.After(to) && !last.Before(from)
}

// Series extracts the hourly series for varName at the grid point nearest
// (lat, lon), restricted to [from, to]. Fill values become gaps.
func (f *File) Series(varName string, lat, lon float64, from, to time.Time) ([]Point, error) {
	latIdx, err := nearestIndex(f.lats, lat)
	if err != nil {
		return nil, eris.Wrapf(err, "era5: latitude axis of %s", f.path)
	}
	lonIdx, err := nearestIndex(f.lons, alignLon(f.lons, lon))
	if err != nil {
		return nil, eris.Wrapf(err, "era5: longitude axis of %s", f.path)
	}

	vg, err := f.nc.GetVarGetter(varName)
	if err != nil {
		return nil, eris.Wrapf(err, "era5: variable %s not in %s", varName, f.path)
	}
	up := newUnpacker(vg.Attributes())

	var out []Point
	for ti, ts := range f.times {
		if ts.Before(from) || ts.After(to) {
			continue
		}
		raw, err := vg.GetSlice(int64(ti), int64(ti)+1)
		if err != nil {
			return nil, eris.Wrapf(err, "era5: read %s step %d of %s", varName, ti, f.path)
		}
		cell, err := cellValue(raw, latIdx, lonIdx)
		if err != nil {
			return nil, eris.Wrapf(err, "era5: variable %s in %s", varName, f.path)
		}
		v, ok := up.value(cell)
		if !ok {
			continue
		}
		out = append(out, Point{Time: ts, Value: v})
	}
	return out, nil
}

// Dataset is a directory of exports queried as one continuous series.
type Dataset struct {
	paths []string
}

// OpenDir indexes the NetCDF files under dir.
func OpenDir(dir string) (*Dataset, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.nc"))
	if err != nil {
		return nil, eris.Wrapf(err, "era5: scan %s", dir)
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("era5: no netcdf exports under %s", dir)
	}
	sort.Strings(paths)
	return &Dataset{paths: paths}, nil
}

// Paths returns the indexed export files.
func (d *Dataset) Paths() []string {
	return d.paths
}

// Series concatenates varName across every file covering part of [from, to].
// Duplicate timestamps keep the first file's value.
func (d *Dataset) Series(varName string, lat, lon float64, from, to time.Time) ([]Point, error) {
	var out []Point
	seen := make(map[int64]bool)
	for _, path := range d.paths {
		f, err := Open(path)
		if err != nil {
			return nil, err
		}
		if !f.Covers(from, to) {
			f.Close()
			continue
		}
		pts, err := f.Series(varName, lat, lon, from, to)
		f.Close()
		if err != nil {
			return nil, err
		}
		for _, p := range pts {
			if seen[p.Time.Unix()] {
				continue
			}
			seen[p.Time.Unix()] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func coordValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, eris.Wrapf(err, "era5: read axis %s", name)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, eris.Wrapf(err, "era5: read axis %s values", name)
	}
	switch x := v.(type) {
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, nil
	case []float64:
		return x, nil
	}
	return nil, eris.Errorf("era5: axis %s has unsupported type %T", name, v)
}

func timeValues(nc api.Group) ([]time.Time, error) {
	var lastErr error
	for _, name := range []string{"time", "valid_time"} {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			lastErr = err
			continue
		}
		base, step, err := parseTimeUnits(timeUnits(vg, name))
		if err != nil {
			return nil, err
		}
		v, err := vg.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "era5: read axis %s values", name)
		}
		offsets, err := toInt64s(v)
		if err != nil {
			return nil, eris.Wrapf(err, "era5: axis %s", name)
		}
		out := make([]time.Time, len(offsets))
		for i, o := range offsets {
			out[i] = base.Add(time.Duration(o) * step).UTC()
		}
		return out, nil
	}
	return nil, eris.Wrap(lastErr, "era5: no time axis (tried time, valid_time)")
}

func timeUnits(vg api.VarGetter, name string) string {
	if attrs := vg.Attributes(); attrs != nil {
		if v, ok := attrs.Get("units"); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	// Classic exports count hours, newer CDS exports count epoch seconds.
	if name == "valid_time" {
		return "seconds since 1970-01-01"
	}
	return "hours since 1900-01-01 00:00:00.0"
}

func parseTimeUnits(units string) (time.Time, time.Duration, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || fields[1] != "since" {
		return time.Time{}, 0, eris.Errorf("era5: unsupported time units %q", units)
	}
	var step time.Duration
	switch fields[0] {
	case "hours":
		step = time.Hour
	case "seconds":
		step = time.Second
	case "days":
		step = 24 * time.Hour
	default:
		return time.Time{}, 0, eris.Errorf("era5: unsupported time step %q", fields[0])
	}
	base, err := time.Parse("2006-01-02", fields[2])
	if err != nil {
		return time.Time{}, 0, eris.Errorf("era5: unsupported time base %q", fields[2])
	}
	return base.UTC(), step, nil
}

func toInt64s(v any) ([]int64, error) {
	switch x := v.(type) {
	case []int32:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	case []int64:
		return x, nil
	case []float32:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	case []float64:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	}
	return nil, eris.Errorf("era5: unsupported time axis type %T", v)
}

// nearestIndex finds the axis index closest to want. Axes may ascend or
// descend (ERA5 latitudes descend). A miss wider than half a grid step is
// an error rather than a silent snap to the domain edge.
func nearestIndex(axis []float64, want float64) (int, error) {
	if len(axis) == 0 {
		return 0, eris.New("era5: empty coordinate axis")
	}
	best := 0
	bestDiff := math.Abs(axis[0] - want)
	for i, v := range axis[1:] {
		if d := math.Abs(v - want); d < bestDiff {
			best = i + 1
			bestDiff = d
		}
	}
	tol := 1e-6
	if len(axis) > 1 {
		tol = math.Abs(axis[1]-axis[0])/2 + 1e-9
	}
	if bestDiff > tol {
		return 0, eris.Errorf("era5: %.4f is %.4f degrees off nearest grid point %.4f", want, bestDiff, axis[best])
	}
	return best, nil
}

// alignLon maps a [-180, 180) longitude onto the file's axis convention,
// which for ERA5 is usually [0, 360).
func alignLon(axis []float64, lon float64) float64 {
	maxLon := axis[0]
	for _, v := range axis[1:] {
		if v > maxLon {
			maxLon = v
		}
	}
	if maxLon > 180 && lon < 0 {
		return lon + 360
	}
	return lon
}

// unpacker applies the packing attributes of one variable.
type unpacker struct {
	scale   float64
	offset  float64
	fill    float64
	hasFill bool
}

func newUnpacker(attrs api.AttributeMap) unpacker {
	u := unpacker{scale: 1}
	if attrs == nil {
		return u
	}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := toFloat(v); ok {
			u.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := toFloat(v); ok {
			u.offset = f
		}
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs.Get(key); ok {
			if f, ok := toFloat(v); ok {
				u.fill = f
				u.hasFill = true
				break
			}
		}
	}
	return u
}

// value unpacks one raw cell, reporting false for fill values.
func (u unpacker) value(raw float64) (float64, bool) {
	if u.hasFill && raw == u.fill {
		return 0, false
	}
	if math.IsNaN(raw) {
		return 0, false
	}
	return raw*u.scale + u.offset, true
}

func cellValue(raw any, latIdx, lonIdx int) (float64, error) {
	switch s := raw.(type) {
	case [][][]int16:
		return float64(s[0][latIdx][lonIdx]), nil
	case [][][]int32:
		return float64(s[0][latIdx][lonIdx]), nil
	case [][][]float32:
		return float64(s[0][latIdx][lonIdx]), nil
	case [][][]float64:
		return s[0][latIdx][lonIdx], nil
	}
	return 0, eris.Errorf("era5: unsupported data layout %T", raw)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case []float64:
		if len(x) == 1 {
			return x[0], true
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int64:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	}
	return 0, false
}
