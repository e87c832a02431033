package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/pkg/era5"
)

// era5Variables maps canonical variable names to ERA5 short names. Wind is
// absent: it is derived from the u10/v10 components.
var era5Variables = map[model.Variable]string{
	model.VarTemperature2m: "t2m",
	model.VarPrecipitation: "tp",
}

// ERA5Data is the slice of pkg/era5 the adapter reads through.
type ERA5Data interface {
	Series(varName string, lat, lon float64, from, to time.Time) ([]era5.Point, error)
}

// ERA5Opener indexes a directory of NetCDF exports on first use.
type ERA5Opener func(dir string) (ERA5Data, error)

// ERA5Adapter serves the reanalysis reference from local NetCDF exports.
// ERA5 stores SI units natively (K, m/s via components, m), so values pass
// through without conversion. Lead time is always zero: a reanalysis has no
// forecast horizon.
type ERA5Adapter struct {
	entry catalog.Source
	open  ERA5Opener
}

// NewERA5Adapter binds a catalog entry to a NetCDF directory. A nil opener
// uses the real filesystem.
func NewERA5Adapter(entry catalog.Source, open ERA5Opener) *ERA5Adapter {
	if open == nil {
		open = func(dir string) (ERA5Data, error) {
			return era5.OpenDir(dir)
		}
	}
	return &ERA5Adapter{entry: entry, open: open}
}

func (a *ERA5Adapter) ModelID() model.SourceID {
	return a.entry.ID
}

func (a *ERA5Adapter) GridSpec() grid.Spec {
	return a.entry.GridSpec()
}

// FetchForecast extracts the reference series for one cell. The directory is
// indexed per call so newly downloaded months show up without a restart.
func (a *ERA5Adapter) FetchForecast(ctx context.Context, req FetchRequest) (RecordIterator, error) {
	data, err := a.open(a.entry.DataDir)
	if err != nil {
		return nil, &UnavailableError{Source: a.entry.ID, Err: err}
	}

	var points []era5.Point
	if req.Variable == model.VarWindSpeed10m {
		points, err = a.windSeries(data, req)
	} else {
		name, ok := era5Variables[req.Variable]
		if !ok {
			return nil, &SchemaError{
				Source: a.entry.ID,
				Reason: fmt.Sprintf("no reanalysis mapping for variable %s", req.Variable),
			}
		}
		points, err = data.Series(name, req.Cell.Lat, req.Cell.Lon, req.From, req.To)
	}
	if err != nil {
		return nil, &SchemaError{Source: a.entry.ID, Reason: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]model.ForecastRecord, 0, len(points))
	for _, p := range points {
		records = append(records, model.ForecastRecord{
			Source:    a.entry.ID,
			ValidTime: p.Time,
			Location:  req.Cell.Point(),
			Variable:  req.Variable,
			Value:     p.Value,
		})
	}
	return IteratorOver(records), nil
}

// windSeries combines the zonal and meridional components into speed,
// keeping only instants present in both series.
func (a *ERA5Adapter) windSeries(data ERA5Data, req FetchRequest) ([]era5.Point, error) {
	us, err := data.Series("u10", req.Cell.Lat, req.Cell.Lon, req.From, req.To)
	if err != nil {
		return nil, err
	}
	vs, err := data.Series("v10", req.Cell.Lat, req.Cell.Lon, req.From, req.To)
	if err != nil {
		return nil, err
	}

	zonal := make(map[int64]float64, len(us))
	for _, p := range us {
		zonal[p.Time.Unix()] = p.Value
	}
	out := make([]era5.Point, 0, len(vs))
	for _, p := range vs {
		u, ok := zonal[p.Time.Unix()]
		if !ok {
			continue
		}
		out = append(out, era5.Point{Time: p.Time, Value: math.Hypot(u, p.Value)})
	}
	return out, nil
}
