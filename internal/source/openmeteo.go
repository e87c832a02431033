package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/units"
	"github.com/windrose-labs/wxbench/pkg/openmeteo"
)

// openMeteoVariables maps canonical variable names to Open-Meteo hourly
// series names where they differ.
var openMeteoVariables = map[model.Variable]string{
	model.VarPrecipitation: "precipitation",
}

// OpenMeteoAdapter serves live sources published through the Open-Meteo
// previous-runs API (aifs). The catalog's Model field selects the upstream
// model slug.
type OpenMeteoAdapter struct {
	entry  catalog.Source
	client openmeteo.Client
}

// NewOpenMeteoAdapter binds a catalog entry to an API client.
func NewOpenMeteoAdapter(entry catalog.Source, client openmeteo.Client) *OpenMeteoAdapter {
	return &OpenMeteoAdapter{entry: entry, client: client}
}

func (a *OpenMeteoAdapter) ModelID() model.SourceID {
	return a.entry.ID
}

func (a *OpenMeteoAdapter) GridSpec() grid.Spec {
	return a.entry.GridSpec()
}

// FetchForecast pulls the hourly series for the requested window. The
// previous-runs API groups runs by whole days, so the lead horizon is
// truncated to days; a 24h lead reads yesterday's run.
func (a *OpenMeteoAdapter) FetchForecast(ctx context.Context, req FetchRequest) (RecordIterator, error) {
	previousDays := int(req.Lead / (24 * time.Hour))
	if previousDays < 0 {
		previousDays = 0
	}

	variable := string(req.Variable)
	if mapped, ok := openMeteoVariables[req.Variable]; ok {
		variable = mapped
	}

	resp, err := a.client.PreviousRuns(ctx, openmeteo.PreviousRunsRequest{
		Latitude:     req.Cell.Lat,
		Longitude:    req.Cell.Lon,
		Model:        a.entry.Model,
		Variable:     variable,
		PreviousDays: previousDays,
		StartDate:    req.From,
		EndDate:      req.To,
	})
	if err != nil {
		return nil, &UnavailableError{Source: a.entry.ID, Err: err}
	}

	// The API resolves its own nearest cell; anything beyond half a grid
	// step from ours means the catalog geometry is wrong.
	if err := a.checkCell(req.Cell, resp.Latitude, resp.Longitude); err != nil {
		return nil, err
	}

	native, err := a.nativeUnit(resp.Unit)
	if err != nil {
		return nil, err
	}
	canonical := units.Canonical(req.Variable)

	records := make([]model.ForecastRecord, 0, len(resp.Times))
	for i, ts := range resp.Times {
		if ts.Before(req.From) || ts.After(req.To) {
			continue
		}
		if resp.Values[i] == nil {
			continue
		}
		value, err := units.Convert(*resp.Values[i], native, canonical)
		if err != nil {
			return nil, &SchemaError{
				Source: a.entry.ID,
				Reason: fmt.Sprintf("cannot express %s in %s: %v", native, canonical, err),
			}
		}
		records = append(records, model.ForecastRecord{
			Source:    a.entry.ID,
			ValidTime: ts,
			LeadTime:  time.Duration(previousDays) * 24 * time.Hour,
			Location:  req.Cell.Point(),
			Variable:  req.Variable,
			Value:     value,
		})
	}
	return IteratorOver(records), nil
}

func (a *OpenMeteoAdapter) checkCell(cell model.GridCell, gotLat, gotLon float64) error {
	latTol := a.entry.Grid.LatSpacing/2 + 1e-9
	lonTol := a.entry.Grid.LonSpacing/2 + 1e-9
	if math.Abs(gotLat-cell.Lat) > latTol || math.Abs(gotLon-cell.Lon) > lonTol {
		return &SchemaError{
			Source: a.entry.ID,
			Reason: fmt.Sprintf("api resolved cell (%.4f, %.4f) for requested (%.4f, %.4f)",
				gotLat, gotLon, cell.Lat, cell.Lon),
		}
	}
	return nil
}

// nativeUnit prefers the unit the response declares, falling back to the
// catalog's declaration when the response omits it.
func (a *OpenMeteoAdapter) nativeUnit(respUnit string) (units.Unit, error) {
	if respUnit != "" {
		u, err := units.Parse(respUnit)
		if err != nil {
			return "", &SchemaError{
				Source: a.entry.ID,
				Reason: fmt.Sprintf("response declares unrecognized unit %q", respUnit),
			}
		}
		return u, nil
	}
	u, err := a.entry.Unit()
	if err != nil {
		return "", &SchemaError{Source: a.entry.ID, Reason: err.Error()}
	}
	return u, nil
}
