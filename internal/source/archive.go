package source

import (
	"context"
	"fmt"
	"time"

	"github.com/windrose-labs/wxbench/internal/archive"
	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/units"
)

// ArchiveReader is the slice of the archive store adapters read through.
type ArchiveReader interface {
	ForecastRows(ctx context.Context, q archive.RowQuery) ([]archive.ForecastRow, error)
}

// ArchiveAdapter serves sources whose exports were ingested into the
// forecast archive (gencast, graphcast, fourcastnet). Rows come back in the
// source's native unit and are normalized here.
type ArchiveAdapter struct {
	entry catalog.Source
	store ArchiveReader
}

// NewArchiveAdapter binds a catalog entry to the archive store.
func NewArchiveAdapter(entry catalog.Source, store ArchiveReader) *ArchiveAdapter {
	return &ArchiveAdapter{entry: entry, store: store}
}

func (a *ArchiveAdapter) ModelID() model.SourceID {
	return a.entry.ID
}

func (a *ArchiveAdapter) GridSpec() grid.Spec {
	return a.entry.GridSpec()
}

// FetchForecast reads the archived rows for one cell and normalizes them.
// Store failures are transient; rows that cannot be normalized are fatal for
// the source.
func (a *ArchiveAdapter) FetchForecast(ctx context.Context, req FetchRequest) (RecordIterator, error) {
	rows, err := a.store.ForecastRows(ctx, archive.RowQuery{
		Source:    a.entry.ID,
		Variable:  req.Variable,
		Lat:       req.Cell.Lat,
		Lon:       req.Cell.Lon,
		From:      req.From,
		To:        req.To,
		LeadHours: int(req.Lead / time.Hour),
	})
	if err != nil {
		return nil, &UnavailableError{Source: a.entry.ID, Err: err}
	}

	records, err := a.normalize(req, rows)
	if err != nil {
		return nil, err
	}
	return IteratorOver(records), nil
}

// normalize converts archive rows to canonical records, capping ensemble
// members per valid time. Rows arrive ordered by (valid_time, member), so the
// cap keeps the lowest member indices.
func (a *ArchiveAdapter) normalize(req FetchRequest, rows []archive.ForecastRow) ([]model.ForecastRecord, error) {
	canonical := units.Canonical(req.Variable)
	ensemble := a.entry.EnsembleMembers > 1

	maxMembers := req.MaxMembers
	if maxMembers <= 0 {
		maxMembers = a.entry.EnsembleMembers
	}

	perValid := make(map[int64]int)
	records := make([]model.ForecastRecord, 0, len(rows))
	for _, row := range rows {
		if ensemble {
			if row.Member == nil {
				return nil, &SchemaError{
					Source: a.entry.ID,
					Reason: fmt.Sprintf("ensemble source emitted a row without a member index at %s",
						row.ValidTime.Format(time.RFC3339)),
				}
			}
			key := row.ValidTime.Unix()
			if perValid[key] >= maxMembers {
				continue
			}
			perValid[key]++
		}

		native, err := units.Parse(row.Unit)
		if err != nil {
			return nil, &SchemaError{
				Source: a.entry.ID,
				Reason: fmt.Sprintf("row has unrecognized unit %q", row.Unit),
			}
		}
		value, err := units.Convert(row.Value, native, canonical)
		if err != nil {
			return nil, &SchemaError{
				Source: a.entry.ID,
				Reason: fmt.Sprintf("cannot express %s in %s: %v", native, canonical, err),
			}
		}

		records = append(records, model.ForecastRecord{
			Source:    a.entry.ID,
			ValidTime: row.ValidTime,
			LeadTime:  time.Duration(row.LeadHours) * time.Hour,
			Location:  model.GeoPoint{Lat: row.Lat, Lon: row.Lon},
			Variable:  req.Variable,
			Value:     value,
			Member:    row.Member,
		})
	}
	return records, nil
}
