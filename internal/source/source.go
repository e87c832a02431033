// Package source defines the model-adapter contract: every forecast or
// reference dataset is reached through an Adapter that normalizes its native
// schema (units, time encoding, ensemble shape) into model.ForecastRecord.
package source

import (
	"context"
	"time"

	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
)

// FetchRequest asks an adapter for normalized records at one grid cell.
type FetchRequest struct {
	Cell     model.GridCell
	From     time.Time // inclusive valid-time range, UTC
	To       time.Time
	Variable model.Variable

	// Lead selects the forecast generation to read: records whose issue
	// time is Lead before their valid time. Reference adapters ignore it.
	Lead time.Duration

	// MaxMembers caps ensemble members consumed per valid time. Zero means
	// the source's declared ensemble size.
	MaxMembers int
}

// RecordIterator is a finite, pull-based sequence of normalized records.
// Callers may stop early; Close releases whatever the fetch holds open. Every
// FetchForecast call returns a fresh iterator with no shared cursor state.
type RecordIterator interface {
	Next() bool
	Record() model.ForecastRecord
	Err() error
	Close() error
}

// Adapter is the uniform surface over one external dataset.
type Adapter interface {
	// ModelID names the source this adapter serves.
	ModelID() model.SourceID

	// GridSpec declares the source's native lattice and coverage.
	GridSpec() grid.Spec

	// FetchForecast returns records for the requested cell, valid-time
	// range, and variable, already normalized: canonical SI values, UTC
	// valid times, per-member rows for ensemble sources. Failures are
	// *UnavailableError (transient), *SchemaError (fatal for the source),
	// or *grid.OutOfDomainError.
	FetchForecast(ctx context.Context, req FetchRequest) (RecordIterator, error)
}

// sliceIterator serves an already materialized batch.
type sliceIterator struct {
	records []model.ForecastRecord
	pos     int
}

// IteratorOver wraps a materialized record slice in the iterator contract.
func IteratorOver(records []model.ForecastRecord) RecordIterator {
	return &sliceIterator{records: records}
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Record() model.ForecastRecord {
	return it.records[it.pos-1]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }

// Collect drains an iterator, honoring cancellation between records, and
// always closes it.
func Collect(ctx context.Context, it RecordIterator) ([]model.ForecastRecord, error) {
	defer func() { _ = it.Close() }()

	var out []model.ForecastRecord
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
