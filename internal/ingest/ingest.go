// Package ingest loads per-source forecast export CSVs into the archive
// store. Each source's catalog entry decides the expected column layout
// (issue time plus lead hours, or absolute valid time) and the member
// bounds; malformed rows fail the file rather than load silently.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/windrose-labs/wxbench/internal/archive"
	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/model"
)

const batchSize = 1000

// Writer is the slice of the archive store ingest needs.
type Writer interface {
	UpsertForecasts(ctx context.Context, rows []archive.ForecastRow) (int64, error)
}

// Ingestor parses export files and upserts their rows.
type Ingestor struct {
	store Writer
	cat   *catalog.Catalog
}

// New creates an Ingestor over the given store and catalog.
func New(store Writer, cat *catalog.Catalog) *Ingestor {
	return &Ingestor{store: store, cat: cat}
}

// Result summarizes one ingested file.
type Result struct {
	Path     string
	Source   model.SourceID
	Parsed   int
	Upserted int64
}

// IngestFile parses one CSV export for the named source and upserts it in
// batches. The upsert keeps ingest idempotent: re-loading the same export
// replaces rather than duplicates.
func (ing *Ingestor) IngestFile(ctx context.Context, id model.SourceID, path string) (*Result, error) {
	entry, ok := ing.cat.Get(id)
	if !ok {
		return nil, eris.Errorf("ingest: source %q not in catalog", id)
	}
	layout, err := layoutFor(entry)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	res := &Result{Path: path, Source: id}
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read header of %s", path)
	}
	cols, err := layout.bind(header)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s", path)
	}

	batch := make([]archive.ForecastRow, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := ing.store.UpsertForecasts(ctx, batch)
		if err != nil {
			return eris.Wrapf(err, "ingest: upsert %s", path)
		}
		res.Upserted += n
		batch = batch[:0]
		return nil
	}

	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: %s line %d", path, line)
		}

		row, err := layout.parse(cols, record, entry)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: %s line %d", path, line)
		}
		res.Parsed++

		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	zap.L().Info("ingest: file loaded",
		zap.String("source", string(id)),
		zap.String("path", path),
		zap.Int("parsed", res.Parsed),
		zap.Int64("upserted", res.Upserted))

	return res, nil
}
