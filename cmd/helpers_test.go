package main

import (
	"context"
	"testing"
	"time"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/config"
	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/source"
)

// setTestConfig installs a config with the shipped defaults for the duration
// of one test.
func setTestConfig(t *testing.T) *config.Config {
	t.Helper()
	old := cfg
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", SQLitePath: "wxbench.db"},
		Compare: config.CompareConfig{
			Reference:     "era5",
			Lat:           40.7128,
			Lon:           -74.0060,
			LeadHours:     24,
			MaxMembers:    50,
			MaxConcurrent: 4,
		},
		Report: config.ReportConfig{Units: "imperial", Format: "table"},
		Skill:  config.SkillConfig{Days: 9},
		Fetch:  config.FetchConfig{DataDir: "data", UserAgent: "wxbench/1.0"},
		Server: config.ServerConfig{Port: 8080},
	}
	t.Cleanup(func() { cfg = old })
	return cfg
}

// stubAdapter serves canned records for the API tests.
type stubAdapter struct {
	id      model.SourceID
	records []model.ForecastRecord
}

func (s *stubAdapter) ModelID() model.SourceID { return s.id }

func (s *stubAdapter) GridSpec() grid.Spec {
	return grid.Spec{Source: s.id, LatSpacing: 0.25, LonSpacing: 0.25, Coverage: grid.Global()}
}

func (s *stubAdapter) FetchForecast(_ context.Context, req source.FetchRequest) (source.RecordIterator, error) {
	var out []model.ForecastRecord
	for _, rec := range s.records {
		if rec.ValidTime.Before(req.From) || rec.ValidTime.After(req.To) {
			continue
		}
		out = append(out, rec)
	}
	return source.IteratorOver(out), nil
}

func stubRecord(id model.SourceID, valid time.Time, value float64) model.ForecastRecord {
	return model.ForecastRecord{
		Source:    id,
		ValidTime: valid,
		LeadTime:  24 * time.Hour,
		Location:  model.GeoPoint{Lat: 40.75, Lon: -74.0},
		Variable:  model.VarTemperature2m,
		Value:     value,
	}
}

// newStubEnv builds an engine environment over in-memory adapters, no store.
func newStubEnv(adapters ...*stubAdapter) *engineEnv {
	reg := source.NewRegistry()
	sources := make(map[model.SourceID]catalog.Source, len(adapters))
	for _, a := range adapters {
		reg.Register(a)
		sources[a.id] = catalog.Source{
			ID:              a.id,
			Backend:         catalog.BackendArchive,
			NativeUnit:      "K",
			EnsembleMembers: 1,
			Grid:            catalog.GridConfig{LatSpacing: 0.25, LonSpacing: 0.25},
			TimeoutSeconds:  5,
			RetryAttempts:   1,
		}
	}
	cat := &catalog.Catalog{Sources: sources}
	return &engineEnv{
		Catalog: cat,
		Engine:  compare.New(reg, cat, compare.WithReference(model.SourceERA5)),
	}
}
