package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/archive"
	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/render"
	"github.com/windrose-labs/wxbench/internal/source"
	"github.com/windrose-labs/wxbench/internal/units"
)

// initStore opens the forecast archive declared in config.
func initStore(ctx context.Context) (archive.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "wxbench.db"
		}
		return archive.NewSQLite(path)
	case "postgres":
		return archive.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadCatalog returns the built-in source catalog, overlaid with the YAML
// file from config when one is set.
func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.Path)
}

// engineEnv holds the store, catalog, and comparison engine needed by the
// compare/skill/serve commands. Callers should defer env.Close().
type engineEnv struct {
	Store   archive.Store
	Catalog *catalog.Catalog
	Engine  *compare.Engine
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine sets up the archive store, loads the catalog, builds the
// adapter registry, and wires the comparison engine.
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate archive")
	}

	cat, err := loadCatalog()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := source.BuildRegistry(cat, source.BuildDeps{Store: st})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	eng := compare.New(reg, cat,
		compare.WithReference(model.SourceID(cfg.Compare.Reference)),
		compare.WithMaxConcurrent(cfg.Compare.MaxConcurrent),
	)

	return &engineEnv{Store: st, Catalog: cat, Engine: eng}, nil
}

// initRenderer builds a report renderer for the given unit system, falling
// back to the configured one when the flag is empty.
func initRenderer(unitsFlag string) (*render.Renderer, error) {
	s := unitsFlag
	if s == "" {
		s = cfg.Report.Units
	}
	sys, err := units.ParseSystem(s)
	if err != nil {
		return nil, err
	}
	return render.New(sys), nil
}

// resolveFormat parses an output format flag, falling back to config.
func resolveFormat(formatFlag string) (render.Format, error) {
	s := formatFlag
	if s == "" {
		s = cfg.Report.Format
	}
	return render.ParseFormat(s)
}

// parseDay parses an inclusive calendar date in UTC.
func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// parseModels converts model flags into source IDs; empty means every
// scoreable source.
func parseModels(names []string) []model.SourceID {
	if len(names) == 0 {
		return model.ForecastSources()
	}
	out := make([]model.SourceID, 0, len(names))
	for _, n := range names {
		out = append(out, model.SourceID(n))
	}
	return out
}
