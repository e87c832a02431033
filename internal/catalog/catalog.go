// Package catalog declares the forecast sources the tool knows how to query:
// backend kind, grid geometry, coverage, native unit, time encoding, ensemble
// size, and per-source fetch budgets. Built-in defaults cover the standard
// five sources; a YAML file overrides per source.
package catalog

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/windrose-labs/wxbench/internal/grid"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/units"
)

// Backend names the mechanism a source is fetched through.
type Backend string

const (
	BackendArchive   Backend = "archive"   // ingested exports in the forecast archive store
	BackendOpenMeteo Backend = "openmeteo" // live HTTP API
	BackendNetCDF    Backend = "netcdf"    // local NetCDF files
)

// TimeEncoding names how a source's rows express valid time.
type TimeEncoding string

const (
	// EncodingInitPlusLead rows carry issue time plus lead hours.
	EncodingInitPlusLead TimeEncoding = "init_plus_lead"
	// EncodingAbsolute rows carry the valid instant directly.
	EncodingAbsolute TimeEncoding = "absolute"
)

// GridConfig describes a source's regular lattice.
type GridConfig struct {
	LatSpacing float64 `yaml:"lat_spacing"`
	LonSpacing float64 `yaml:"lon_spacing"`
	LatOrigin  float64 `yaml:"lat_origin"`
	LonOrigin  float64 `yaml:"lon_origin"`
}

// PointConfig is one polygon vertex.
type PointConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// CoverageConfig bounds a source's domain. Nil means global.
type CoverageConfig struct {
	MinLat float64       `yaml:"min_lat"`
	MaxLat float64       `yaml:"max_lat"`
	MinLon float64       `yaml:"min_lon"`
	MaxLon float64       `yaml:"max_lon"`
	Ring   []PointConfig `yaml:"ring,omitempty"`
}

// Source is one catalog entry.
type Source struct {
	ID              model.SourceID  `yaml:"-"`
	Backend         Backend         `yaml:"backend"`
	NativeUnit      string          `yaml:"native_unit"`
	TimeEncoding    TimeEncoding    `yaml:"time_encoding"`
	EnsembleMembers int             `yaml:"ensemble_members"` // 1 = deterministic
	Grid            GridConfig      `yaml:"grid"`
	Coverage        *CoverageConfig `yaml:"coverage,omitempty"`
	TimeoutSeconds  int             `yaml:"timeout_seconds"`
	RetryAttempts   int             `yaml:"retry_attempts"`
	Model           string          `yaml:"model,omitempty"`    // openmeteo model slug
	DataDir         string          `yaml:"data_dir,omitempty"` // netcdf directory
}

// Timeout returns the per-fetch budget for this source.
func (s Source) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Unit parses the source's declared native unit.
func (s Source) Unit() (units.Unit, error) {
	u, err := units.Parse(s.NativeUnit)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: source %q", s.ID)
	}
	return u, nil
}

// GridSpec converts the entry into the locator's spec.
func (s Source) GridSpec() grid.Spec {
	spec := grid.Spec{
		Source:     s.ID,
		LatSpacing: s.Grid.LatSpacing,
		LonSpacing: s.Grid.LonSpacing,
		LatOrigin:  s.Grid.LatOrigin,
		LonOrigin:  s.Grid.LonOrigin,
		Coverage:   grid.Global(),
	}
	if c := s.Coverage; c != nil {
		cov := grid.Coverage{MinLat: c.MinLat, MaxLat: c.MaxLat, MinLon: c.MinLon, MaxLon: c.MaxLon}
		for _, p := range c.Ring {
			cov.Ring = append(cov.Ring, model.GeoPoint{Lat: p.Lat, Lon: p.Lon})
		}
		spec.Coverage = cov
	}
	return spec
}

// Catalog holds every declared source.
type Catalog struct {
	Sources map[model.SourceID]Source `yaml:"sources"`
}

// Get looks up a source entry.
func (c *Catalog) Get(id model.SourceID) (Source, bool) {
	s, ok := c.Sources[id]
	return s, ok
}

// Default returns the built-in catalog for the standard sources.
func Default() *Catalog {
	quarter := GridConfig{LatSpacing: 0.25, LonSpacing: 0.25}
	return &Catalog{Sources: map[model.SourceID]Source{
		model.SourceAIFS: {
			ID: model.SourceAIFS, Backend: BackendOpenMeteo, NativeUnit: "degC",
			TimeEncoding: EncodingAbsolute, EnsembleMembers: 1, Grid: quarter,
			TimeoutSeconds: 30, RetryAttempts: 3, Model: "ecmwf_aifs025",
		},
		model.SourceGenCast: {
			ID: model.SourceGenCast, Backend: BackendArchive, NativeUnit: "K",
			TimeEncoding: EncodingInitPlusLead, EnsembleMembers: 50, Grid: quarter,
			TimeoutSeconds: 45, RetryAttempts: 3,
		},
		model.SourceGraphCast: {
			ID: model.SourceGraphCast, Backend: BackendArchive, NativeUnit: "K",
			TimeEncoding: EncodingAbsolute, EnsembleMembers: 1, Grid: quarter,
			TimeoutSeconds: 45, RetryAttempts: 3,
		},
		model.SourceFourCastNet: {
			ID: model.SourceFourCastNet, Backend: BackendArchive, NativeUnit: "degC",
			TimeEncoding: EncodingInitPlusLead, EnsembleMembers: 1, Grid: quarter,
			TimeoutSeconds: 45, RetryAttempts: 3,
		},
		model.SourceERA5: {
			ID: model.SourceERA5, Backend: BackendNetCDF, NativeUnit: "K",
			TimeEncoding: EncodingAbsolute, EnsembleMembers: 1, Grid: quarter,
			TimeoutSeconds: 60, RetryAttempts: 2, DataDir: "data/era5",
		},
	}}
}

// Load reads a catalog file and overlays it on the defaults: a source present
// in the file replaces the default entry wholesale, absent sources keep
// theirs. Unknown source names are accepted so operators can stage entries.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var wrapper struct {
		Sources map[model.SourceID]Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}

	cat := Default()
	for id, src := range wrapper.Sources {
		src.ID = id
		if src.TimeoutSeconds == 0 {
			src.TimeoutSeconds = 30
		}
		if src.RetryAttempts == 0 {
			src.RetryAttempts = 3
		}
		cat.Sources[id] = src
	}
	return cat, nil
}
