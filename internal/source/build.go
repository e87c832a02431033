package source

import (
	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/pkg/openmeteo"
)

// BuildDeps carries the backends adapters bind to. Nil fields fall back to
// real implementations where one exists.
type BuildDeps struct {
	Store     ArchiveReader    // required by archive-backed sources
	OpenMeteo openmeteo.Client // nil uses the public API
	OpenERA5  ERA5Opener       // nil reads the local filesystem
}

// BuildRegistry instantiates one adapter per catalog entry.
func BuildRegistry(cat *catalog.Catalog, deps BuildDeps) (*Registry, error) {
	reg := NewRegistry()
	for id, entry := range cat.Sources {
		switch entry.Backend {
		case catalog.BackendArchive:
			if deps.Store == nil {
				return nil, eris.Errorf("source: %s needs an archive store, none configured", id)
			}
			reg.Register(NewArchiveAdapter(entry, deps.Store))
		case catalog.BackendOpenMeteo:
			client := deps.OpenMeteo
			if client == nil {
				client = openmeteo.NewClient()
			}
			reg.Register(NewOpenMeteoAdapter(entry, client))
		case catalog.BackendNetCDF:
			reg.Register(NewERA5Adapter(entry, deps.OpenERA5))
		default:
			return nil, eris.Errorf("source: %s declares unknown backend %q", id, entry.Backend)
		}
	}
	return reg, nil
}
