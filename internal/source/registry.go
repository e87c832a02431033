package source

import (
	"sort"
	"sync"

	"github.com/windrose-labs/wxbench/internal/model"
)

// Registry manages the configured adapters, reference included.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.SourceID]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.SourceID]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ModelID()] = a
}

// Get returns an adapter by source, or nil if not registered.
func (r *Registry) Get(id model.SourceID) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// List returns all registered source IDs in sorted order.
func (r *Registry) List() []model.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.SourceID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
