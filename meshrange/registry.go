package meshrange

import (
	"sync"

	"github.com/notargets/DGField/field"
	"github.com/notargets/DGField/mesh"
)

type registryKey struct {
	set   mesh.Set
	field field.Field
}

// Registry shares one Ranges per (set, field) pair between callers
type Registry struct {
	opts    Options
	mu      sync.Mutex
	entries map[registryKey]*Ranges
}

func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, entries: make(map[registryKey]*Ranges)}
}

// Get returns the ranges for (set, f), creating them unevaluated
func (r *Registry) Get(set mesh.Set, f field.Field) (*Ranges, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := registryKey{set: set, field: f}
	if rg, ok := r.entries[k]; ok {
		return rg, nil
	}
	rg, err := New(set, f, r.opts)
	if err != nil {
		return nil, err
	}
	r.entries[k] = rg
	return rg, nil
}

// Release closes and forgets the ranges for (set, f)
func (r *Registry) Release(set mesh.Set, f field.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := registryKey{set: set, field: f}
	if rg, ok := r.entries[k]; ok {
		rg.Close()
		delete(r.entries, k)
	}
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rg := range r.entries {
		rg.Close()
		delete(r.entries, k)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
