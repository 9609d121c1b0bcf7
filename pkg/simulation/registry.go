package simulation

import (
	"fmt"
	"sort"
	"sync"
)

// LoaderRegistry maps loader references to Loader implementations. Batches
// name their loader over the wire; the worker resolves the name here at job
// start.
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewLoaderRegistry creates an empty registry.
func NewLoaderRegistry() *LoaderRegistry {
	return &LoaderRegistry{loaders: make(map[string]Loader)}
}

// Register adds a loader under the given reference. Registering the same
// reference twice is a programming error and fails loudly.
func (r *LoaderRegistry) Register(ref string, l Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loaders[ref]; exists {
		return fmt.Errorf("loader %q already registered", ref)
	}
	r.loaders[ref] = l
	return nil
}

// Resolve returns the loader registered under ref.
func (r *LoaderRegistry) Resolve(ref string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[ref]
	if !ok {
		return nil, fmt.Errorf("unknown loader %q", ref)
	}
	return l, nil
}

// Refs lists the registered loader references, sorted.
func (r *LoaderRegistry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.loaders))
	for ref := range r.loaders {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
