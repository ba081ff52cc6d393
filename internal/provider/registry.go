package provider

import (
	"slices"
	"sync"
)

// Registry holds the registered sources in registration order. Registration
// order is the configured resolution order.
type Registry struct {
	mu      sync.RWMutex
	order   []ProviderName
	sources map[ProviderName]Source
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[ProviderName]Source),
	}
}

// Register adds a source to the registry. Registering a name twice replaces
// the source but keeps its original position.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = s
}

// Get returns a source by name, or nil if not registered.
func (r *Registry) Get(name ProviderName) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// Names returns the registered names in order.
func (r *Registry) Names() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// All returns all registered sources in registration order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sources[name])
	}
	return result
}

// Active returns the registered sources named in active, in the order of
// active. Unknown names are ignored. An empty list selects every source.
func (r *Registry) Active(active []ProviderName) []Source {
	if len(active) == 0 {
		return r.All()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Source
	seen := make(map[ProviderName]bool, len(active))
	for _, name := range active {
		if s, ok := r.sources[name]; ok && !seen[name] {
			seen[name] = true
			result = append(result, s)
		}
	}
	return result
}
