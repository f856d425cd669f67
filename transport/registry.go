package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-clientkit/core"
)

// Registry maps surface kinds to the adapter serving them.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]core.TransportAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]core.TransportAdapter{}}
}

// NewDefaultRegistry registers the REST and GraphQL adapters on one client.
func NewDefaultRegistry(client HTTPDoer, graphQLEndpoint string) *Registry {
	registry := NewRegistry()
	_ = registry.Register(NewRESTAdapter(client))
	_ = registry.Register(NewGraphQLAdapter(graphQLEndpoint, client))
	return registry
}

func (r *Registry) Register(adapter core.TransportAdapter) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	kind := normalizeKind(adapter.Kind())
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("transport: adapter kind %q already registered", kind)
	}
	r.adapters[kind] = adapter
	return nil
}

func (r *Registry) Get(kind string) (core.TransportAdapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[normalizeKind(kind)]
	return adapter, ok
}

// ForSurface returns the adapter registered for a module surface.
func (r *Registry) ForSurface(surface core.SurfaceKind) (core.TransportAdapter, error) {
	kind := KindREST
	if surface == core.SurfaceQuery {
		kind = KindGraphQL
	}
	adapter, ok := r.Get(kind)
	if !ok {
		return nil, fmt.Errorf("transport: adapter kind %q not registered", kind)
	}
	return adapter, nil
}

func (r *Registry) List() []core.TransportAdapter {
	if r == nil {
		return []core.TransportAdapter{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	result := make([]core.TransportAdapter, 0, len(kinds))
	for _, kind := range kinds {
		result = append(result, r.adapters[kind])
	}
	return result
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}
