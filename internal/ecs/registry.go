package ecs

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the canonical catalog of component types. It is initialized
// once before the lifecycle reaches COMPONENTS_READY and is read-only
// thereafter; kept injectable rather than a bare package-level global so
// tests stay hermetic.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]ComponentType
	sealed bool
}

// NewRegistry creates an empty, mutable registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ComponentType)}
}

// Register adds a component type. It fails if the registry has already been
// Sealed, or if a type of the same name is already registered.
func (r *Registry) Register(ct ComponentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("ecs: registry sealed, cannot register %q", ct.Name)
	}
	if ct.Name == "" {
		return fmt.Errorf("ecs: component type name cannot be empty")
	}
	if _, exists := r.types[ct.Name]; exists {
		return fmt.Errorf("ecs: component type %q already registered", ct.Name)
	}
	r.types[ct.Name] = ct
	return nil
}

// Seal marks the registry read-only. Called once the Lifecycle Coordinator
// reaches COMPONENTS_READY.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get looks up a component type by name.
func (r *Registry) Get(name string) (ComponentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.types[name]
	return ct, ok
}

// MustGet is like Get but panics on an unknown type; intended for call sites
// that already validated the name (e.g. after QueryCompileError checks).
func (r *Registry) MustGet(name string) ComponentType {
	ct, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("ecs: unknown component type %q", name))
	}
	return ct
}

// Names returns all registered component type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns a snapshot of every registered component type.
func (r *Registry) All() []ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ComponentType, 0, len(r.types))
	for _, ct := range r.types {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
