package catalog

import (
	"fmt"
	"sync"

	"goa.design/flowrun/runtime/flow/workflow"
)

// Factory builds an executable instance for a node of a registered type.
// Returning an error marks the node as not instantiable; the invoker confines
// the failure to that node.
type Factory func(node *workflow.Node) (Executable, error)

// Registry is a map-backed Catalog. Registration normally happens at process
// start; Lookup and Instantiate are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	desc    Descriptor
	factory Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a node type to the registry. Registering a duplicate type or
// a nil factory is an error.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if desc.Type == "" {
		return fmt.Errorf("node type is required")
	}
	if factory == nil {
		return fmt.Errorf("node type %q: factory is required", desc.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[desc.Type]; dup {
		return fmt.Errorf("node type %q already registered", desc.Type)
	}
	r.entries[desc.Type] = entry{desc: desc, factory: factory}
	return nil
}

// MustRegister is Register that panics on error; intended for package-level
// catalog construction where a failure is a programming error.
func (r *Registry) MustRegister(desc Descriptor, factory Factory) {
	if err := r.Register(desc, factory); err != nil {
		panic(err)
	}
}

// Lookup implements Catalog.
func (r *Registry) Lookup(typeID string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typeID]
	if !ok {
		return nil, false
	}
	desc := e.desc
	return &desc, true
}

// Instantiate implements Catalog.
func (r *Registry) Instantiate(node *workflow.Node) (Executable, error) {
	if node == nil {
		return nil, fmt.Errorf("node is required")
	}
	r.mu.RLock()
	e, ok := r.entries[node.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("node type %q not registered", node.Type)
	}
	return e.factory(node)
}

// Types returns the registered type identifiers in unspecified order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}
