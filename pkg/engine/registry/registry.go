package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the explicit, init-time component lookup (§3, §4.2, §5).
// It is built once via repeated Register calls and then frozen by Build;
// after Build returns, Get is the only permitted operation and requires
// no further locking since the underlying map is never mutated again.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	frozen bool
}

// New returns an empty, unfrozen Registry.
func New() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a component definition under its ID. It fails if the
// registry is already frozen, the ID is already taken, or the
// definition fails validation.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return &InvalidDefinitionError{Reason: "nil definition"}
	}
	if err := validate(def); err != nil {
		return &InvalidDefinitionError{ID: def.ID, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &FrozenError{ID: def.ID}
	}
	if _, exists := r.defs[def.ID]; exists {
		return &AlreadyRegisteredError{ID: def.ID}
	}
	r.defs[def.ID] = def
	return nil
}

// Build freezes the registry against further Register calls (§5).
// It is idempotent.
func (r *Registry) Build() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, &NotRegisteredError{ID: id}
	}
	return def, nil
}

// MustGet is a convenience for call sites (catalog loaders, tests) that
// treat a missing component as a programming error.
func (r *Registry) MustGet(id string) *Definition {
	def, err := r.Get(id)
	if err != nil {
		panic(err)
	}
	return def
}

// List returns all registered component IDs in sorted order, primarily
// for catalog introspection and CLI listing.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bind attaches the inline implementation for a catalog-loaded
// component skeleton. Catalog YAML has no representation for Go
// closures, so LoadCatalog leaves Execute/ResolvePorts nil; a host
// application calls Bind for each inline component before Register.
func Bind(def *Definition, exec ExecuteFunc, resolvePorts ResolvePortsFunc) *Definition {
	def.Execute = exec
	def.ResolvePorts = resolvePorts
	return def
}

// RegisterAll registers every definition in defs, stopping at the first
// error. It is a convenience for wiring a catalog loaded via LoadCatalog.
func (r *Registry) RegisterAll(defs map[string]*Definition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validate(def *Definition) error {
	if def.ID == "" {
		return fmt.Errorf("id is required")
	}
	if def.Execute == nil && def.Runner.Kind == RunnerInline {
		return fmt.Errorf("inline runner requires Execute")
	}
	if def.Runner.Kind == RunnerContainer && def.Runner.Image == "" {
		return fmt.Errorf("container runner requires an image")
	}
	seen := make(map[string]bool)
	for _, p := range def.Inputs {
		if p.Handle == "" {
			return fmt.Errorf("input port missing handle")
		}
		if seen[p.Handle] {
			return fmt.Errorf("duplicate input handle %q", p.Handle)
		}
		seen[p.Handle] = true
		if err := p.Schema.Validate(); err != nil {
			return fmt.Errorf("input %q: %w", p.Handle, err)
		}
	}
	seen = make(map[string]bool)
	for _, p := range def.Outputs {
		if p.Handle == "" {
			return fmt.Errorf("output port missing handle")
		}
		if seen[p.Handle] {
			return fmt.Errorf("duplicate output handle %q", p.Handle)
		}
		seen[p.Handle] = true
		if err := p.Schema.Validate(); err != nil {
			return fmt.Errorf("output %q: %w", p.Handle, err)
		}
	}
	if def.RetryPolicy.MaxAttempts < 0 {
		return fmt.Errorf("retryPolicy.maxAttempts must be >= 0")
	}
	return nil
}
