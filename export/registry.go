package export

import (
	"fmt"
	"sort"
	"sync"
)

// GridRegistry stores grid definitions.
type GridRegistry struct {
	mu   sync.RWMutex
	defs map[string]GridDefinition
}

// NewGridRegistry creates an empty registry.
func NewGridRegistry() *GridRegistry {
	return &GridRegistry{defs: make(map[string]GridDefinition)}
}

// Register adds a definition.
func (r *GridRegistry) Register(def GridDefinition) error {
	if def.Name == "" {
		return NewError(KindValidation, "grid name is required", nil)
	}
	if def.Build == nil {
		return NewError(KindValidation, "grid factory is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return NewError(KindValidation, fmt.Sprintf("grid %q already registered", def.Name), nil)
	}
	r.defs[def.Name] = def
	return nil
}

// Resolve returns the definition registered under name.
func (r *GridRegistry) Resolve(name string) (GridDefinition, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return GridDefinition{}, NewError(KindNotFound, fmt.Sprintf("grid %q not found", name), nil)
	}
	return def, nil
}

// Names lists registered grid names in sorted order.
func (r *GridRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
