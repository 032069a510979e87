// Package scene tracks the named objects the avatar can reference. The
// orchestrator core never touches positions; the registry exists for the
// pointing/walking collaborator, which resolves reply target names into
// world coordinates.
package scene

import (
	"strings"
	"sync"
)

// Position is a world-space coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Registry is a name-keyed object lookup. Lookups are case-insensitive
// because reply target names come back from a language model.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]Position
	names   []string
}

func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]Position)}
}

func (r *Registry) Register(name string, position Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.objects[key]; !exists {
		r.names = append(r.names, name)
	}
	r.objects[key] = position
}

func (r *Registry) Lookup(name string) (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	position, ok := r.objects[strings.ToLower(name)]
	return position, ok
}

// Names returns registered object names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
