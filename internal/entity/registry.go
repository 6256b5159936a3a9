package entity

import (
	"errors"
	"fmt"
	"sync"
)

var ErrEntityNotFound = errors.New("entity not found")

// Registry holds the configured entities in registration order
type Registry struct {
	entities map[string]*DetectionEntity
	order    []string
	mu       sync.RWMutex
}

// NewRegistry creates a new entity registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*DetectionEntity),
	}
}

// Register adds an entity to the registry
func (r *Registry) Register(e *DetectionEntity) error {
	if e == nil {
		return fmt.Errorf("entity cannot be nil")
	}

	id := e.EntityID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; exists {
		return fmt.Errorf("entity %q already registered", id)
	}

	r.entities[id] = e
	r.order = append(r.order, id)
	return nil
}

// Get returns an entity by id
func (r *Registry) Get(id string) (*DetectionEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e, nil
}

// All returns every entity in registration order
func (r *Registry) All() []*DetectionEntity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*DetectionEntity, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entities[id])
	}
	return result
}

// Names returns the ids of all entities in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered entities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Unregister removes an entity from the registry
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; !exists {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}

	delete(r.entities, id)
	for i, name := range r.order {
		if name == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
