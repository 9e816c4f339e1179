package engine

import (
	"fmt"
	"sync"
)

// Registry maps engine names to instances. Each orchestrator gets its own.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	order   []string
}

// NewRegistry creates a registry holding engines, in registration order.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		_ = r.Register(e)
	}
	return r
}

// Register adds e. Registering a name twice is an error.
func (r *Registry) Register(e Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Name()
	if _, ok := r.engines[name]; ok {
		return fmt.Errorf("engine: %q already registered", name)
	}
	r.engines[name] = e
	r.order = append(r.order, name)
	return nil
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
