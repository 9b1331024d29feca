// Package engine holds the closed set of translation engine implementations
// and the registry that names them. Engines are constructed and registered
// explicitly at startup; there is no runtime discovery.
package engine

import (
	"sync"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

// Registry holds named Engine implementations.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]ports.Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]ports.Engine)}
}

func (r *Registry) Register(e ports.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Get returns the engine registered under name, or an EngineNotFoundError.
func (r *Registry) Get(name string) (ports.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, &domain.EngineNotFoundError{Name: name}
	}
	return e, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for name := range r.engines {
		out = append(out, name)
	}
	return out
}
