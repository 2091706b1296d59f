package keys

import "sync"

// Registry holds named application components that #{...} expressions may
// reference. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	components map[string]any
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]any)}
}

// Register stores value under name, replacing any previous value.
func (r *Registry) Register(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = value
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.components[name]
	return v, ok
}

// Env returns a snapshot of all components, keyed by name.
func (r *Registry) Env() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	env := make(map[string]any, len(r.components))
	for k, v := range r.components {
		env[k] = v
	}
	return env
}
