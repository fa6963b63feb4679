package preview

import "sync"

// Registry maps document identifiers to their live panel. All mutation goes
// through register and unregister.
type Registry struct {
	mu     sync.RWMutex
	panels map[string]*Panel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{panels: make(map[string]*Panel)}
}

// Get returns the panel registered for key.
func (r *Registry) Get(key string) (*Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.panels[key]
	return p, ok
}

// Len returns the number of registered panels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.panels)
}

// Panels returns a snapshot of the registered panels.
func (r *Registry) Panels() []*Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Panel, 0, len(r.panels))
	for _, p := range r.panels {
		out = append(out, p)
	}
	return out
}

func (r *Registry) register(p *Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[p.key] = p
}

// unregister removes p, leaving a newer panel for the same key in place.
func (r *Registry) unregister(p *Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panels[p.key] == p {
		delete(r.panels, p.key)
	}
}
