package resilience

import "sync"

// Registry maps breaker name to instance. Each client owning breakers
// (DB pool, embedding client, generator client) constructs its own
// registry and exposes it, so there is no hidden process-global state.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Get returns the named breaker, creating it with cfg if it doesn't exist.
// cfg is ignored on subsequent calls for the same name.
func (r *Registry) Get(name string, cfg BreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.breakers == nil {
		r.breakers = make(map[string]*Breaker)
	}
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, cfg)
	r.breakers[name] = b
	return b
}

// Reset resets the named breaker, if present.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// ResetAll resets every registered breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()
	for _, b := range breakers {
		b.Reset()
	}
}

// Names returns the currently registered breaker names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}
