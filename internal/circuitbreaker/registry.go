package circuitbreaker

import (
	"sync"
	"time"
)

// Registry holds one Breaker per backend name ("local", "cloud").
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry builds an empty registry; breakers are created on first use.
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for backend, or nil if it has never been used.
func (r *Registry) Get(backend string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[backend]
}

// GetOrCreate returns the breaker for backend, creating it lazily.
func (r *Registry) GetOrCreate(backend string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[backend]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[backend]; ok {
		return b
	}
	b = NewBreaker(r.cfg)
	r.breakers[backend] = b
	return b
}

// States snapshots every breaker's position, keyed by backend name.
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

// EvictStale drops breakers idle since cutoff. Stale keys are collected
// under the read lock; the write lock is held only for the deletes.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.RLock()
	var stale []string
	for name, b := range r.breakers {
		if b.LastUsed().Before(cutoff) {
			stale = append(stale, name)
		}
	}
	r.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for _, name := range stale {
		if b, ok := r.breakers[name]; ok && b.LastUsed().Before(cutoff) {
			delete(r.breakers, name)
			evicted++
		}
	}
	return evicted
}
