package syncer

import (
	"fmt"
	"sync"
)

// ProviderConfig is the construction-time configuration for one provider.
type ProviderConfig struct {
	Key     string
	BaseURL string            // override for tests and self-hosted instances
	Options map[string]string // provider-specific settings (project key, channel, ...)
}

// Constructor builds one provider instance.
type Constructor func(cfg ProviderConfig) (Provider, error)

type factoryEntry struct {
	kind Kind
	ctor Constructor
}

// Factory maps provider keys ("gmail", "google_calendar", "jira", ...) to
// constructors. Providers are built lazily, one instance per key.
type Factory struct {
	mu        sync.Mutex
	entries   map[string]factoryEntry
	instances map[string]Provider
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		entries:   make(map[string]factoryEntry),
		instances: make(map[string]Provider),
	}
}

// Register adds a constructor under the given key, replacing any previous
// registration.
func (f *Factory) Register(key string, kind Kind, ctor Constructor) {
	f.mu.Lock()
	f.entries[key] = factoryEntry{kind: kind, ctor: ctor}
	delete(f.instances, key)
	f.mu.Unlock()
}

// Kind returns the category registered for key.
func (f *Factory) Kind(key string) (Kind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	return e.kind, ok
}

// Get returns the provider for key, constructing it on first use.
func (f *Factory) Get(key string, cfg ProviderConfig) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.instances[key]; ok {
		return p, nil
	}
	e, ok := f.entries[key]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", key)
	}
	cfg.Key = key
	p, err := e.ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct provider %q: %w", key, err)
	}
	f.instances[key] = p
	return p, nil
}

// Keys returns all registered provider keys.
func (f *Factory) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return keys
}
