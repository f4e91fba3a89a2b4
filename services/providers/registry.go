package providers

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry manages provider instances in registration order
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider instance. Registration order is the
// tie-break order used when dispatching.
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}

	r.providers[name] = provider
	r.order = append(r.order, name)

	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	return provider, nil
}

// Has reports whether a provider is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[name]
	return exists
}

// Names returns all registered provider names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Providers returns all registered providers in registration order
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.providers[name])
	}
	return list
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Describe returns a live descriptor for every registered provider
func (r *Registry) Describe() []Descriptor {
	list := r.Providers()
	out := make([]Descriptor, 0, len(list))
	for _, p := range list {
		out = append(out, Describe(p))
	}
	return out
}

// CountAvailable returns how many registered providers currently report available
func (r *Registry) CountAvailable() int {
	n := 0
	for _, p := range r.Providers() {
		if p.IsAvailable() {
			n++
		}
	}
	return n
}
