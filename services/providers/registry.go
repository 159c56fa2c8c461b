package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// ProviderBuilder is a function that creates a provider instance
type ProviderBuilder func(config ProviderConfig) (Provider, error)

// Registry maps provider names to builders. Attempts target different base
// URLs and keys, so providers are built per attempt rather than shared.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ProviderBuilder
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]ProviderBuilder),
	}
}

// Register registers a builder under a provider name
func (r *Registry) Register(name string, builder ProviderBuilder) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if builder == nil {
		return errors.New("provider builder cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.builders[name] = builder
	return nil
}

// Build creates a provider instance for name
func (r *Registry) Build(name string, config ProviderConfig) (Provider, error) {
	r.mu.RLock()
	builder, exists := r.builders[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	provider, err := builder(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
	}
	return provider, nil
}

// Has reports whether a builder is registered for name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.builders[name]
	return exists
}

// ListProviders returns all registered provider names in sorted order
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
