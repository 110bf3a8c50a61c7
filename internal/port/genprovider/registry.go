package genprovider

import (
	"fmt"
	"sync"

	"github.com/verdealab/ceres/internal/domain/routing"
)

// Factory is a constructor function that creates a new Backend instance.
type Factory func(cfg Config) (Backend, error)

var (
	mu        sync.RWMutex
	factories = make(map[routing.Provider]Factory)
)

// Register makes a provider backend factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name routing.Provider, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("genprovider: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a new Backend by name using the registered factory.
func New(name routing.Provider, cfg Config) (Backend, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("genprovider: unknown provider %q", name)
	}
	return factory(cfg)
}

// Available returns the names of all registered provider backends.
func Available() []routing.Provider {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]routing.Provider, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
