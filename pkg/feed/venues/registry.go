package venues

import (
	"fmt"
	"sync"

	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

// Factory creates a connector from its static configuration.
type Factory func(cfg Config, logger *logging.Logger) (Connector, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a connector factory to the registry.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// Create creates a connector instance by venue name.
func Create(name string, cfg Config, logger *logging.Logger) (Connector, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, name)
	}
	return factory(cfg, logger)
}

// List returns all registered venue names.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
