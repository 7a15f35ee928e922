package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
)

// Dependencies are handed to every factory.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry
}

// Factory creates a transport from its raw JSON configuration section. Factories parse and
// validate configuration only; all I/O belongs in Connect.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Transport, error)

// Registration describes a transport kind.
type Registration struct {
	Kind        string
	Description string
	Factory     Factory
}

// Registry maps transport kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Registration)}
}

// Register adds a transport kind. Registering a kind twice is an error.
func (r *Registry) Register(reg Registration) error {
	if reg.Kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "kind validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Kind]; exists {
		return errors.WrapInvalid(fmt.Errorf("transport kind %q is already registered", reg.Kind),
			"Registry", "Register", "duplicate kind check")
	}
	r.factories[reg.Kind] = reg
	return nil
}

// Create builds a transport of the given kind.
func (r *Registry) Create(kind string, rawConfig json.RawMessage, deps Dependencies) (Transport, error) {
	r.mu.RLock()
	reg, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown transport kind %q", errors.ErrNoTransport, kind),
			"Registry", "Create", "factory lookup")
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(rawConfig) == 0 {
		rawConfig = json.RawMessage("{}")
	}

	t, err := reg.Factory(rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", fmt.Sprintf("%s transport creation", kind))
	}
	return t, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}
