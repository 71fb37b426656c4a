package providers

import (
	"fmt"
	"sync"

	"github.com/tachyonlabs/modelgate/services/flags"
	"go.uber.org/zap"
)

// Factory creates a provider instance. Factories are supplied at wiring
// time so the registry can build each concrete provider lazily.
type Factory func() (Provider, error)

// Registry creates and caches provider instances by kind and resolves
// the symbolic Auto kind against current flag state. Concrete providers
// are process-lifetime singletons built on first use; Auto resolution is
// re-evaluated on every call because flags can change at runtime.
type Registry struct {
	mu        sync.Mutex
	factories map[Kind]Factory
	cache     map[Kind]Provider
	flags     flags.Store
	logger    *zap.Logger
}

// NewRegistry creates a registry over the given factories
func NewRegistry(factories map[Kind]Factory, flagStore flags.Store, logger *zap.Logger) *Registry {
	return &Registry{
		factories: factories,
		cache:     make(map[Kind]Provider),
		flags:     flagStore,
		logger:    logger,
	}
}

// Get returns the provider for a kind. Concrete kinds return a cached
// singleton; Auto resolves to a concrete kind first.
func (r *Registry) Get(kind Kind) (Provider, error) {
	if kind == KindAuto {
		kind = r.Resolve()
	}
	if !kind.Concrete() {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[kind]; ok {
		return p, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, kind)
	}

	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %q: %w", kind, err)
	}

	r.cache[kind] = p
	r.logger.Debug("provider created", zap.String("kind", string(kind)))
	return p, nil
}

// Resolve maps Auto to a concrete kind using current flag state. The
// priority list is evaluated top to bottom, first match wins, and must
// be re-evaluated per request: toggling a flag takes effect without a
// restart.
func (r *Registry) Resolve() Kind {
	switch {
	case r.flags.IsEnabled(flags.KeyStrictLocalMode):
		return KindLocal
	case r.flags.IsEnabled(flags.KeyLocalModel):
		return KindLocal
	default:
		return KindAnthropic
	}
}

// Kinds returns the concrete kinds the registry can build, in the fixed
// fallback priority order.
func (r *Registry) Kinds() []Kind {
	order := []Kind{KindOpenAI, KindAnthropic, KindLocal}
	out := make([]Kind, 0, len(order))
	for _, k := range order {
		if _, ok := r.factories[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
