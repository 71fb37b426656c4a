package accessor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tachyonlabs/modelgate/models"
	"github.com/tachyonlabs/modelgate/services/audit"
	"github.com/tachyonlabs/modelgate/services/providers"
	"go.uber.org/zap"
)

// AllProvidersUnavailableError is returned when every candidate provider
// was skipped or failed. It is terminal for the call: the accessor does
// not retry beyond the candidate list.
type AllProvidersUnavailableError struct {
	// Attempted lists the provider names that were considered, in order
	Attempted []string
}

// Error implements the error interface
func (e *AllProvidersUnavailableError) Error() string {
	return fmt.Sprintf("all providers unavailable (tried: %s)", strings.Join(e.Attempted, ", "))
}

// Accessor executes generation requests against a primary provider with
// ordered fallback and per-provider circuit breaking. The primary is
// re-derived from the registry on every request so that flag toggles
// take effect without a restart; the registry caches the concrete
// provider singletons underneath, so re-derivation costs a map lookup.
//
// Accessor is safe for concurrent use, though the intended usage is one
// outstanding generation per chat session.
type Accessor struct {
	registry *providers.Registry
	sink     audit.Sink
	logger   *zap.Logger
	breaker  *CircuitBreaker

	mu     sync.RWMutex
	pinned providers.Kind // zero value: follow auto resolution
}

// New creates an accessor over the given registry
func New(registry *providers.Registry, sink audit.Sink, logger *zap.Logger) *Accessor {
	return &Accessor{
		registry: registry,
		sink:     sink,
		logger:   logger,
		breaker:  NewCircuitBreaker(DefaultFailureThreshold, DefaultCooldown),
	}
}

// Generate dispatches a request across the candidate chain: the primary
// first, then each fallback in fixed priority order. Candidates whose
// circuit is open are skipped; candidates that report unavailable are
// skipped without breaker penalty. The first success wins; exhaustion
// returns *AllProvidersUnavailableError.
func (a *Accessor) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	candidates := a.candidates()
	attempted := make([]string, 0, len(candidates))

	for _, kind := range candidates {
		provider, err := a.registry.Get(kind)
		if err != nil {
			a.logger.Warn("skipping unconfigured provider", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}

		name := provider.Identity().Name
		attempted = append(attempted, name)

		state := a.breaker.State(name)
		if state == StateOpen {
			a.sink.Event(models.AuditKindCircuitOpen,
				fmt.Sprintf("provider=%s failures=%d", name, a.breaker.Failures(name)))
			a.logger.Debug("circuit open, skipping provider", zap.String("provider", name))
			continue
		}
		if state == StateHalfOpen {
			a.logger.Debug("circuit half-open, probing provider", zap.String("provider", name))
		}

		if !provider.Available(ctx) {
			// Disabled providers are skipped without breaker penalty.
			a.sink.Event(models.AuditKindProviderSkipped,
				fmt.Sprintf("provider=%s reason=unavailable", name))
			continue
		}

		result, err := provider.Generate(ctx, messages, opts)
		if err == nil {
			a.breaker.RecordSuccess(name)
			return result, nil
		}

		if providers.IsDisabled(err) {
			// Flag flipped between the availability check and the call;
			// still not a breaker-relevant failure.
			a.sink.Event(models.AuditKindProviderSkipped,
				fmt.Sprintf("provider=%s reason=disabled", name))
			continue
		}

		failures := a.breaker.RecordFailure(name)
		a.sink.Event(models.AuditKindFallback,
			fmt.Sprintf("provider=%s consecutive_failures=%d error=%v", name, failures, err))
		a.logger.Warn("provider failed, trying next candidate",
			zap.String("provider", name),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
	}

	a.sink.Event(models.AuditKindAllUnavailable,
		fmt.Sprintf("attempted=%s", strings.Join(attempted, ",")))
	a.logger.Error("all providers unavailable", zap.Strings("attempted", attempted))

	return nil, &AllProvidersUnavailableError{Attempted: attempted}
}

// Stream attempts token streaming on the primary provider only. A
// streaming failure does not try other providers' streams; partial
// output cannot be resumed elsewhere. Instead the accessor degrades to
// the full Generate dispatch (with its complete fallback chain) and
// delivers the eventual result through OnComplete.
func (a *Accessor) Stream(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions, handlers providers.StreamHandlers) {
	primary, err := a.primaryProvider()
	if err == nil && primary.Available(ctx) && primary.Identity().SupportsStreaming && a.breaker.Allow(primary.Identity().Name) {
		name := primary.Identity().Name
		degraded := providers.StreamHandlers{
			OnToken:    handlers.OnToken,
			OnComplete: func(result *providers.GenerationResult) {
				a.breaker.RecordSuccess(name)
				if handlers.OnComplete != nil {
					handlers.OnComplete(result)
				}
			},
			OnError: func(streamErr error) {
				if !providers.IsDisabled(streamErr) {
					a.breaker.RecordFailure(name)
				}
				a.degradeToGenerate(ctx, name, streamErr, messages, opts, handlers)
			},
		}
		primary.Stream(ctx, messages, opts, degraded)
		return
	}

	// No streamable primary: go straight to the resilient blocking path.
	result, genErr := a.Generate(ctx, messages, opts)
	if genErr != nil {
		if handlers.OnError != nil {
			handlers.OnError(genErr)
		}
		return
	}
	if handlers.OnComplete != nil {
		handlers.OnComplete(result)
	}
}

// degradeToGenerate runs the blocking dispatch after a streaming failure
// and forwards its outcome as the stream's single terminal callback.
func (a *Accessor) degradeToGenerate(ctx context.Context, failedProvider string, cause error, messages []providers.Message, opts providers.GenerationOptions, handlers providers.StreamHandlers) {
	a.sink.Event(models.AuditKindStreamingDegraded,
		fmt.Sprintf("provider=%s error=%v", failedProvider, cause))
	a.logger.Warn("streaming failed, degrading to full response",
		zap.String("provider", failedProvider),
		zap.Error(cause))

	result, err := a.Generate(ctx, messages, opts)
	if err != nil {
		if handlers.OnError != nil {
			handlers.OnError(err)
		}
		return
	}
	if handlers.OnComplete != nil {
		handlers.OnComplete(result)
	}
}

// CurrentProvider returns the identity of the provider the next request
// would try first. Idempotent absent a SwitchProvider call or a flag
// change.
func (a *Accessor) CurrentProvider() (providers.Identity, error) {
	provider, err := a.primaryProvider()
	if err != nil {
		return providers.Identity{}, err
	}
	return provider.Identity(), nil
}

// SwitchProvider pins the primary to a specific concrete provider,
// bypassing auto resolution until ResetProvider is called or the
// accessor is reconstructed.
func (a *Accessor) SwitchProvider(kind providers.Kind) error {
	if kind == providers.KindAuto {
		a.ResetProvider()
		return nil
	}
	if !kind.Concrete() {
		return fmt.Errorf("cannot switch to provider kind %q", kind)
	}
	if _, err := a.registry.Get(kind); err != nil {
		return err
	}

	a.mu.Lock()
	a.pinned = kind
	a.mu.Unlock()

	a.sink.Event(models.AuditKindProviderSwitched, fmt.Sprintf("provider=%s", kind))
	a.logger.Info("primary provider pinned", zap.String("provider", string(kind)))
	return nil
}

// ResetProvider clears any pinned primary, restoring auto resolution
func (a *Accessor) ResetProvider() {
	a.mu.Lock()
	a.pinned = ""
	a.mu.Unlock()

	a.sink.Event(models.AuditKindProviderSwitched, "provider=auto")
	a.logger.Info("primary provider reset to auto")
}

// Circuits returns a point-in-time view of all provider circuits
func (a *Accessor) Circuits() map[string]CircuitInfo {
	return a.breaker.Snapshot()
}

// primaryKind re-derives the primary on every call: the pinned kind if
// set, otherwise the registry's auto resolution.
func (a *Accessor) primaryKind() providers.Kind {
	a.mu.RLock()
	pinned := a.pinned
	a.mu.RUnlock()

	if pinned != "" {
		return pinned
	}
	return a.registry.Resolve()
}

func (a *Accessor) primaryProvider() (providers.Provider, error) {
	return a.registry.Get(a.primaryKind())
}

// candidates builds the ordered dispatch list: the primary first, then
// the remaining configured kinds in fixed priority order, each kind at
// most once.
func (a *Accessor) candidates() []providers.Kind {
	primary := a.primaryKind()
	out := []providers.Kind{primary}
	for _, kind := range a.registry.Kinds() {
		if kind != primary {
			out = append(out, kind)
		}
	}
	return out
}
