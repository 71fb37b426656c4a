package accessor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/models"
	"github.com/tachyonlabs/modelgate/services/flags"
	"github.com/tachyonlabs/modelgate/services/providers"
)

// fakeProvider is a scriptable provider for dispatch tests
type fakeProvider struct {
	name          string
	available     bool
	streaming     bool
	content       string
	generateErr   error
	streamErr     error
	generateCalls int
}

func (f *fakeProvider) Identity() providers.Identity {
	return providers.Identity{
		Name:              f.name,
		SupportsStreaming: f.streaming,
		RequiresNetwork:   true,
	}
}

func (f *fakeProvider) Available(ctx context.Context) bool {
	return f.available
}

func (f *fakeProvider) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &providers.GenerationResult{
		Content:  f.content,
		Model:    "fake-model",
		Provider: f.name,
	}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions, handlers providers.StreamHandlers) {
	if f.streamErr != nil {
		handlers.OnError(f.streamErr)
		return
	}
	providers.StreamSimulated(ctx, &providers.GenerationResult{
		Content:  f.content,
		Provider: f.name,
	}, 0, handlers)
}

func (f *fakeProvider) ModelInfo() providers.ModelInfo {
	return providers.ModelInfo{Name: "fake-model"}
}

// recordingSink captures audit events for assertions
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	kind   models.AuditKind
	detail string
}

func (s *recordingSink) Event(kind models.AuditKind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{kind: kind, detail: detail})
}

func (s *recordingSink) kinds() []models.AuditKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.kind
	}
	return out
}

func (s *recordingSink) has(kind models.AuditKind) bool {
	for _, k := range s.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func newTestAccessor(t *testing.T, flagCfg config.FlagsConfig, fakes map[providers.Kind]*fakeProvider) (*Accessor, *recordingSink) {
	t.Helper()

	factories := make(map[providers.Kind]providers.Factory, len(fakes))
	for kind, fake := range fakes {
		p := fake
		factories[kind] = func() (providers.Provider, error) { return p, nil }
	}

	logger := zap.NewNop()
	flagStore := flags.NewService(flagCfg, logger)
	registry := providers.NewRegistry(factories, flagStore, logger)
	sink := &recordingSink{}

	return New(registry, sink, logger), sink
}

func userMessage(text string) []providers.Message {
	return []providers.Message{{Role: providers.RoleUser, Content: text}}
}

func TestAccessor_GenerateUsesPrimary(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, content: "hello from anthropic"}
	openai := &fakeProvider{name: "openai", available: true, content: "hello from openai"}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
	})

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic (default primary)", result.Provider)
	}
	if openai.generateCalls != 0 {
		t.Errorf("fallback provider called %d times, want 0", openai.generateCalls)
	}
}

func TestAccessor_FallbackOnFailure(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, generateErr: errors.New("rate limited")}
	openai := &fakeProvider{name: "openai", available: true, content: "fallback response"}

	acc, sink := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
	})

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", result.Provider)
	}
	if anthropic.generateCalls != 1 {
		t.Errorf("primary called %d times, want exactly 1", anthropic.generateCalls)
	}
	if !sink.has(models.AuditKindFallback) {
		t.Error("expected a fallback audit event")
	}
}

func TestAccessor_UnavailableSkippedWithoutPenalty(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: false}
	openai := &fakeProvider{name: "openai", available: true, content: "ok"}

	acc, sink := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
	})

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", result.Provider)
	}
	if anthropic.generateCalls != 0 {
		t.Errorf("unavailable provider called %d times, want 0", anthropic.generateCalls)
	}
	if !sink.has(models.AuditKindProviderSkipped) {
		t.Error("expected a provider_skipped audit event")
	}

	// Availability skips never count toward the circuit.
	if _, tracked := acc.Circuits()["anthropic"]; tracked {
		t.Error("skipped provider has circuit state, want none")
	}
}

func TestAccessor_DisabledErrorSkippedWithoutPenalty(t *testing.T) {
	// Available() passes but Generate reports disabled: the flag flipped
	// mid-request. Still no breaker penalty.
	anthropic := &fakeProvider{name: "anthropic", available: true, generateErr: providers.NewDisabledError("anthropic")}
	openai := &fakeProvider{name: "openai", available: true, content: "ok"}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
	})

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", result.Provider)
	}
	if _, tracked := acc.Circuits()["anthropic"]; tracked {
		t.Error("disabled provider has circuit state, want none")
	}
}

func TestAccessor_AllProvidersFail(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, generateErr: errors.New("boom")}
	openai := &fakeProvider{name: "openai", available: true, generateErr: errors.New("boom")}
	localStub := &fakeProvider{name: "local", available: true, generateErr: errors.New("boom")}

	acc, sink := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
		providers.KindLocal:     localStub,
	})

	_, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})

	var exhausted *AllProvidersUnavailableError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *AllProvidersUnavailableError", err)
	}
	if want := []string{"anthropic", "openai", "local"}; strings.Join(exhausted.Attempted, ",") != strings.Join(want, ",") {
		t.Errorf("Attempted = %v, want %v", exhausted.Attempted, want)
	}

	// Each candidate is tried at most once per request, and each failure
	// counts once against its circuit.
	for _, p := range []*fakeProvider{anthropic, openai, localStub} {
		if p.generateCalls != 1 {
			t.Errorf("provider %s called %d times, want 1", p.name, p.generateCalls)
		}
		if got := acc.breaker.Failures(p.name); got != 1 {
			t.Errorf("provider %s consecutive failures = %d, want 1", p.name, got)
		}
	}
	if !sink.has(models.AuditKindAllUnavailable) {
		t.Error("expected an all_providers_unavailable audit event")
	}
}

func TestAccessor_OpenCircuitSkipsProvider(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, content: "should not run"}
	openai := &fakeProvider{name: "openai", available: true, content: "ok"}

	acc, sink := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
	})

	for i := 0; i < DefaultFailureThreshold; i++ {
		acc.breaker.RecordFailure("anthropic")
	}

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", result.Provider)
	}
	if anthropic.generateCalls != 0 {
		t.Errorf("open-circuit provider called %d times, want 0", anthropic.generateCalls)
	}
	if !sink.has(models.AuditKindCircuitOpen) {
		t.Error("expected a circuit_open audit event")
	}
}

func TestAccessor_HalfOpenProbeRecovers(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, content: "recovered"}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
	})

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	acc.breaker.now = func() time.Time { return current }

	for i := 0; i < DefaultFailureThreshold; i++ {
		acc.breaker.RecordFailure("anthropic")
	}
	current = current.Add(DefaultCooldown + time.Second)

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Content != "recovered" {
		t.Errorf("Content = %q, want recovered", result.Content)
	}

	// The successful probe closed the circuit.
	if state := acc.breaker.State("anthropic"); state != StateClosed {
		t.Errorf("circuit state after probe = %v, want closed", state)
	}
}

func TestAccessor_SwitchProvider(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, content: "a"}
	openai := &fakeProvider{name: "openai", available: true, content: "o"}

	acc, sink := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindOpenAI:    openai,
	})

	if err := acc.SwitchProvider(providers.KindOpenAI); err != nil {
		t.Fatalf("SwitchProvider() error = %v", err)
	}

	identity, err := acc.CurrentProvider()
	if err != nil {
		t.Fatalf("CurrentProvider() error = %v", err)
	}
	if identity.Name != "openai" {
		t.Errorf("CurrentProvider() = %q, want openai", identity.Name)
	}

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "openai" {
		t.Errorf("Provider = %q, want pinned openai", result.Provider)
	}
	if !sink.has(models.AuditKindProviderSwitched) {
		t.Error("expected a provider_switched audit event")
	}

	// Switching to auto restores flag-driven resolution.
	if err := acc.SwitchProvider(providers.KindAuto); err != nil {
		t.Fatalf("SwitchProvider(auto) error = %v", err)
	}
	identity, err = acc.CurrentProvider()
	if err != nil {
		t.Fatalf("CurrentProvider() error = %v", err)
	}
	if identity.Name != "anthropic" {
		t.Errorf("CurrentProvider() after reset = %q, want anthropic", identity.Name)
	}
}

func TestAccessor_SwitchToUnconfiguredProvider(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
	})

	err := acc.SwitchProvider(providers.KindOpenAI)
	if !errors.Is(err, providers.ErrProviderNotConfigured) {
		t.Errorf("error = %v, want ErrProviderNotConfigured", err)
	}
}

func TestAccessor_StrictLocalModeResolvesLocal(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, content: "remote"}
	localStub := &fakeProvider{name: "local", available: true, content: "on-device"}

	acc, _ := newTestAccessor(t, config.FlagsConfig{StrictLocalMode: true}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
		providers.KindLocal:     localStub,
	})

	result, err := acc.Generate(context.Background(), userMessage("hi"), providers.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Provider != "local" {
		t.Errorf("Provider = %q, want local under strict local mode", result.Provider)
	}
}

func TestAccessor_StreamDeliversSnapshots(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, streaming: true, content: "one two three"}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
	})

	var snapshots []string
	var completions, failures int

	acc.Stream(context.Background(), userMessage("hi"), providers.GenerationOptions{}, providers.StreamHandlers{
		OnToken:    func(partial string) { snapshots = append(snapshots, partial) },
		OnComplete: func(result *providers.GenerationResult) { completions++ },
		OnError:    func(err error) { failures++ },
	})

	if completions != 1 || failures != 0 {
		t.Fatalf("terminal callbacks: %d completions, %d failures, want exactly 1 completion", completions, failures)
	}
	want := []string{"one", "one two", "one two three"}
	if fmt.Sprint(snapshots) != fmt.Sprint(want) {
		t.Errorf("snapshots = %v, want %v", snapshots, want)
	}
}

func TestAccessor_StreamFailureDegradesToGenerate(t *testing.T) {
	anthropic := &fakeProvider{
		name:      "anthropic",
		available: true,
		streaming: true,
		content:   "full response",
		streamErr: errors.New("stream cut"),
	}

	acc, sink := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
	})

	var completions, failures int
	var got *providers.GenerationResult

	acc.Stream(context.Background(), userMessage("hi"), providers.GenerationOptions{}, providers.StreamHandlers{
		OnComplete: func(result *providers.GenerationResult) {
			completions++
			got = result
		},
		OnError: func(err error) { failures++ },
	})

	if completions != 1 || failures != 0 {
		t.Fatalf("terminal callbacks: %d completions, %d failures, want exactly 1 completion", completions, failures)
	}
	if got.Content != "full response" {
		t.Errorf("degraded result content = %q, want full response", got.Content)
	}
	if !sink.has(models.AuditKindStreamingDegraded) {
		t.Error("expected a streaming_degraded audit event")
	}
	if acc.breaker.Failures("anthropic") != 1 {
		t.Errorf("breaker failures = %d, want 1 for the stream failure", acc.breaker.Failures("anthropic"))
	}
}

func TestAccessor_StreamExhaustionReportsError(t *testing.T) {
	anthropic := &fakeProvider{
		name:        "anthropic",
		available:   true,
		streaming:   true,
		streamErr:   errors.New("stream cut"),
		generateErr: errors.New("also down"),
	}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
	})

	var completions, failures int
	var gotErr error

	acc.Stream(context.Background(), userMessage("hi"), providers.GenerationOptions{}, providers.StreamHandlers{
		OnComplete: func(result *providers.GenerationResult) { completions++ },
		OnError: func(err error) {
			failures++
			gotErr = err
		},
	})

	if completions != 0 || failures != 1 {
		t.Fatalf("terminal callbacks: %d completions, %d failures, want exactly 1 failure", completions, failures)
	}

	var exhausted *AllProvidersUnavailableError
	if !errors.As(gotErr, &exhausted) {
		t.Errorf("stream error = %v, want *AllProvidersUnavailableError", gotErr)
	}
}

func TestAccessor_StreamWithoutStreamingPrimary(t *testing.T) {
	anthropic := &fakeProvider{name: "anthropic", available: true, streaming: false, content: "blocking result"}

	acc, _ := newTestAccessor(t, config.FlagsConfig{}, map[providers.Kind]*fakeProvider{
		providers.KindAnthropic: anthropic,
	})

	var completions int
	var got *providers.GenerationResult

	acc.Stream(context.Background(), userMessage("hi"), providers.GenerationOptions{}, providers.StreamHandlers{
		OnComplete: func(result *providers.GenerationResult) {
			completions++
			got = result
		},
		OnError: func(err error) { t.Errorf("unexpected OnError: %v", err) },
	})

	if completions != 1 {
		t.Fatalf("completions = %d, want 1", completions)
	}
	if got.Content != "blocking result" {
		t.Errorf("Content = %q, want blocking result", got.Content)
	}
}
