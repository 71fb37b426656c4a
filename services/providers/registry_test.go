package providers

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/services/flags"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Identity() Identity { return Identity{Name: s.name} }

func (s *stubProvider) Available(context.Context) bool { return true }

func (s *stubProvider) Generate(context.Context, []Message, GenerationOptions) (*GenerationResult, error) {
	return &GenerationResult{Content: "ok", Provider: s.name}, nil
}
func (s *stubProvider) Stream(ctx context.Context, messages []Message, opts GenerationOptions, handlers StreamHandlers) {
	result, _ := s.Generate(ctx, messages, opts)
	handlers.complete(result)
}
func (s *stubProvider) ModelInfo() ModelInfo { return ModelInfo{} }

func newTestRegistry(flagCfg config.FlagsConfig, kinds ...Kind) (*Registry, map[Kind]*int) {
	factories := make(map[Kind]Factory, len(kinds))
	constructions := make(map[Kind]*int, len(kinds))

	for _, kind := range kinds {
		k := kind
		count := new(int)
		constructions[k] = count
		factories[k] = func() (Provider, error) {
			*count++
			return &stubProvider{name: string(k)}, nil
		}
	}

	logger := zap.NewNop()
	return NewRegistry(factories, flags.NewService(flagCfg, logger), logger), constructions
}

func TestRegistry_CachesSingletons(t *testing.T) {
	registry, constructions := newTestRegistry(config.FlagsConfig{}, KindOpenAI)

	first, err := registry.Get(KindOpenAI)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := registry.Get(KindOpenAI)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if first != second {
		t.Error("Get() returned different instances for the same kind")
	}
	if *constructions[KindOpenAI] != 1 {
		t.Errorf("factory ran %d times, want 1", *constructions[KindOpenAI])
	}
}

func TestRegistry_UnconfiguredKind(t *testing.T) {
	registry, _ := newTestRegistry(config.FlagsConfig{}, KindOpenAI)

	_, err := registry.Get(KindAnthropic)
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Errorf("error = %v, want ErrProviderNotConfigured", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	tests := []struct {
		name  string
		flags config.FlagsConfig
		want  Kind
	}{
		{
			name:  "defaults to anthropic",
			flags: config.FlagsConfig{},
			want:  KindAnthropic,
		},
		{
			name:  "strict local mode wins",
			flags: config.FlagsConfig{StrictLocalMode: true},
			want:  KindLocal,
		},
		{
			name:  "local model flag selects local",
			flags: config.FlagsConfig{LocalModel: true},
			want:  KindLocal,
		},
		{
			name:  "strict local outranks everything",
			flags: config.FlagsConfig{StrictLocalMode: true, LocalModel: true},
			want:  KindLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, _ := newTestRegistry(tt.flags, KindOpenAI, KindAnthropic, KindLocal)
			if got := registry.Resolve(); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry_ResolveNotMemoized(t *testing.T) {
	logger := zap.NewNop()
	flagStore := flags.NewService(config.FlagsConfig{}, logger)
	registry := NewRegistry(map[Kind]Factory{
		KindAnthropic: func() (Provider, error) { return &stubProvider{name: "anthropic"}, nil },
		KindLocal:     func() (Provider, error) { return &stubProvider{name: "local"}, nil },
	}, flagStore, logger)

	if got := registry.Resolve(); got != KindAnthropic {
		t.Fatalf("Resolve() = %v, want anthropic", got)
	}

	// A runtime flag flip changes the next resolution.
	flagStore.Set(flags.KeyStrictLocalMode, true)
	if got := registry.Resolve(); got != KindLocal {
		t.Errorf("Resolve() after flag flip = %v, want local", got)
	}

	flagStore.Set(flags.KeyStrictLocalMode, false)
	if got := registry.Resolve(); got != KindAnthropic {
		t.Errorf("Resolve() after flag revert = %v, want anthropic", got)
	}
}

func TestRegistry_GetAutoResolves(t *testing.T) {
	registry, _ := newTestRegistry(config.FlagsConfig{StrictLocalMode: true}, KindAnthropic, KindLocal)

	provider, err := registry.Get(KindAuto)
	if err != nil {
		t.Fatalf("Get(auto) error = %v", err)
	}
	if provider.Identity().Name != "local" {
		t.Errorf("auto resolved to %q, want local", provider.Identity().Name)
	}
}

func TestRegistry_KindsOrder(t *testing.T) {
	registry, _ := newTestRegistry(config.FlagsConfig{}, KindLocal, KindOpenAI, KindAnthropic)

	got := registry.Kinds()
	want := []Kind{KindOpenAI, KindAnthropic, KindLocal}
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kinds()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"openai", "anthropic", "local", "auto"} {
		if _, err := ParseKind(valid); err != nil {
			t.Errorf("ParseKind(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseKind("gemini"); err == nil {
		t.Error("ParseKind(gemini) expected error")
	}
}

func TestApplySystemPrompt(t *testing.T) {
	messages := []Message{{Role: RoleUser, Content: "hi"}}

	out := ApplySystemPrompt(messages, GenerationOptions{SystemPrompt: "be brief"})
	if len(out) != 2 || out[0].Role != RoleSystem || out[0].Content != "be brief" {
		t.Errorf("ApplySystemPrompt() = %v, want system message prepended", out)
	}

	// Existing leading system message wins.
	withSystem := []Message{{Role: RoleSystem, Content: "original"}, {Role: RoleUser, Content: "hi"}}
	out = ApplySystemPrompt(withSystem, GenerationOptions{SystemPrompt: "ignored"})
	if len(out) != 2 || out[0].Content != "original" {
		t.Errorf("ApplySystemPrompt() overwrote an existing system message: %v", out)
	}

	// Input slice is never mutated.
	if messages[0].Role != RoleUser {
		t.Error("input slice was mutated")
	}
}

func TestGenerationOptions_WithDefaults(t *testing.T) {
	opts := GenerationOptions{}.WithDefaults("configured-model")
	if opts.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", opts.MaxTokens, DefaultMaxTokens)
	}
	if opts.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", opts.Temperature, DefaultTemperature)
	}
	if opts.Model != "configured-model" {
		t.Errorf("Model = %q, want configured-model", opts.Model)
	}

	explicit := GenerationOptions{MaxTokens: 50, Temperature: 1.2, Model: "override"}.WithDefaults("configured-model")
	if explicit.MaxTokens != 50 || explicit.Temperature != 1.2 || explicit.Model != "override" {
		t.Errorf("explicit options were overwritten: %+v", explicit)
	}
}
