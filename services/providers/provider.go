package providers

import (
	"context"
	"fmt"
)

// Kind identifies a provider variant. The set is closed; Auto is a
// symbolic kind resolved against current flag state on every request.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindLocal     Kind = "local"
	KindAuto      Kind = "auto"
)

// ParseKind validates a user-supplied kind string
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindOpenAI, KindAnthropic, KindLocal, KindAuto:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown provider kind %q", s)
	}
}

// Concrete reports whether the kind names a real provider (not auto)
func (k Kind) Concrete() bool {
	return k == KindOpenAI || k == KindAnthropic || k == KindLocal
}

// Provider is a backend capable of turning a conversation into generated
// text, optionally incrementally. Providers are stateless with respect to
// conversation data: no instance retains message history between calls.
type Provider interface {
	// Identity returns the provider's fixed descriptive identity
	Identity() Identity

	// Available reports whether this provider may currently be used.
	// It combines feature-flag state with credential presence, performs
	// no I/O, and has no side effects.
	Available(ctx context.Context) bool

	// Generate performs one synchronous round trip. On failure it
	// returns a *ProviderError carrying the provider name and cause;
	// errors are never silently swallowed. A network-backed provider
	// that is not Available fails fast without touching the transport.
	Generate(ctx context.Context, messages []Message, opts GenerationOptions) (*GenerationResult, error)

	// Stream produces a lazy, finite, non-restartable sequence of
	// growing partial-text snapshots and terminates with exactly one of
	// OnComplete or OnError. Upstream vendors are treated as returning
	// a complete response, so Stream obtains the full result via
	// Generate and re-emits it word by word with a provider-specific
	// inter-token delay. Stream blocks until the terminal callback has
	// fired.
	Stream(ctx context.Context, messages []Message, opts GenerationOptions, handlers StreamHandlers)

	// ModelInfo returns static model metadata without any I/O
	ModelInfo() ModelInfo
}

// ApplySystemPrompt prepends opts.SystemPrompt as a system message when
// the conversation does not already start with one. The input slice is
// never mutated.
func ApplySystemPrompt(messages []Message, opts GenerationOptions) []Message {
	if opts.SystemPrompt == "" {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: opts.SystemPrompt})
	out = append(out, messages...)
	return out
}
