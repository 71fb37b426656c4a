package providers

import (
	"time"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation. Messages are
// immutable once sent; an ordered slice forms the conversation.
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role Role `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// GenerationOptions holds per-request generation parameters. All fields
// are optional; absent values fall back to provider defaults.
type GenerationOptions struct {
	// MaxTokens limits the response length (default 1024)
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness, 0.0 to 2.0 (default 0.7)
	Temperature float64 `json:"temperature,omitempty"`

	// Model overrides the provider's configured model
	Model string `json:"model,omitempty"`

	// SystemPrompt is prepended as a system message when the
	// conversation does not already carry one
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Stream requests incremental delivery
	Stream bool `json:"stream,omitempty"`
}

// Default generation parameters applied when options omit them.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
)

// WithDefaults returns a copy of the options with absent fields filled in.
// model is the provider's configured model, used when none is requested.
func (o GenerationOptions) WithDefaults(model string) GenerationOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.Model == "" {
		o.Model = model
	}
	return o
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResult represents a completed generation. Content is always
// non-empty on success; ProcessingTime is wall-clock from dispatch to
// completion.
type GenerationResult struct {
	Content        string        `json:"content"`
	Usage          *Usage        `json:"usage,omitempty"`
	Model          string        `json:"model"`
	Provider       string        `json:"provider"`
	ProcessingTime time.Duration `json:"-"`
}

// ProcessingMs returns the processing time in whole milliseconds
func (r *GenerationResult) ProcessingMs() int64 {
	return r.ProcessingTime.Milliseconds()
}

// Identity describes a provider variant. It is fixed at construction and
// never mutated.
type Identity struct {
	// Name uniquely identifies the provider (e.g. "openai", "local")
	Name string `json:"name"`

	// SupportsStreaming reports whether Stream is usable
	SupportsStreaming bool `json:"supports_streaming"`

	// IsLocal is true for on-device providers
	IsLocal bool `json:"is_local"`

	// RequiresNetwork is true for providers that call out over the network
	RequiresNetwork bool `json:"requires_network"`
}

// ModelInfo contains static descriptive metadata about a provider's model.
// Producing it involves no I/O.
type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Size    string `json:"size"`
}

// StreamHandlers carries the callbacks for a streaming generation.
// OnToken receives the full accumulated text so far, not a delta; the
// sequence of snapshots is monotonically non-decreasing in length.
// Exactly one of OnComplete or OnError fires, always after the last
// OnToken. Nil callbacks are skipped.
type StreamHandlers struct {
	OnToken    func(partial string)
	OnComplete func(result *GenerationResult)
	OnError    func(err error)
}

func (h StreamHandlers) token(partial string) {
	if h.OnToken != nil {
		h.OnToken(partial)
	}
}

func (h StreamHandlers) complete(result *GenerationResult) {
	if h.OnComplete != nil {
		h.OnComplete(result)
	}
}

func (h StreamHandlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
