package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/models"
	"github.com/tachyonlabs/modelgate/services/audit"
	"github.com/tachyonlabs/modelgate/services/flags"
	"github.com/tachyonlabs/modelgate/services/providers"
	"go.uber.org/zap"
)

const providerName = "local"

// Adapter implements the providers.Provider interface for the on-device
// model. Actual model execution is out of scope; this adapter honors the
// full provider contract (availability gating, audit events, processing
// time, streaming) with a synthesized response, so the access layer and
// its callers behave identically whether or not real inference is wired
// underneath.
type Adapter struct {
	cfg    config.LocalProviderConfig
	flags  flags.Store
	sink   audit.Sink
	logger *zap.Logger
}

// New creates a new local adapter
func New(cfg config.LocalProviderConfig, flagStore flags.Store, sink audit.Sink, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		flags:  flagStore,
		sink:   sink,
		logger: logger,
	}
}

// Identity returns the provider's fixed identity
func (a *Adapter) Identity() providers.Identity {
	return providers.Identity{
		Name:              providerName,
		SupportsStreaming: true,
		IsLocal:           true,
		RequiresNetwork:   false,
	}
}

// Available reports whether the on-device model is enabled. Local
// requires an explicit enablement flag: either strict local mode or the
// local-model flag must be on.
func (a *Adapter) Available(ctx context.Context) bool {
	return a.flags.IsEnabled(flags.KeyStrictLocalMode) || a.flags.IsEnabled(flags.KeyLocalModel)
}

// Generate produces a synthesized completion for the last user message
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	if !a.Available(ctx) {
		return nil, providers.NewDisabledError(providerName)
	}
	if len(messages) == 0 {
		return nil, providers.NewProviderError(providerName, "empty conversation", 0, providers.ErrEmptyConversation)
	}

	start := time.Now()
	opts = opts.WithDefaults(a.cfg.Model)

	content := a.synthesize(messages, opts)
	elapsed := time.Since(start)

	promptTokens := estimateTokens(messages)
	completionTokens := len(strings.Fields(content))

	result := &providers.GenerationResult{
		Content:  content,
		Model:    opts.Model,
		Provider: providerName,
		Usage: &providers.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		ProcessingTime: elapsed,
	}

	a.sink.Event(models.AuditKindProviderSuccess,
		fmt.Sprintf("provider=%s elapsed_ms=%d model=%s", providerName, elapsed.Milliseconds(), result.Model))
	a.logger.Debug("generation completed",
		zap.String("provider", providerName),
		zap.Duration("elapsed", elapsed))

	return result, nil
}

// Stream obtains the full result and replays it as growing snapshots.
// The local cadence is faster than the remote providers'.
func (a *Adapter) Stream(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions, handlers providers.StreamHandlers) {
	result, err := a.Generate(ctx, messages, opts)
	if err != nil {
		if handlers.OnError != nil {
			handlers.OnError(err)
		}
		return
	}
	providers.StreamSimulated(ctx, result, a.cfg.StreamDelay, handlers)
}

// ModelInfo returns static metadata about the on-device model
func (a *Adapter) ModelInfo() providers.ModelInfo {
	return providers.ModelInfo{
		Name:    a.cfg.Model,
		Version: "on-device",
		Size:    "2B",
	}
}

// synthesize builds a deterministic reply from the last user message.
// Word count is capped by MaxTokens so option handling stays observable.
func (a *Adapter) synthesize(messages []providers.Message, opts providers.GenerationOptions) string {
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == providers.RoleUser {
			lastUser = messages[i].Content
			break
		}
	}
	if lastUser == "" {
		lastUser = messages[len(messages)-1].Content
	}

	reply := fmt.Sprintf("Running on-device. You said: %s", lastUser)
	words := strings.Fields(reply)
	if opts.MaxTokens > 0 && len(words) > opts.MaxTokens {
		words = words[:opts.MaxTokens]
	}
	return strings.Join(words, " ")
}

func estimateTokens(messages []providers.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	// Rough estimate: ~4 characters per token
	return total / 4
}
