package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/models"
	"github.com/tachyonlabs/modelgate/services/audit"
	"github.com/tachyonlabs/modelgate/services/flags"
	"github.com/tachyonlabs/modelgate/services/providers"
	"github.com/tachyonlabs/modelgate/services/session"
	"go.uber.org/zap"
)

const providerName = "openai"

// Adapter implements the providers.Provider interface against an
// OpenAI-compatible chat completions endpoint.
type Adapter struct {
	cfg        config.RemoteProviderConfig
	tokens     session.TokenSource
	flags      flags.Store
	sink       audit.Sink
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a new OpenAI adapter
func New(cfg config.RemoteProviderConfig, tokens session.TokenSource, flagStore flags.Store, sink audit.Sink, logger *zap.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Adapter{
		cfg:        cfg,
		tokens:     tokens,
		flags:      flagStore,
		sink:       sink,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Identity returns the provider's fixed identity
func (a *Adapter) Identity() providers.Identity {
	return providers.Identity{
		Name:              providerName,
		SupportsStreaming: true,
		IsLocal:           false,
		RequiresNetwork:   true,
	}
}

// Available reports whether the provider may be used: the feature flag
// must be on and a credential must be present. No network I/O.
func (a *Adapter) Available(ctx context.Context) bool {
	if !a.flags.IsEnabled(flags.KeyOpenAIEnabled) {
		return false
	}
	_, err := a.tokens.Token(ctx)
	return err == nil
}

// Generate performs one chat completion round trip
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	if !a.Available(ctx) {
		return nil, providers.NewDisabledError(providerName)
	}
	if len(messages) == 0 {
		return nil, providers.NewProviderError(providerName, "empty conversation", 0, providers.ErrEmptyConversation)
	}

	start := time.Now()
	opts = opts.WithDefaults(a.cfg.Model)
	messages = providers.ApplySystemPrompt(messages, opts)

	result, err := a.call(ctx, messages, opts)
	elapsed := time.Since(start)

	if err != nil {
		a.sink.Event(models.AuditKindProviderFailure,
			fmt.Sprintf("provider=%s elapsed_ms=%d error=%v", providerName, elapsed.Milliseconds(), err))
		a.logger.Warn("generation failed",
			zap.String("provider", providerName),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	result.ProcessingTime = elapsed
	a.sink.Event(models.AuditKindProviderSuccess,
		fmt.Sprintf("provider=%s elapsed_ms=%d model=%s", providerName, elapsed.Milliseconds(), result.Model))
	a.logger.Debug("generation completed",
		zap.String("provider", providerName),
		zap.Duration("elapsed", elapsed),
		zap.Int("tokens", totalTokens(result)))

	return result, nil
}

// Stream obtains the full result and replays it as growing snapshots
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

// ModelInfo returns static metadata about the configured model
func (a *Adapter) ModelInfo() providers.ModelInfo {
	return providers.ModelInfo{
		Name:    a.cfg.Model,
		Version: "v1",
		Size:    "remote",
	}
}

func (a *Adapter) call(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to obtain credential", 0, err)
	}

	apiReq := chatRequest{
		Model:       opts.Model,
		Messages:    make([]chatMessage, len(messages)),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	for i, msg := range messages {
		apiReq.Messages[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "http request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.errorFromResponse(httpResp.StatusCode, respBody)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, providers.NewProviderError(providerName, "failed to unmarshal response", httpResp.StatusCode, err)
	}
	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return nil, providers.NewProviderError(providerName, "empty completion in response", httpResp.StatusCode, nil)
	}

	return &providers.GenerationResult{
		Content:  apiResp.Choices[0].Message.Content,
		Model:    apiResp.Model,
		Provider: providerName,
		Usage: &providers.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}, nil
}

func (a *Adapter) errorFromResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(providerName,
			fmt.Sprintf("unexpected status %d", statusCode), statusCode, nil)
	}
	return providers.NewProviderError(providerName, errResp.Error.Message, statusCode, nil)
}

func totalTokens(r *providers.GenerationResult) int {
	if r.Usage == nil {
		return 0
	}
	return r.Usage.TotalTokens
}

// Wire types for the OpenAI chat completions API

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
