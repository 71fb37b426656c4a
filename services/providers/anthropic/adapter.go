package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/models"
	"github.com/tachyonlabs/modelgate/services/audit"
	"github.com/tachyonlabs/modelgate/services/flags"
	"github.com/tachyonlabs/modelgate/services/providers"
	"github.com/tachyonlabs/modelgate/services/session"
	"go.uber.org/zap"
)

const (
	providerName = "anthropic"
	apiVersion   = "2023-06-01"
)

// Adapter implements the providers.Provider interface against the
// Anthropic messages endpoint.
type Adapter struct {
	cfg        config.RemoteProviderConfig
	tokens     session.TokenSource
	flags      flags.Store
	sink       audit.Sink
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a new Anthropic adapter
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

// Available reports whether the provider may be used
func (a *Adapter) Available(ctx context.Context) bool {
	if !a.flags.IsEnabled(flags.KeyAnthropicEnabled) {
		return false
	}
	_, err := a.tokens.Token(ctx)
	return err == nil
}

// Generate performs one messages round trip
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	if !a.Available(ctx) {
		return nil, providers.NewDisabledError(providerName)
	}
	if len(messages) == 0 {
		return nil, providers.NewProviderError(providerName, "empty conversation", 0, providers.ErrEmptyConversation)
	}

	start := time.Now()
	opts = opts.WithDefaults(a.cfg.Model)

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
		Version: apiVersion,
		Size:    "remote",
	}
}

func (a *Adapter) call(ctx context.Context, messages []providers.Message, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to obtain credential", 0, err)
	}

	// The messages API takes the system prompt as a top-level field, not
	// as a conversation message.
	apiReq := messagesRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      opts.SystemPrompt,
	}
	for _, msg := range messages {
		if msg.Role == providers.RoleSystem {
			if apiReq.System == "" {
				apiReq.System = msg.Content
			}
			continue
		}
		apiReq.Messages = append(apiReq.Messages, apiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if len(apiReq.Messages) == 0 {
		return nil, providers.NewProviderError(providerName, "conversation has no user messages", 0, providers.ErrEmptyConversation)
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", token)
	httpReq.Header.Set("anthropic-version", apiVersion)

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

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, providers.NewProviderError(providerName, "failed to unmarshal response", httpResp.StatusCode, err)
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, providers.NewProviderError(providerName, "empty completion in response", httpResp.StatusCode, nil)
	}

	return &providers.GenerationResult{
		Content:  content.String(),
		Model:    apiResp.Model,
		Provider: providerName,
		Usage: &providers.Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
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

// Wire types for the Anthropic messages API

type messagesRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature,omitempty"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
