package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/services/accessor"
	"github.com/tachyonlabs/modelgate/services/providers"
	"github.com/tachyonlabs/modelgate/utils"
)

// ChatHandler serves chat completion and streaming requests
type ChatHandler struct {
	accessor *accessor.Accessor
	logger   *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(acc *accessor.Accessor, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		accessor: acc,
		logger:   logger,
	}
}

// ChatMessageRequest is a single conversation message in a chat request
type ChatMessageRequest struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatCompletionRequest is the request body for chat completion endpoints
type ChatCompletionRequest struct {
	Messages     []ChatMessageRequest `json:"messages" validate:"required,min=1,dive"`
	Model        string               `json:"model,omitempty"`
	MaxTokens    int                  `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=32768"`
	Temperature  float64              `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
}

// ChatCompletionResponse is the response body for a completed generation
type ChatCompletionResponse struct {
	Content      string           `json:"content"`
	Model        string           `json:"model"`
	Provider     string           `json:"provider"`
	Usage        *providers.Usage `json:"usage,omitempty"`
	ProcessingMs int64            `json:"processing_ms"`
}

// Complete handles POST /api/v1/chat/completions
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.accessor.Generate(r.Context(), toMessages(req.Messages), req.options())
	if err != nil {
		h.writeGenerationError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, ChatCompletionResponse{
		Content:      result.Content,
		Model:        result.Model,
		Provider:     result.Provider,
		Usage:        result.Usage,
		ProcessingMs: result.ProcessingMs(),
	})
}

// Stream handles POST /api/v1/chat/stream using server-sent events.
// Each event carries the full text generated so far; a final "done"
// event closes the stream.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteInternalError(w, "Streaming is not supported by this connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	opts := req.options()
	opts.Stream = true

	handlers := providers.StreamHandlers{
		OnToken: func(partial string) {
			h.writeSSE(w, flusher, "snapshot", map[string]string{"content": partial})
		},
		OnComplete: func(result *providers.GenerationResult) {
			h.writeSSE(w, flusher, "done", ChatCompletionResponse{
				Content:      result.Content,
				Model:        result.Model,
				Provider:     result.Provider,
				Usage:        result.Usage,
				ProcessingMs: result.ProcessingMs(),
			})
		},
		OnError: func(err error) {
			h.logger.Warn("stream failed", zap.Error(err))
			h.writeSSE(w, flusher, "error", map[string]string{"message": publicErrorMessage(err)})
		},
	}

	h.accessor.Stream(r.Context(), toMessages(req.Messages), opts, handlers)
}

func (h *ChatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*ChatCompletionRequest, bool) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, "Invalid request body", nil)
		return nil, false
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
			"validation_errors": validationErrors,
		})
		return nil, false
	}

	return &req, true
}

func (h *ChatHandler) writeGenerationError(w http.ResponseWriter, err error) {
	var exhausted *accessor.AllProvidersUnavailableError
	if errors.As(err, &exhausted) {
		h.logger.Warn("all providers unavailable", zap.Strings("attempted", exhausted.Attempted))
		utils.WriteServiceUnavailable(w, exhausted.Error())
		return
	}

	h.logger.Error("generation failed", zap.Error(err))
	utils.WriteInternalError(w, "Generation failed")
}

func (h *ChatHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE payload", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (r *ChatCompletionRequest) options() providers.GenerationOptions {
	return providers.GenerationOptions{
		MaxTokens:    r.MaxTokens,
		Temperature:  r.Temperature,
		Model:        r.Model,
		SystemPrompt: r.SystemPrompt,
	}
}

func toMessages(reqs []ChatMessageRequest) []providers.Message {
	messages := make([]providers.Message, 0, len(reqs))
	for _, m := range reqs {
		messages = append(messages, providers.Message{
			Role:    providers.Role(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

func publicErrorMessage(err error) string {
	var exhausted *accessor.AllProvidersUnavailableError
	if errors.As(err, &exhausted) {
		return exhausted.Error()
	}
	return "Generation failed"
}
