package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/services/accessor"
	"github.com/tachyonlabs/modelgate/services/providers"
	"github.com/tachyonlabs/modelgate/utils"
)

// ProviderHandler serves provider selection and introspection requests
type ProviderHandler struct {
	accessor *accessor.Accessor
	registry *providers.Registry
	logger   *zap.Logger
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(acc *accessor.Accessor, registry *providers.Registry, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		accessor: acc,
		registry: registry,
		logger:   logger,
	}
}

// SwitchProviderRequest is the request body for switching the active provider
type SwitchProviderRequest struct {
	Provider string `json:"provider" validate:"required,oneof=openai anthropic local auto"`
}

// ProviderStatusResponse describes the current provider selection and
// the health of every configured provider
type ProviderStatusResponse struct {
	Active    string                 `json:"active"`
	Providers []ProviderInfo         `json:"providers"`
	Circuits  map[string]CircuitInfo `json:"circuits,omitempty"`
}

// ProviderInfo describes a single configured provider
type ProviderInfo struct {
	Name              string `json:"name"`
	Available         bool   `json:"available"`
	SupportsStreaming bool   `json:"supports_streaming"`
	IsLocal           bool   `json:"is_local"`
	Model             string `json:"model"`
	ModelVersion      string `json:"model_version"`
}

// CircuitInfo describes the circuit breaker state for one provider
type CircuitInfo struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// Status handles GET /api/v1/provider
func (h *ProviderHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := ProviderStatusResponse{
		Circuits: make(map[string]CircuitInfo),
	}
	if identity, err := h.accessor.CurrentProvider(); err == nil {
		resp.Active = identity.Name
	}

	for _, kind := range h.registry.Kinds() {
		provider, err := h.registry.Get(kind)
		if err != nil {
			continue
		}
		identity := provider.Identity()
		model := provider.ModelInfo()
		resp.Providers = append(resp.Providers, ProviderInfo{
			Name:              identity.Name,
			Available:         provider.Available(r.Context()),
			SupportsStreaming: identity.SupportsStreaming,
			IsLocal:           identity.IsLocal,
			Model:             model.Name,
			ModelVersion:      model.Version,
		})
	}

	for name, circuit := range h.accessor.Circuits() {
		resp.Circuits[name] = CircuitInfo{
			State:               circuit.State,
			ConsecutiveFailures: circuit.ConsecutiveFailures,
		}
	}

	utils.WriteJSON(w, http.StatusOK, resp)
}

// Switch handles PUT /api/v1/provider
func (h *ProviderHandler) Switch(w http.ResponseWriter, r *http.Request) {
	var req SwitchProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
			"validation_errors": validationErrors,
		})
		return
	}

	kind, err := providers.ParseKind(req.Provider)
	if err != nil {
		utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.accessor.SwitchProvider(kind); err != nil {
		if errors.Is(err, providers.ErrProviderNotConfigured) {
			utils.WriteNotFound(w, "Provider is not configured")
			return
		}
		h.logger.Error("provider switch failed", zap.String("provider", req.Provider), zap.Error(err))
		utils.WriteInternalError(w, "Provider switch failed")
		return
	}

	active := req.Provider
	if identity, err := h.accessor.CurrentProvider(); err == nil {
		active = identity.Name
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"active": active,
	})
}
