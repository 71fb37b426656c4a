package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/services/flags"
	"github.com/tachyonlabs/modelgate/utils"
)

// FlagsHandler serves feature flag inspection and override requests
type FlagsHandler struct {
	flags  *flags.Service
	logger *zap.Logger
}

// NewFlagsHandler creates a new flags handler
func NewFlagsHandler(service *flags.Service, logger *zap.Logger) *FlagsHandler {
	return &FlagsHandler{
		flags:  service,
		logger: logger,
	}
}

// SetFlagRequest is the request body for setting a feature flag
type SetFlagRequest struct {
	Enabled bool `json:"enabled"`
}

// List handles GET /api/v1/flags
func (h *FlagsHandler) List(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"flags": h.flags.Snapshot(),
	})
}

// Get handles GET /api/v1/flags/{key}
func (h *FlagsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !h.flags.Known(key) {
		utils.WriteNotFound(w, "Unknown flag")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"enabled": h.flags.IsEnabled(key),
	})
}

// Set handles PUT /api/v1/flags/{key}
func (h *FlagsHandler) Set(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !h.flags.Known(key) {
		utils.WriteNotFound(w, "Unknown flag")
		return
	}

	var req SetFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	h.flags.Set(key, req.Enabled)
	h.logger.Info("feature flag updated", zap.String("key", key), zap.Bool("enabled", req.Enabled))

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"enabled": req.Enabled,
	})
}
