package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/repositories/postgres"
	"github.com/tachyonlabs/modelgate/services/providers"
	"github.com/tachyonlabs/modelgate/utils"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	registry *providers.Registry
	db       *postgres.DB
	logger   *zap.Logger
	started  time.Time
}

// NewHealthHandler creates a new health handler. The database may be
// nil when audit persistence is disabled.
func NewHealthHandler(registry *providers.Registry, db *postgres.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		db:       db,
		logger:   logger,
		started:  time.Now(),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Ready handles GET /ready. The service is ready when at least one
// provider reports availability and the audit store, if configured,
// responds to a ping.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	anyAvailable := false
	for _, kind := range h.registry.Kinds() {
		provider, err := h.registry.Get(kind)
		if err != nil {
			continue
		}
		if provider.Available(r.Context()) {
			anyAvailable = true
			break
		}
	}
	if anyAvailable {
		checks["providers"] = "ok"
	} else {
		checks["providers"] = "no provider available"
		healthy = false
	}

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			h.logger.Warn("audit store health check failed", zap.Error(err))
			checks["audit_store"] = "unreachable"
			healthy = false
		} else {
			checks["audit_store"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	utils.WriteJSON(w, status, map[string]interface{}{
		"ready":  healthy,
		"checks": checks,
	})
}
