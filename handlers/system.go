package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/visionsuite/attendvision/engine"
	"github.com/visionsuite/attendvision/repository"
)

// SystemHandler serves runtime configuration, system logs, and health.
type SystemHandler struct {
	Engine     *engine.Engine
	ConfigRepo repository.SystemConfigRepositoryInterface
	LogRepo    repository.SystemLogRepositoryInterface
}

func NewSystemHandler(eng *engine.Engine, configRepo repository.SystemConfigRepositoryInterface, logRepo repository.SystemLogRepositoryInterface) *SystemHandler {
	return &SystemHandler{Engine: eng, ConfigRepo: configRepo, LogRepo: logRepo}
}

// Health handles GET /api/health, an unauthenticated liveness probe.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": h.Engine.Running(),
	})
}

// GetConfig handles GET /api/config/{key}.
func (h *SystemHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ConfigRepo.Get(chi.URLParam(r, "key"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ListConfig handles GET /api/config.
func (h *SystemHandler) ListConfig(w http.ResponseWriter, r *http.Request) {
	configs, err := h.ConfigRepo.All()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

type setConfigPayload struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// SetConfig handles PUT /api/config/{key}.
func (h *SystemHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var payload setConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	if err := h.ConfigRepo.Set(key, payload.Value, payload.Description); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": payload.Value})
}

// Logs handles GET /api/logs with optional level, category, since, and
// limit query parameters.
func (h *SystemHandler) Logs(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	category := r.URL.Query().Get("category")

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "since must be a unix timestamp")
			return
		}
		since = parsed
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	logs, err := h.LogRepo.List(level, category, since, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// SyncNotImplemented answers the reserved synchronization endpoints.
func SyncNotImplemented(w http.ResponseWriter, r *http.Request) {
	WriteAPIError(w, http.StatusNotImplemented, CodeNotImplemented, "synchronization is not available in this deployment")
}
