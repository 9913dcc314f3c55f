package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/permissions"
	"github.com/visionsuite/attendvision/services"
)

// APIKeyHandler serves API key administration endpoints.
type APIKeyHandler struct {
	Keys *services.APIKeyService
}

func NewAPIKeyHandler(keys *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{Keys: keys}
}

type createKeyPayload struct {
	Name          string   `json:"name"`
	Permissions   []string `json:"permissions"`
	ExpiresInDays int      `json:"expires_in_days"`
}

type createKeyResponse struct {
	Key   string         `json:"key"`
	Entry *models.APIKey `json:"entry"`
}

// Create handles POST /api/keys. The plaintext key appears only in this
// response.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createKeyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if payload.Name == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "name is required")
		return
	}
	if len(payload.Permissions) == 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "at least one permission is required")
		return
	}
	for _, p := range payload.Permissions {
		if !permissions.IsValidPermissionKey(p) {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "unknown permission: "+p)
			return
		}
	}

	var expiresIn time.Duration
	if payload.ExpiresInDays > 0 {
		expiresIn = time.Duration(payload.ExpiresInDays) * 24 * time.Hour
	}

	token, key, err := h.Keys.Create(payload.Name, payload.Permissions, expiresIn)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{Key: token, Entry: key})
}

// List handles GET /api/keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Keys.List()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func keyIDParam(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "keyID"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// Revoke handles POST /api/keys/{keyID}/revoke.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := keyIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid key id")
		return
	}
	if err := h.Keys.Revoke(id); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Delete handles DELETE /api/keys/{keyID}.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := keyIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid key id")
		return
	}
	if err := h.Keys.Delete(id); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
