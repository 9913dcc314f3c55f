package handlers

import (
	"net/http"

	"github.com/visionsuite/attendvision/permissions"
)

// PermissionsHandler serves the statically defined permission catalogue so a
// UI can present assignable permissions when creating API keys.
type PermissionsHandler struct{}

func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// ListDefinedPermissions handles GET /api/permissions.
func (h *PermissionsHandler) ListDefinedPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissions.DefinedPermissionGroups)
}

// ListDefinedPermissionKeys handles GET /api/permissions/keys.
func (h *PermissionsHandler) ListDefinedPermissionKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissions.GetAllPermissionKeys())
}
