package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/visionsuite/attendvision/services"
	"gorm.io/gorm"
)

// API error codes used across the control surface.
const (
	CodeBadRequest          = "bad_request"
	CodeUnauthenticated     = "unauthenticated"
	CodePermissionDenied    = "permission_denied"
	CodeNotFound            = "not_found"
	CodePersonNotFound      = "person_not_found"
	CodeDuplicateSuppressed = "duplicate_suppressed"
	CodeNoFace              = "no_face"
	CodeInvalidImage        = "invalid_image"
	CodeSourceOpenFailed    = "source_open_failed"
	CodeFrameUnavailable    = "frame_unavailable"
	CodeNotRunning          = "not_running"
	CodeAlreadyRunning      = "already_running"
	CodeNotImplemented      = "not_implemented"
	CodeInternal            = "internal"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// WriteServiceError maps service-layer failures onto HTTP statuses and API
// error codes. Unrecognized errors become 500 internal.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPersonNotFound):
		WriteAPIError(w, http.StatusNotFound, CodePersonNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateSuppressed):
		WriteAPIError(w, http.StatusConflict, CodeDuplicateSuppressed, err.Error())
	case errors.Is(err, services.ErrNoFace):
		WriteAPIError(w, http.StatusUnprocessableEntity, CodeNoFace, err.Error())
	case errors.Is(err, services.ErrInvalidImage):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
	case errors.Is(err, services.ErrSourceOpenFailed):
		WriteAPIError(w, http.StatusUnprocessableEntity, CodeSourceOpenFailed, err.Error())
	case errors.Is(err, services.ErrFrameUnavailable):
		WriteAPIError(w, http.StatusNotFound, CodeFrameUnavailable, err.Error())
	case errors.Is(err, services.ErrNotRunning):
		WriteAPIError(w, http.StatusConflict, CodeNotRunning, err.Error())
	case errors.Is(err, services.ErrAlreadyRunning):
		WriteAPIError(w, http.StatusConflict, CodeAlreadyRunning, err.Error())
	case errors.Is(err, services.ErrInvalidAPIKey):
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
	case errors.Is(err, services.ErrPermissionDenied):
		WriteAPIError(w, http.StatusForbidden, CodePermissionDenied, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "record not found")
	default:
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
