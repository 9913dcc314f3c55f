package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionsuite/attendvision/models"
)

func newKeyRouter(t *testing.T) (*chi.Mux, *APIKeyHandler) {
	t.Helper()
	handler := NewAPIKeyHandler(testKeyService(t))

	r := chi.NewRouter()
	r.Post("/api/keys", handler.Create)
	r.Get("/api/keys", handler.List)
	r.Post("/api/keys/{keyID}/revoke", handler.Revoke)
	r.Delete("/api/keys/{keyID}", handler.Delete)
	return r, handler
}

func TestAPIKeyCreateValidation(t *testing.T) {
	router, _ := newKeyRouter(t)

	cases := []struct {
		name   string
		body   string
		detail string
	}{
		{"invalid json", "{", "invalid JSON body"},
		{"missing name", `{"permissions":["attendance:read"]}`, "name is required"},
		{"no permissions", `{"name":"ops"}`, "at least one permission is required"},
		{"unknown permission", `{"name":"ops","permissions":["attendance:read","foo:bar"]}`, "unknown permission: foo:bar"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			detail := decodeAPIError(t, rec)
			assert.Equal(t, CodeBadRequest, detail.Code)
			assert.Equal(t, tc.detail, detail.Detail)
		})
	}
}

func TestAPIKeyCreateReturnsPlaintextOnce(t *testing.T) {
	router, _ := newKeyRouter(t)

	body := `{"name":"ops","permissions":["attendance:read","person:*"],"expires_in_days":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Key, "av_"))
	require.NotNil(t, resp.Entry)
	assert.Equal(t, "ops", resp.Entry.Name)
	assert.NotNil(t, resp.Entry.ExpiresAt)

	// listing must never expose hashes or plaintext
	listReq := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	assert.NotContains(t, listRec.Body.String(), resp.Key)
	assert.NotContains(t, listRec.Body.String(), "key_hash")

	var keys []models.APIKey
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &keys))
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].KeyHash)
}

func TestAPIKeyRevokeAndDelete(t *testing.T) {
	router, handler := newKeyRouter(t)

	_, key, err := handler.Keys.Create("doomed", []string{"attendance:read"}, 0)
	require.NoError(t, err)
	keyID := strconv.FormatUint(uint64(key.ID), 10)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keys/"+keyID+"/revoke", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	keys, err := handler.Keys.List()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, models.APIKeyStatusRevoked, keys[0].Status)

	t.Run("unknown id maps to 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/keys/999/revoke", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/keys/abc", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/keys/"+keyID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	keys, err = handler.Keys.List()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
