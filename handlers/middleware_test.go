package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/repository"
	"github.com/visionsuite/attendvision/services"
)

func testKeyService(t *testing.T) *services.APIKeyService {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.APIKey{}))

	return services.NewAPIKeyService(repository.NewAPIKeyRepository(db))
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	return resp.Errors[0]
}

func TestRequirePermission(t *testing.T) {
	keys := testKeyService(t)

	readToken, _, err := keys.Create("reader", []string{"attendance:read"}, 0)
	require.NoError(t, err)

	var seenKey *models.APIKey
	protected := RequirePermission(keys, "attendance:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = KeyFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeUnauthenticated, decodeAPIError(t, rec).Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil)
		req.Header.Set("X-API-Key", "av_bogus")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key via X-API-Key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil)
		req.Header.Set("X-API-Key", readToken)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seenKey)
		assert.Equal(t, "reader", seenKey.Name)
	})

	t.Run("valid key via bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil)
		req.Header.Set("Authorization", "Bearer "+readToken)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil)
		req.Header.Set("Authorization", readToken)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("insufficient permission", func(t *testing.T) {
		writeGuard := RequirePermission(keys, "attendance:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/attendance/checkin", nil)
		req.Header.Set("X-API-Key", readToken)
		rec := httptest.NewRecorder()
		writeGuard.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodePermissionDenied, decodeAPIError(t, rec).Code)
	})

	t.Run("revoked key", func(t *testing.T) {
		token, key, err := keys.Create("revoked", []string{"attendance:read"}, 0)
		require.NoError(t, err)
		require.NoError(t, keys.Revoke(key.ID))

		req := httptest.NewRequest(http.MethodGet, "/api/attendance/today", nil)
		req.Header.Set("X-API-Key", token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestKeyFromContextMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, KeyFromContext(req.Context()))
}
