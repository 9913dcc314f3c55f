package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/repository"
)

func newAPIKeyService(t *testing.T) (*APIKeyService, *repository.APIKeyRepository) {
	t.Helper()
	repo := repository.NewAPIKeyRepository(testDB(t))
	return NewAPIKeyService(repo), repo
}

func TestCreateIssuesPrefixedTokenAndStoresHash(t *testing.T) {
	svc, repo := newAPIKeyService(t)

	token, key, err := svc.Create("ops-dashboard", []string{"attendance:read"}, 0)
	require.NoError(t, err)
	require.NotNil(t, key)

	assert.True(t, strings.HasPrefix(token, "av_"))
	assert.Len(t, token, 3+64, "prefix plus 32 hex-encoded bytes")
	assert.Equal(t, HashAPIKey(token), key.KeyHash)
	assert.Nil(t, key.ExpiresAt)
	assert.Equal(t, models.APIKeyStatusActive, key.Status)

	stored, err := repo.GetByHash(HashAPIKey(token))
	require.NoError(t, err)
	assert.Equal(t, "ops-dashboard", stored.Name)
}

func TestCreateSetsExpiry(t *testing.T) {
	svc, _ := newAPIKeyService(t)

	_, key, err := svc.Create("short-lived", []string{"reports:read"}, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, key.ExpiresAt)
	assert.Greater(t, *key.ExpiresAt, time.Now().Unix())
}

func TestValidateRejectsBadTokens(t *testing.T) {
	svc, _ := newAPIKeyService(t)

	_, err := svc.Validate("", "attendance:read")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	_, err = svc.Validate("av_not-a-real-key", "attendance:read")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestValidateRejectsRevokedKey(t *testing.T) {
	svc, _ := newAPIKeyService(t)

	token, key, err := svc.Create("doomed", []string{"*"}, 0)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(key.ID))

	_, err = svc.Validate(token, "attendance:read")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestValidateRejectsExpiredKey(t *testing.T) {
	svc, repo := newAPIKeyService(t)

	token := "av_expired-token-for-test"
	past := time.Now().Add(-time.Minute).Unix()
	require.NoError(t, repo.Create(&models.APIKey{
		KeyHash:     HashAPIKey(token),
		Name:        "expired",
		Permissions: []string{"*"},
		ExpiresAt:   &past,
	}))

	_, err := svc.Validate(token, "attendance:read")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestValidatePermissionGrants(t *testing.T) {
	svc, _ := newAPIKeyService(t)

	cases := []struct {
		name     string
		grants   []string
		required string
		wantErr  error
	}{
		{"exact grant", []string{"attendance:read"}, "attendance:read", nil},
		{"missing grant", []string{"attendance:read"}, "person:write", ErrPermissionDenied},
		{"star matches anything", []string{"*"}, "system:control", nil},
		{"admin matches anything", []string{"admin"}, "config:write", nil},
		{"category wildcard", []string{"person:*"}, "person:write", nil},
		{"category wildcard is scoped", []string{"person:*"}, "reports:read", ErrPermissionDenied},
		{"empty requirement always passes", []string{}, "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, _, err := svc.Create(tc.name, tc.grants, 0)
			require.NoError(t, err)

			key, err := svc.Validate(token, tc.required)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.name, key.Name)
		})
	}
}

func TestValidateTouchesLastUsed(t *testing.T) {
	svc, repo := newAPIKeyService(t)

	token, key, err := svc.Create("telemetry", []string{"*"}, 0)
	require.NoError(t, err)
	assert.Nil(t, key.LastUsed)

	_, err = svc.Validate(token, "attendance:read")
	require.NoError(t, err)

	got, err := repo.GetByHash(HashAPIKey(token))
	require.NoError(t, err)
	require.NotNil(t, got.LastUsed)
	assert.InDelta(t, time.Now().Unix(), *got.LastUsed, 5)
}

func TestHashAPIKeyIsDeterministicHex(t *testing.T) {
	a := HashAPIKey("av_abc")
	b := HashAPIKey("av_abc")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashAPIKey("av_abd"))
}
