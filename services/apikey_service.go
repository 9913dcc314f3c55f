package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/repository"
	"gorm.io/gorm"
)

const apiKeyPrefix = "av_"

var (
	// ErrInvalidAPIKey covers unknown, revoked, and expired keys.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrPermissionDenied is returned when a valid key lacks the required
	// permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// APIKeyService issues and validates API keys. The plaintext token is
// returned exactly once at creation; only its SHA-256 digest is stored.
type APIKeyService struct {
	keyRepo repository.APIKeyRepositoryInterface
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(keyRepo repository.APIKeyRepositoryInterface) *APIKeyService {
	return &APIKeyService{keyRepo: keyRepo}
}

// Create issues a new key with the given permission grants. expiresIn of
// zero means the key never expires.
func (s *APIKeyService) Create(name string, permissions []string, expiresIn time.Duration) (token string, key *models.APIKey, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	token = apiKeyPrefix + hex.EncodeToString(raw)

	key = &models.APIKey{
		KeyHash:     HashAPIKey(token),
		Name:        name,
		Permissions: permissions,
		Status:      models.APIKeyStatusActive,
		CreatedAt:   time.Now().Unix(),
	}
	if expiresIn > 0 {
		expires := time.Now().Add(expiresIn).Unix()
		key.ExpiresAt = &expires
	}

	if err := s.keyRepo.Create(key); err != nil {
		return "", nil, err
	}
	log.Printf("auth: issued API key %q (id=%d)", name, key.ID)
	return token, key, nil
}

// Validate authenticates a token and checks it grants the required
// permission. On success the key's last_used timestamp is refreshed.
func (s *APIKeyService) Validate(token, required string) (*models.APIKey, error) {
	if token == "" {
		return nil, ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(HashAPIKey(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}

	if key.Status != models.APIKeyStatusActive {
		return nil, ErrInvalidAPIKey
	}
	if key.ExpiresAt != nil && time.Now().Unix() > *key.ExpiresAt {
		return nil, ErrInvalidAPIKey
	}
	if required != "" && !key.HasPermission(required) {
		return nil, ErrPermissionDenied
	}

	if err := s.keyRepo.TouchLastUsed(key.ID, time.Now().Unix()); err != nil {
		log.Printf("auth: failed to update last_used for key %d: %v", key.ID, err)
	}
	return key, nil
}

// List returns all key records (hashes are never serialized)
func (s *APIKeyService) List() ([]models.APIKey, error) {
	return s.keyRepo.ListAll()
}

// Revoke deactivates a key
func (s *APIKeyService) Revoke(id uint) error {
	return s.keyRepo.Revoke(id)
}

// Delete removes a key record entirely
func (s *APIKeyService) Delete(id uint) error {
	return s.keyRepo.Delete(id)
}

// HashAPIKey produces the stored digest for a plaintext token.
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
