package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/visionsuite/attendvision/models"
	"gorm.io/gorm"
)

// APIKeyRepository handles database operations for API keys
type APIKeyRepository struct {
	DB *gorm.DB
}

// NewAPIKeyRepository creates a new instance of APIKeyRepository
func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{DB: db}
}

// Create inserts a new API key record
func (r *APIKeyRepository) Create(key *models.APIKey) error {
	if key.CreatedAt == 0 {
		key.CreatedAt = time.Now().Unix()
	}
	if key.Status == "" {
		key.Status = models.APIKeyStatusActive
	}
	if err := r.DB.Create(key).Error; err != nil {
		return fmt.Errorf("failed to create API key %s: %w", key.Name, err)
	}
	return nil
}

// GetByHash retrieves a key record by the sha256 hash of its token
func (r *APIKeyRepository) GetByHash(keyHash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.DB.Where("key_hash = ?", keyHash).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	return &key, nil
}

// ListAll retrieves every API key record, newest first
func (r *APIKeyRepository) ListAll() ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := r.DB.Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// TouchLastUsed records when the key last authenticated a request
func (r *APIKeyRepository) TouchLastUsed(id uint, at int64) error {
	err := r.DB.Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used", at).Error
	if err != nil {
		return fmt.Errorf("failed to touch API key %d: %w", id, err)
	}
	return nil
}

// Revoke marks the key as revoked without deleting its audit trail
func (r *APIKeyRepository) Revoke(id uint) error {
	result := r.DB.Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("status", models.APIKeyStatusRevoked)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke API key %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the key record entirely
func (r *APIKeyRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.APIKey{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete API key %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
