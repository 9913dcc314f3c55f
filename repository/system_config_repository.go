package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/visionsuite/attendvision/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemConfigRepository handles database operations for runtime
// configuration values
type SystemConfigRepository struct {
	DB *gorm.DB
}

// NewSystemConfigRepository creates a new instance of SystemConfigRepository
func NewSystemConfigRepository(db *gorm.DB) *SystemConfigRepository {
	return &SystemConfigRepository{DB: db}
}

// Get retrieves a config value by key
func (r *SystemConfigRepository) Get(key string) (*models.SystemConfig, error) {
	var cfg models.SystemConfig
	err := r.DB.Where("key = ?", key).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return &cfg, nil
}

// Set upserts a config value
func (r *SystemConfigRepository) Set(key, value, description string) error {
	cfg := models.SystemConfig{
		Key:         key,
		Value:       value,
		Description: description,
		UpdatedAt:   time.Now().Unix(),
	}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// All retrieves every config value ordered by key
func (r *SystemConfigRepository) All() ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := r.DB.Order("key ASC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	return configs, nil
}
