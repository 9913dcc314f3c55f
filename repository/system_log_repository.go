package repository

import (
	"fmt"
	"time"

	"github.com/visionsuite/attendvision/models"
	"gorm.io/gorm"
)

// SystemLogRepository handles database operations for the persistent system
// log
type SystemLogRepository struct {
	DB *gorm.DB
}

// NewSystemLogRepository creates a new instance of SystemLogRepository
func NewSystemLogRepository(db *gorm.DB) *SystemLogRepository {
	return &SystemLogRepository{DB: db}
}

// Insert appends a log row
func (r *SystemLogRepository) Insert(level, category, message string, details map[string]interface{}) error {
	if level == "" {
		level = models.LogLevelInfo
	}
	entry := models.SystemLog{
		Level:     level,
		Category:  category,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
	if err := r.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to insert system log: %w", err)
	}
	return nil
}

// List retrieves log rows newest first with optional level, category, and
// start-time filters
func (r *SystemLogRepository) List(level, category string, since int64, limit int) ([]models.SystemLog, error) {
	query := r.DB.Order("timestamp DESC")
	if level != "" {
		query = query.Where("level = ?", level)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if since > 0 {
		query = query.Where("timestamp >= ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []models.SystemLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list system logs: %w", err)
	}
	return logs, nil
}

// Prune deletes log rows older than the given time
func (r *SystemLogRepository) Prune(before int64) (int64, error) {
	result := r.DB.Where("timestamp < ?", before).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune system logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
