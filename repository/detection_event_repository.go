package repository

import (
	"fmt"
	"time"

	"github.com/visionsuite/attendvision/models"
	"gorm.io/gorm"
)

// DetectionEventRepository handles database operations for detection events
type DetectionEventRepository struct {
	DB *gorm.DB
}

// NewDetectionEventRepository creates a new instance of DetectionEventRepository
func NewDetectionEventRepository(db *gorm.DB) *DetectionEventRepository {
	return &DetectionEventRepository{DB: db}
}

// Create inserts a detection event
func (r *DetectionEventRepository) Create(event *models.DetectionEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	if err := r.DB.Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert detection event: %w", err)
	}
	return nil
}

// List retrieves detection events newest first, optionally filtered by
// person and start time
func (r *DetectionEventRepository) List(personID string, since int64, limit int) ([]models.DetectionEvent, error) {
	query := r.DB.Order("timestamp DESC")
	if personID != "" {
		query = query.Where("person_id = ?", personID)
	}
	if since > 0 {
		query = query.Where("timestamp >= ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.DetectionEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list detection events: %w", err)
	}
	return events, nil
}

// CountSince reports the number of events at or after the given time
func (r *DetectionEventRepository) CountSince(since int64) (int64, error) {
	var count int64
	err := r.DB.Model(&models.DetectionEvent{}).
		Where("timestamp >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count detection events: %w", err)
	}
	return count, nil
}

// Prune deletes events older than the given time and reports how many were
// removed
func (r *DetectionEventRepository) Prune(before int64) (int64, error) {
	result := r.DB.Where("timestamp < ?", before).Delete(&models.DetectionEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune detection events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
