package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/visionsuite/attendvision/models"
	"gorm.io/gorm"
)

// ErrPersonExists is returned when a person id is already registered.
var ErrPersonExists = errors.New("person already exists")

// PersonRepository handles database operations for Person entities
type PersonRepository struct {
	DB *gorm.DB
}

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db}
}

// Create creates a new person record in the database
func (r *PersonRepository) Create(person *models.Person) error {
	now := time.Now().Unix()
	if person.CreatedAt == 0 {
		person.CreatedAt = now
	}
	if person.UpdatedAt == 0 {
		person.UpdatedAt = now
	}
	if person.Status == "" {
		person.Status = models.PersonStatusActive
	}

	err := r.DB.Create(person).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrPersonExists, person.PersonID)
		}
		return fmt.Errorf("failed to create person %s: %w", person.PersonID, err)
	}
	return nil
}

// GetByPersonID retrieves a person by their external id
func (r *PersonRepository) GetByPersonID(personID string) (*models.Person, error) {
	var person models.Person
	err := r.DB.Where("person_id = ?", personID).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get person %s: %w", personID, err)
	}
	return &person, nil
}

// List retrieves people ordered by name, optionally filtered by status and
// department
func (r *PersonRepository) List(status, department string) ([]models.Person, error) {
	query := r.DB.Model(&models.Person{}).Order("name ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if department != "" {
		query = query.Where("department = ?", department)
	}

	var people []models.Person
	if err := query.Find(&people).Error; err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}

// Update updates an existing person's details
func (r *PersonRepository) Update(person *models.Person) error {
	person.UpdatedAt = time.Now().Unix()
	result := r.DB.Model(&models.Person{}).
		Where("person_id = ?", person.PersonID).
		Updates(map[string]interface{}{
			"name":       person.Name,
			"email":      person.Email,
			"department": person.Department,
			"position":   person.Position,
			"phone":      person.Phone,
			"metadata":   person.Metadata,
			"updated_at": person.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update person %s: %w", person.PersonID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetStatus changes a person's lifecycle status
func (r *PersonRepository) SetStatus(personID, status string) error {
	result := r.DB.Model(&models.Person{}).
		Where("person_id = ?", personID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set status for person %s: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a person record entirely
func (r *PersonRepository) Delete(personID string) error {
	result := r.DB.Where("person_id = ?", personID).Delete(&models.Person{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete person %s: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Count reports how many people exist, optionally filtered by status
func (r *PersonRepository) Count(status string) (int64, error) {
	query := r.DB.Model(&models.Person{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count people: %w", err)
	}
	return count, nil
}

// isUniqueViolation matches sqlite unique constraint failures without
// importing the driver's error types
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
