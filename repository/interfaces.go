package repository

import (
	"time"

	"github.com/visionsuite/attendvision/models"
)

// PersonRepositoryInterface defines the methods for person data operations
type PersonRepositoryInterface interface {
	Create(person *models.Person) error
	GetByPersonID(personID string) (*models.Person, error)
	List(status, department string) ([]models.Person, error)
	Update(person *models.Person) error
	SetStatus(personID, status string) error
	Delete(personID string) error
	Count(status string) (int64, error)
}

// AttendanceRepositoryInterface defines the methods for attendance data
// operations, including duplicate-suppressed automatic check-in
type AttendanceRepositoryInterface interface {
	CheckIn(record *models.Attendance, window time.Duration) error
	CheckOut(personID string, date string, at time.Time) (*models.Attendance, error)
	GetByID(id uint) (*models.Attendance, error)
	AttachSnapshot(id uint, path string) error
	ListByDate(date string) ([]models.Attendance, error)
	ListByPerson(personID, startDate, endDate string, limit int) ([]models.Attendance, error)
	ListRange(startDate, endDate string) ([]models.Attendance, error)
	PersonReport(personID, startDate, endDate string) (*PersonReport, error)
	RangeReport(startDate, endDate string) ([]PersonReport, error)
	DailySummary(date string) (*DailySummary, error)
}

// DetectionEventRepositoryInterface defines the methods for detection event
// data operations
type DetectionEventRepositoryInterface interface {
	Create(event *models.DetectionEvent) error
	List(personID string, since int64, limit int) ([]models.DetectionEvent, error)
	CountSince(since int64) (int64, error)
	Prune(before int64) (int64, error)
}

// APIKeyRepositoryInterface defines the methods for API key data operations
type APIKeyRepositoryInterface interface {
	Create(key *models.APIKey) error
	GetByHash(keyHash string) (*models.APIKey, error)
	ListAll() ([]models.APIKey, error)
	TouchLastUsed(id uint, at int64) error
	Revoke(id uint) error
	Delete(id uint) error
}

// SystemConfigRepositoryInterface defines the methods for runtime
// configuration stored in the database
type SystemConfigRepositoryInterface interface {
	Get(key string) (*models.SystemConfig, error)
	Set(key, value, description string) error
	All() ([]models.SystemConfig, error)
}

// SystemLogRepositoryInterface defines the methods for the persistent system
// log
type SystemLogRepositoryInterface interface {
	Insert(level, category, message string, details map[string]interface{}) error
	List(level, category string, since int64, limit int) ([]models.SystemLog, error)
	Prune(before int64) (int64, error)
}
