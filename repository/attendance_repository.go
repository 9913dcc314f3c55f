package repository

import (
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/visionsuite/attendvision/models"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateAttendance is returned when an automatic check-in is
	// suppressed because the person already checked in recently today.
	ErrDuplicateAttendance = errors.New("attendance already marked")

	// ErrNoOpenAttendance is returned by CheckOut when the person has no
	// open attendance record for the date.
	ErrNoOpenAttendance = errors.New("no open attendance record")
)

// DateLayout is the storage format for attendance dates.
const DateLayout = "2006-01-02"

// PersonReport aggregates a person's attendance over a date range.
type PersonReport struct {
	PersonID             string  `json:"person_id"`
	PersonName           string  `json:"person_name"`
	PresentDays          int64   `json:"present_days"`
	TotalDurationMinutes int64   `json:"total_duration_minutes"`
	AvgDurationMinutes   float64 `json:"avg_duration_minutes"`
	FirstCheckIn         int64   `json:"first_check_in"`
	LastCheckIn          int64   `json:"last_check_in"`
}

// DailySummary aggregates one day of attendance.
type DailySummary struct {
	Date         string              `json:"date"`
	PresentCount int64               `json:"present_count"`
	Records      []models.Attendance `json:"records"`
}

// AttendanceRepository handles database operations for attendance records
type AttendanceRepository struct {
	DB *gorm.DB
}

// NewAttendanceRepository creates a new instance of AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

// CheckIn inserts an attendance record. For automatically marked records the
// duplicate check and the insert run in one transaction so two concurrent
// recognitions of the same person cannot both pass the check.
func (r *AttendanceRepository) CheckIn(record *models.Attendance, window time.Duration) error {
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	if record.Date == "" {
		record.Date = time.Unix(record.CheckIn, 0).Format(DateLayout)
	}
	if record.Status == "" {
		record.Status = "present"
	}
	if record.MarkedBy == "" {
		record.MarkedBy = models.MarkedByAuto
	}

	return r.DB.Transaction(func(tx *gorm.DB) error {
		if record.MarkedBy == models.MarkedByAuto {
			cutoff := record.CheckIn - int64(window/time.Second)
			var count int64
			err := tx.Model(&models.Attendance{}).
				Where("person_id = ? AND date = ? AND check_in >= ?", record.PersonID, record.Date, cutoff).
				Count(&count).Error
			if err != nil {
				return fmt.Errorf("failed duplicate check for person %s: %w", record.PersonID, err)
			}
			if count > 0 {
				return ErrDuplicateAttendance
			}
		}

		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to insert attendance for person %s: %w", record.PersonID, err)
		}
		return nil
	})
}

// CheckOut closes the most recent open attendance record for the person on
// the given date and computes the duration in whole minutes.
func (r *AttendanceRepository) CheckOut(personID string, date string, at time.Time) (*models.Attendance, error) {
	var record models.Attendance
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("person_id = ? AND date = ? AND check_out IS NULL", personID, date).
			Order("check_in DESC").
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoOpenAttendance
			}
			return fmt.Errorf("failed to find open attendance for person %s: %w", personID, err)
		}

		checkOut := at.Unix()
		duration := (checkOut - record.CheckIn) / 60
		if duration < 0 {
			duration = 0
		}
		record.CheckOut = &checkOut
		record.DurationMinutes = &duration

		return tx.Model(&models.Attendance{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"check_out":        checkOut,
				"duration_minutes": duration,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByID retrieves an attendance record by its primary key
func (r *AttendanceRepository) GetByID(id uint) (*models.Attendance, error) {
	var record models.Attendance
	err := r.DB.First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get attendance %d: %w", id, err)
	}
	return &record, nil
}

// AttachSnapshot records the evidence snapshot path once the async write
// completes
func (r *AttendanceRepository) AttachSnapshot(id uint, path string) error {
	err := r.DB.Model(&models.Attendance{}).
		Where("id = ?", id).
		Update("snapshot_path", path).Error
	if err != nil {
		return fmt.Errorf("failed to attach snapshot to attendance %d: %w", id, err)
	}
	return nil
}

// ListByDate retrieves all attendance records for a date ordered by check-in
func (r *AttendanceRepository) ListByDate(date string) ([]models.Attendance, error) {
	var records []models.Attendance
	err := r.DB.Where("date = ?", date).Order("check_in ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance for %s: %w", date, err)
	}
	return records, nil
}

// ListByPerson retrieves a person's attendance within an optional date range,
// newest first
func (r *AttendanceRepository) ListByPerson(personID, startDate, endDate string, limit int) ([]models.Attendance, error) {
	query := r.DB.Where("person_id = ?", personID).Order("check_in DESC")
	if startDate != "" {
		query = query.Where("date >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("date <= ?", endDate)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.Attendance
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance for person %s: %w", personID, err)
	}
	return records, nil
}

// ListRange retrieves all attendance records between two dates inclusive
func (r *AttendanceRepository) ListRange(startDate, endDate string) ([]models.Attendance, error) {
	var records []models.Attendance
	err := r.DB.Where("date >= ? AND date <= ?", startDate, endDate).
		Order("date ASC, check_in ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance %s..%s: %w", startDate, endDate, err)
	}
	return records, nil
}

// reportBuilder is the shared shape of the per-person aggregate query.
func reportBuilder(startDate, endDate string) sq.SelectBuilder {
	return sq.Select(
		"person_id",
		"person_name",
		"COUNT(DISTINCT date) AS present_days",
		"COALESCE(SUM(duration_minutes), 0) AS total_duration_minutes",
		"COALESCE(AVG(duration_minutes), 0) AS avg_duration_minutes",
		"MIN(check_in) AS first_check_in",
		"MAX(check_in) AS last_check_in",
	).
		From("attendance").
		Where(sq.GtOrEq{"date": startDate}).
		Where(sq.LtOrEq{"date": endDate}).
		GroupBy("person_id", "person_name")
}

// PersonReport aggregates one person's attendance over a date range
func (r *AttendanceRepository) PersonReport(personID, startDate, endDate string) (*PersonReport, error) {
	sqlStr, args, err := reportBuilder(startDate, endDate).
		Where(sq.Eq{"person_id": personID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for PersonReport: %w", err)
	}

	var report PersonReport
	result := r.DB.Raw(sqlStr, args...).Scan(&report)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to run PersonReport for %s: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &PersonReport{PersonID: personID}, nil
	}
	return &report, nil
}

// RangeReport aggregates every person's attendance over a date range
func (r *AttendanceRepository) RangeReport(startDate, endDate string) ([]PersonReport, error) {
	sqlStr, args, err := reportBuilder(startDate, endDate).
		OrderBy("person_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for RangeReport: %w", err)
	}

	var reports []PersonReport
	if err := r.DB.Raw(sqlStr, args...).Scan(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to run RangeReport %s..%s: %w", startDate, endDate, err)
	}
	return reports, nil
}

// DailySummary returns the day's records together with the distinct-person
// present count
func (r *AttendanceRepository) DailySummary(date string) (*DailySummary, error) {
	records, err := r.ListByDate(date)
	if err != nil {
		return nil, err
	}

	sqlStr, args, err := sq.Select("COUNT(DISTINCT person_id)").
		From("attendance").
		Where(sq.Eq{"date": date}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for DailySummary: %w", err)
	}

	var present int64
	if err := r.DB.Raw(sqlStr, args...).Scan(&present).Error; err != nil {
		return nil, fmt.Errorf("failed to count present people for %s: %w", date, err)
	}

	return &DailySummary{Date: date, PresentCount: present, Records: records}, nil
}
