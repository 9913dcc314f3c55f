package services

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/repository"
)

// AttendanceService provides high-level attendance operations on top of the
// attendance and detection event repositories
type AttendanceService struct {
	attendanceRepo repository.AttendanceRepositoryInterface
	eventRepo      repository.DetectionEventRepositoryInterface
	logRepo        repository.SystemLogRepositoryInterface

	duplicateWindow time.Duration
}

// NewAttendanceService creates a new attendance service
func NewAttendanceService(
	attendanceRepo repository.AttendanceRepositoryInterface,
	eventRepo repository.DetectionEventRepositoryInterface,
	logRepo repository.SystemLogRepositoryInterface,
	duplicateWindow time.Duration,
) *AttendanceService {
	if duplicateWindow <= 0 {
		duplicateWindow = 5 * time.Minute
	}
	return &AttendanceService{
		attendanceRepo:  attendanceRepo,
		eventRepo:       eventRepo,
		logRepo:         logRepo,
		duplicateWindow: duplicateWindow,
	}
}

// MarkAutomatic records an attendance check-in produced by the recognition
// loop. A suppressed duplicate still produces a detection event so sightings
// remain auditable.
func (s *AttendanceService) MarkAutomatic(personID, personName string, confidence float64, source, snapshotPath string) (*models.Attendance, error) {
	now := time.Now()
	record := &models.Attendance{
		PersonID:   personID,
		PersonName: personName,
		CheckIn:    now.Unix(),
		Date:       now.Format(repository.DateLayout),
		Source:     source,
		Confidence: confidence,
		MarkedBy:   models.MarkedByAuto,
	}
	if snapshotPath != "" {
		record.SnapshotPath = &snapshotPath
	}

	err := s.attendanceRepo.CheckIn(record, s.duplicateWindow)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAttendance) {
			s.recordEvent(personID, personName, confidence, source, nil)
			return nil, ErrDuplicateSuppressed
		}
		return nil, err
	}

	s.recordEvent(personID, personName, confidence, source, &record.ID)
	if s.logRepo != nil {
		if logErr := s.logRepo.Insert(models.LogLevelInfo, "attendance", fmt.Sprintf("checked in %s (%s)", personName, personID), map[string]interface{}{
			"confidence": confidence,
			"source":     source,
		}); logErr != nil {
			log.Printf("attendance: failed to write system log: %v", logErr)
		}
	}
	return record, nil
}

// MarkManual records a manually entered attendance check-in. Manual records
// bypass duplicate suppression.
func (s *AttendanceService) MarkManual(personID, personName string, checkIn time.Time, location, notes, markedBy string) (*models.Attendance, error) {
	record := &models.Attendance{
		PersonID:   personID,
		PersonName: personName,
		CheckIn:    checkIn.Unix(),
		Date:       checkIn.Format(repository.DateLayout),
		Source:     "manual",
		MarkedBy:   models.MarkedByManual,
	}
	if markedBy != "" {
		record.MarkedBy = markedBy
	}
	if location != "" {
		record.Location = &location
	}
	if notes != "" {
		record.Notes = &notes
	}

	if err := s.attendanceRepo.CheckIn(record, 0); err != nil {
		return nil, err
	}
	return record, nil
}

// AttachSnapshot links an evidence snapshot to an existing record
func (s *AttendanceService) AttachSnapshot(attendanceID uint, path string) error {
	return s.attendanceRepo.AttachSnapshot(attendanceID, path)
}

// CheckOut closes the person's open attendance record for today
func (s *AttendanceService) CheckOut(personID string) (*models.Attendance, error) {
	now := time.Now()
	record, err := s.attendanceRepo.CheckOut(personID, now.Format(repository.DateLayout), now)
	if err != nil {
		if errors.Is(err, repository.ErrNoOpenAttendance) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	return record, nil
}

// Get returns a single attendance record by id
func (s *AttendanceService) Get(id uint) (*models.Attendance, error) {
	return s.attendanceRepo.GetByID(id)
}

// List returns records for a single date, or across a range when date is
// empty
func (s *AttendanceService) List(date, startDate, endDate string) ([]models.Attendance, error) {
	if date != "" {
		return s.attendanceRepo.ListByDate(date)
	}
	return s.attendanceRepo.ListRange(startDate, endDate)
}

// Today returns the daily summary for the current date
func (s *AttendanceService) Today() (*repository.DailySummary, error) {
	return s.attendanceRepo.DailySummary(time.Now().Format(repository.DateLayout))
}

// Summary returns the daily summary for an arbitrary date
func (s *AttendanceService) Summary(date string) (*repository.DailySummary, error) {
	return s.attendanceRepo.DailySummary(date)
}

// History returns a person's attendance records within an optional range
func (s *AttendanceService) History(personID, startDate, endDate string, limit int) ([]models.Attendance, error) {
	return s.attendanceRepo.ListByPerson(personID, startDate, endDate, limit)
}

// PersonReport aggregates one person's attendance over a date range
func (s *AttendanceService) PersonReport(personID, startDate, endDate string) (*repository.PersonReport, error) {
	return s.attendanceRepo.PersonReport(personID, startDate, endDate)
}

// RangeReport aggregates every person's attendance over a date range
func (s *AttendanceService) RangeReport(startDate, endDate string) ([]repository.PersonReport, error) {
	return s.attendanceRepo.RangeReport(startDate, endDate)
}

// RecentEvents lists detection events, optionally for one person
func (s *AttendanceService) RecentEvents(personID string, since int64, limit int) ([]models.DetectionEvent, error) {
	return s.eventRepo.List(personID, since, limit)
}

// ExportCSV writes all attendance records in a date range as CSV
func (s *AttendanceService) ExportCSV(w io.Writer, startDate, endDate string) error {
	records, err := s.attendanceRepo.ListRange(startDate, endDate)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"person_id", "person_name", "date", "check_in", "check_out", "duration_minutes", "source", "confidence", "status", "marked_by"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		checkOut := ""
		if rec.CheckOut != nil {
			checkOut = time.Unix(*rec.CheckOut, 0).Format(time.RFC3339)
		}
		duration := ""
		if rec.DurationMinutes != nil {
			duration = strconv.FormatInt(*rec.DurationMinutes, 10)
		}
		row := []string{
			rec.PersonID,
			rec.PersonName,
			rec.Date,
			time.Unix(rec.CheckIn, 0).Format(time.RFC3339),
			checkOut,
			duration,
			rec.Source,
			strconv.FormatFloat(rec.Confidence, 'f', 3, 64),
			rec.Status,
			rec.MarkedBy,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes all attendance records in a date range as a JSON array
func (s *AttendanceService) ExportJSON(w io.Writer, startDate, endDate string) error {
	records, err := s.attendanceRepo.ListRange(startDate, endDate)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func (s *AttendanceService) recordEvent(personID, personName string, confidence float64, source string, attendanceID *uint) {
	event := &models.DetectionEvent{
		PersonID:     &personID,
		PersonName:   personName,
		Confidence:   confidence,
		Source:       source,
		AttendanceID: attendanceID,
	}
	if err := s.eventRepo.Create(event); err != nil {
		log.Printf("attendance: failed to record detection event for %s: %v", personID, err)
	}
}
