package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/repository"
)

func newAttendanceService(t *testing.T) (*AttendanceService, *repository.DetectionEventRepository, *repository.SystemLogRepository) {
	t.Helper()
	db := testDB(t)
	eventRepo := repository.NewDetectionEventRepository(db)
	logRepo := repository.NewSystemLogRepository(db)
	svc := NewAttendanceService(repository.NewAttendanceRepository(db), eventRepo, logRepo, 5*time.Minute)
	return svc, eventRepo, logRepo
}

func TestMarkAutomaticCreatesRecordAndAuditTrail(t *testing.T) {
	svc, eventRepo, logRepo := newAttendanceService(t)

	record, err := svc.MarkAutomatic("emp-1", "Ada", 0.93, "rtsp://cam.local/stream1", "")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotZero(t, record.ID)
	assert.Equal(t, models.MarkedByAuto, record.MarkedBy)
	assert.InDelta(t, 0.93, record.Confidence, 1e-9)

	events, err := eventRepo.List("emp-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].AttendanceID)
	assert.Equal(t, record.ID, *events[0].AttendanceID)

	logs, err := logRepo.List("", "attendance", 0, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestMarkAutomaticSuppressesDuplicate(t *testing.T) {
	svc, eventRepo, _ := newAttendanceService(t)

	_, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)

	record, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	assert.ErrorIs(t, err, ErrDuplicateSuppressed)
	assert.Nil(t, record)

	// suppressed sighting still produces an event, without an attendance id
	events, err := eventRepo.List("emp-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].AttendanceID)
}

func TestMarkManualBypassesSuppression(t *testing.T) {
	svc, _, _ := newAttendanceService(t)

	_, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)

	record, err := svc.MarkManual("emp-1", "Ada", time.Now(), "front desk", "forgot badge", "manual:reception")
	require.NoError(t, err)
	assert.Equal(t, "manual", record.Source)
	assert.Equal(t, "manual:reception", record.MarkedBy)
	require.NotNil(t, record.Location)
	assert.Equal(t, "front desk", *record.Location)
	require.NotNil(t, record.Notes)
	assert.Equal(t, "forgot badge", *record.Notes)
}

func TestCheckOutMapsMissingToPersonNotFound(t *testing.T) {
	svc, _, _ := newAttendanceService(t)

	_, err := svc.CheckOut("emp-404")
	assert.ErrorIs(t, err, ErrPersonNotFound)

	_, err = svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)

	record, err := svc.CheckOut("emp-1")
	require.NoError(t, err)
	require.NotNil(t, record.CheckOut)
	require.NotNil(t, record.DurationMinutes)
}

func TestAttachSnapshot(t *testing.T) {
	svc, _, _ := newAttendanceService(t)

	record, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)
	require.NoError(t, svc.AttachSnapshot(record.ID, "/data/snapshots/x.jpg"))

	history, err := svc.History("emp-1", "", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].SnapshotPath)
	assert.Equal(t, "/data/snapshots/x.jpg", *history[0].SnapshotPath)
}

func TestTodaySummaryCountsRecords(t *testing.T) {
	svc, _, _ := newAttendanceService(t)

	_, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)
	_, err = svc.MarkAutomatic("emp-2", "Bob", 0.8, "camera-1", "")
	require.NoError(t, err)

	summary, err := svc.Today()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.PresentCount)
	assert.Len(t, summary.Records, 2)
}

func TestExportCSV(t *testing.T) {
	svc, _, _ := newAttendanceService(t)

	_, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)
	_, err = svc.CheckOut("emp-1")
	require.NoError(t, err)

	today := time.Now().Format(repository.DateLayout)
	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(&buf, today, today))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"person_id", "person_name", "date", "check_in", "check_out", "duration_minutes", "source", "confidence", "status", "marked_by"}, rows[0])
	assert.Equal(t, "emp-1", rows[1][0])
	assert.Equal(t, "Ada", rows[1][1])
	assert.Equal(t, today, rows[1][2])
	assert.NotEmpty(t, rows[1][4], "check_out is set")
	assert.Equal(t, "auto", rows[1][9])
}

func TestExportJSON(t *testing.T) {
	svc, _, _ := newAttendanceService(t)

	_, err := svc.MarkAutomatic("emp-1", "Ada", 0.9, "camera-1", "")
	require.NoError(t, err)

	today := time.Now().Format(repository.DateLayout)
	var buf bytes.Buffer
	require.NoError(t, svc.ExportJSON(&buf, today, today))

	var records []models.Attendance
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "emp-1", records[0].PersonID)
}
