package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionsuite/attendvision/models"
)

func checkInAt(t *testing.T, repo *AttendanceRepository, personID, name string, at time.Time, markedBy string, window time.Duration) *models.Attendance {
	t.Helper()
	record := &models.Attendance{
		PersonID:   personID,
		PersonName: name,
		CheckIn:    at.Unix(),
		Source:     "camera-1",
		MarkedBy:   markedBy,
	}
	require.NoError(t, repo.CheckIn(record, window))
	return record
}

func TestCheckInDefaults(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))

	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)
	record := &models.Attendance{PersonID: "emp-1", PersonName: "Ada", CheckIn: at.Unix()}
	require.NoError(t, repo.CheckIn(record, 5*time.Minute))

	assert.Equal(t, "2026-08-06", record.Date)
	assert.Equal(t, "present", record.Status)
	assert.Equal(t, models.MarkedByAuto, record.MarkedBy)
	assert.NotZero(t, record.CreatedAt)
	assert.NotZero(t, record.ID)
}

func TestCheckInSuppressesAutoDuplicatesInWindow(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-1", "Ada", at, models.MarkedByAuto, 5*time.Minute)

	dup := &models.Attendance{PersonID: "emp-1", PersonName: "Ada", CheckIn: at.Add(2 * time.Minute).Unix()}
	err := repo.CheckIn(dup, 5*time.Minute)
	assert.ErrorIs(t, err, ErrDuplicateAttendance)

	t.Run("different person is unaffected", func(t *testing.T) {
		checkInAt(t, repo, "emp-2", "Bob", at.Add(time.Minute), models.MarkedByAuto, 5*time.Minute)
	})

	t.Run("outside the window passes", func(t *testing.T) {
		checkInAt(t, repo, "emp-1", "Ada", at.Add(10*time.Minute), models.MarkedByAuto, 5*time.Minute)
	})
}

func TestCheckInManualBypassesSuppression(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-1", "Ada", at, models.MarkedByAuto, 5*time.Minute)
	checkInAt(t, repo, "emp-1", "Ada", at.Add(time.Minute), models.MarkedByManual, 0)

	records, err := repo.ListByDate("2026-08-06")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCheckOut(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-1", "Ada", at, models.MarkedByAuto, 5*time.Minute)

	out := at.Add(90 * time.Minute)
	record, err := repo.CheckOut("emp-1", "2026-08-06", out)
	require.NoError(t, err)
	require.NotNil(t, record.CheckOut)
	assert.Equal(t, out.Unix(), *record.CheckOut)
	require.NotNil(t, record.DurationMinutes)
	assert.Equal(t, int64(90), *record.DurationMinutes)

	t.Run("no open record left", func(t *testing.T) {
		_, err := repo.CheckOut("emp-1", "2026-08-06", out.Add(time.Minute))
		assert.ErrorIs(t, err, ErrNoOpenAttendance)
	})

	t.Run("unknown person", func(t *testing.T) {
		_, err := repo.CheckOut("emp-404", "2026-08-06", out)
		assert.ErrorIs(t, err, ErrNoOpenAttendance)
	})
}

func TestCheckOutClampsNegativeDuration(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-1", "Ada", at, models.MarkedByAuto, 0)

	record, err := repo.CheckOut("emp-1", "2026-08-06", at.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, record.DurationMinutes)
	assert.Equal(t, int64(0), *record.DurationMinutes)
}

func TestAttachSnapshot(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	record := checkInAt(t, repo, "emp-1", "Ada", at, models.MarkedByAuto, 0)
	require.NoError(t, repo.AttachSnapshot(record.ID, "/data/snapshots/2026-08-06/emp-1.jpg"))

	got, err := repo.GetByID(record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SnapshotPath)
	assert.Equal(t, "/data/snapshots/2026-08-06/emp-1.jpg", *got.SnapshotPath)
}

func TestListByPersonRangeAndLimit(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))

	days := []string{"2026-08-01", "2026-08-02", "2026-08-03"}
	for _, day := range days {
		at, err := time.Parse(DateLayout, day)
		require.NoError(t, err)
		checkInAt(t, repo, "emp-1", "Ada", at.Add(9*time.Hour), models.MarkedByAuto, 0)
	}

	records, err := repo.ListByPerson("emp-1", "", "", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2026-08-03", records[0].Date, "newest first")

	records, err = repo.ListByPerson("emp-1", "2026-08-02", "2026-08-02", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2026-08-02", records[0].Date)

	records, err = repo.ListByPerson("emp-1", "", "", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPersonReportAggregates(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))

	day1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-1", "Ada", day1, models.MarkedByAuto, 0)
	_, err := repo.CheckOut("emp-1", "2026-08-01", day1.Add(60*time.Minute))
	require.NoError(t, err)

	checkInAt(t, repo, "emp-1", "Ada", day2, models.MarkedByAuto, 0)
	_, err = repo.CheckOut("emp-1", "2026-08-02", day2.Add(120*time.Minute))
	require.NoError(t, err)

	report, err := repo.PersonReport("emp-1", "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", report.PersonID)
	assert.Equal(t, "Ada", report.PersonName)
	assert.Equal(t, int64(2), report.PresentDays)
	assert.Equal(t, int64(180), report.TotalDurationMinutes)
	assert.InDelta(t, 90.0, report.AvgDurationMinutes, 1e-9)
	assert.Equal(t, day1.Unix(), report.FirstCheckIn)
	assert.Equal(t, day2.Unix(), report.LastCheckIn)

	t.Run("empty range yields zero report", func(t *testing.T) {
		report, err := repo.PersonReport("emp-1", "2025-01-01", "2025-01-31")
		require.NoError(t, err)
		assert.Equal(t, "emp-1", report.PersonID)
		assert.Zero(t, report.PresentDays)
	})
}

func TestRangeReportOrdersByName(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-2", "Zoe", at, models.MarkedByAuto, 0)
	checkInAt(t, repo, "emp-1", "Ada", at.Add(time.Minute), models.MarkedByAuto, 0)

	reports, err := repo.RangeReport("2026-08-01", "2026-08-31")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "Ada", reports[0].PersonName)
	assert.Equal(t, "Zoe", reports[1].PersonName)
}

func TestDailySummaryCountsDistinctPeople(t *testing.T) {
	repo := NewAttendanceRepository(testDB(t))
	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)

	checkInAt(t, repo, "emp-1", "Ada", at, models.MarkedByAuto, 0)
	checkInAt(t, repo, "emp-1", "Ada", at.Add(time.Hour), models.MarkedByManual, 0)
	checkInAt(t, repo, "emp-2", "Bob", at.Add(time.Minute), models.MarkedByAuto, 0)

	summary, err := repo.DailySummary("2026-08-06")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-06", summary.Date)
	assert.Equal(t, int64(2), summary.PresentCount)
	assert.Len(t, summary.Records, 3)
}
