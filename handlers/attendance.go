package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/visionsuite/attendvision/repository"
	"github.com/visionsuite/attendvision/services"
)

// AttendanceHandler serves attendance records, reports, and exports.
type AttendanceHandler struct {
	Attendance *services.AttendanceService
}

func NewAttendanceHandler(attendance *services.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{Attendance: attendance}
}

// List handles GET /api/attendance with either a date or a start_date and
// end_date pair.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	var startDate, endDate string
	if date != "" {
		if _, err := time.Parse(repository.DateLayout, date); err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
	} else {
		var err error
		startDate, endDate, err = parseRange(r)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
	}

	records, err := h.Attendance.List(date, startDate, endDate)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Get handles GET /api/attendance/{recordID}.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "recordID"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid record id")
		return
	}

	record, err := h.Attendance.Get(uint(id))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Today handles GET /api/attendance/today.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Attendance.Today()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Summary handles GET /api/attendance/summary?date=YYYY-MM-DD.
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format(repository.DateLayout)
	}
	if _, err := time.Parse(repository.DateLayout, date); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "date must be YYYY-MM-DD")
		return
	}

	summary, err := h.Attendance.Summary(date)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// History handles GET /api/attendance/persons/{personID} with optional
// start_date, end_date, and limit query parameters.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	records, err := h.Attendance.History(personID, startDate, endDate, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type manualCheckInPayload struct {
	PersonID   string `json:"person_id"`
	PersonName string `json:"person_name"`
	CheckIn    *int64 `json:"check_in"`
	Location   string `json:"location"`
	Notes      string `json:"notes"`
}

// ManualCheckIn handles POST /api/attendance/checkin.
func (h *AttendanceHandler) ManualCheckIn(w http.ResponseWriter, r *http.Request) {
	var payload manualCheckInPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if payload.PersonID == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "person_id is required")
		return
	}

	checkIn := time.Now()
	if payload.CheckIn != nil {
		checkIn = time.Unix(*payload.CheckIn, 0)
	}

	markedBy := "manual"
	if key := KeyFromContext(r.Context()); key != nil {
		markedBy = fmt.Sprintf("manual:%s", key.Name)
	}

	record, err := h.Attendance.MarkManual(payload.PersonID, payload.PersonName, checkIn, payload.Location, payload.Notes, markedBy)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// CheckOut handles POST /api/attendance/persons/{personID}/checkout.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	record, err := h.Attendance.CheckOut(chi.URLParam(r, "personID"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// parseRange validates start_date and end_date query parameters, defaulting
// to the last 30 days.
func parseRange(r *http.Request) (string, string, error) {
	endDate := r.URL.Query().Get("end_date")
	startDate := r.URL.Query().Get("start_date")
	if endDate == "" {
		endDate = time.Now().Format(repository.DateLayout)
	}
	if startDate == "" {
		startDate = time.Now().AddDate(0, 0, -30).Format(repository.DateLayout)
	}
	if _, err := time.Parse(repository.DateLayout, startDate); err != nil {
		return "", "", fmt.Errorf("start_date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(repository.DateLayout, endDate); err != nil {
		return "", "", fmt.Errorf("end_date must be YYYY-MM-DD")
	}
	return startDate, endDate, nil
}

// PersonReport handles GET /api/reports/persons/{personID}.
func (h *AttendanceHandler) PersonReport(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, err := parseRange(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	report, err := h.Attendance.PersonReport(chi.URLParam(r, "personID"), startDate, endDate)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RangeReport handles GET /api/reports.
func (h *AttendanceHandler) RangeReport(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, err := parseRange(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	reports, err := h.Attendance.RangeReport(startDate, endDate)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// Events handles GET /api/attendance/events.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	personID := r.URL.Query().Get("person_id")

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "since must be a unix timestamp")
			return
		}
		since = parsed
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	events, err := h.Attendance.RecentEvents(personID, since, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Export handles GET /api/reports/export?format=csv|json.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, err := parseRange(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=attendance_%s_%s.csv", startDate, endDate))
		if err := h.Attendance.ExportCSV(w, startDate, endDate); err != nil {
			WriteServiceError(w, err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=attendance_%s_%s.json", startDate, endDate))
		if err := h.Attendance.ExportJSON(w, startDate, endDate); err != nil {
			WriteServiceError(w, err)
		}
	default:
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "format must be csv or json")
	}
}
