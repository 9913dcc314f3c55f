package models

// Attendance marked_by values
const (
	MarkedByAuto   = "auto"
	MarkedByManual = "manual"
	MarkedBySystem = "system"
)

// Attendance represents a single check-in (and optional check-out) for a
// person on a given date. It corresponds to the 'attendance' table.
type Attendance struct {
	ID              uint                   `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID        string                 `gorm:"not null;index:idx_attendance_person;column:person_id" json:"person_id"`
	PersonName      string                 `gorm:"not null" json:"person_name"`
	CheckIn         int64                  `gorm:"not null" json:"check_in"`   // Unix timestamp
	CheckOut        *int64                 `json:"check_out,omitempty"`        // Unix timestamp
	Date            string                 `gorm:"not null;index:idx_attendance_person;index:idx_attendance_date" json:"date"` // YYYY-MM-DD
	DurationMinutes *int64                 `json:"duration_minutes,omitempty"`
	Source          string                 `gorm:"not null;default:''" json:"source"`
	Confidence      float64                `json:"confidence"`
	SnapshotPath    *string                `json:"snapshot_path,omitempty"`
	Location        *string                `json:"location,omitempty"`
	Status          string                 `gorm:"not null;default:'present'" json:"status"`
	MarkedBy        string                 `gorm:"not null;default:'auto'" json:"marked_by"`
	Notes           *string                `json:"notes,omitempty"`
	Metadata        map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt       int64                  `gorm:"not null" json:"created_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Attendance) TableName() string {
	return "attendance"
}
