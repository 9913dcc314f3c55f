package models

// DetectionEvent is an append-only audit row recorded each time an automatic
// attendance mark is attempted for a recognized person, whether the mark was
// written or suppressed as a duplicate. Unrecognized tracks produce no row.
// It corresponds to the 'detection_events' table.
type DetectionEvent struct {
	ID           uint                   `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID     *string                `gorm:"index:idx_detection_person;column:person_id" json:"person_id,omitempty"`
	PersonName   string                 `gorm:"not null" json:"person_name"`
	Timestamp    int64                  `gorm:"not null;index:idx_detection_timestamp" json:"timestamp"` // Unix timestamp
	Confidence   float64                `json:"confidence"`
	Source       string                 `gorm:"not null;default:''" json:"source"`
	AttendanceID *uint                  `json:"attendance_id,omitempty"`
	Metadata     map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (DetectionEvent) TableName() string {
	return "detection_events"
}
