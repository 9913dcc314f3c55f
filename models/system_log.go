package models

// Log levels used in the system_logs table
const (
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// SystemLog is a persisted application log row for the audit surface.
// It corresponds to the 'system_logs' table.
type SystemLog struct {
	ID        uint                   `gorm:"primaryKey;autoIncrement" json:"id"`
	Level     string                 `gorm:"not null;default:'info'" json:"level"`
	Category  string                 `gorm:"not null;default:''" json:"category"`
	Message   string                 `gorm:"not null" json:"message"`
	Details   map[string]interface{} `gorm:"serializer:json" json:"details,omitempty"`
	Timestamp int64                  `gorm:"not null;index:idx_logs_timestamp" json:"timestamp"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (SystemLog) TableName() string {
	return "system_logs"
}
