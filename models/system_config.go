package models

// SystemConfig is a key/value row for runtime-tunable settings.
// It corresponds to the 'system_config' table.
type SystemConfig struct {
	Key         string `gorm:"primaryKey" json:"key"`
	Value       string `gorm:"not null" json:"value"`
	Description string `json:"description,omitempty"`
	UpdatedAt   int64  `gorm:"not null" json:"updated_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (SystemConfig) TableName() string {
	return "system_config"
}
