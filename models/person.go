package models

// Person statuses
const (
	PersonStatusActive   = "active"
	PersonStatusInactive = "inactive"
	PersonStatusDeleted  = "deleted"
)

// Person represents a registered individual in the attendance database.
// It corresponds to the 'persons' table. PersonID is externally assigned
// opaque text (badge number, employee ID, etc.).
type Person struct {
	PersonID   string                 `gorm:"primaryKey;column:person_id" json:"person_id"`
	Name       string                 `gorm:"not null" json:"name"`
	Email      *string                `json:"email,omitempty"`
	Department *string                `json:"department,omitempty"`
	Position   *string                `json:"position,omitempty"`
	Phone      *string                `json:"phone,omitempty"`
	Status     string                 `gorm:"not null;default:'active'" json:"status"`
	Metadata   map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt  int64                  `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt  int64                  `gorm:"not null" json:"updated_at"` // Unix timestamp

	Attendance []Attendance `gorm:"foreignKey:PersonID;references:PersonID" json:"attendance,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "persons"
}
