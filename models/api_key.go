package models

import "strings"

// APIKey statuses
const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"
)

// APIKey stores a hashed credential for the control surface. The plaintext
// key is shown exactly once at creation time; only the SHA-256 hex digest
// is persisted. It corresponds to the 'api_keys' table.
type APIKey struct {
	ID          uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	KeyHash     string   `gorm:"uniqueIndex;not null;column:key_hash" json:"-"`
	Name        string   `gorm:"not null" json:"name"`
	Permissions []string `gorm:"serializer:json" json:"permissions"`
	Status      string   `gorm:"not null;default:'active'" json:"status"`
	CreatedAt   int64    `gorm:"not null" json:"created_at"`  // Unix timestamp
	LastUsed    *int64   `json:"last_used,omitempty"`         // Unix timestamp
	ExpiresAt   *int64   `json:"expires_at,omitempty"`        // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (APIKey) TableName() string {
	return "api_keys"
}

// HasPermission reports whether the key grants the required permission.
// A stored grant of "*" or "admin" matches anything; a category wildcard
// like "person:*" matches any permission in that category.
func (k *APIKey) HasPermission(required string) bool {
	for _, p := range k.Permissions {
		if p == "*" || p == "admin" || p == required {
			return true
		}
		if category, ok := strings.CutSuffix(p, ":*"); ok {
			if strings.HasPrefix(required, category+":") {
				return true
			}
		}
	}
	return false
}
