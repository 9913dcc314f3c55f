package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/visionsuite/attendvision/models"
)

// testDB opens a throwaway sqlite database with the full schema migrated.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Person{},
		&models.Attendance{},
		&models.DetectionEvent{},
		&models.SystemConfig{},
		&models.APIKey{},
		&models.SystemLog{},
	))
	return db
}
