package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/pkg/database"
)

// setupTestDB creates an in-memory SQLite database with all tables migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   ":memory:",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(ModelsToAutoMigrate()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *User {
	t.Helper()
	u := &User{Email: email}
	require.NoError(t, u.Create(db))
	return u
}

func createTestOrg(t *testing.T, db *gorm.DB, title string) *Organization {
	t.Helper()
	o := &Organization{Title: title}
	require.NoError(t, o.Create(db))
	return o
}
