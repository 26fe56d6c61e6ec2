package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelforge/internal/config"
	"github.com/labelforge/labelforge/pkg/models"
)

func TestNewDB_SQLiteAutoMigrate(t *testing.T) {
	db, err := NewDB(&config.Database{
		Driver:      "sqlite",
		Path:        ":memory:",
		AutoMigrate: true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	u := &models.User{Email: "a@example.com", IsActive: true}
	require.NoError(t, u.Create(db))
	assert.NotZero(t, u.ID)
}

func TestNewDB_NilConfig(t *testing.T) {
	_, err := NewDB(nil, nil)
	assert.Error(t, err)
}

func TestConnectionConfig(t *testing.T) {
	got := ConnectionConfig(&config.Database{
		Driver:          "postgres",
		Host:            "db",
		Port:            5433,
		User:            "lf",
		Password:        "pw",
		DBName:          "labels",
		SSLMode:         "require",
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: "90s",
	})
	assert.Equal(t, "postgres", got.Driver)
	assert.Equal(t, "db", got.Host)
	assert.Equal(t, 5433, got.Port)
	assert.Equal(t, "labels", got.DBName)
	assert.Equal(t, "require", got.SSLMode)
	assert.Equal(t, 2, got.MaxIdleConns)
	assert.Equal(t, 4, got.MaxOpenConns)
	assert.Equal(t, 90*time.Second, got.ConnMaxLifetime)
}
