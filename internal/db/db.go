package db

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/config"
	"github.com/labelforge/labelforge/pkg/database"
	"github.com/labelforge/labelforge/pkg/models"
)

// NewDB connects to the configured database. When auto_migrate is set the
// schema is brought up to date with GORM AutoMigrate; otherwise the database
// is expected to have been migrated with labelforge-migrate.
func NewDB(cfg *config.Database, log hclog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.Connect(ConnectionConfig(cfg), log)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
			return nil, fmt.Errorf("error migrating database: %w", err)
		}
		if log != nil {
			log.Info("database schema migrated", "driver", cfg.Driver)
		}
	}

	return db, nil
}

// ConnectionConfig converts the database config block into connection
// settings.
func ConnectionConfig(cfg *config.Database) database.Config {
	return database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		DBName:          cfg.DBName,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetimeDuration(),
	}
}
