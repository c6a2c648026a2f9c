package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/users"
	"github.com/MarcoPoloResearchLab/fanreel/internal/videos"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite opens the API database and migrates the catalog, profile and follow schema.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&videos.Video{}, &videos.ContentBlob{}, &users.Profile{}, &users.Follow{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger, serverMigrations()); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// OpenLocal opens the client-side database that holds persisted bindings.
func OpenLocal(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&binding.Slot{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger, localMigrations()); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Debug("local store initialized", zap.String("path", path))
	}

	return db, nil
}

func open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
