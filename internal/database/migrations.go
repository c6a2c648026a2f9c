package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillProfileUpdatedAt = "2026-09-14_backfill_profile_updated_at"
	migrationDropBlankBindings        = "2026-09-20_drop_blank_bindings"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func serverMigrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationBackfillProfileUpdatedAt, apply: backfillProfileUpdatedAt},
	}
}

func localMigrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationDropBlankBindings, apply: dropBlankBindings},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger, migrations []migrationDefinition) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Profiles written before updated_at_s existed carry zero.
func backfillProfileUpdatedAt(db *gorm.DB) error {
	return db.Model(&users.Profile{}).
		Where("updated_at_s = 0").
		Update("updated_at_s", gorm.Expr("created_at_s")).Error
}

func dropBlankBindings(db *gorm.DB) error {
	return db.Where("trim(value) = ''").Delete(&binding.Slot{}).Error
}
