package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsProfileTimestamps(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&users.Profile{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	profile := users.Profile{
		UserID:           "user-1",
		Name:             "Ada",
		CreatedAtSeconds: 1700000000,
		UpdatedAtSeconds: 0,
	}
	if err := database.Create(&profile).Error; err != nil {
		testContext.Fatalf("failed to insert profile: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop(), serverMigrations()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.Profile
	if err := database.Where("user_id = ?", profile.UserID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload profile: %v", err)
	}
	if stored.UpdatedAtSeconds != profile.CreatedAtSeconds {
		testContext.Fatalf("expected updated_at_s to be backfilled, got %d", stored.UpdatedAtSeconds)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillProfileUpdatedAt).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database, err := gorm.Open(sqlite.Open(filepath.Join(testContext.TempDir(), "once.db")), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	calls := 0
	migrations := []migrationDefinition{{
		name: "test_counter",
		apply: func(*gorm.DB) error {
			calls++
			return nil
		},
	}}
	for attempt := 0; attempt < 2; attempt++ {
		if err := applyMigrations(database, nil, migrations); err != nil {
			testContext.Fatalf("attempt %d: %v", attempt, err)
		}
	}
	if calls != 1 {
		testContext.Fatalf("expected migration to run once, ran %d times", calls)
	}
}

func TestOpenLocalDropsBlankBindings(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "local.db")

	seed, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := seed.AutoMigrate(&binding.Slot{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	if err := seed.Create(&binding.Slot{Name: binding.SlotCreatorIdentity, Value: "  ", UpdatedAtSeconds: 1}).Error; err != nil {
		testContext.Fatalf("failed to seed binding: %v", err)
	}
	if sqlDB, err := seed.DB(); err == nil {
		_ = sqlDB.Close()
	}

	database, err := OpenLocal(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open local store: %v", err)
	}
	store, err := binding.NewSQLiteStore(database, nil)
	if err != nil {
		testContext.Fatalf("failed to construct binding store: %v", err)
	}
	if _, found, err := store.Get(context.Background(), binding.SlotCreatorIdentity); err != nil || found {
		testContext.Fatalf("expected blank binding to be dropped, found=%v err=%v", found, err)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
