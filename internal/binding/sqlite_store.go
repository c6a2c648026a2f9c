package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Slot is one persisted binding row.
type Slot struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	Value            string `gorm:"column:value;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName binds the model to the local_bindings table.
func (Slot) TableName() string {
	return "local_bindings"
}

// SQLiteStore persists slots in a local SQLite database.
type SQLiteStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQLiteStore wraps db. The caller is responsible for migrating Slot.
func NewSQLiteStore(db *gorm.DB, clock func() time.Time) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("binding: database handle is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, slot string) (string, bool, error) {
	name, err := validateSlot(slot)
	if err != nil {
		return "", false, err
	}
	var record Slot
	err = s.db.WithContext(ctx).Where("name = ?", name).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("binding: read %s: %w", name, err)
	}
	return record.Value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, slot string, value string) error {
	name, err := validateSlot(slot)
	if err != nil {
		return err
	}
	normalized, err := validateValue(value)
	if err != nil {
		return err
	}
	record := Slot{Name: name, Value: normalized, UpdatedAtSeconds: s.clock().UTC().Unix()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at_s"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("binding: write %s: %w", name, err)
	}
	return nil
}
