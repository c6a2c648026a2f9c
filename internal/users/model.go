package users

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxIdentifierLength = 190
	maxNameLength       = 100
)

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("users: invalid user id")
	// ErrInvalidDisplayName indicates a blank or oversized display name.
	ErrInvalidDisplayName = errors.New("users: invalid display name")
	// ErrSelfFollow indicates an identity trying to follow itself.
	ErrSelfFollow = errors.New("users: cannot follow yourself")
)

// Role is an identity's capability.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// DisplayName represents a validated profile name.
type DisplayName string

// NewDisplayName trims and validates a profile name.
func NewDisplayName(rawInput string) (DisplayName, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDisplayName)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDisplayName, maxNameLength)
	}
	return DisplayName(trimmed), nil
}

// String returns the underlying name.
func (n DisplayName) String() string {
	return string(n)
}

// Profile is the persisted, caller-editable profile of an identity.
type Profile struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:400;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// Follow records that FollowerID follows TargetID.
type Follow struct {
	TargetID         string `gorm:"column:target_id;primaryKey;size:190;not null"`
	FollowerID       string `gorm:"column:follower_id;primaryKey;size:190;not null;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing follow relationships.
func (Follow) TableName() string {
	return "user_follows"
}
