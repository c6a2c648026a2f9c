package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("users: database connection required")

// ServiceConfig describes the dependencies required for profiles, roles and follows.
type ServiceConfig struct {
	Database *gorm.DB
	// CreatorIdentity is granted the admin role.
	CreatorIdentity string
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Service manages profiles, roles and follow relationships.
type Service struct {
	db      *gorm.DB
	creator string
	now     func() time.Time
	logger  *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      cfg.Database,
		creator: strings.TrimSpace(cfg.CreatorIdentity),
		now:     clock,
		logger:  logger,
	}, nil
}

// RoleOf returns the role of identity; an empty identity is a guest.
func (s *Service) RoleOf(identity string) Role {
	identity = strings.TrimSpace(identity)
	switch {
	case identity == "":
		return RoleGuest
	case s.creator != "" && identity == s.creator:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// GetProfile returns the profile of userID; found is false when none was saved.
func (s *Service) GetProfile(ctx context.Context, userID UserID) (Profile, bool, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("users: load profile: %w", err)
	}
	return profile, true, nil
}

// SaveProfile creates or replaces the profile of userID.
func (s *Service) SaveProfile(ctx context.Context, userID UserID, name DisplayName) (Profile, error) {
	now := s.now().UTC().Unix()
	profile := Profile{
		UserID:           userID.String(),
		Name:             name.String(),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at_s"}),
	}).Create(&profile).Error
	if err != nil {
		s.logger.Error("profile save failed", zap.String("user_id", userID.String()), zap.Error(err))
		return Profile{}, fmt.Errorf("users: save profile: %w", err)
	}
	return profile, nil
}

// Follow records follower following target. It returns false when the relationship already existed.
func (s *Service) Follow(ctx context.Context, follower UserID, target UserID) (bool, error) {
	if follower == target {
		return false, ErrSelfFollow
	}
	record := Follow{
		TargetID:         target.String(),
		FollowerID:       follower.String(),
		CreatedAtSeconds: s.now().UTC().Unix(),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		s.logger.Error("follow failed",
			zap.String("follower_id", follower.String()),
			zap.String("target_id", target.String()),
			zap.Error(result.Error))
		return false, fmt.Errorf("users: follow: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Unfollow removes the relationship. It returns false when there was nothing to remove.
func (s *Service) Unfollow(ctx context.Context, follower UserID, target UserID) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("target_id = ? AND follower_id = ?", target.String(), follower.String()).
		Delete(&Follow{})
	if result.Error != nil {
		s.logger.Error("unfollow failed",
			zap.String("follower_id", follower.String()),
			zap.String("target_id", target.String()),
			zap.Error(result.Error))
		return false, fmt.Errorf("users: unfollow: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FollowerCount returns how many identities follow target.
func (s *Service) FollowerCount(ctx context.Context, target UserID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Follow{}).Where("target_id = ?", target.String()).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("users: count followers: %w", err)
	}
	return count, nil
}

// IsFollowing reports whether follower follows target.
func (s *Service) IsFollowing(ctx context.Context, follower UserID, target UserID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Follow{}).
		Where("target_id = ? AND follower_id = ?", target.String(), follower.String()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("users: check follow: %w", err)
	}
	return count > 0, nil
}
