package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}, &Follow{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:        db,
		CreatorIdentity: "creator-1",
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustDisplayName(t *testing.T, value string) DisplayName {
	t.Helper()
	name, err := NewDisplayName(value)
	if err != nil {
		t.Fatalf("unexpected display name error: %v", err)
	}
	return name
}

func TestRoleOf(t *testing.T) {
	service := newTestService(t)
	testCases := map[string]Role{
		"":            RoleGuest,
		"creator-1":   RoleAdmin,
		" creator-1 ": RoleAdmin,
		"fan-1":       RoleUser,
	}
	for identity, expected := range testCases {
		if role := service.RoleOf(identity); role != expected {
			t.Fatalf("identity %q: expected %s, got %s", identity, expected, role)
		}
	}
}

func TestSaveProfileUpserts(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	userID := mustUserID(t, "fan-1")

	if _, found, err := service.GetProfile(ctx, userID); err != nil || found {
		t.Fatalf("expected no profile, found=%v err=%v", found, err)
	}
	if _, err := service.SaveProfile(ctx, userID, mustDisplayName(t, " Ada ")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := service.SaveProfile(ctx, userID, mustDisplayName(t, "Grace")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	profile, found, err := service.GetProfile(ctx, userID)
	if err != nil || !found || profile.Name != "Grace" {
		t.Fatalf("unexpected profile %+v found=%v err=%v", profile, found, err)
	}
}

func TestFollowLifecycle(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	fan := mustUserID(t, "fan-1")
	other := mustUserID(t, "fan-2")
	creator := mustUserID(t, "creator-1")

	changed, err := service.Follow(ctx, fan, creator)
	if err != nil || !changed {
		t.Fatalf("first follow: changed=%v err=%v", changed, err)
	}
	changed, err = service.Follow(ctx, fan, creator)
	if err != nil || changed {
		t.Fatalf("repeat follow should be a no-op: changed=%v err=%v", changed, err)
	}
	if _, err := service.Follow(ctx, other, creator); err != nil {
		t.Fatalf("second follower: %v", err)
	}

	count, err := service.FollowerCount(ctx, creator)
	if err != nil || count != 2 {
		t.Fatalf("expected two followers, got %d err=%v", count, err)
	}
	following, err := service.IsFollowing(ctx, fan, creator)
	if err != nil || !following {
		t.Fatalf("expected fan to follow creator, err=%v", err)
	}

	changed, err = service.Unfollow(ctx, fan, creator)
	if err != nil || !changed {
		t.Fatalf("unfollow: changed=%v err=%v", changed, err)
	}
	changed, err = service.Unfollow(ctx, fan, creator)
	if err != nil || changed {
		t.Fatalf("repeat unfollow should be a no-op: changed=%v err=%v", changed, err)
	}
	if following, _ := service.IsFollowing(ctx, fan, creator); following {
		t.Fatalf("expected fan to no longer follow creator")
	}
}

func TestFollowRejectsSelf(t *testing.T) {
	service := newTestService(t)
	creator := mustUserID(t, "creator-1")
	if _, err := service.Follow(context.Background(), creator, creator); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow, got %v", err)
	}
}

func TestValueConstructors(t *testing.T) {
	if _, err := NewUserID("  "); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := NewUserID(strings.Repeat("u", 191)); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := NewDisplayName(""); !errors.Is(err, ErrInvalidDisplayName) {
		t.Fatalf("expected ErrInvalidDisplayName, got %v", err)
	}
	if _, err := NewDisplayName(strings.Repeat("n", 101)); !errors.Is(err, ErrInvalidDisplayName) {
		t.Fatalf("expected ErrInvalidDisplayName, got %v", err)
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected error without database")
	}
}
