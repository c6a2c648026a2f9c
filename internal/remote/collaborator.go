package remote

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
)

// Role is the caller's capability as reported by the collaborator.
type Role string

const (
	// RoleAdmin is the privileged creator role.
	RoleAdmin Role = "admin"
	// RoleUser is an authenticated fan.
	RoleUser Role = "user"
	// RoleGuest is an anonymous caller.
	RoleGuest Role = "guest"
)

// Privileged reports whether the role gates uploading and establishes the creator binding.
func (r Role) Privileged() bool {
	return r == RoleAdmin
}

// Video is the read-only projection of a catalog entry.
type Video struct {
	ID              string
	Title           string
	Description     string
	DurationSeconds int64
	UploadedAt      time.Time
	ViewCount       int64
	// Thumbnail is nil when the video has none.
	Thumbnail *content.Pointer
	File      content.Pointer
}

// Profile holds the caller-editable profile fields.
type Profile struct {
	Name string
}

// VideoUpload carries the fields of a primary upload. File must already be hosted.
type VideoUpload struct {
	ID              string
	Title           string
	Description     string
	DurationSeconds int64
	File            content.Pointer
}

// Collaborator is the remote service the client synchronizes with.
// Every failure is returned as an error whose text is safe to show to the user.
type Collaborator interface {
	content.Sink

	ListVideos(ctx context.Context) ([]Video, error)
	GetVideo(ctx context.Context, id string) (Video, bool, error)
	CallerProfile(ctx context.Context) (Profile, bool, error)
	UserProfile(ctx context.Context, identity string) (Profile, bool, error)
	SaveCallerProfile(ctx context.Context, profile Profile) error
	CallerRole(ctx context.Context) (Role, error)
	FollowerCount(ctx context.Context, identity string) (int64, error)
	IsFollowing(ctx context.Context, identity string) (bool, error)
	Follow(ctx context.Context, identity string) (bool, error)
	Unfollow(ctx context.Context, identity string) (bool, error)
	UploadVideo(ctx context.Context, upload VideoUpload) (string, error)
	UploadThumbnail(ctx context.Context, videoID string, thumbnail content.Pointer) error
}
