package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
	"github.com/MarcoPoloResearchLab/fanreel/internal/mutation"
	"github.com/MarcoPoloResearchLab/fanreel/internal/query"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	maxDisplayNameLength = 100
	roleFlight           = "caller_role"
)

var (
	// ErrInvalidDisplayName indicates a blank or oversized profile name.
	ErrInvalidDisplayName = errors.New("catalog: invalid display name")

	errMissingCache = errors.New("catalog: query cache is required")
	noOpLogger      = zap.NewNop()
)

// Session describes the dependencies queries are gated on.
type Session struct {
	// Identity is the caller's principal; empty for anonymous viewers.
	Identity string
}

// Authenticated reports whether the session belongs to a signed-in caller.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.Identity) != ""
}

// Config describes the dependencies of the catalog service.
type Config struct {
	Cache *query.Cache
	// Collaborator may be nil while the connection is not established; every query is then disabled.
	Collaborator remote.Collaborator
	Session      Session
	Logger       *zap.Logger
}

// UploadVideoArgs describes a primary upload. Progress observes the content transfer only.
type UploadVideoArgs struct {
	ID              string
	Title           string
	Description     string
	DurationSeconds int64
	File            content.Pointer
	Progress        content.Observer
}

// ThumbnailArgs describes a secondary upload attached to an existing video.
type ThumbnailArgs struct {
	VideoID string
	Image   content.Pointer
}

// Service exposes the catalog's cached queries and its mutation call sites.
type Service struct {
	cache        *query.Cache
	collaborator remote.Collaborator
	session      Session
	logger       *zap.Logger
	// roleReads collapses the role reads behind currentUserRole and isCallerAdmin.
	roleReads singleflight.Group

	SaveProfile     *mutation.Runner[remote.Profile, struct{}]
	UploadVideo     *mutation.Runner[UploadVideoArgs, string]
	UploadThumbnail *mutation.Runner[ThumbnailArgs, struct{}]
	Follow          *mutation.Runner[string, bool]
	Unfollow        *mutation.Runner[string, bool]
}

// NewService wires the queries and mutations against cfg.Cache.
func NewService(cfg Config) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	service := &Service{
		cache:        cfg.Cache,
		collaborator: cfg.Collaborator,
		session:      cfg.Session,
		logger:       logger,
	}

	var err error
	service.SaveProfile, err = mutation.New(mutation.Config[remote.Profile, struct{}]{
		Name:    "save_caller_profile",
		Execute: service.saveProfile,
		Invalidates: func(_ remote.Profile, _ struct{}) []query.Key {
			return []query.Key{KeyCallerProfile()}
		},
		Cache:  cfg.Cache,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	service.UploadVideo, err = mutation.New(mutation.Config[UploadVideoArgs, string]{
		Name:    "upload_video",
		Execute: service.uploadVideo,
		Invalidates: func(_ UploadVideoArgs, _ string) []query.Key {
			return []query.Key{KeyVideos()}
		},
		Cache:  cfg.Cache,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	service.UploadThumbnail, err = mutation.New(mutation.Config[ThumbnailArgs, struct{}]{
		Name:    "upload_thumbnail",
		Execute: service.uploadThumbnail,
		Invalidates: func(args ThumbnailArgs, _ struct{}) []query.Key {
			return []query.Key{KeyVideos(), KeyVideo(args.VideoID)}
		},
		Cache:  cfg.Cache,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	followInvalidations := func(target string, _ bool) []query.Key {
		return []query.Key{KeyFollowerCount(target), KeyIsFollowing(target)}
	}
	service.Follow, err = mutation.New(mutation.Config[string, bool]{
		Name:        "follow",
		Execute:     service.follow,
		Invalidates: followInvalidations,
		Cache:       cfg.Cache,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	service.Unfollow, err = mutation.New(mutation.Config[string, bool]{
		Name:        "unfollow",
		Execute:     service.unfollow,
		Invalidates: followInvalidations,
		Cache:       cfg.Cache,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return service, nil
}

// Session returns the session the service was built for.
func (s *Service) Session() Session {
	return s.session
}

// Cache exposes the underlying query cache.
func (s *Service) Cache() *query.Cache {
	return s.cache
}

func (s *Service) connected() bool {
	return s.collaborator != nil
}

// Videos subscribes to the catalog listing.
func (s *Service) Videos() *query.Subscription[[]remote.Video] {
	return query.Subscribe(s.cache, KeyVideos(), func(ctx context.Context) ([]remote.Video, error) {
		if s.collaborator == nil {
			return nil, nil
		}
		return s.collaborator.ListVideos(ctx)
	}, query.Options{Enabled: s.connected()})
}

// VideoLookup is the tagged result of a single-entry read.
type VideoLookup struct {
	Video remote.Video
	Found bool
}

// Video subscribes to one catalog entry; an empty id disables the query.
func (s *Service) Video(id string) *query.Subscription[VideoLookup] {
	return query.Subscribe(s.cache, KeyVideo(id), func(ctx context.Context) (VideoLookup, error) {
		if s.collaborator == nil {
			return VideoLookup{}, nil
		}
		video, found, err := s.collaborator.GetVideo(ctx, id)
		if err != nil {
			return VideoLookup{}, err
		}
		return VideoLookup{Video: video, Found: found}, nil
	}, query.Options{Enabled: s.connected() && strings.TrimSpace(id) != ""})
}

// ProfileLookup is the tagged result of a profile read; Found distinguishes "no profile yet".
type ProfileLookup struct {
	Profile remote.Profile
	Found   bool
}

// CallerProfile subscribes to the caller's profile. Failures are surfaced without retry.
func (s *Service) CallerProfile() *query.Subscription[ProfileLookup] {
	return query.Subscribe(s.cache, KeyCallerProfile(), func(ctx context.Context) (ProfileLookup, error) {
		if s.collaborator == nil {
			return ProfileLookup{}, errors.New("catalog: collaborator not available")
		}
		profile, found, err := s.collaborator.CallerProfile(ctx)
		if err != nil {
			return ProfileLookup{}, err
		}
		return ProfileLookup{Profile: profile, Found: found}, nil
	}, query.Options{Enabled: s.connected() && s.session.Authenticated(), NoRetry: true})
}

// UserProfile subscribes to another identity's profile.
func (s *Service) UserProfile(identity string) *query.Subscription[ProfileLookup] {
	return query.Subscribe(s.cache, KeyUserProfile(identity), func(ctx context.Context) (ProfileLookup, error) {
		if s.collaborator == nil {
			return ProfileLookup{}, nil
		}
		profile, found, err := s.collaborator.UserProfile(ctx, identity)
		if err != nil {
			return ProfileLookup{}, err
		}
		return ProfileLookup{Profile: profile, Found: found}, nil
	}, query.Options{Enabled: s.connected() && strings.TrimSpace(identity) != ""})
}

// CallerRole subscribes to the caller's role.
func (s *Service) CallerRole() *query.Subscription[remote.Role] {
	return query.Subscribe(s.cache, KeyCallerRole(), func(ctx context.Context) (remote.Role, error) {
		if s.collaborator == nil {
			return remote.RoleGuest, nil
		}
		return s.callerRole(ctx)
	}, query.Options{Enabled: s.connected()})
}

// IsCallerAdmin subscribes to whether the caller holds the privileged role.
func (s *Service) IsCallerAdmin() *query.Subscription[bool] {
	return query.Subscribe(s.cache, KeyIsCallerAdmin(), func(ctx context.Context) (bool, error) {
		if s.collaborator == nil {
			return false, nil
		}
		role, err := s.callerRole(ctx)
		if err != nil {
			return false, err
		}
		return role.Privileged(), nil
	}, query.Options{Enabled: s.connected()})
}

func (s *Service) callerRole(ctx context.Context) (remote.Role, error) {
	value, err, shared := s.roleReads.Do(roleFlight, func() (any, error) {
		return s.collaborator.CallerRole(ctx)
	})
	if shared {
		s.logger.Debug("caller role read shared")
	}
	if err != nil {
		return remote.RoleGuest, err
	}
	return value.(remote.Role), nil
}

// FollowerCount subscribes to the follower count of identity; an empty identity disables it.
func (s *Service) FollowerCount(identity string) *query.Subscription[int64] {
	return query.Subscribe(s.cache, KeyFollowerCount(identity), func(ctx context.Context) (int64, error) {
		if s.collaborator == nil || identity == "" {
			return 0, nil
		}
		return s.collaborator.FollowerCount(ctx, identity)
	}, query.Options{Enabled: s.connected() && identity != ""})
}

// IsFollowing subscribes to whether the caller follows identity.
// It is enabled only for an authenticated caller and a known identity.
func (s *Service) IsFollowing(identity string) *query.Subscription[bool] {
	return query.Subscribe(s.cache, KeyIsFollowing(identity), func(ctx context.Context) (bool, error) {
		if s.collaborator == nil || identity == "" {
			return false, nil
		}
		return s.collaborator.IsFollowing(ctx, identity)
	}, query.Options{Enabled: s.connected() && s.session.Authenticated() && identity != ""})
}

func (s *Service) requireCollaborator() error {
	if s.collaborator == nil {
		return &remote.Error{Operation: "connect", Message: "collaborator not available"}
	}
	return nil
}

func (s *Service) saveProfile(ctx context.Context, profile remote.Profile) (struct{}, error) {
	if err := s.requireCollaborator(); err != nil {
		return struct{}{}, err
	}
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		return struct{}{}, fmt.Errorf("%w: empty", ErrInvalidDisplayName)
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return struct{}{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidDisplayName, maxDisplayNameLength)
	}
	return struct{}{}, s.collaborator.SaveCallerProfile(ctx, remote.Profile{Name: name})
}

func (s *Service) uploadVideo(ctx context.Context, args UploadVideoArgs) (string, error) {
	if err := s.requireCollaborator(); err != nil {
		return "", err
	}
	hosted, err := content.Transfer(ctx, args.File, s.collaborator, args.Progress)
	if err != nil {
		return "", err
	}
	return s.collaborator.UploadVideo(ctx, remote.VideoUpload{
		ID:              args.ID,
		Title:           args.Title,
		Description:     args.Description,
		DurationSeconds: args.DurationSeconds,
		File:            hosted,
	})
}

func (s *Service) uploadThumbnail(ctx context.Context, args ThumbnailArgs) (struct{}, error) {
	if err := s.requireCollaborator(); err != nil {
		return struct{}{}, err
	}
	hosted, err := content.Transfer(ctx, args.Image, s.collaborator, nil)
	if err != nil {
		return struct{}{}, err
	}
	return struct{}{}, s.collaborator.UploadThumbnail(ctx, args.VideoID, hosted)
}

func (s *Service) follow(ctx context.Context, target string) (bool, error) {
	if err := s.requireCollaborator(); err != nil {
		return false, err
	}
	return s.collaborator.Follow(ctx, target)
}

func (s *Service) unfollow(ctx context.Context, target string) (bool, error) {
	if err := s.requireCollaborator(); err != nil {
		return false, err
	}
	return s.collaborator.Unfollow(ctx, target)
}
