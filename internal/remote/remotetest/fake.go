// Package remotetest provides an in-memory remote.Collaborator for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
)

// Operation names accepted by Fail and Calls.
const (
	OpPut               = "put"
	OpListVideos        = "list_videos"
	OpGetVideo          = "get_video"
	OpCallerProfile     = "caller_profile"
	OpUserProfile       = "user_profile"
	OpSaveCallerProfile = "save_caller_profile"
	OpCallerRole        = "caller_role"
	OpFollowerCount     = "follower_count"
	OpIsFollowing       = "is_following"
	OpFollow            = "follow"
	OpUnfollow          = "unfollow"
	OpUploadVideo       = "upload_video"
	OpUploadThumbnail   = "upload_thumbnail"
)

// Fake is a thread-safe in-memory collaborator acting on behalf of one caller.
type Fake struct {
	mu       sync.Mutex
	identity string
	role     remote.Role
	videos   map[string]remote.Video
	profiles map[string]remote.Profile
	follows  map[string]map[string]bool
	blobs    map[string][]byte
	failures map[string]error
	calls    map[string]int
	putGate  chan struct{}
	chunk    int
}

// NewFake constructs a collaborator for identity with the given role.
func NewFake(identity string, role remote.Role) *Fake {
	return &Fake{
		identity: identity,
		role:     role,
		videos:   make(map[string]remote.Video),
		profiles: make(map[string]remote.Profile),
		follows:  make(map[string]map[string]bool),
		blobs:    make(map[string][]byte),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		chunk:    1024,
	}
}

// Fail makes every later call of operation return err; a nil err clears it.
func (f *Fake) Fail(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, operation)
		return
	}
	f.failures[operation] = err
}

// Calls returns how many times operation was invoked.
func (f *Fake) Calls(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

// SetRole changes the caller's role.
func (f *Fake) SetRole(role remote.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.role = role
}

// SetProfile stores a profile for identity.
func (f *Fake) SetProfile(identity string, profile remote.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[identity] = profile
}

// AddVideo stores a catalog entry.
func (f *Fake) AddVideo(video remote.Video) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[video.ID] = video
}

// AddFollower records follower as following target.
func (f *Fake) AddFollower(target string, follower string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followersLocked(target)[follower] = true
}

// Video returns a stored entry.
func (f *Fake) Video(id string) (remote.Video, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[id]
	return video, ok
}

// Blob returns the bytes stored under a hosted address.
func (f *Fake) Blob(address string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[address]
	return data, ok
}

// HoldPuts makes Put block after reading its body until the returned release is called.
func (f *Fake) HoldPuts() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.putGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

func (f *Fake) enter(operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[operation]++
	return f.failures[operation]
}

func (f *Fake) followersLocked(target string) map[string]bool {
	followers, ok := f.follows[target]
	if !ok {
		followers = make(map[string]bool)
		f.follows[target] = followers
	}
	return followers
}

// Put stores body and returns its hosted address.
func (f *Fake) Put(ctx context.Context, body io.Reader, size int64) (string, error) {
	if err := f.enter(OpPut); err != nil {
		return "", err
	}
	buffer := make([]byte, f.chunk)
	var data []byte
	for {
		n, err := body.Read(buffer)
		data = append(data, buffer[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	gate := f.putGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	address := fmt.Sprintf("https://content.test/blobs/%d", len(f.blobs)+1)
	f.blobs[address] = data
	return address, nil
}

func (f *Fake) ListVideos(ctx context.Context) ([]remote.Video, error) {
	if err := f.enter(OpListVideos); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	videos := make([]remote.Video, 0, len(f.videos))
	for _, video := range f.videos {
		videos = append(videos, video)
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].UploadedAt.After(videos[j].UploadedAt)
	})
	return videos, nil
}

func (f *Fake) GetVideo(ctx context.Context, id string) (remote.Video, bool, error) {
	if err := f.enter(OpGetVideo); err != nil {
		return remote.Video{}, false, err
	}
	video, ok := f.Video(id)
	return video, ok, nil
}

func (f *Fake) CallerProfile(ctx context.Context) (remote.Profile, bool, error) {
	if err := f.enter(OpCallerProfile); err != nil {
		return remote.Profile{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[f.identity]
	return profile, ok, nil
}

func (f *Fake) UserProfile(ctx context.Context, identity string) (remote.Profile, bool, error) {
	if err := f.enter(OpUserProfile); err != nil {
		return remote.Profile{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[identity]
	return profile, ok, nil
}

func (f *Fake) SaveCallerProfile(ctx context.Context, profile remote.Profile) error {
	if err := f.enter(OpSaveCallerProfile); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[f.identity] = profile
	return nil
}

func (f *Fake) CallerRole(ctx context.Context) (remote.Role, error) {
	if err := f.enter(OpCallerRole); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role, nil
}

func (f *Fake) FollowerCount(ctx context.Context, identity string) (int64, error) {
	if err := f.enter(OpFollowerCount); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.follows[identity])), nil
}

func (f *Fake) IsFollowing(ctx context.Context, identity string) (bool, error) {
	if err := f.enter(OpIsFollowing); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.follows[identity][f.identity], nil
}

func (f *Fake) Follow(ctx context.Context, identity string) (bool, error) {
	if err := f.enter(OpFollow); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	followers := f.followersLocked(identity)
	if followers[f.identity] {
		return false, nil
	}
	followers[f.identity] = true
	return true, nil
}

func (f *Fake) Unfollow(ctx context.Context, identity string) (bool, error) {
	if err := f.enter(OpUnfollow); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	followers := f.followersLocked(identity)
	if !followers[f.identity] {
		return false, nil
	}
	delete(followers, f.identity)
	return true, nil
}

func (f *Fake) UploadVideo(ctx context.Context, upload remote.VideoUpload) (string, error) {
	if err := f.enter(OpUploadVideo); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if upload.ID == "" {
		return "", &remote.Error{Operation: OpUploadVideo, Status: 400, Message: "video id is required"}
	}
	if _, exists := f.videos[upload.ID]; exists {
		return "", &remote.Error{Operation: OpUploadVideo, Status: 409, Message: "video already exists"}
	}
	f.videos[upload.ID] = remote.Video{
		ID:              upload.ID,
		Title:           upload.Title,
		Description:     upload.Description,
		DurationSeconds: upload.DurationSeconds,
		File:            upload.File,
	}
	return upload.ID, nil
}

func (f *Fake) UploadThumbnail(ctx context.Context, videoID string, thumbnail content.Pointer) error {
	if err := f.enter(OpUploadThumbnail); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[videoID]
	if !ok {
		return &remote.Error{Operation: OpUploadThumbnail, Status: 404, Message: "video not found"}
	}
	video.Thumbnail = &thumbnail
	f.videos[videoID] = video
	return nil
}

var _ remote.Collaborator = (*Fake)(nil)
