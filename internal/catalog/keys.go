package catalog

import "github.com/MarcoPoloResearchLab/fanreel/internal/query"

const (
	keyVideos        = "videos"
	keyVideo         = "video"
	keyCallerProfile = "currentUserProfile"
	keyCallerRole    = "currentUserRole"
	keyIsCallerAdmin = "isCallerAdmin"
	keyFollowerCount = "followerCount"
	keyIsFollowing   = "isFollowing"
	keyUserProfile   = "userProfile"
)

// KeyVideos addresses the catalog listing.
func KeyVideos() query.Key { return query.NewKey(keyVideos) }

// KeyVideo addresses one catalog entry.
func KeyVideo(id string) query.Key { return query.NewKey(keyVideo, id) }

// KeyCallerProfile addresses the caller's own profile.
func KeyCallerProfile() query.Key { return query.NewKey(keyCallerProfile) }

// KeyCallerRole addresses the caller's role.
func KeyCallerRole() query.Key { return query.NewKey(keyCallerRole) }

// KeyIsCallerAdmin addresses the caller's privileged flag.
func KeyIsCallerAdmin() query.Key { return query.NewKey(keyIsCallerAdmin) }

// KeyUserProfile addresses another identity's profile.
func KeyUserProfile(identity string) query.Key { return query.NewKey(keyUserProfile, identity) }

// KeyFollowerCount addresses the follower count of identity.
func KeyFollowerCount(identity string) query.Key { return query.NewKey(keyFollowerCount, identity) }

// KeyIsFollowing addresses whether the caller follows identity.
func KeyIsFollowing(identity string) query.Key { return query.NewKey(keyIsFollowing, identity) }
