package remote

import (
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
)

// Wire payloads shared by the HTTP client and the reference API.

// VideoPayload is the JSON form of a catalog entry.
type VideoPayload struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds int64  `json:"duration_s"`
	UploadedAtUnix  int64  `json:"uploaded_at_s"`
	ViewCount       int64  `json:"view_count"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	FileURL         string `json:"file_url"`
}

// UploadVideoPayload is the body of a primary upload.
type UploadVideoPayload struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds int64  `json:"duration_s"`
	FileURL         string `json:"file_url"`
}

// UploadResultPayload is the tagged outcome of a primary upload.
type UploadResultPayload struct {
	OK    string `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// ThumbnailPayload is the body of a secondary upload.
type ThumbnailPayload struct {
	ThumbnailURL string `json:"thumbnail_url"`
}

// ProfilePayload is the JSON form of a profile.
type ProfilePayload struct {
	Name string `json:"name"`
}

// RolePayload reports the caller role.
type RolePayload struct {
	Role string `json:"role"`
}

// CountPayload reports a follower count.
type CountPayload struct {
	Count int64 `json:"count"`
}

// FollowingPayload reports whether the caller follows an identity.
type FollowingPayload struct {
	Following bool `json:"following"`
}

// ChangedPayload reports whether a follow mutation changed state.
type ChangedPayload struct {
	Changed bool `json:"changed"`
}

// ContentPayload reports where uploaded content is hosted.
type ContentPayload struct {
	URL string `json:"url"`
}

// ErrorPayload is returned for any non-2xx response.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewVideoPayload renders a video for the wire.
func NewVideoPayload(video Video) VideoPayload {
	payload := VideoPayload{
		ID:              video.ID,
		Title:           video.Title,
		Description:     video.Description,
		DurationSeconds: video.DurationSeconds,
		UploadedAtUnix:  video.UploadedAt.Unix(),
		ViewCount:       video.ViewCount,
		FileURL:         video.File.String(),
	}
	if video.Thumbnail != nil {
		payload.ThumbnailURL = video.Thumbnail.String()
	}
	return payload
}

// Video converts the payload into the domain projection.
func (p VideoPayload) Video() Video {
	video := Video{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		DurationSeconds: p.DurationSeconds,
		UploadedAt:      time.Unix(p.UploadedAtUnix, 0).UTC(),
		ViewCount:       p.ViewCount,
		File:            content.FromURL(p.FileURL),
	}
	if p.ThumbnailURL != "" {
		thumbnail := content.FromURL(p.ThumbnailURL)
		video.Thumbnail = &thumbnail
	}
	return video
}
