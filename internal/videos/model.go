package videos

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxIdentifierLength  = 190
	maxTitleLength       = 100
	maxDescriptionLength = 500
	maxAddressLength     = 1024

	// MinDurationSeconds and MaxDurationSeconds bound accepted videos.
	MinDurationSeconds = 10
	MaxDurationSeconds = 20
)

var (
	// ErrInvalidVideoID indicates that a video identifier is empty or exceeds storage bounds.
	ErrInvalidVideoID = errors.New("videos: invalid video id")
	// ErrInvalidCreatorID indicates that a creator identifier is empty or exceeds storage bounds.
	ErrInvalidCreatorID = errors.New("videos: invalid creator id")
	// ErrInvalidTitle indicates a blank or oversized title.
	ErrInvalidTitle = errors.New("videos: invalid title")
	// ErrInvalidDescription indicates an oversized description.
	ErrInvalidDescription = errors.New("videos: invalid description")
	// ErrInvalidDuration indicates a duration outside the accepted window.
	ErrInvalidDuration = errors.New("videos: invalid duration")
	// ErrInvalidAddress indicates a missing or oversized content address.
	ErrInvalidAddress = errors.New("videos: invalid content address")
	// ErrVideoNotFound indicates an unknown video id.
	ErrVideoNotFound = errors.New("videos: video not found")
	// ErrVideoExists indicates a caller-generated id that is already taken.
	ErrVideoExists = errors.New("videos: video already exists")
	// ErrContentNotFound indicates an unknown content blob.
	ErrContentNotFound = errors.New("videos: content not found")
	// ErrEmptyContent indicates an empty content upload.
	ErrEmptyContent = errors.New("videos: empty content")
)

// VideoID represents a validated video identifier.
type VideoID string

// NewVideoID validates raw input and returns a VideoID.
func NewVideoID(rawInput string) (VideoID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVideoID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidVideoID, maxIdentifierLength)
	}
	return VideoID(trimmed), nil
}

// String returns the underlying string identifier.
func (id VideoID) String() string {
	return string(id)
}

// CreatorID represents a validated creator identity.
type CreatorID string

// NewCreatorID validates raw input and returns a CreatorID.
func NewCreatorID(rawInput string) (CreatorID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCreatorID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCreatorID, maxIdentifierLength)
	}
	return CreatorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CreatorID) String() string {
	return string(id)
}

// Metadata holds the validated, user-editable fields of a video.
type Metadata struct {
	title       string
	description string
}

// NewMetadata trims and validates title and description.
func NewMetadata(title string, description string) (Metadata, error) {
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" {
		return Metadata{}, fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if utf8.RuneCountInString(trimmedTitle) > maxTitleLength {
		return Metadata{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxTitleLength)
	}
	trimmedDescription := strings.TrimSpace(description)
	if utf8.RuneCountInString(trimmedDescription) > maxDescriptionLength {
		return Metadata{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidDescription, maxDescriptionLength)
	}
	return Metadata{title: trimmedTitle, description: trimmedDescription}, nil
}

// Title returns the trimmed title.
func (m Metadata) Title() string {
	return m.title
}

// Description returns the trimmed description.
func (m Metadata) Description() string {
	return m.description
}

// DurationSeconds is a validated whole-second playback length.
type DurationSeconds int64

// NewDurationSeconds validates value against the accepted window.
func NewDurationSeconds(value int64) (DurationSeconds, error) {
	if value < MinDurationSeconds || value > MaxDurationSeconds {
		return 0, fmt.Errorf("%w: %d seconds (must be between %d and %d)", ErrInvalidDuration, value, MinDurationSeconds, MaxDurationSeconds)
	}
	return DurationSeconds(value), nil
}

// Int64 returns the underlying value.
func (d DurationSeconds) Int64() int64 {
	return int64(d)
}

// ContentAddress is a validated hosted content address.
type ContentAddress string

// NewContentAddress validates raw input and returns a ContentAddress.
func NewContentAddress(rawInput string) (ContentAddress, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if len(trimmed) > maxAddressLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAddress, maxAddressLength)
	}
	return ContentAddress(trimmed), nil
}

// String returns the underlying address.
func (a ContentAddress) String() string {
	return string(a)
}

// CreateVideoRequest is a validated primary upload.
type CreateVideoRequest struct {
	VideoID   VideoID
	CreatorID CreatorID
	Metadata  Metadata
	Duration  DurationSeconds
	File      ContentAddress
}

// Video is the persisted catalog entry.
type Video struct {
	VideoID           string `gorm:"column:video_id;primaryKey;size:190;not null"`
	CreatorID         string `gorm:"column:creator_id;size:190;not null;index"`
	Title             string `gorm:"column:title;size:400;not null"`
	Description       string `gorm:"column:description;type:text;not null"`
	DurationSeconds   int64  `gorm:"column:duration_s;not null"`
	UploadedAtSeconds int64  `gorm:"column:uploaded_at_s;not null;index"`
	ViewCount         int64  `gorm:"column:view_count;not null;default:0"`
	FileURL           string `gorm:"column:file_url;size:1024;not null"`
	ThumbnailURL      string `gorm:"column:thumbnail_url;size:1024;not null;default:''"`
}

// TableName binds the model to the videos table.
func (Video) TableName() string {
	return "videos"
}

// ContentBlob stores uploaded bytes until they are served back by address.
type ContentBlob struct {
	BlobID           string `gorm:"column:blob_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index"`
	MediaType        string `gorm:"column:media_type;size:128;not null"`
	SizeBytes        int64  `gorm:"column:size_bytes;not null"`
	Data             []byte `gorm:"column:data;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName binds the model to the content_blobs table.
func (ContentBlob) TableName() string {
	return "content_blobs"
}
