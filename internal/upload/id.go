package upload

import "github.com/google/uuid"

const videoIDPrefix = "video_"

// IDProvider issues identifiers for new videos.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues prefixed UUIDv7 identifiers.
// Identifiers are not checked for collisions.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return videoIDPrefix + value.String(), nil
}
