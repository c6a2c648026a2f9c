package videos

import (
	"strings"

	"github.com/google/uuid"
)

const blobIDPrefix = "blob_"

// BlobIDProvider names stored content blobs with time-ordered identifiers.
type BlobIDProvider struct{}

// NewBlobIDProvider returns the provider the API server uses for content blobs.
func NewBlobIDProvider() IDProvider {
	return BlobIDProvider{}
}

// NewID returns "blob_" followed by the hex form of a UUIDv7.
func (BlobIDProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return blobIDPrefix + strings.ReplaceAll(value.String(), "-", ""), nil
}
