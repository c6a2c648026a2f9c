package media

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const fallbackType = "application/octet-stream"

var thumbnailTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// ThumbnailTypes lists the accepted thumbnail media types.
func ThumbnailTypes() []string {
	return []string{"image/jpeg", "image/png", "image/webp"}
}

// DetectType sniffs data and falls back to the declared type when the content is not recognized.
func DetectType(data []byte, declared string) string {
	detected := normalize(mimetype.Detect(data).String())
	if detected != "" && detected != fallbackType {
		return detected
	}
	if normalizedDeclared := normalize(declared); normalizedDeclared != "" {
		return normalizedDeclared
	}
	return fallbackType
}

// IsVideo reports whether mediaType is a video type.
func IsVideo(mediaType string) bool {
	return strings.HasPrefix(normalize(mediaType), "video/")
}

// IsThumbnail reports whether mediaType is an accepted thumbnail type.
func IsThumbnail(mediaType string) bool {
	_, ok := thumbnailTypes[normalize(mediaType)]
	return ok
}

func normalize(mediaType string) string {
	trimmed := strings.TrimSpace(mediaType)
	if trimmed == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	return parsed
}
