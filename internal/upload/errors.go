package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType indicates a selected file of the wrong media type.
	ErrUnsupportedType = errors.New("upload: unsupported media type")
	// ErrDurationOutOfRange indicates a video outside the accepted duration window.
	ErrDurationOutOfRange = errors.New("upload: duration out of range")
	// ErrUnreadableMedia indicates the duration of the selected video could not be measured.
	ErrUnreadableMedia = errors.New("upload: unreadable media")
	// ErrMissingTitle indicates a blank title at submission.
	ErrMissingTitle = errors.New("upload: title is required")
	// ErrFieldTooLong indicates a title or description over its limit.
	ErrFieldTooLong = errors.New("upload: field too long")
	// ErrMissingFile indicates submission without a validated video.
	ErrMissingFile = errors.New("upload: validated video is required")
	// ErrInvalidSelection indicates submission while a validation error is outstanding.
	ErrInvalidSelection = errors.New("upload: selection has a validation error")
	// ErrBusy indicates an operation attempted while an upload is running.
	ErrBusy = errors.New("upload: upload in progress")
	// ErrNotFinished indicates acknowledgment of a draft that has not reached a terminal state.
	ErrNotFinished = errors.New("upload: draft is not finished")
	// ErrAwaitingAcknowledgment indicates a change to a succeeded draft before it was acknowledged.
	ErrAwaitingAcknowledgment = errors.New("upload: draft succeeded and awaits acknowledgment")

	errMissingCatalog = errors.New("upload: catalog service is required")
	errMissingProber  = errors.New("upload: media prober is required")
)

// Field names a draft field an error is attached to.
type Field string

const (
	FieldFile        Field = "file"
	FieldThumbnail   Field = "thumbnail"
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
)

// ValidationError is detected locally and never reaches the collaborator.
type ValidationError struct {
	Field   Field
	Reason  error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func newValidationError(field Field, reason error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Stage identifies which transfer of a submission failed.
type Stage string

const (
	StagePrimary   Stage = "primary"
	StageSecondary Stage = "secondary"
)

// TransferError is a collaborator failure during submission. It is never retried automatically.
type TransferError struct {
	Stage Stage
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s upload failed: %v", e.Stage, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
