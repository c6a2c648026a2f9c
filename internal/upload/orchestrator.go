package upload

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/fanreel/internal/catalog"
	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
	"github.com/MarcoPoloResearchLab/fanreel/internal/media"
	"go.uber.org/zap"
)

const (
	// MinDuration and MaxDuration bound accepted videos, both inclusive.
	MinDuration = 10 * time.Second
	MaxDuration = 20 * time.Second

	maxTitleLength       = 100
	maxDescriptionLength = 500
)

// State is a step of the upload lifecycle.
type State int

const (
	StateIdle State = iota
	StateSelected
	StateValidating
	StateValidated
	StateUploadingPrimary
	StateUploadingSecondary
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSelected:
		return "selected"
	case StateValidating:
		return "validating"
	case StateValidated:
		return "validated"
	case StateUploadingPrimary:
		return "uploading_primary"
	case StateUploadingSecondary:
		return "uploading_secondary"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (s State) uploading() bool {
	return s == StateUploadingPrimary || s == StateUploadingSecondary
}

// Draft is a snapshot of the upload being composed.
type Draft struct {
	State       State
	Title       string
	Description string

	FileName    string
	FileType    string
	FileSize    int64
	HasFile     bool
	Duration    time.Duration
	HasDuration bool

	ThumbnailName string
	ThumbnailType string
	HasThumbnail  bool

	// Err is the validation or transfer error attached to the draft.
	Err error
	// Warning is set when the video was uploaded but its thumbnail was not.
	Warning  string
	Progress int
	VideoID  string
}

// SucceededWithWarning reports a qualified success.
func (d Draft) SucceededWithWarning() bool {
	return d.State == StateSucceeded && d.Warning != ""
}

// Result describes a completed submission.
type Result struct {
	VideoID string
	// ThumbnailErr is the non-fatal secondary failure, if any.
	ThumbnailErr error
	Warning      string
}

// Config describes the dependencies of an Orchestrator.
type Config struct {
	Catalog    *catalog.Service
	Prober     media.Prober
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Orchestrator validates a candidate video and drives its two-phase upload.
type Orchestrator struct {
	catalog    *catalog.Service
	prober     media.Prober
	idProvider IDProvider
	logger     *zap.Logger

	mu        sync.Mutex
	draft     Draft
	file      []byte
	thumbnail []byte
	invalid   bool
	// thumbnailInvalid holds a rejected thumbnail selection until it is replaced or removed.
	thumbnailInvalid bool
	generation       uint64
	changed          chan struct{}
}

// NewOrchestrator constructs an Orchestrator with an empty draft.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		return nil, errMissingCatalog
	}
	if cfg.Prober == nil {
		return nil, errMissingProber
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		catalog:    cfg.Catalog,
		prober:     cfg.Prober,
		idProvider: idProvider,
		logger:     logger,
		changed:    make(chan struct{}, 1),
	}, nil
}

// Draft returns the current draft.
func (o *Orchestrator) Draft() Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft
}

// Changed signals after the draft changes. Signals coalesce.
func (o *Orchestrator) Changed() <-chan struct{} {
	return o.changed
}

// editableLocked reports whether the draft accepts changes.
func (o *Orchestrator) editableLocked() error {
	switch {
	case o.draft.State.uploading():
		return ErrBusy
	case o.draft.State == StateSucceeded:
		return ErrAwaitingAcknowledgment
	default:
		return nil
	}
}

func (o *Orchestrator) notifyLocked() {
	select {
	case o.changed <- struct{}{}:
	default:
	}
}

// SelectVideo replaces the candidate video and measures its duration.
// A non-video file is rejected without entering validation and discards the previous selection.
func (o *Orchestrator) SelectVideo(ctx context.Context, name string, declaredType string, data []byte) error {
	mediaType := media.DetectType(data, declaredType)

	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if !media.IsVideo(mediaType) {
		err := newValidationError(FieldFile, ErrUnsupportedType, "please select a valid video file (got %s)", mediaType)
		o.generation++
		o.file = nil
		o.invalid = true
		o.draft.State = StateIdle
		o.draft.FileName = ""
		o.draft.FileType = ""
		o.draft.FileSize = 0
		o.draft.HasFile = false
		o.draft.Duration = 0
		o.draft.HasDuration = false
		o.draft.Progress = 0
		o.draft.VideoID = ""
		o.draft.Err = err
		o.notifyLocked()
		o.mu.Unlock()
		return err
	}

	o.generation++
	generation := o.generation
	o.file = nil
	o.invalid = false
	o.draft.State = StateSelected
	o.draft.FileName = name
	o.draft.FileType = mediaType
	o.draft.FileSize = int64(len(data))
	o.draft.HasFile = false
	o.draft.Duration = 0
	o.draft.HasDuration = false
	o.draft.Err = nil
	o.draft.Warning = ""
	o.draft.Progress = 0
	o.draft.VideoID = ""
	o.draft.State = StateValidating
	o.notifyLocked()
	o.mu.Unlock()

	duration, probeErr := o.prober.Probe(ctx, data)

	o.mu.Lock()
	defer o.mu.Unlock()
	if generation != o.generation {
		// A newer selection or reset superseded this one.
		return nil
	}
	defer o.notifyLocked()

	if probeErr != nil {
		o.logger.Warn("video probe failed", zap.String("file", name), zap.Error(probeErr))
		err := newValidationError(FieldFile, ErrUnreadableMedia, "could not read video metadata; please try a different file")
		o.invalid = true
		o.draft.State = StateFailed
		o.draft.Err = err
		return err
	}

	o.draft.Duration = duration
	o.draft.HasDuration = true
	if err := checkDuration(duration); err != nil {
		o.invalid = true
		o.draft.State = StateFailed
		o.draft.Err = err
		return err
	}

	o.file = data
	o.draft.HasFile = true
	o.draft.State = StateValidated
	return nil
}

func checkDuration(duration time.Duration) error {
	seconds := duration.Seconds()
	switch {
	case duration < MinDuration:
		return newValidationError(FieldFile, ErrDurationOutOfRange,
			"video is too short (%.1fs); videos must be between 10 and 20 seconds long", seconds)
	case duration > MaxDuration:
		return newValidationError(FieldFile, ErrDurationOutOfRange,
			"video is too long (%.1fs); videos must be between 10 and 20 seconds long", seconds)
	default:
		return nil
	}
}

// SelectThumbnail attaches an optional thumbnail. The type is checked here, not at submission.
// A rejected image discards the previous thumbnail and blocks submission until replaced or removed.
func (o *Orchestrator) SelectThumbnail(name string, declaredType string, data []byte) error {
	mediaType := media.DetectType(data, declaredType)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editableLocked(); err != nil {
		return err
	}
	defer o.notifyLocked()
	if !media.IsThumbnail(mediaType) {
		err := newValidationError(FieldThumbnail, ErrUnsupportedType, "please select a JPEG, PNG, or WebP image (got %s)", mediaType)
		o.thumbnail = nil
		o.thumbnailInvalid = true
		o.draft.ThumbnailName = ""
		o.draft.ThumbnailType = ""
		o.draft.HasThumbnail = false
		o.draft.Err = err
		return err
	}
	o.clearThumbnailErrLocked()
	o.thumbnail = data
	o.draft.ThumbnailName = name
	o.draft.ThumbnailType = mediaType
	o.draft.HasThumbnail = true
	return nil
}

func (o *Orchestrator) clearThumbnailErrLocked() {
	o.thumbnailInvalid = false
	var validationErr *ValidationError
	if errors.As(o.draft.Err, &validationErr) && validationErr.Field == FieldThumbnail {
		o.draft.Err = nil
	}
}

// RemoveThumbnail detaches the thumbnail.
func (o *Orchestrator) RemoveThumbnail() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editableLocked(); err != nil {
		return err
	}
	o.clearThumbnailErrLocked()
	o.thumbnail = nil
	o.draft.ThumbnailName = ""
	o.draft.ThumbnailType = ""
	o.draft.HasThumbnail = false
	o.notifyLocked()
	return nil
}

// SetTitle updates the title.
func (o *Orchestrator) SetTitle(title string) error {
	if utf8.RuneCountInString(strings.TrimSpace(title)) > maxTitleLength {
		return newValidationError(FieldTitle, ErrFieldTooLong, "title must be at most %d characters", maxTitleLength)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editableLocked(); err != nil {
		return err
	}
	o.draft.Title = title
	o.notifyLocked()
	return nil
}

// SetDescription updates the description.
func (o *Orchestrator) SetDescription(description string) error {
	if utf8.RuneCountInString(strings.TrimSpace(description)) > maxDescriptionLength {
		return newValidationError(FieldDescription, ErrFieldTooLong, "description must be at most %d characters", maxDescriptionLength)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editableLocked(); err != nil {
		return err
	}
	o.draft.Description = description
	o.notifyLocked()
	return nil
}

// Submit uploads the validated video and then the thumbnail, if any. It blocks until both finish.
// Only a Validated draft, or one that Failed in transfer, can be submitted.
// Transfers outlive ctx cancellation; only Abandon stops progress from reaching the draft.
func (o *Orchestrator) Submit(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return Result{}, err
	}
	title := strings.TrimSpace(o.draft.Title)
	description := strings.TrimSpace(o.draft.Description)
	var rejection error
	switch {
	case title == "":
		rejection = newValidationError(FieldTitle, ErrMissingTitle, "please enter a video title")
	case o.invalid:
		rejection = newValidationError(FieldFile, ErrInvalidSelection, "please select a valid video between 10 and 20 seconds long")
	case o.thumbnailInvalid:
		rejection = newValidationError(FieldThumbnail, ErrInvalidSelection, "please select a valid thumbnail or remove it")
	case !o.draft.HasFile || o.file == nil || !o.submittableLocked():
		rejection = newValidationError(FieldFile, ErrMissingFile, "please select a valid video file")
	}
	if rejection != nil {
		o.mu.Unlock()
		return Result{}, rejection
	}

	videoID, err := o.idProvider.NewID()
	if err != nil {
		o.mu.Unlock()
		return Result{}, err
	}

	o.generation++
	generation := o.generation
	file := o.file
	thumbnail := o.thumbnail
	durationSeconds := int64(math.Round(o.draft.Duration.Seconds()))
	o.draft.State = StateUploadingPrimary
	o.draft.Err = nil
	o.draft.Warning = ""
	o.draft.Progress = 0
	o.draft.VideoID = videoID
	o.notifyLocked()
	o.mu.Unlock()

	transferCtx := context.WithoutCancel(ctx)
	_, err = o.catalog.UploadVideo.Run(transferCtx, catalog.UploadVideoArgs{
		ID:              videoID,
		Title:           title,
		Description:     description,
		DurationSeconds: durationSeconds,
		File:            content.FromBytes(file),
		Progress: func(percentage int) {
			o.reflectProgress(generation, percentage)
		},
	})
	if err != nil {
		transferErr := &TransferError{Stage: StagePrimary, Err: err}
		o.logger.Error("video upload failed", zap.String("video_id", videoID), zap.Error(err))
		o.mu.Lock()
		if generation == o.generation {
			o.draft.State = StateFailed
			o.draft.Err = transferErr
			o.draft.Progress = 0
			o.draft.VideoID = ""
			o.notifyLocked()
		}
		o.mu.Unlock()
		return Result{}, transferErr
	}

	result := Result{VideoID: videoID}
	if thumbnail != nil {
		o.mu.Lock()
		if generation == o.generation {
			o.draft.State = StateUploadingSecondary
			o.notifyLocked()
		}
		o.mu.Unlock()

		_, err := o.catalog.UploadThumbnail.Run(transferCtx, catalog.ThumbnailArgs{
			VideoID: videoID,
			Image:   content.FromBytes(thumbnail),
		})
		if err != nil {
			o.logger.Warn("thumbnail upload failed", zap.String("video_id", videoID), zap.Error(err))
			result.ThumbnailErr = &TransferError{Stage: StageSecondary, Err: err}
			result.Warning = "video uploaded but thumbnail upload failed"
		}
	}

	o.mu.Lock()
	if generation == o.generation {
		o.draft.State = StateSucceeded
		o.draft.Warning = result.Warning
		o.draft.Progress = 100
		o.notifyLocked()
	}
	o.mu.Unlock()
	o.logger.Info("video uploaded",
		zap.String("video_id", videoID),
		zap.Bool("thumbnail", thumbnail != nil && result.ThumbnailErr == nil))
	return result, nil
}

func (o *Orchestrator) submittableLocked() bool {
	switch o.draft.State {
	case StateValidated:
		return true
	case StateFailed:
		// Validation failures drop the file, so a kept file means the transfer failed.
		return o.file != nil
	default:
		return false
	}
}

func (o *Orchestrator) reflectProgress(generation uint64, percentage int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if generation != o.generation || o.draft.State != StateUploadingPrimary {
		return
	}
	if percentage <= o.draft.Progress {
		return
	}
	o.draft.Progress = percentage
	o.notifyLocked()
}

// Acknowledge resets a succeeded or failed draft to Idle.
func (o *Orchestrator) Acknowledge() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.draft.State != StateSucceeded && o.draft.State != StateFailed {
		return ErrNotFinished
	}
	o.resetLocked()
	return nil
}

// Abandon discards the draft. A running transfer continues but no longer updates the draft.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.generation++
	o.file = nil
	o.thumbnail = nil
	o.invalid = false
	o.thumbnailInvalid = false
	o.draft = Draft{}
	o.notifyLocked()
}

// IsValidation reports whether err was detected locally.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
