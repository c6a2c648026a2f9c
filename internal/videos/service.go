package videos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "videos.service.new"
	opListVideos    = "videos.list"
	opGetVideo      = "videos.get"
	opCreateVideo   = "videos.create"
	opSetThumbnail  = "videos.set_thumbnail"
	opRecordView    = "videos.record_view"
	opStoreContent  = "videos.store_content"
	opLoadContent   = "videos.load_content"
	defaultListSize = 200
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service persists the catalog and the content blobs it references.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewBlobIDProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// ListVideos returns the catalog, newest first.
func (s *Service) ListVideos(ctx context.Context) ([]Video, error) {
	var videos []Video
	err := s.db.WithContext(ctx).
		Order("uploaded_at_s DESC").
		Order("video_id ASC").
		Limit(defaultListSize).
		Find(&videos).Error
	if err != nil {
		s.logError(opListVideos, "query_failed", err)
		return nil, newServiceError(opListVideos, "query_failed", err)
	}
	return videos, nil
}

// GetVideo returns the entry for id; found is false when it does not exist.
func (s *Service) GetVideo(ctx context.Context, id VideoID) (Video, bool, error) {
	var video Video
	err := s.db.WithContext(ctx).Where("video_id = ?", id.String()).Take(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Video{}, false, nil
	}
	if err != nil {
		s.logError(opGetVideo, "query_failed", err, zap.String("video_id", id.String()))
		return Video{}, false, newServiceError(opGetVideo, "query_failed", err)
	}
	return video, true, nil
}

// CreateVideo inserts a new catalog entry. Ids are caller-generated; a taken id fails with ErrVideoExists.
func (s *Service) CreateVideo(ctx context.Context, request CreateVideoRequest) (Video, error) {
	video := Video{
		VideoID:           request.VideoID.String(),
		CreatorID:         request.CreatorID.String(),
		Title:             request.Metadata.Title(),
		Description:       request.Metadata.Description(),
		DurationSeconds:   request.Duration.Int64(),
		UploadedAtSeconds: s.clock().UTC().Unix(),
		FileURL:           request.File.String(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Video
		err := tx.Where("video_id = ?", video.VideoID).Take(&existing).Error
		if err == nil {
			return newServiceError(opCreateVideo, "duplicate_id", ErrVideoExists)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opCreateVideo, "select_failed", err, zap.String("video_id", video.VideoID))
			return newServiceError(opCreateVideo, "select_failed", err)
		}
		if err := tx.Create(&video).Error; err != nil {
			s.logError(opCreateVideo, "insert_failed", err, zap.String("video_id", video.VideoID))
			return newServiceError(opCreateVideo, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Video{}, txErr
	}

	s.logger.Info("video created",
		zap.String("video_id", video.VideoID),
		zap.String("creator_id", video.CreatorID),
		zap.Int64("duration_s", video.DurationSeconds))
	return video, nil
}

// SetThumbnail attaches a thumbnail address to an existing entry.
func (s *Service) SetThumbnail(ctx context.Context, id VideoID, thumbnail ContentAddress) error {
	result := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("video_id = ?", id.String()).
		Update("thumbnail_url", thumbnail.String())
	if result.Error != nil {
		s.logError(opSetThumbnail, "update_failed", result.Error, zap.String("video_id", id.String()))
		return newServiceError(opSetThumbnail, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opSetThumbnail, "not_found", ErrVideoNotFound)
	}
	return nil
}

// RecordView increments the view counter of an entry.
func (s *Service) RecordView(ctx context.Context, id VideoID) error {
	result := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("video_id = ?", id.String()).
		Update("view_count", gorm.Expr("view_count + ?", 1))
	if result.Error != nil {
		s.logError(opRecordView, "update_failed", result.Error, zap.String("video_id", id.String()))
		return newServiceError(opRecordView, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opRecordView, "not_found", ErrVideoNotFound)
	}
	return nil
}

// StoreContent persists uploaded bytes and returns the blob id.
func (s *Service) StoreContent(ctx context.Context, owner CreatorID, mediaType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", newServiceError(opStoreContent, "empty_content", ErrEmptyContent)
	}
	blobID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opStoreContent, "id_generation_failed", err)
		return "", newServiceError(opStoreContent, "id_generation_failed", err)
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	blob := ContentBlob{
		BlobID:           blobID,
		OwnerID:          owner.String(),
		MediaType:        mediaType,
		SizeBytes:        int64(len(data)),
		Data:             data,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&blob).Error; err != nil {
		s.logError(opStoreContent, "insert_failed", err, zap.String("blob_id", blobID))
		return "", newServiceError(opStoreContent, "insert_failed", err)
	}
	return blobID, nil
}

// LoadContent returns a stored blob.
func (s *Service) LoadContent(ctx context.Context, blobID string) (ContentBlob, error) {
	var blob ContentBlob
	err := s.db.WithContext(ctx).Where("blob_id = ?", strings.TrimSpace(blobID)).Take(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ContentBlob{}, newServiceError(opLoadContent, "not_found", ErrContentNotFound)
	}
	if err != nil {
		s.logError(opLoadContent, "query_failed", err, zap.String("blob_id", blobID))
		return ContentBlob{}, newServiceError(opLoadContent, "query_failed", err)
	}
	return blob, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("videos service error", attrs...)
}
