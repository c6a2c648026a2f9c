package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/MarcoPoloResearchLab/fanreel/internal/users"
	"github.com/MarcoPoloResearchLab/fanreel/internal/videos"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "fanreel_user_id"

	defaultMaxContentBytes   = 256 << 20
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingVideoService  = errors.New("video service dependency required")
	errMissingUserService   = errors.New("user service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenValidator resolves a bearer token into the caller identity.
type SessionTokenValidator interface {
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TokenManager SessionTokenValidator
	Videos       *videos.Service
	Users        *users.Service
	Events       *EventHub
	Metrics      *Metrics
	// PublicBaseURL prefixes content addresses; the request host is used when empty.
	PublicBaseURL     string
	MaxContentBytes   int64
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Videos == nil {
		return nil, errMissingVideoService
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventHub()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	maxContent := deps.MaxContentBytes
	if maxContent <= 0 {
		maxContent = defaultMaxContentBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(metrics.middleware())

	handler := &httpHandler{
		tokens:          deps.TokenManager,
		videos:          deps.Videos,
		users:           deps.Users,
		events:          events,
		metrics:         metrics,
		publicBaseURL:   strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		maxContentBytes: maxContent,
		heartbeat:       heartbeat,
		logger:          logger,
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/content/:id", handler.handleGetContent)

	api := router.Group("/")
	api.Use(handler.authorizeRequest)
	api.GET("/videos", handler.handleListVideos)
	api.GET("/videos/:id", handler.handleGetVideo)
	api.POST("/videos/:id/views", handler.handleRecordView)
	api.GET("/role", handler.handleCallerRole)
	api.GET("/users/:id/profile", handler.handleUserProfile)
	api.GET("/users/:id/followers", handler.handleFollowerCount)
	api.GET("/users/:id/following", handler.handleIsFollowing)
	api.GET("/events", handler.handleEventStream)

	member := api.Group("/")
	member.Use(handler.requireIdentity)
	member.GET("/profile", handler.handleCallerProfile)
	member.PUT("/profile", handler.handleSaveProfile)
	member.POST("/users/:id/follow", handler.handleFollow)
	member.DELETE("/users/:id/follow", handler.handleUnfollow)

	creator := member.Group("/")
	creator.Use(handler.requireAdmin)
	creator.PUT("/content", handler.handlePutContent)
	creator.POST("/videos", handler.handleCreateVideo)
	creator.POST("/videos/:id/thumbnail", handler.handleSetThumbnail)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	})
}

type httpHandler struct {
	tokens          SessionTokenValidator
	videos          *videos.Service
	users           *users.Service
	events          *EventHub
	metrics         *Metrics
	publicBaseURL   string
	maxContentBytes int64
	heartbeat       time.Duration
	logger          *zap.Logger
}

func (h *httpHandler) handleListVideos(c *gin.Context) {
	entries, err := h.videos.ListVideos(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	response := make([]remote.VideoPayload, 0, len(entries))
	for _, entry := range entries {
		response = append(response, videoPayload(entry))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetVideo(c *gin.Context) {
	videoID, err := videos.NewVideoID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, found, err := h.videos.GetVideo(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": videos.ErrVideoNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, videoPayload(entry))
}

func (h *httpHandler) handleRecordView(c *gin.Context) {
	videoID, err := videos.NewVideoID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.videos.RecordView(c.Request.Context(), videoID); err != nil {
		h.respondVideoError(c, err)
		return
	}
	h.events.Publish(CatalogEvent{EventType: EventVideoChanged, VideoIDs: []string{videoID.String()}})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreateVideo(c *gin.Context) {
	var request remote.UploadVideoPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	createRequest, err := h.newCreateVideoRequest(c.GetString(userIDContextKey), request)
	if err != nil {
		h.metrics.observeUpload("video", "rejected")
		c.JSON(http.StatusUnprocessableEntity, remote.UploadResultPayload{Error: err.Error()})
		return
	}
	created, err := h.videos.CreateVideo(c.Request.Context(), createRequest)
	if errors.Is(err, videos.ErrVideoExists) {
		h.metrics.observeUpload("video", "duplicate")
		c.JSON(http.StatusConflict, remote.UploadResultPayload{Error: videos.ErrVideoExists.Error()})
		return
	}
	if err != nil {
		h.metrics.observeUpload("video", "failed")
		c.JSON(http.StatusInternalServerError, remote.UploadResultPayload{Error: "upload_failed"})
		return
	}
	h.metrics.observeUpload("video", "created")
	h.events.Publish(CatalogEvent{EventType: EventVideoChanged, VideoIDs: []string{created.VideoID}})
	c.JSON(http.StatusCreated, remote.UploadResultPayload{OK: created.VideoID})
}

func (h *httpHandler) newCreateVideoRequest(creator string, request remote.UploadVideoPayload) (videos.CreateVideoRequest, error) {
	videoID, err := videos.NewVideoID(request.ID)
	if err != nil {
		return videos.CreateVideoRequest{}, err
	}
	creatorID, err := videos.NewCreatorID(creator)
	if err != nil {
		return videos.CreateVideoRequest{}, err
	}
	metadata, err := videos.NewMetadata(request.Title, request.Description)
	if err != nil {
		return videos.CreateVideoRequest{}, err
	}
	duration, err := videos.NewDurationSeconds(request.DurationSeconds)
	if err != nil {
		return videos.CreateVideoRequest{}, err
	}
	file, err := videos.NewContentAddress(request.FileURL)
	if err != nil {
		return videos.CreateVideoRequest{}, err
	}
	return videos.CreateVideoRequest{
		VideoID:   videoID,
		CreatorID: creatorID,
		Metadata:  metadata,
		Duration:  duration,
		File:      file,
	}, nil
}

func (h *httpHandler) handleSetThumbnail(c *gin.Context) {
	videoID, err := videos.NewVideoID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var request remote.ThumbnailPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	address, err := videos.NewContentAddress(request.ThumbnailURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.videos.SetThumbnail(c.Request.Context(), videoID, address); err != nil {
		h.metrics.observeUpload("thumbnail", "failed")
		h.respondVideoError(c, err)
		return
	}
	h.metrics.observeUpload("thumbnail", "attached")
	h.events.Publish(CatalogEvent{EventType: EventVideoChanged, VideoIDs: []string{videoID.String()}})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handlePutContent(c *gin.Context) {
	limited := io.LimitReader(c.Request.Body, h.maxContentBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read_failed"})
		return
	}
	if int64(len(data)) > h.maxContentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "content_too_large"})
		return
	}
	owner, err := videos.NewCreatorID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	blobID, err := h.videos.StoreContent(c.Request.Context(), owner, mimetype.Detect(data).String(), data)
	if errors.Is(err, videos.ErrEmptyContent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store_failed"})
		return
	}
	h.metrics.observeContent(len(data))
	c.JSON(http.StatusCreated, remote.ContentPayload{URL: h.contentURL(c, blobID)})
}

func (h *httpHandler) handleGetContent(c *gin.Context) {
	blob, err := h.videos.LoadContent(c.Request.Context(), c.Param("id"))
	if errors.Is(err, videos.ErrContentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}
	c.Data(http.StatusOK, blob.MediaType, blob.Data)
}

func (h *httpHandler) handleCallerRole(c *gin.Context) {
	role := h.users.RoleOf(c.GetString(userIDContextKey))
	c.JSON(http.StatusOK, remote.RolePayload{Role: string(role)})
}

func (h *httpHandler) handleCallerProfile(c *gin.Context) {
	h.respondProfile(c, c.GetString(userIDContextKey))
}

func (h *httpHandler) handleUserProfile(c *gin.Context) {
	h.respondProfile(c, c.Param("id"))
}

func (h *httpHandler) respondProfile(c *gin.Context, identity string) {
	userID, err := users.NewUserID(identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, found, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, remote.ProfilePayload{Name: profile.Name})
}

func (h *httpHandler) handleSaveProfile(c *gin.Context) {
	var request remote.ProfilePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, err := users.NewDisplayName(request.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := users.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if _, err := h.users.SaveProfile(c.Request.Context(), userID, name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleFollowerCount(c *gin.Context) {
	target, err := users.NewUserID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	count, err := h.users.FollowerCount(c.Request.Context(), target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count_failed"})
		return
	}
	c.JSON(http.StatusOK, remote.CountPayload{Count: count})
}

func (h *httpHandler) handleIsFollowing(c *gin.Context) {
	target, err := users.NewUserID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	follower, err := users.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusOK, remote.FollowingPayload{Following: false})
		return
	}
	following, err := h.users.IsFollowing(c.Request.Context(), follower, target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, remote.FollowingPayload{Following: following})
}

func (h *httpHandler) handleFollow(c *gin.Context) {
	h.changeFollow(c, "follow", h.users.Follow)
}

func (h *httpHandler) handleUnfollow(c *gin.Context) {
	h.changeFollow(c, "unfollow", h.users.Unfollow)
}

func (h *httpHandler) changeFollow(c *gin.Context, direction string, change func(context.Context, users.UserID, users.UserID) (bool, error)) {
	target, err := users.NewUserID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	follower, err := users.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	changed, err := change(c.Request.Context(), follower, target)
	if errors.Is(err, users.ErrSelfFollow) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": direction + "_failed"})
		return
	}
	if changed {
		h.metrics.observeFollow(direction)
		h.events.Publish(CatalogEvent{EventType: EventFollowerChanged, Identity: target.String()})
	}
	c.JSON(http.StatusOK, remote.ChangedPayload{Changed: changed})
}

func (h *httpHandler) respondVideoError(c *gin.Context, err error) {
	if errors.Is(err, videos.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": videos.ErrVideoNotFound.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
}

func (h *httpHandler) contentURL(c *gin.Context, blobID string) string {
	base := h.publicBaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/content/" + blobID
}

// authorizeRequest resolves the caller identity. Requests without credentials continue as guests.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, present := bearerToken(c)
	if !present {
		c.Next()
		return
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) requireIdentity(c *gin.Context) {
	if c.GetString(userIDContextKey) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if h.users.RoleOf(c.GetString(userIDContextKey)) != users.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "creator role required"})
		return
	}
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", true
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
	}
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token, true
	}
	return "", false
}

func videoPayload(entry videos.Video) remote.VideoPayload {
	return remote.VideoPayload{
		ID:              entry.VideoID,
		Title:           entry.Title,
		Description:     entry.Description,
		DurationSeconds: entry.DurationSeconds,
		UploadedAtUnix:  entry.UploadedAtSeconds,
		ViewCount:       entry.ViewCount,
		ThumbnailURL:    entry.ThumbnailURL,
		FileURL:         entry.FileURL,
	}
}
