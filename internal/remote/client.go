package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 5 * time.Minute
	contentTypeJSON    = "application/json"
	contentTypeBinary  = "application/octet-stream"

	opListVideos        = "list_videos"
	opGetVideo          = "get_video"
	opCallerProfile     = "caller_profile"
	opUserProfile       = "user_profile"
	opSaveCallerProfile = "save_caller_profile"
	opCallerRole        = "caller_role"
	opFollowerCount     = "follower_count"
	opIsFollowing       = "is_following"
	opFollow            = "follow"
	opUnfollow          = "unfollow"
	opUploadVideo       = "upload_video"
	opUploadThumbnail   = "upload_thumbnail"
	opPutContent        = "put_content"
	opRecordView        = "record_view"
)

var (
	errMissingBaseURL = errors.New("remote: base url is required")
	noOpLogger        = zap.NewNop()
)

// ClientConfig describes how to reach the collaborator API.
type ClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements Collaborator over the JSON HTTP API.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Collaborator = (*Client)(nil)

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errMissingBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("remote: base url must be absolute: %q", raw)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Client{
		baseURL:    parsed,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Authenticated reports whether the client carries a session token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

func (c *Client) ListVideos(ctx context.Context) ([]Video, error) {
	var payload []VideoPayload
	if err := c.doJSON(ctx, opListVideos, http.MethodGet, "/videos", nil, &payload); err != nil {
		return nil, err
	}
	videos := make([]Video, 0, len(payload))
	for _, item := range payload {
		videos = append(videos, item.Video())
	}
	return videos, nil
}

func (c *Client) GetVideo(ctx context.Context, id string) (Video, bool, error) {
	var payload VideoPayload
	err := c.doJSON(ctx, opGetVideo, http.MethodGet, "/videos/"+url.PathEscape(id), nil, &payload)
	if isNotFound(err) {
		return Video{}, false, nil
	}
	if err != nil {
		return Video{}, false, err
	}
	return payload.Video(), true, nil
}

func (c *Client) CallerProfile(ctx context.Context) (Profile, bool, error) {
	return c.getProfile(ctx, opCallerProfile, "/profile")
}

func (c *Client) UserProfile(ctx context.Context, identity string) (Profile, bool, error) {
	return c.getProfile(ctx, opUserProfile, "/users/"+url.PathEscape(identity)+"/profile")
}

func (c *Client) getProfile(ctx context.Context, operation, path string) (Profile, bool, error) {
	var payload ProfilePayload
	err := c.doJSON(ctx, operation, http.MethodGet, path, nil, &payload)
	if isNotFound(err) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return Profile{Name: payload.Name}, true, nil
}

func (c *Client) SaveCallerProfile(ctx context.Context, profile Profile) error {
	return c.doJSON(ctx, opSaveCallerProfile, http.MethodPut, "/profile", ProfilePayload{Name: profile.Name}, nil)
}

func (c *Client) CallerRole(ctx context.Context) (Role, error) {
	var payload RolePayload
	if err := c.doJSON(ctx, opCallerRole, http.MethodGet, "/role", nil, &payload); err != nil {
		return "", err
	}
	switch Role(payload.Role) {
	case RoleAdmin, RoleUser, RoleGuest:
		return Role(payload.Role), nil
	default:
		return "", &Error{Operation: opCallerRole, Message: fmt.Sprintf("unknown role %q", payload.Role)}
	}
}

func (c *Client) FollowerCount(ctx context.Context, identity string) (int64, error) {
	var payload CountPayload
	if err := c.doJSON(ctx, opFollowerCount, http.MethodGet, "/users/"+url.PathEscape(identity)+"/followers", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

func (c *Client) IsFollowing(ctx context.Context, identity string) (bool, error) {
	var payload FollowingPayload
	if err := c.doJSON(ctx, opIsFollowing, http.MethodGet, "/users/"+url.PathEscape(identity)+"/following", nil, &payload); err != nil {
		return false, err
	}
	return payload.Following, nil
}

func (c *Client) Follow(ctx context.Context, identity string) (bool, error) {
	var payload ChangedPayload
	if err := c.doJSON(ctx, opFollow, http.MethodPost, "/users/"+url.PathEscape(identity)+"/follow", nil, &payload); err != nil {
		return false, err
	}
	return payload.Changed, nil
}

func (c *Client) Unfollow(ctx context.Context, identity string) (bool, error) {
	var payload ChangedPayload
	if err := c.doJSON(ctx, opUnfollow, http.MethodDelete, "/users/"+url.PathEscape(identity)+"/follow", nil, &payload); err != nil {
		return false, err
	}
	return payload.Changed, nil
}

func (c *Client) UploadVideo(ctx context.Context, upload VideoUpload) (string, error) {
	fileURL, err := upload.File.DirectURL()
	if err != nil {
		return "", &Error{Operation: opUploadVideo, Message: err.Error()}
	}
	request := UploadVideoPayload{
		ID:              upload.ID,
		Title:           upload.Title,
		Description:     upload.Description,
		DurationSeconds: upload.DurationSeconds,
		FileURL:         fileURL,
	}
	var result UploadResultPayload
	if err := c.doJSON(ctx, opUploadVideo, http.MethodPost, "/videos", request, &result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", &Error{Operation: opUploadVideo, Message: result.Error}
	}
	return result.OK, nil
}

func (c *Client) UploadThumbnail(ctx context.Context, videoID string, thumbnail content.Pointer) error {
	thumbnailURL, err := thumbnail.DirectURL()
	if err != nil {
		return &Error{Operation: opUploadThumbnail, Message: err.Error()}
	}
	path := "/videos/" + url.PathEscape(videoID) + "/thumbnail"
	return c.doJSON(ctx, opUploadThumbnail, http.MethodPost, path, ThumbnailPayload{ThumbnailURL: thumbnailURL}, nil)
}

// RecordView counts one playback of the video.
func (c *Client) RecordView(ctx context.Context, videoID string) error {
	return c.doJSON(ctx, opRecordView, http.MethodPost, "/videos/"+url.PathEscape(videoID)+"/views", nil, nil)
}

// Put streams raw content to the API and returns its hosted address.
func (c *Client) Put(ctx context.Context, body io.Reader, size int64) (string, error) {
	request, err := c.newRequest(ctx, http.MethodPut, "/content", body)
	if err != nil {
		return "", &Error{Operation: opPutContent, Message: err.Error()}
	}
	request.ContentLength = size
	request.Header.Set("Content-Type", contentTypeBinary)

	var payload ContentPayload
	if err := c.send(request, opPutContent, &payload); err != nil {
		return "", err
	}
	return payload.URL, nil
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Operation: operation, Message: err.Error()}
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return &Error{Operation: operation, Message: err.Error()}
	}
	if body != nil {
		request.Header.Set("Content-Type", contentTypeJSON)
	}
	return c.send(request, operation, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target := c.baseURL.String() + path
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", contentTypeJSON)
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	return request, nil
}

func (c *Client) send(request *http.Request, operation string, out any) error {
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("remote request failed",
			zap.String("operation", operation),
			zap.Error(err))
		return &Error{Operation: operation, Message: err.Error()}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var failure ErrorPayload
		message := http.StatusText(response.StatusCode)
		if err := json.NewDecoder(response.Body).Decode(&failure); err == nil && failure.Error != "" {
			message = failure.Error
		}
		return &Error{Operation: operation, Status: response.StatusCode, Message: message}
	}
	if out == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return &Error{Operation: operation, Status: response.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func isNotFound(err error) bool {
	var remoteErr *Error
	return errors.As(err, &remoteErr) && remoteErr.Status == http.StatusNotFound
}
