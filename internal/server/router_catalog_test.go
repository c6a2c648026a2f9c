package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/auth"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/MarcoPoloResearchLab/fanreel/internal/users"
	"github.com/MarcoPoloResearchLab/fanreel/internal/videos"
	"github.com/gin-gonic/gin"
	githubsqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testCreatorIdentity = "creator-1"

type testAPI struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
	events  *EventHub
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(githubsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&videos.Video{}, &videos.ContentBlob{}, &users.Profile{}, &users.Follow{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	videoService, err := videos.NewService(videos.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct video service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, CreatorIdentity: testCreatorIdentity})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	events := NewEventHub()
	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:      issuer,
		Videos:            videoService,
		Users:             userService,
		Events:            events,
		PublicBaseURL:     "https://cdn.fanreel.test/",
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testAPI{handler: handler, issuer: issuer, events: events}
}

func (api testAPI) token(t *testing.T, subject string) string {
	t.Helper()
	token, _, err := api.issuer.IssueSessionToken(context.Background(), subject)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (api testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch typed := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if _, isRaw := body.([]byte); body != nil && !isRaw {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	api.handler.ServeHTTP(recorder, request)
	return recorder
}

func mustDecode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestRoleReflectsCaller(t *testing.T) {
	api := newTestAPI(t)

	testCases := []struct {
		name  string
		token string
		want  string
	}{
		{name: "guest", token: "", want: string(users.RoleGuest)},
		{name: "fan", token: api.token(t, "fan-1"), want: string(users.RoleUser)},
		{name: "creator", token: api.token(t, testCreatorIdentity), want: string(users.RoleAdmin)},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := api.do(t, http.MethodGet, "/role", testCase.token, nil)
			if recorder.Code != http.StatusOK {
				t.Fatalf("unexpected status %d", recorder.Code)
			}
			payload := mustDecode[remote.RolePayload](t, recorder)
			if payload.Role != testCase.want {
				t.Fatalf("expected role %s, got %s", testCase.want, payload.Role)
			}
		})
	}
}

func TestCreatorUploadsContentAndVideo(t *testing.T) {
	api := newTestAPI(t)
	creator := api.token(t, testCreatorIdentity)

	recorder := api.do(t, http.MethodPut, "/content", creator, []byte("video-bytes"))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected content status %d: %s", recorder.Code, recorder.Body.String())
	}
	stored := mustDecode[remote.ContentPayload](t, recorder)
	if !strings.HasPrefix(stored.URL, "https://cdn.fanreel.test/content/") {
		t.Fatalf("unexpected content url %s", stored.URL)
	}

	blobPath := strings.TrimPrefix(stored.URL, "https://cdn.fanreel.test")
	served := api.do(t, http.MethodGet, blobPath, "", nil)
	if served.Code != http.StatusOK || served.Body.String() != "video-bytes" {
		t.Fatalf("unexpected served content %d %q", served.Code, served.Body.String())
	}

	upload := remote.UploadVideoPayload{
		ID:              "video_1",
		Title:           "  Backstage  ",
		Description:     "first cut",
		DurationSeconds: 13,
		FileURL:         stored.URL,
	}
	recorder = api.do(t, http.MethodPost, "/videos", creator, upload)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected upload status %d: %s", recorder.Code, recorder.Body.String())
	}
	result := mustDecode[remote.UploadResultPayload](t, recorder)
	if result.OK != "video_1" || result.Error != "" {
		t.Fatalf("unexpected upload result %#v", result)
	}

	recorder = api.do(t, http.MethodPost, "/videos", creator, upload)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected duplicate id to conflict, got %d", recorder.Code)
	}

	recorder = api.do(t, http.MethodGet, "/videos/video_1", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected lookup status %d", recorder.Code)
	}
	video := mustDecode[remote.VideoPayload](t, recorder)
	if video.Title != "Backstage" || video.DurationSeconds != 13 || video.FileURL != stored.URL {
		t.Fatalf("unexpected video %#v", video)
	}

	listing := mustDecode[[]remote.VideoPayload](t, api.do(t, http.MethodGet, "/videos", "", nil))
	if len(listing) != 1 || listing[0].ID != "video_1" {
		t.Fatalf("unexpected listing %#v", listing)
	}
}

func TestUploadRejectsInvalidVideos(t *testing.T) {
	api := newTestAPI(t)
	creator := api.token(t, testCreatorIdentity)

	testCases := []struct {
		name    string
		payload remote.UploadVideoPayload
	}{
		{name: "too short", payload: remote.UploadVideoPayload{ID: "video_a", Title: "t", DurationSeconds: 9, FileURL: "https://x/1"}},
		{name: "too long", payload: remote.UploadVideoPayload{ID: "video_b", Title: "t", DurationSeconds: 21, FileURL: "https://x/1"}},
		{name: "blank title", payload: remote.UploadVideoPayload{ID: "video_c", Title: " ", DurationSeconds: 15, FileURL: "https://x/1"}},
		{name: "missing file", payload: remote.UploadVideoPayload{ID: "video_d", Title: "t", DurationSeconds: 15}},
		{name: "missing id", payload: remote.UploadVideoPayload{Title: "t", DurationSeconds: 15, FileURL: "https://x/1"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := api.do(t, http.MethodPost, "/videos", creator, testCase.payload)
			if recorder.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", recorder.Code)
			}
			result := mustDecode[remote.UploadResultPayload](t, recorder)
			if result.Error == "" || result.OK != "" {
				t.Fatalf("expected tagged error, got %#v", result)
			}
		})
	}
}

func TestUploadsRequireCreatorRole(t *testing.T) {
	api := newTestAPI(t)
	fan := api.token(t, "fan-1")

	if code := api.do(t, http.MethodPut, "/content", fan, []byte("x")).Code; code != http.StatusForbidden {
		t.Fatalf("expected fan content upload to be forbidden, got %d", code)
	}
	if code := api.do(t, http.MethodPost, "/videos", "", remote.UploadVideoPayload{}).Code; code != http.StatusUnauthorized {
		t.Fatalf("expected guest upload to be unauthorized, got %d", code)
	}
}

func TestThumbnailForUnknownVideoIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	creator := api.token(t, testCreatorIdentity)

	recorder := api.do(t, http.MethodPost, "/videos/video_missing/thumbnail", creator, remote.ThumbnailPayload{ThumbnailURL: "https://x/thumb"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	fan := api.token(t, "fan-1")

	if code := api.do(t, http.MethodGet, "/profile", fan, nil).Code; code != http.StatusNotFound {
		t.Fatalf("expected missing profile to be 404, got %d", code)
	}
	if code := api.do(t, http.MethodPut, "/profile", fan, remote.ProfilePayload{Name: "  "}).Code; code != http.StatusBadRequest {
		t.Fatalf("expected blank name to be rejected, got %d", code)
	}
	if code := api.do(t, http.MethodPut, "/profile", fan, remote.ProfilePayload{Name: "Ada"}).Code; code != http.StatusNoContent {
		t.Fatalf("expected profile save, got %d", code)
	}
	profile := mustDecode[remote.ProfilePayload](t, api.do(t, http.MethodGet, "/profile", fan, nil))
	if profile.Name != "Ada" {
		t.Fatalf("unexpected profile %#v", profile)
	}
	public := mustDecode[remote.ProfilePayload](t, api.do(t, http.MethodGet, "/users/fan-1/profile", "", nil))
	if public.Name != "Ada" {
		t.Fatalf("unexpected public profile %#v", public)
	}
	if code := api.do(t, http.MethodGet, "/profile", "", nil).Code; code != http.StatusUnauthorized {
		t.Fatalf("expected guest profile lookup to be unauthorized, got %d", code)
	}
}

func TestFollowLifecycle(t *testing.T) {
	api := newTestAPI(t)
	fan := api.token(t, "fan-1")
	path := "/users/" + testCreatorIdentity

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := api.events.Subscribe(ctx)
	defer cleanup()

	changed := mustDecode[remote.ChangedPayload](t, api.do(t, http.MethodPost, path+"/follow", fan, nil))
	if !changed.Changed {
		t.Fatalf("expected first follow to change state")
	}
	select {
	case event := <-stream:
		if event.EventType != EventFollowerChanged || event.Identity != testCreatorIdentity {
			t.Fatalf("unexpected event %#v", event)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected follower change event")
	}

	changed = mustDecode[remote.ChangedPayload](t, api.do(t, http.MethodPost, path+"/follow", fan, nil))
	if changed.Changed {
		t.Fatalf("expected repeated follow to be a no-op")
	}

	count := mustDecode[remote.CountPayload](t, api.do(t, http.MethodGet, path+"/followers", "", nil))
	if count.Count != 1 {
		t.Fatalf("expected one follower, got %d", count.Count)
	}
	following := mustDecode[remote.FollowingPayload](t, api.do(t, http.MethodGet, path+"/following", fan, nil))
	if !following.Following {
		t.Fatalf("expected fan to follow creator")
	}
	guest := mustDecode[remote.FollowingPayload](t, api.do(t, http.MethodGet, path+"/following", "", nil))
	if guest.Following {
		t.Fatalf("expected guest to follow nobody")
	}

	changed = mustDecode[remote.ChangedPayload](t, api.do(t, http.MethodDelete, path+"/follow", fan, nil))
	if !changed.Changed {
		t.Fatalf("expected unfollow to change state")
	}
	count = mustDecode[remote.CountPayload](t, api.do(t, http.MethodGet, path+"/followers", "", nil))
	if count.Count != 0 {
		t.Fatalf("expected no followers, got %d", count.Count)
	}

	if code := api.do(t, http.MethodPost, "/users/fan-1/follow", fan, nil).Code; code != http.StatusBadRequest {
		t.Fatalf("expected self follow to be rejected, got %d", code)
	}
}

func TestMetricsEndpointReportsRequests(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/videos", "", nil)

	recorder := api.do(t, http.MethodGet, "/metrics", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `fanreel_http_requests_total{method="GET",route="/videos",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", recorder.Body.String())
	}
}
