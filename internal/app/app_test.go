package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/catalog"
	"github.com/MarcoPoloResearchLab/fanreel/internal/config"
	"github.com/MarcoPoloResearchLab/fanreel/internal/content"
	"github.com/MarcoPoloResearchLab/fanreel/internal/follow"
	"github.com/MarcoPoloResearchLab/fanreel/internal/query"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote/remotetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixedProber struct {
	duration time.Duration
}

func (p fixedProber) Probe(context.Context, []byte) (time.Duration, error) {
	return p.duration, nil
}

type scriptedEvents struct {
	mu       sync.Mutex
	attempts int
	script   []func(ctx context.Context, handle func(remote.Event)) error
}

func (s *scriptedEvents) Watch(ctx context.Context, handle func(remote.Event)) error {
	s.mu.Lock()
	attempt := s.attempts
	s.attempts++
	s.mu.Unlock()
	if attempt < len(s.script) {
		return s.script[attempt](ctx, handle)
	}
	<-ctx.Done()
	return nil
}

func (s *scriptedEvents) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func newTestApp(t *testing.T, fake *remotetest.Fake, identity string, store binding.Store, events EventSource, logger *zap.Logger) *App {
	t.Helper()
	if store == nil {
		store = binding.NewMemoryStore()
	}
	session, err := New(Config{
		Collaborator:   fake,
		Events:         events,
		Store:          store,
		Prober:         fixedProber{duration: 12 * time.Second},
		Session:        catalog.Session{Identity: identity},
		Query:          query.Config{RetryCount: -1, RetryDelay: time.Millisecond},
		ReconnectDelay: time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to construct app: %v", err)
	}
	return session
}

func mustSetBinding(t *testing.T, store binding.Store, creator string) {
	t.Helper()
	if err := store.Set(context.Background(), binding.SlotCreatorIdentity, creator); err != nil {
		t.Fatalf("failed to seed binding: %v", err)
	}
}

func TestNewRequiresStoreAndProber(t *testing.T) {
	if _, err := New(Config{Prober: fixedProber{}}); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := New(Config{Store: binding.NewMemoryStore()}); err == nil {
		t.Fatalf("expected missing prober error")
	}
}

func TestStartBindsPrivilegedCaller(t *testing.T) {
	fake := remotetest.NewFake("creator-1", remote.RoleAdmin)
	store := binding.NewMemoryStore()
	session := newTestApp(t, fake, "creator-1", store, nil, nil)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if session.Role() != remote.RoleAdmin {
		t.Fatalf("expected admin role, got %s", session.Role())
	}
	creator, bound := session.Binder.Creator()
	if !bound || creator != "creator-1" {
		t.Fatalf("expected creator-1 to be bound, got %q bound=%v", creator, bound)
	}
	persisted, found, err := store.Get(context.Background(), binding.SlotCreatorIdentity)
	if err != nil || !found || persisted != "creator-1" {
		t.Fatalf("expected binding to be persisted, got %q found=%v err=%v", persisted, found, err)
	}

	controls, err := session.FollowControls(context.Background())
	if err != nil {
		t.Fatalf("controls failed: %v", err)
	}
	if controls.Visible {
		t.Fatalf("expected follow controls to be hidden from the creator")
	}
}

func TestStartKeepsBindingForFans(t *testing.T) {
	fake := remotetest.NewFake("fan-1", remote.RoleUser)
	store := binding.NewMemoryStore()
	mustSetBinding(t, store, "creator-1")
	session := newTestApp(t, fake, "fan-1", store, nil, nil)

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	creator, bound := session.Binder.Creator()
	if !bound || creator != "creator-1" {
		t.Fatalf("expected existing binding to survive, got %q", creator)
	}
}

func TestStartSurvivesRoleFailure(t *testing.T) {
	fake := remotetest.NewFake("fan-1", remote.RoleUser)
	fake.AddVideo(remote.Video{ID: "video_1", Title: "Opener", UploadedAt: time.Unix(10, 0)})
	fake.Fail(remotetest.OpCallerRole, errors.New("role endpoint down"))
	store := binding.NewMemoryStore()
	mustSetBinding(t, store, "creator-1")
	core, logs := observer.New(zapcore.WarnLevel)
	session := newTestApp(t, fake, "fan-1", store, nil, zap.New(core))

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("expected start to survive a role failure, got %v", err)
	}
	if session.Role() != remote.RoleGuest {
		t.Fatalf("expected guest role, got %s", session.Role())
	}
	if creator, bound := session.Binder.Creator(); !bound || creator != "creator-1" {
		t.Fatalf("expected binding untouched, got %q bound=%v", creator, bound)
	}
	if logs.FilterMessage("caller role unavailable").Len() != 1 {
		t.Fatalf("expected role failure to be logged, got %v", logs.All())
	}

	roleQuery := session.Catalog.CallerRole()
	defer roleQuery.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snapshot, err := roleQuery.Wait(ctx)
	if err != nil {
		t.Fatalf("wait role: %v", err)
	}
	if snapshot.Status != query.StatusError || snapshot.Err == nil {
		t.Fatalf("expected role entry to carry the error, got %+v", snapshot)
	}

	videos, err := Resolve(ctx, session.Catalog.Videos())
	if err != nil || len(videos) != 1 {
		t.Fatalf("expected listing to load, got %v err=%v", videos, err)
	}
	controls, err := session.FollowControls(ctx)
	if err != nil {
		t.Fatalf("controls failed: %v", err)
	}
	if !controls.Enabled || controls.Target != "creator-1" {
		t.Fatalf("expected follow controls for the bound creator, got %#v", controls)
	}
}

func TestFollowControlsReflectBindingAndSession(t *testing.T) {
	testCases := []struct {
		name     string
		identity string
		role     remote.Role
		creator  string
		reason   string
		enabled  bool
	}{
		{name: "anonymous", identity: "", role: remote.RoleGuest, creator: "creator-1", reason: follow.ReasonLogin},
		{name: "unbound", identity: "fan-1", role: remote.RoleUser, creator: "", reason: follow.ReasonUnbound},
		{name: "ready", identity: "fan-1", role: remote.RoleUser, creator: "creator-1", enabled: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fake := remotetest.NewFake(testCase.identity, testCase.role)
			store := binding.NewMemoryStore()
			if testCase.creator != "" {
				mustSetBinding(t, store, testCase.creator)
			}
			session := newTestApp(t, fake, testCase.identity, store, nil, nil)
			if err := session.Start(context.Background()); err != nil {
				t.Fatalf("start failed: %v", err)
			}
			controls, err := session.FollowControls(context.Background())
			if err != nil {
				t.Fatalf("controls failed: %v", err)
			}
			if controls.Enabled != testCase.enabled || controls.Reason != testCase.reason {
				t.Fatalf("unexpected controls %#v", controls)
			}
			if testCase.enabled && controls.Label != follow.LabelFollow {
				t.Fatalf("expected follow label, got %s", controls.Label)
			}
		})
	}
}

func TestToggleFollowFlipsRelationship(t *testing.T) {
	fake := remotetest.NewFake("fan-1", remote.RoleUser)
	store := binding.NewMemoryStore()
	mustSetBinding(t, store, "creator-1")
	session := newTestApp(t, fake, "fan-1", store, nil, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	following, err := session.ToggleFollow(context.Background())
	if err != nil || !following {
		t.Fatalf("expected to follow, following=%v err=%v", following, err)
	}
	count, err := Resolve(context.Background(), session.Catalog.FollowerCount("creator-1"))
	if err != nil || count != 1 {
		t.Fatalf("expected one follower, count=%d err=%v", count, err)
	}
	controls, err := session.FollowControls(context.Background())
	if err != nil {
		t.Fatalf("controls failed: %v", err)
	}
	if controls.Label != follow.LabelUnfollow || !controls.Following {
		t.Fatalf("expected unfollow controls, got %#v", controls)
	}

	following, err = session.ToggleFollow(context.Background())
	if err != nil || following {
		t.Fatalf("expected to unfollow, following=%v err=%v", following, err)
	}
}

func TestToggleFollowRequiresBinding(t *testing.T) {
	fake := remotetest.NewFake("fan-1", remote.RoleUser)
	session := newTestApp(t, fake, "fan-1", nil, nil, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := session.ToggleFollow(context.Background()); !errors.Is(err, follow.ErrUnboundCreator) {
		t.Fatalf("expected unbound creator error, got %v", err)
	}
	if calls := fake.Calls(remotetest.OpFollow); calls != 0 {
		t.Fatalf("expected no follow call, got %d", calls)
	}
}

func TestApplyEventRefreshesListing(t *testing.T) {
	fake := remotetest.NewFake("fan-1", remote.RoleUser)
	session := newTestApp(t, fake, "fan-1", nil, nil, nil)

	listing := session.Catalog.Videos()
	defer listing.Close()
	snapshot, err := listing.Wait(context.Background())
	if err != nil || len(snapshot.Data) != 0 {
		t.Fatalf("expected empty listing, got %#v err=%v", snapshot.Data, err)
	}

	fake.AddVideo(remote.Video{ID: "video_1", Title: "Encore", File: content.FromURL("https://cdn.test/1")})
	session.ApplyEvent(remote.Event{Type: remote.EventVideoChanged, VideoIDs: []string{"video_1"}})

	deadline := time.After(time.Second)
	for {
		snapshot = listing.Snapshot()
		if !snapshot.Fetching && len(snapshot.Data) == 1 {
			break
		}
		select {
		case <-listing.Changed():
		case <-deadline:
			t.Fatalf("expected listing to refresh, got %#v", snapshot)
		}
	}
	if calls := fake.Calls(remotetest.OpListVideos); calls != 2 {
		t.Fatalf("expected exactly one refetch, got %d list calls", calls)
	}
}

func TestWatchCatalogReconnectsAndApplies(t *testing.T) {
	fake := remotetest.NewFake("fan-1", remote.RoleUser)
	fake.AddFollower("creator-1", "fan-2")

	core, logs := observer.New(zapcore.WarnLevel)
	events := &scriptedEvents{}
	session := newTestApp(t, fake, "fan-1", nil, events, zap.New(core))

	counter := session.Catalog.FollowerCount("creator-1")
	defer counter.Close()
	if snapshot, err := counter.Wait(context.Background()); err != nil || snapshot.Data != 1 {
		t.Fatalf("expected one follower, got %d err=%v", snapshot.Data, err)
	}

	applied := make(chan struct{})
	events.script = []func(context.Context, func(remote.Event)) error{
		func(context.Context, func(remote.Event)) error {
			return errors.New("connection reset")
		},
		func(_ context.Context, handle func(remote.Event)) error {
			fake.AddFollower("creator-1", "fan-3")
			handle(remote.Event{Type: remote.EventFollowerChanged, Identity: "creator-1"})
			close(applied)
			return errors.New("stream closed")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- session.WatchCatalog(ctx)
	}()

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the second stream to deliver an event")
	}

	deadline := time.After(time.Second)
	for {
		snapshot := counter.Snapshot()
		if !snapshot.Fetching && snapshot.Data == 2 {
			break
		}
		select {
		case <-counter.Changed():
		case <-deadline:
			t.Fatalf("expected follower count to refresh, got %#v", snapshot)
		}
	}

	reopened := time.Now().Add(time.Second)
	for events.Attempts() < 3 {
		if time.Now().After(reopened) {
			t.Fatalf("expected the stream to be reopened, got %d attempts", events.Attempts())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watch loop did not stop")
	}
	if logs.FilterMessage("catalog event stream interrupted").Len() < 2 {
		t.Fatalf("expected interruptions to be logged, got %d entries", logs.Len())
	}
}

func TestOpenWithMemoryBinding(t *testing.T) {
	cfg := config.ClientConfig{
		APIBaseURL:     "http://127.0.0.1:1",
		BindingBackend: config.BindingBackendMemory,
		MediaProbe:     config.ProbeMP4,
		RetryCount:     0,
		RetryDelay:     time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, client, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("expected session to open without a reachable collaborator, got %v", err)
	}
	defer session.Close()
	if client == nil {
		t.Fatalf("expected remote client")
	}
	if session.Role() != remote.RoleGuest {
		t.Fatalf("expected guest role, got %s", session.Role())
	}
}

func TestOpenRejectsMalformedToken(t *testing.T) {
	cfg := config.ClientConfig{
		APIBaseURL:     "http://127.0.0.1:1",
		APIToken:       "not-a-token",
		BindingBackend: config.BindingBackendMemory,
		MediaProbe:     config.ProbeMP4,
	}
	if _, _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected malformed token error")
	}
}
