// Package app wires the viewer client: query cache, catalog, creator binding, follow toggle,
// upload orchestrator and the catalog event stream.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/catalog"
	"github.com/MarcoPoloResearchLab/fanreel/internal/follow"
	"github.com/MarcoPoloResearchLab/fanreel/internal/media"
	"github.com/MarcoPoloResearchLab/fanreel/internal/query"
	"github.com/MarcoPoloResearchLab/fanreel/internal/remote"
	"github.com/MarcoPoloResearchLab/fanreel/internal/upload"
	"go.uber.org/zap"
)

const (
	defaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

var (
	errMissingStore   = errors.New("app: binding store is required")
	errMissingProber  = errors.New("app: media prober is required")
	errPersistBinding = errors.New("app: persist creator binding")
)

// EventSource streams catalog change events.
type EventSource interface {
	Watch(ctx context.Context, handle func(remote.Event)) error
}

// Config describes the dependencies of an App. Collaborator and Events may be nil while offline.
type Config struct {
	Collaborator remote.Collaborator
	Events       EventSource
	Store        binding.Store
	Prober       media.Prober
	Session      catalog.Session
	Query        query.Config
	IDProvider   upload.IDProvider
	// ReconnectDelay is the first wait before reopening a broken event stream.
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

// App is one viewer session.
type App struct {
	Cache   *query.Cache
	Catalog *catalog.Service
	Binder  *binding.Binder
	Toggle  *follow.Toggle
	Uploads *upload.Orchestrator

	events         EventSource
	session        catalog.Session
	reconnectDelay time.Duration
	logger         *zap.Logger

	mu      sync.RWMutex
	role    remote.Role
	closers []func() error
}

// New wires an App from explicit dependencies.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Prober == nil {
		return nil, errMissingProber
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queryConfig := cfg.Query
	if queryConfig.Logger == nil {
		queryConfig.Logger = logger.Named("query")
	}
	cache := query.NewCache(queryConfig)

	service, err := catalog.NewService(catalog.Config{
		Cache:        cache,
		Collaborator: cfg.Collaborator,
		Session:      cfg.Session,
		Logger:       logger.Named("catalog"),
	})
	if err != nil {
		return nil, err
	}
	binder, err := binding.NewBinder(cfg.Store, logger.Named("binding"))
	if err != nil {
		return nil, err
	}
	toggle, err := follow.NewToggle(follow.Config{
		Catalog: service,
		Binder:  binder,
		Logger:  logger.Named("follow"),
	})
	if err != nil {
		return nil, err
	}
	orchestrator, err := upload.NewOrchestrator(upload.Config{
		Catalog:    service,
		Prober:     cfg.Prober,
		IDProvider: cfg.IDProvider,
		Logger:     logger.Named("upload"),
	})
	if err != nil {
		return nil, err
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &App{
		Cache:          cache,
		Catalog:        service,
		Binder:         binder,
		Toggle:         toggle,
		Uploads:        orchestrator,
		events:         cfg.Events,
		session:        cfg.Session,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		role:           remote.RoleGuest,
	}, nil
}

// Start loads the persisted creator binding and resolves the caller role.
// A failed role read leaves the caller a guest; the error stays on the currentUserRole entry.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Binder.Load(ctx); err != nil {
		return fmt.Errorf("app: load creator binding: %w", err)
	}
	if _, err := a.SyncRole(ctx); err != nil {
		if ctx.Err() != nil || errors.Is(err, errPersistBinding) {
			return err
		}
		a.logger.Warn("caller role unavailable",
			zap.String("identity", a.session.Identity),
			zap.Error(err))
	}
	return nil
}

// SyncRole fetches the caller role and binds the caller as creator when it is privileged.
func (a *App) SyncRole(ctx context.Context) (remote.Role, error) {
	role, err := Resolve(ctx, a.Catalog.CallerRole())
	if err != nil {
		return remote.RoleGuest, err
	}
	if role == "" {
		role = remote.RoleGuest
	}
	a.mu.Lock()
	a.role = role
	a.mu.Unlock()

	if _, err := a.Binder.ObserveRole(ctx, a.session.Identity, role.Privileged()); err != nil {
		return role, fmt.Errorf("%w: %w", errPersistBinding, err)
	}
	return role, nil
}

// Role returns the last resolved caller role.
func (a *App) Role() remote.Role {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.role
}

// Viewer describes the current caller for the follow controls.
func (a *App) Viewer() follow.Viewer {
	return follow.Viewer{Identity: a.session.Identity, Privileged: a.Role().Privileged()}
}

// FollowControls resolves the follow state of the bound creator and derives the controls.
func (a *App) FollowControls(ctx context.Context) (follow.Controls, error) {
	target, _ := a.Toggle.Target()
	subscription := a.Catalog.IsFollowing(target)
	defer subscription.Close()
	snapshot, err := subscription.Wait(ctx)
	if err != nil {
		return follow.Controls{}, err
	}
	return a.Toggle.Controls(a.Viewer(), snapshot), nil
}

// ToggleFollow flips the caller's relationship with the bound creator and returns the new state.
func (a *App) ToggleFollow(ctx context.Context) (bool, error) {
	controls, err := a.FollowControls(ctx)
	if err != nil {
		return false, err
	}
	if _, err := a.Toggle.Toggle(ctx, a.Viewer(), controls.Following); err != nil {
		return controls.Following, err
	}
	return !controls.Following, nil
}

// WatchCatalog applies catalog events to the cache until ctx ends, reopening the stream with backoff.
func (a *App) WatchCatalog(ctx context.Context) error {
	if a.events == nil {
		<-ctx.Done()
		return nil
	}
	delay := a.reconnectDelay
	for {
		started := time.Now()
		err := a.events.Watch(ctx, a.ApplyEvent)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxReconnectDelay {
			delay = a.reconnectDelay
		}
		a.logger.Warn("catalog event stream interrupted",
			zap.Duration("retry_in", delay),
			zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// ApplyEvent invalidates the queries an event affects.
func (a *App) ApplyEvent(event remote.Event) {
	switch event.Type {
	case remote.EventVideoChanged:
		a.Cache.Invalidate(catalog.KeyVideos())
		for _, id := range event.VideoIDs {
			a.Cache.Invalidate(catalog.KeyVideo(id))
		}
	case remote.EventFollowerChanged:
		if event.Identity == "" {
			return
		}
		a.Cache.Invalidate(catalog.KeyFollowerCount(event.Identity))
		a.Cache.Invalidate(catalog.KeyIsFollowing(event.Identity))
	default:
		a.logger.Debug("ignoring catalog event", zap.String("event", event.Type))
	}
}

// Close releases the resources opened for the session.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for index := len(closers) - 1; index >= 0; index-- {
		if err := closers[index](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) addCloser(closer func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer)
}

// Resolve waits for the subscription's fetch to settle, closes it and returns the data.
// A failed fetch with no earlier data is returned as the error.
func Resolve[T any](ctx context.Context, subscription *query.Subscription[T]) (T, error) {
	defer subscription.Close()
	snapshot, err := subscription.Wait(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if snapshot.Status == query.StatusError && !snapshot.HasData {
		var zero T
		return zero, snapshot.Err
	}
	return snapshot.Data, nil
}
