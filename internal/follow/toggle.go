package follow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/fanreel/internal/binding"
	"github.com/MarcoPoloResearchLab/fanreel/internal/catalog"
	"github.com/MarcoPoloResearchLab/fanreel/internal/query"
	"go.uber.org/zap"
)

// Reasons shown next to disabled controls.
const (
	ReasonLogin   = "log in to follow"
	ReasonUnbound = "creator hasn't set up their profile yet"
	ReasonPending = "update in progress"
	ReasonLoading = "loading follow status"

	LabelFollow   = "follow"
	LabelUnfollow = "unfollow"
)

var (
	// ErrUnboundCreator indicates no creator identity has been bound yet.
	ErrUnboundCreator = errors.New("follow: creator is not bound")
	// ErrTogglePending indicates a toggle for the same target has not finished.
	ErrTogglePending = errors.New("follow: toggle already pending")
	// ErrNotAuthenticated indicates an anonymous viewer.
	ErrNotAuthenticated = errors.New("follow: viewer is not authenticated")
	// ErrCreatorViewer indicates the creator attempting to follow themselves.
	ErrCreatorViewer = errors.New("follow: creator cannot follow their own catalog")

	errMissingCatalog = errors.New("follow: catalog service is required")
	errMissingBinder  = errors.New("follow: binder is required")
)

// Viewer describes who is looking at the follow controls.
type Viewer struct {
	Identity   string
	Privileged bool
}

// Authenticated reports whether the viewer is signed in.
func (v Viewer) Authenticated() bool {
	return strings.TrimSpace(v.Identity) != ""
}

// Controls describes how follow controls should be rendered.
type Controls struct {
	Visible   bool
	Enabled   bool
	Label     string
	Reason    string
	Target    string
	Following bool
}

// Config describes the dependencies of a Toggle.
type Config struct {
	Catalog *catalog.Service
	Binder  *binding.Binder
	Logger  *zap.Logger
}

// Toggle follows and unfollows the bound creator.
type Toggle struct {
	catalog *catalog.Service
	binder  *binding.Binder
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewToggle constructs a Toggle.
func NewToggle(cfg Config) (*Toggle, error) {
	if cfg.Catalog == nil {
		return nil, errMissingCatalog
	}
	if cfg.Binder == nil {
		return nil, errMissingBinder
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toggle{
		catalog: cfg.Catalog,
		binder:  cfg.Binder,
		logger:  logger,
		pending: make(map[string]struct{}),
	}, nil
}

// Target returns the bound creator identity.
func (t *Toggle) Target() (string, bool) {
	return t.binder.Creator()
}

// Pending reports whether a toggle for target is running.
func (t *Toggle) Pending(target string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[target]
	return ok
}

// Controls derives the control state for viewer from the isFollowing snapshot of the bound target.
func (t *Toggle) Controls(viewer Viewer, following query.Snapshot[bool]) Controls {
	target, bound := t.Target()
	controls := Controls{Visible: true, Label: LabelFollow, Target: target}

	switch {
	case viewer.Privileged:
		controls.Visible = false
		return controls
	case !viewer.Authenticated():
		controls.Reason = ReasonLogin
		return controls
	case !bound:
		controls.Reason = ReasonUnbound
		return controls
	}

	if following.HasData {
		controls.Following = following.Data
		if following.Data {
			controls.Label = LabelUnfollow
		}
	} else {
		controls.Reason = ReasonLoading
		return controls
	}
	if t.Pending(target) {
		controls.Reason = ReasonPending
		return controls
	}
	controls.Enabled = true
	return controls
}

// Follow follows the bound creator.
func (t *Toggle) Follow(ctx context.Context, viewer Viewer) (bool, error) {
	return t.run(ctx, viewer, true)
}

// Unfollow stops following the bound creator.
func (t *Toggle) Unfollow(ctx context.Context, viewer Viewer) (bool, error) {
	return t.run(ctx, viewer, false)
}

// Toggle flips the relationship given the currently displayed state.
func (t *Toggle) Toggle(ctx context.Context, viewer Viewer, following bool) (bool, error) {
	return t.run(ctx, viewer, !following)
}

func (t *Toggle) run(ctx context.Context, viewer Viewer, follow bool) (bool, error) {
	if viewer.Privileged {
		return false, ErrCreatorViewer
	}
	if !viewer.Authenticated() {
		return false, ErrNotAuthenticated
	}
	target, bound := t.Target()
	if !bound {
		return false, ErrUnboundCreator
	}

	t.mu.Lock()
	if _, busy := t.pending[target]; busy {
		t.mu.Unlock()
		return false, ErrTogglePending
	}
	t.pending[target] = struct{}{}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, target)
		t.mu.Unlock()
	}()

	runner := t.catalog.Unfollow
	action := "unfollow"
	if follow {
		runner = t.catalog.Follow
		action = "follow"
	}
	changed, err := runner.Run(ctx, target)
	if err != nil {
		t.logger.Warn("follow toggle failed",
			zap.String("action", action),
			zap.String("target", target),
			zap.Error(err))
		return false, err
	}
	t.logger.Debug("follow toggle applied",
		zap.String("action", action),
		zap.String("target", target),
		zap.Bool("changed", changed))
	return changed, nil
}
