package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/fanreel/internal/query"
	"go.uber.org/zap"
)

var (
	// ErrInFlight indicates the call site already has an invocation running.
	ErrInFlight = errors.New("mutation: invocation already in flight")

	errMissingName    = errors.New("mutation: name is required")
	errMissingExecute = errors.New("mutation: execute function is required")
	errMissingCache   = errors.New("mutation: cache is required")
	noOpLogger        = zap.NewNop()
)

// Invalidator is the part of the query cache a mutation needs.
type Invalidator interface {
	Invalidate(key query.Key)
}

// Config declares one mutation call site.
type Config[A, R any] struct {
	Name    string
	Execute func(ctx context.Context, args A) (R, error)
	// Invalidates lists the keys made stale by a successful call; it may depend on the arguments.
	Invalidates func(args A, result R) []query.Key
	Cache       Invalidator
	Logger      *zap.Logger
}

// State reports the outcome of the latest invocation.
type State[R any] struct {
	Pending   bool
	Err       error
	Result    R
	HasResult bool
}

// Runner executes a write and then invalidates the keys it affects.
type Runner[A, R any] struct {
	name        string
	execute     func(ctx context.Context, args A) (R, error)
	invalidates func(args A, result R) []query.Key
	cache       Invalidator
	logger      *zap.Logger

	mu    sync.Mutex
	state State[R]
}

// New validates the configuration and constructs a Runner.
func New[A, R any](cfg Config[A, R]) (*Runner[A, R], error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errMissingName
	}
	if cfg.Execute == nil {
		return nil, errMissingExecute
	}
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Runner[A, R]{
		name:        name,
		execute:     cfg.Execute,
		invalidates: cfg.Invalidates,
		cache:       cfg.Cache,
		logger:      logger,
	}, nil
}

// Run executes the mutation. A concurrent call from the same Runner fails with ErrInFlight.
// Invalidations are issued only after the write has succeeded; failures are never retried.
func (r *Runner[A, R]) Run(ctx context.Context, args A) (R, error) {
	var zero R

	r.mu.Lock()
	if r.state.Pending {
		r.mu.Unlock()
		return zero, ErrInFlight
	}
	r.state = State[R]{Pending: true}
	r.mu.Unlock()

	result, err := r.execute(ctx, args)

	if err != nil {
		r.mu.Lock()
		r.state = State[R]{Err: err}
		r.mu.Unlock()
		r.logger.Warn("mutation failed",
			zap.String("mutation", r.name),
			zap.Error(err))
		return zero, err
	}

	if r.invalidates != nil {
		for _, key := range r.invalidates(args, result) {
			r.cache.Invalidate(key)
			r.logger.Debug("mutation invalidated key",
				zap.String("mutation", r.name),
				zap.String("key", key.String()))
		}
	}

	r.mu.Lock()
	r.state = State[R]{Result: result, HasResult: true}
	r.mu.Unlock()
	return result, nil
}

// State returns the latest invocation state.
func (r *Runner[A, R]) State() State[R] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pending reports whether an invocation is running.
func (r *Runner[A, R]) Pending() bool {
	return r.State().Pending
}

// Reset clears the last result or error. It has no effect while an invocation is pending.
func (r *Runner[A, R]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Pending {
		return
	}
	r.state = State[R]{}
}
