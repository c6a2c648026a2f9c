package binding

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var errMissingStore = errors.New("binding: store is required")

// Binder tracks the creator identity this client is bound to.
// It is read from the store once per session and rewritten only when a privileged caller is observed.
type Binder struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	creator string
	loaded  bool
}

// NewBinder constructs a Binder over store.
func NewBinder(store Store, logger *zap.Logger) (*Binder, error) {
	if store == nil {
		return nil, errMissingStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{store: store, logger: logger}, nil
}

// Load reads the persisted creator identity. Call it at session start.
func (b *Binder) Load(ctx context.Context) (string, error) {
	value, found, err := b.store.Get(ctx, SlotCreatorIdentity)
	if err != nil {
		b.logger.Error("binding load failed", zap.Error(err))
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded = true
	if found {
		b.creator = value
	}
	return b.creator, nil
}

// Creator returns the bound creator identity; ok is false when nothing is bound.
func (b *Binder) Creator() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.creator, b.creator != ""
}

// Loaded reports whether Load has completed.
func (b *Binder) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// ObserveRole records identity as the creator when the caller holds the privileged role.
// It returns true when the binding changed.
func (b *Binder) ObserveRole(ctx context.Context, identity string, privileged bool) (bool, error) {
	identity = strings.TrimSpace(identity)
	if !privileged || identity == "" {
		return false, nil
	}
	b.mu.RLock()
	current := b.creator
	b.mu.RUnlock()
	if current == identity {
		return false, nil
	}
	if err := b.store.Set(ctx, SlotCreatorIdentity, identity); err != nil {
		b.logger.Error("binding write failed", zap.String("identity", identity), zap.Error(err))
		return false, err
	}
	b.mu.Lock()
	b.creator = identity
	b.mu.Unlock()
	b.logger.Info("creator binding updated", zap.String("identity", identity))
	return true, nil
}
