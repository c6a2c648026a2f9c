package binding

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// SlotCreatorIdentity holds the identity of the creator whose catalog this client follows.
const SlotCreatorIdentity = "creator_identity"

var (
	// ErrInvalidSlot indicates an empty slot name.
	ErrInvalidSlot = errors.New("binding: slot is required")
	// ErrInvalidValue indicates an empty value.
	ErrInvalidValue = errors.New("binding: value is required")
)

// Store persists named single-value slots. Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, slot string) (string, bool, error)
	Set(ctx context.Context, slot string, value string) error
}

func validateSlot(slot string) (string, error) {
	trimmed := strings.TrimSpace(slot)
	if trimmed == "" {
		return "", ErrInvalidSlot
	}
	return trimmed, nil
}

func validateValue(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", ErrInvalidValue
	}
	return trimmed, nil
}

// MemoryStore keeps slots for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, slot string) (string, bool, error) {
	name, err := validateSlot(slot)
	if err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.slots[name]
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, slot string, value string) error {
	name, err := validateSlot(slot)
	if err != nil {
		return err
	}
	normalized, err := validateValue(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[name] = normalized
	return nil
}
