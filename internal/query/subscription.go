package query

import (
	"context"
	"time"
)

// Snapshot is a point-in-time view of a cache entry.
type Snapshot[T any] struct {
	Data      T
	HasData   bool
	Status    Status
	Err       error
	Fetching  bool
	UpdatedAt time.Time
}

// Subscription is a live view of one key. Close it when the consumer goes away;
// the entry and its data remain cached.
type Subscription[T any] struct {
	cache      *Cache
	entry      *entry
	subscriber *subscriber
}

// Key returns the subscribed key.
func (s *Subscription[T]) Key() Key {
	return s.entry.key
}

// Snapshot returns the current state of the entry.
func (s *Subscription[T]) Snapshot() Snapshot[T] {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	snapshot := Snapshot[T]{
		Status:    s.entry.status,
		Err:       s.entry.err,
		Fetching:  s.entry.fetching,
		UpdatedAt: s.entry.updatedAt,
	}
	if s.entry.hasData {
		if value, ok := s.entry.data.(T); ok {
			snapshot.Data = value
			snapshot.HasData = true
		}
	}
	return snapshot
}

// Changed signals after the entry changes. Signals coalesce; read Snapshot after each one.
func (s *Subscription[T]) Changed() <-chan struct{} {
	return s.subscriber.changed
}

// SetEnabled updates the subscription's dependency gate. Disabling keeps cached data;
// enabling fetches only when the data is missing, stale or expired.
func (s *Subscription[T]) SetEnabled(enabled bool) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	s.subscriber.enabled = enabled
	if enabled && s.cache.needsFetchLocked(s.entry) {
		s.cache.startFetchLocked(s.entry)
	}
}

// Wait blocks until no fetch is in flight for the entry and returns the resulting snapshot.
func (s *Subscription[T]) Wait(ctx context.Context) (Snapshot[T], error) {
	for {
		snapshot := s.Snapshot()
		if !snapshot.Fetching {
			return snapshot, nil
		}
		select {
		case <-s.subscriber.changed:
		case <-ctx.Done():
			return snapshot, ctx.Err()
		}
	}
}

// Close unregisters the subscription. An in-flight fetch still completes and populates the cache.
func (s *Subscription[T]) Close() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	delete(s.entry.subscribers, s.subscriber.id)
}
