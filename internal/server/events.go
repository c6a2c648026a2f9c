package server

import (
	"context"
	"sync"
	"time"
)

const (
	// EventVideoChanged announces new or updated catalog entries.
	EventVideoChanged = "video-change"
	// EventFollowerChanged announces a changed follower set for an identity.
	EventFollowerChanged = "follower-change"
	eventHeartbeat       = "heartbeat"
	eventSourceBackend   = "fanreel-api"
)

// CatalogEvent is a change notification fanned out to every connected viewer.
type CatalogEvent struct {
	EventType string
	VideoIDs  []string
	Identity  string
	Timestamp time.Time
}

// EventHub fans catalog events out to stream subscribers. Slow subscribers drop events.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan CatalogEvent
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that is released when ctx ends or cleanup is called.
func (h *EventHub) Subscribe(ctx context.Context) (<-chan CatalogEvent, func()) {
	subscriber := &eventSubscriber{
		stream: make(chan CatalogEvent, h.bufferSize),
	}
	h.register(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.unregister(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (h *EventHub) Publish(event CatalogEvent) {
	if event.EventType == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	copies := make([]*eventSubscriber, 0, len(h.subscribers))
	for _, subscriber := range h.subscribers {
		copies = append(copies, subscriber)
	}
	h.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *EventHub) register(subscriber *eventSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	subscriber.id = h.nextID
	h.subscribers[subscriber.id] = subscriber
}

func (h *EventHub) unregister(subscriberID int64) {
	h.mu.Lock()
	delete(h.subscribers, subscriberID)
	h.mu.Unlock()
}
