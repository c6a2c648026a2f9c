package query

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryCount = 3
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

var noOpLogger = zap.NewNop()

// Status describes the lifecycle of a cache entry.
type Status int

const (
	// StatusPending means no data has been fetched successfully yet.
	StatusPending Status = iota
	// StatusReady means the last fetch succeeded.
	StatusReady
	// StatusError means the last fetch failed; previously fetched data is kept.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// Fetcher loads the value for a key from the remote collaborator.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Options tunes a single subscription.
type Options struct {
	// Enabled gates fetching on the subscription's dependencies being present.
	Enabled bool
	// NoRetry surfaces the first failure instead of retrying.
	NoRetry bool
}

// Config describes cache-wide behaviour.
type Config struct {
	// StaleAfter is how long fetched data stays fresh; zero keeps it fresh until invalidated.
	StaleAfter time.Duration
	// RetryCount is the number of extra attempts for a failing fetch. Negative disables retries.
	RetryCount int
	// RetryDelay is the first backoff delay, doubled per attempt.
	RetryDelay time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Cache stores asynchronous fetch results keyed by Key.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	nextID     int64
	staleAfter time.Duration
	retryCount int
	retryDelay time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

type entry struct {
	key           Key
	data          any
	hasData       bool
	status        Status
	err           error
	updatedAt     time.Time
	stale         bool
	fetching      bool
	refetchQueued bool
	fetcher       func(context.Context) (any, error)
	noRetry       bool
	subscribers   map[int64]*subscriber
}

type subscriber struct {
	id      int64
	enabled bool
	changed chan struct{}
}

// NewCache constructs a cache with defaults applied.
func NewCache(cfg Config) *Cache {
	retryCount := cfg.RetryCount
	if retryCount == 0 {
		retryCount = defaultRetryCount
	}
	if retryCount < 0 {
		retryCount = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Cache{
		entries:    make(map[string]*entry),
		staleAfter: cfg.StaleAfter,
		retryCount: retryCount,
		retryDelay: retryDelay,
		clock:      clock,
		logger:     logger,
	}
}

// Invalidate marks the entry stale. An entry with an enabled subscriber is refetched exactly once;
// otherwise the refetch happens on the next subscription.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.entries[key.String()]
	if !ok {
		return
	}
	current.stale = true
	if current.fetching {
		current.refetchQueued = true
		return
	}
	if c.activeLocked(current) {
		c.startFetchLocked(current)
	}
}

// Subscribe registers interest in key. When opts.Enabled is set and the entry has no fresh data,
// a fetch is started unless one is already in flight for the key.
func Subscribe[T any](c *Cache, key Key, fetch Fetcher[T], opts Options) *Subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.entryLocked(key)
	if fetch != nil {
		current.fetcher = func(ctx context.Context) (any, error) {
			return fetch(ctx)
		}
	}
	current.noRetry = opts.NoRetry

	c.nextID++
	registered := &subscriber{
		id:      c.nextID,
		enabled: opts.Enabled,
		changed: make(chan struct{}, 1),
	}
	current.subscribers[registered.id] = registered

	if registered.enabled && c.needsFetchLocked(current) {
		c.startFetchLocked(current)
	}

	return &Subscription[T]{cache: c, entry: current, subscriber: registered}
}

func (c *Cache) entryLocked(key Key) *entry {
	index := key.String()
	current, ok := c.entries[index]
	if !ok {
		current = &entry{
			key:         NewKey(key...),
			status:      StatusPending,
			subscribers: make(map[int64]*subscriber),
		}
		c.entries[index] = current
	}
	return current
}

func (c *Cache) activeLocked(current *entry) bool {
	if current.fetcher == nil {
		return false
	}
	for _, registered := range current.subscribers {
		if registered.enabled {
			return true
		}
	}
	return false
}

func (c *Cache) needsFetchLocked(current *entry) bool {
	if current.fetching || current.fetcher == nil {
		return false
	}
	if !current.hasData || current.stale || current.status == StatusError {
		return true
	}
	if c.staleAfter > 0 && c.clock().Sub(current.updatedAt) >= c.staleAfter {
		return true
	}
	return false
}

func (c *Cache) startFetchLocked(current *entry) {
	current.fetching = true
	current.stale = false
	retries := c.retryCount
	if current.noRetry {
		retries = 0
	}
	fetcher := current.fetcher
	c.notifyLocked(current)
	go c.runFetch(current, fetcher, retries)
}

func (c *Cache) runFetch(current *entry, fetcher func(context.Context) (any, error), retries int) {
	index := current.key.String()
	value, err := c.fetchWithRetry(current.key, fetcher, retries)

	c.mu.Lock()
	defer c.mu.Unlock()

	current.fetching = false
	if err != nil {
		current.status = StatusError
		current.err = err
		c.logger.Warn("query fetch failed",
			zap.String("key", index),
			zap.Bool("has_data", current.hasData),
			zap.Error(err))
	} else {
		current.data = value
		current.hasData = true
		current.status = StatusReady
		current.err = nil
		current.updatedAt = c.clock()
	}

	if current.refetchQueued {
		current.refetchQueued = false
		if c.activeLocked(current) {
			c.startFetchLocked(current)
			return
		}
		current.stale = true
	}
	c.notifyLocked(current)
}

func (c *Cache) fetchWithRetry(key Key, fetcher func(context.Context) (any, error), retries int) (any, error) {
	// Fetches outlive their subscribers so the result is there for the next one.
	ctx := context.Background()
	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("query fetch retry",
				zap.String("key", key.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			time.Sleep(delay)
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}
		value, err := fetcher(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Cache) notifyLocked(current *entry) {
	for _, registered := range current.subscribers {
		select {
		case registered.changed <- struct{}{}:
		default:
		}
	}
}
