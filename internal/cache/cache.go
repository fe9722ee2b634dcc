package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotFound is returned by a Backend when no entry exists for a key.
var ErrNotFound = errors.New("cache: entry not found")

// Backend persists serialized cache entries under already-hashed keys.
type Backend interface {
	LoadCacheEntry(key string) ([]byte, error)
	SaveCacheEntry(key string, value []byte) error
}

// FaultFunc is called for every cache fault that is downgraded to a miss.
// op is "get" or "put".
type FaultFunc func(op, key string, err error)

// entry is the on-disk representation of a cached value.
type entry[T any] struct {
	Expiration time.Time `json:"expiration"`
	Value      T         `json:"value"`
}

// Cache is a typed view over a Backend.
type Cache[T any] struct {
	backend Backend
	onFault FaultFunc
	logger  *slog.Logger
	now     func() time.Time // injectable for deterministic tests
}

// Option customizes a Cache.
type Option func(*options)

type options struct {
	onFault FaultFunc
	logger  *slog.Logger
	now     func() time.Time
}

// WithFaultFunc registers a hook for faults that were downgraded to misses.
func WithFaultFunc(fn FaultFunc) Option {
	return func(o *options) { o.onFault = fn }
}

// WithLogger sets the logger used for hit/miss debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns a Cache storing values of type T in backend.
func New[T any](backend Backend, opts ...Option) *Cache[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Cache[T]{
		backend: backend,
		onFault: o.onFault,
		logger:  o.logger,
		now:     o.now,
	}
}

// Key returns the storage key derived from a caller-supplied key.
func Key(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// TryGet returns the cached value for key. found is false when the entry is
// absent, expired, or cannot be read for any reason.
func (c *Cache[T]) TryGet(key string) (value T, found bool) {
	var zero T
	hashed := Key(key)

	raw, err := c.backend.LoadCacheEntry(hashed)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.fault("get", key, err)
		} else {
			c.logger.Debug("cache: miss", "key", key)
		}
		return zero, false
	}

	var e entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		c.fault("get", key, fmt.Errorf("decode entry: %w", err))
		return zero, false
	}
	if !e.Expiration.After(c.now()) {
		c.logger.Debug("cache: expired", "key", key, "expired_at", e.Expiration)
		return zero, false
	}

	c.logger.Debug("cache: hit", "key", key)
	return e.Value, true
}

// Put stores value under key until now+ttl. Failures are reported through the
// fault hook and otherwise ignored.
func (c *Cache[T]) Put(key string, value T, ttl time.Duration) {
	raw, err := json.Marshal(entry[T]{Expiration: c.now().Add(ttl), Value: value})
	if err != nil {
		c.fault("put", key, fmt.Errorf("encode entry: %w", err))
		return
	}
	if err := c.backend.SaveCacheEntry(Key(key), raw); err != nil {
		c.fault("put", key, err)
		return
	}
	c.logger.Debug("cache: stored", "key", key, "ttl", ttl)
}

func (c *Cache[T]) fault(op, key string, err error) {
	c.logger.Warn("cache: fault treated as miss", "op", op, "key", key, "err", err)
	if c.onFault != nil {
		c.onFault(op, key, err)
	}
}

// GetOrFetch returns the cached value for key when c holds a fresh one, and
// otherwise calls fetch and caches a successful result for ttl. A nil c
// always calls fetch.
func GetOrFetch[T any](ctx context.Context, c *Cache[T], key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fetch(ctx)
	}
	if v, ok := c.TryGet(key); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	c.Put(key, v, ttl)
	return v, nil
}

// MemoryBackend is an in-process Backend, used when no durable store is
// wanted and in tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) LoadCacheEntry(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) SaveCacheEntry(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Len returns the number of stored entries, including expired ones.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
