// Package store keeps the site's collections (settings, chat sessions, pages,
// media, leads). Each collection is one JSON document; every write reads the
// whole document, changes it in memory and writes it back.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bouwsite/internal/events"
	"bouwsite/internal/metrics"
	"bouwsite/internal/storage"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Backend persists one blob per key with compare-and-swap versions.
// *storage.Store implements it.
type Backend interface {
	Load(ctx context.Context, key string) (storage.Blob, error)
	Put(ctx context.Context, key string, value []byte, expectVersion int64) (int64, error)
}

type Options struct {
	Backend Backend
	Events  events.Publisher
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Events == nil {
		o.Events = nopPublisher{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Global()
	}
	return o
}

type nopPublisher struct{}

func (nopPublisher) Publish(string) {}

// Collection is a list of T stored under a single key. Writes within one
// process are serialised; a concurrent writer in another process makes the
// write fail with storage.ErrConflict instead of being overwritten.
type Collection[T any] struct {
	key      string
	event    string
	idOf     func(T) string
	maxBytes int
	opts     Options
	mu       sync.Mutex
}

func newCollection[T any](opts Options, key, event string, idOf func(T) string) *Collection[T] {
	return &Collection[T]{
		key:   key,
		event: event,
		idOf:  idOf,
		opts:  opts.withDefaults(),
	}
}

// All returns every item. A missing or undecodable document reads as empty.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	items, _, err := c.load(ctx)
	return items, err
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	items, _, err := c.load(ctx)
	if err != nil {
		return zero, err
	}
	for _, it := range items {
		if c.idOf(it) == id {
			return it, nil
		}
	}
	return zero, ErrNotFound
}

// Save replaces the item with the same id or appends it.
func (c *Collection[T]) Save(ctx context.Context, item T) error {
	id := c.idOf(item)
	if id == "" {
		return fmt.Errorf("save %s: empty id", c.key)
	}
	return c.mutate(ctx, func(items []T) ([]T, error) {
		for i := range items {
			if c.idOf(items[i]) == id {
				items[i] = item
				return items, nil
			}
		}
		return append(items, item), nil
	})
}

// Update applies fn to the stored item with id and writes the result.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var out T
	err := c.mutate(ctx, func(items []T) ([]T, error) {
		for i := range items {
			if c.idOf(items[i]) != id {
				continue
			}
			if err := fn(&items[i]); err != nil {
				return nil, err
			}
			out = items[i]
			return items, nil
		}
		return nil, ErrNotFound
	})
	return out, err
}

// Delete removes the item with id; ErrNotFound leaves the document untouched.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, func(items []T) ([]T, error) {
		out := make([]T, 0, len(items))
		for _, it := range items {
			if c.idOf(it) != id {
				out = append(out, it)
			}
		}
		if len(out) == len(items) {
			return nil, ErrNotFound
		}
		return out, nil
	})
}

// Clear empties the collection.
func (c *Collection[T]) Clear(ctx context.Context) error {
	return c.mutate(ctx, func([]T) ([]T, error) {
		return []T{}, nil
	})
}

func (c *Collection[T]) load(ctx context.Context) ([]T, int64, error) {
	blob, err := c.opts.Backend.Load(ctx, c.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []T{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", c.key, err)
	}

	var items []T
	if err := json.Unmarshal(blob.Value, &items); err != nil {
		c.opts.Logger.Warn().Err(err).Str("store", c.key).Int64("version", blob.Version).Msg("stored collection is not valid JSON, treating as empty")
		c.opts.Metrics.StoreCorruptReads.WithLabelValues(c.key).Inc()
		return []T{}, blob.Version, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, blob.Version, nil
}

func (c *Collection[T]) mutate(ctx context.Context, fn func([]T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, version, err := c.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if c.maxBytes > 0 && len(b) > c.maxBytes {
		return fmt.Errorf("%s would be %d bytes, limit %d: %w", c.key, len(b), c.maxBytes, ErrQuotaExceeded)
	}
	if _, err := c.opts.Backend.Put(ctx, c.key, b, version); err != nil {
		return fmt.Errorf("write %s: %w", c.key, err)
	}

	c.opts.Metrics.StoreWrites.WithLabelValues(c.key).Inc()
	c.opts.Events.Publish(c.event)
	return nil
}

// NewID returns a time-ordered unique id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
