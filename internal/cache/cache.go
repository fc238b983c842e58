// Package cache is a process-wide, key-based cache for backend reads. Any
// component can mark a key stale; the next reader reloads it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is a stored value.
type Entry struct {
	Value    []byte
	StoredAt time.Time
}

// Backend stores cache entries.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Options configures a Cache.
type Options struct {
	// TTL bounds how long an entry is served without reloading. Zero means
	// entries stay fresh until invalidated.
	TTL    time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

type subscription struct {
	id  int
	key string
	fn  func(key string)
}

// Cache de-duplicates concurrent loads of a key and tracks invalidations.
type Cache struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
	subs        []subscription
	nextSubID   int
}

// New creates a cache over backend.
func New(backend Backend, opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		backend:     backend,
		ttl:         opts.TTL,
		logger:      opts.Logger.With("component", "cache"),
		now:         opts.Now,
		generations: make(map[string]uint64),
	}
}

// Fetch returns the cached value for key, loading and storing it when it is
// missing or expired. Concurrent fetches of one key share a single load until
// the key is invalidated; fetches after an invalidation start a new load. A
// load that overlaps an invalidation of its key is returned to the callers
// that joined it but not stored.
//
// The shared load is not canceled with ctx, so load must bound its own
// duration. A caller whose ctx ends stops waiting and gets ctx.Err().
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if entry, ok := c.lookup(ctx, key); ok {
		var out T
		if err := json.Unmarshal(entry.Value, &out); err == nil {
			return out, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
	}

	gen := c.generation(key)
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encoding cache value: %w", err)
		}
		c.store(loadCtx, key, gen, data)
		return data, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}

	var out T
	if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
		return zero, fmt.Errorf("decoding cache value: %w", err)
	}
	return out, nil
}

// Invalidate marks key and all of its query variants (key + "?...") stale and
// notifies subscribers of key. Invalidating an absent key is a no-op.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	c.generations[key]++
	subs := make([]subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.key == key {
			subs = append(subs, sub)
		}
	}
	c.mu.Unlock()

	var firstErr error
	if err := c.backend.Delete(ctx, key); err != nil {
		firstErr = fmt.Errorf("invalidating %s: %w", key, err)
	}
	if _, err := c.backend.DeletePrefix(ctx, key+"?"); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("invalidating %s variants: %w", key, err)
	}

	for _, sub := range subs {
		sub.fn(key)
	}
	return firstErr
}

// Subscribe calls fn after every invalidation of key. The returned function
// removes the subscription.
func (c *Cache) Subscribe(key string, fn func(key string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscription{id: id, key: key, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) store(ctx context.Context, key string, gen uint64, data []byte) {
	if c.generation(key) != gen {
		c.logger.DebugContext(ctx, "discarding load overlapped by invalidation", "key", key)
		return
	}
	if err := c.backend.Put(ctx, key, Entry{Value: data, StoredAt: c.now()}); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

// generation returns the invalidation count of the base key of key.
func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[baseKey(key)]
}

func baseKey(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}
