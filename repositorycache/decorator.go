package repositorycache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-bgg-cache/cache"
	"github.com/goliatone/go-bgg-cache/query"
	"github.com/goliatone/go-bgg-cache/thing"
)

// Key prefixes of cached reads.
const (
	MethodFind = "Find"
	MethodGet  = "Get"
)

// Finder is the read side of the record store.
type Finder interface {
	Find(ctx context.Context, ids []string, spec query.Spec) ([]*thing.Thing, error)
	Get(ctx context.Context, id string) (*thing.Thing, error)
}

// errSuperseded marks a fetch that overlapped an invalidation. Nothing is
// stored and the caller reads through again.
var errSuperseded = errors.New("read superseded by invalidation")

// CachedFinder decorates a Finder with a read-through cache.
//
// Cached results are shared between callers and must be treated as read
// only. Errors are never cached. Every invalidation bumps a generation
// counter, and a fetch that was running while the counter moved is not
// stored, so rows read before a refresh write cannot outlive it in the cache.
type CachedFinder struct {
	base          Finder
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	keyRegistry   *sync.Map
	generation    atomic.Uint64
	logger        *slog.Logger
}

var _ Finder = (*CachedFinder)(nil)

// Option configures a CachedFinder.
type Option func(*CachedFinder)

// WithLogger sets the logger used for invalidation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CachedFinder) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New wraps base with caching.
func New(base Finder, cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedFinder {
	if keySerializer == nil {
		keySerializer = cache.NewDefaultKeySerializer()
	}
	c := &CachedFinder{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		keyRegistry:   &sync.Map{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Find returns the cached result for the same id set and spec, or reads
// through to the base finder. Input order and duplicates do not affect the
// key since the result order is decided by the spec.
func (c *CachedFinder) Find(ctx context.Context, ids []string, spec query.Spec) ([]*thing.Thing, error) {
	key := c.keySerializer.SerializeKey(MethodFind, normalizeIDs(ids), spec)
	c.trackKey(key)

	gen := c.generation.Load()
	things, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) ([]*thing.Thing, error) {
		things, err := c.base.Find(ctx, ids, spec)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() != gen {
			return nil, errSuperseded
		}
		return things, nil
	})
	if errors.Is(err, errSuperseded) {
		c.logger.Debug("read overlapped invalidation, not cached", "key", key)
		return c.base.Find(ctx, ids, spec)
	}
	return things, err
}

// Get returns one record through the cache.
func (c *CachedFinder) Get(ctx context.Context, id string) (*thing.Thing, error) {
	key := c.getKey(id)
	c.trackKey(key)

	gen := c.generation.Load()
	t, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (*thing.Thing, error) {
		t, err := c.base.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() != gen {
			return nil, errSuperseded
		}
		return t, nil
	})
	if errors.Is(err, errSuperseded) {
		return c.base.Get(ctx, id)
	}
	return t, err
}

// InvalidateIDs drops the single-record reads of ids and every cached Find,
// since any of them may include the changed records.
func (c *CachedFinder) InvalidateIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.generation.Add(1)

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		key := c.getKey(id)
		keys = append(keys, key)
		c.keyRegistry.Delete(key)
	}
	if err := c.cache.InvalidateKeys(ctx, keys); err != nil {
		return err
	}
	return c.invalidateByPrefix(ctx, MethodFind+cache.KeySeparator)
}

// Invalidate drops every cached read.
func (c *CachedFinder) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	if err := c.invalidateByPrefix(ctx, MethodFind+cache.KeySeparator); err != nil {
		return err
	}
	return c.invalidateByPrefix(ctx, MethodGet+cache.KeySeparator)
}

// TrackedKeys returns the number of keys currently registered.
func (c *CachedFinder) TrackedKeys() int {
	n := 0
	c.keyRegistry.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *CachedFinder) getKey(id string) string {
	return c.keySerializer.SerializeKey(MethodGet, strings.TrimSpace(id))
}

func (c *CachedFinder) trackKey(key string) {
	c.keyRegistry.Store(key, struct{}{})
}

// invalidateByPrefix removes every registered key starting with prefix.
// A failed delete is logged and the remaining keys are still dropped.
func (c *CachedFinder) invalidateByPrefix(ctx context.Context, prefix string) error {
	var keysToDelete []string
	c.keyRegistry.Range(func(k, _ any) bool {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
		return true
	})

	var firstErr error
	for _, key := range keysToDelete {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.Warn("read cache delete failed", "key", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		c.keyRegistry.Delete(key)
	}
	return firstErr
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
