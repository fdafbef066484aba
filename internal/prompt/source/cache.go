package source

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

// fetchTimeout bounds a shared backend read, which outlives the caller that
// started it.
const fetchTimeout = 5 * time.Second

type cacheEntry struct {
	cfg       prompt.Config
	found     bool
	expiresAt time.Time
}

// CachedStore fronts a slower Store with a TTL cache. Misses are cached too so
// a fallback walk over a remote store costs at most one round trip per key per
// TTL, and concurrent misses on the same key collapse into one backend call.
type CachedStore struct {
	backend prompt.Store
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
	// gen is bumped by Set so a read that started earlier cannot store a
	// stale result.
	gen map[string]uint64
}

// NewCachedStore returns backend unchanged when ttl is not positive.
func NewCachedStore(backend prompt.Store, ttl time.Duration) prompt.Store {
	if ttl <= 0 {
		return backend
	}
	return &CachedStore{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		gen:     make(map[string]uint64),
	}
}

func (c *CachedStore) lookup(id string, now time.Time) (cacheEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return cacheEntry{}, false
	}
	if e.expiresAt.After(now) {
		return e, true
	}
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return cacheEntry{}, false
}

func (c *CachedStore) Get(ctx context.Context, key prompt.Key) (prompt.Config, bool, error) {
	id := key.String()
	if e, ok := c.lookup(id, c.now()); ok {
		return e.cfg.Clone(), e.found, nil
	}
	ch := c.group.DoChan(id, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if e, ok := c.lookup(id, c.now()); ok {
			return e, nil
		}
		c.mu.RLock()
		gen := c.gen[id]
		c.mu.RUnlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		cfg, found, err := c.backend.Get(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		e := cacheEntry{cfg: cfg, found: found, expiresAt: c.now().Add(c.ttl)}
		c.mu.Lock()
		if c.gen[id] == gen {
			c.entries[id] = e
		}
		c.mu.Unlock()
		return e, nil
	})
	select {
	case <-ctx.Done():
		return prompt.Config{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return prompt.Config{}, false, r.Err
		}
		e := r.Val.(cacheEntry)
		return e.cfg.Clone(), e.found, nil
	}
}

// Set writes through and drops the cached entry for key. Reads already in
// flight may still return the old value but will not cache it.
func (c *CachedStore) Set(ctx context.Context, key prompt.Key, cfg prompt.Config) error {
	err := c.backend.Set(ctx, key, cfg)
	id := key.String()
	c.mu.Lock()
	delete(c.entries, id)
	c.gen[id]++
	c.mu.Unlock()
	c.group.Forget(id)
	return err
}
