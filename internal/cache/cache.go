// Package cache memoizes renderable collections per merged collection,
// predicate and tolerance.
package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/woozymasta/geoshard/internal/geo"
	"github.com/woozymasta/geoshard/internal/render"
)

// Key identifies one renderable collection.
// Src is set only for collections without a content ID; holding the
// reference keeps its address from being reused while the entry lives.
type Key struct {
	Collection string
	Predicate  string
	Tolerance  float64
	Src        *geo.Collection
}

func (k Key) String() string {
	return k.Collection + "\x00" + k.Predicate + "\x00" + strconv.FormatFloat(k.Tolerance, 'g', -1, 64)
}

// BuildFunc computes a renderable collection. It defaults to render.Build.
type BuildFunc func(c *geo.Collection, p render.Predicate, tolerance float64) (*geo.Collection, render.BuildStats)

// Cache holds at most one renderable collection per key for the process lifetime.
// Concurrent requests for the same key share a single computation; requests
// for distinct keys proceed independently. Entries are never evicted.
type Cache struct {
	build   BuildFunc
	group   singleflight.Group
	entries map[Key]*geo.Collection
	mu      sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
	builds atomic.Int64
}

// Stats holds cache counters.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Builds  int64 `json:"builds"`
}

// New creates a cache using build, or render.Build when build is nil.
func New(build BuildFunc) *Cache {
	if build == nil {
		build = render.Build
	}

	return &Cache{
		build:   build,
		entries: make(map[Key]*geo.Collection),
	}
}

// KeyFor returns the cache key for the given inputs.
func KeyFor(c *geo.Collection, p render.Predicate, tolerance float64) Key {
	// -0 and 0 are the same map key and must share one flight
	if tolerance == 0 {
		tolerance = 0
	}

	key := Key{
		Collection: c.Identity(),
		Predicate:  p.Key(),
		Tolerance:  tolerance,
	}
	if c.ID == "" {
		key.Src = c
	}
	return key
}

// Get returns the renderable collection for c, p and tolerance, computing it at most once.
// Waiting callers return early with ctx.Err() when ctx ends; the computation itself
// still completes and is stored.
func (c *Cache) Get(ctx context.Context, src *geo.Collection, p render.Predicate, tolerance float64) (*geo.Collection, error) {
	key := KeyFor(src, p, tolerance)

	if rc, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return rc, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// another flight may have stored the entry between lookup and DoChan
		if rc, ok := c.lookup(key); ok {
			return rc, nil
		}

		c.builds.Add(1)
		rc, stats := c.build(src, p, key.Tolerance)

		c.mu.Lock()
		c.entries[key] = rc
		c.mu.Unlock()

		log.Debug().
			Str("collection", key.Collection).
			Str("predicate", key.Predicate).
			Float64("tolerance", key.Tolerance).
			Int("features", stats.Matched).
			Msg("Render cache entry built")

		return rc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*geo.Collection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) lookup(key Key) (*geo.Collection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rc, ok := c.entries[key]
	return rc, ok
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Builds:  c.builds.Load(),
	}
}
