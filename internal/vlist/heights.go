package vlist

// HeightChange records an accepted height update. Had reports whether the
// key carried a cached height before the update; when false, Old is 0 and
// the item was previously laid out at the estimated height.
type HeightChange struct {
	Key string
	Old int
	New int
	Had bool
}

// HeightCache maps item identity to the last measured height. It is the
// source of truth for layout. Not safe for concurrent use; confine it to
// the UI loop that owns the engine.
type HeightCache struct {
	heights map[string]int
	version uint64
}

// NewHeightCache returns an empty cache.
func NewHeightCache() *HeightCache {
	return &HeightCache{heights: make(map[string]int)}
}

// Get returns the cached height for key.
func (c *HeightCache) Get(key string) (int, bool) {
	h, ok := c.heights[key]
	return h, ok
}

// Len returns the number of cached entries.
func (c *HeightCache) Len() int {
	return len(c.heights)
}

// Version increments on every accepted mutation. Derived layout is
// memoized against it.
func (c *HeightCache) Version() uint64 {
	return c.version
}

// Update stores a measured height for key and reports what changed.
// Heights <= 0 are measurement artifacts from content that was not laid
// out when measured; they are rejected without touching cached state.
// Updating to the already-cached value is a no-op.
func (c *HeightCache) Update(key string, height int) (HeightChange, bool) {
	if height <= 0 {
		return HeightChange{}, false
	}
	old, had := c.heights[key]
	if had && old == height {
		return HeightChange{}, false
	}
	c.heights[key] = height
	c.version++
	return HeightChange{Key: key, Old: old, New: height, Had: had}, true
}

// Remove deletes the cached height for key.
func (c *HeightCache) Remove(key string) bool {
	if _, ok := c.heights[key]; !ok {
		return false
	}
	delete(c.heights, key)
	c.version++
	return true
}

// Restore merges a previously captured snapshot into the cache verbatim.
// Snapshots may carry zero heights (for example from a file written while
// the source view was hidden); InvalidateZeroHeights cleans those up.
func (c *HeightCache) Restore(heights map[string]int) {
	if len(heights) == 0 {
		return
	}
	for k, h := range heights {
		c.heights[k] = h
	}
	c.version++
}

// Snapshot returns a copy of the cached heights for persistence.
func (c *HeightCache) Snapshot() map[string]int {
	out := make(map[string]int, len(c.heights))
	for k, h := range c.heights {
		out[k] = h
	}
	return out
}

// InvalidateZeroHeights deletes exactly the entries cached as 0 and
// returns how many were removed.
func (c *HeightCache) InvalidateZeroHeights() int {
	removed := 0
	for k, h := range c.heights {
		if h == 0 {
			delete(c.heights, k)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	return removed
}

// Prune deletes entries whose key is not in keep and returns how many
// were removed. Called after the item sequence changes so the cache does
// not grow unbounded across long sessions.
func (c *HeightCache) Prune(keep map[string]struct{}) int {
	removed := 0
	for k := range c.heights {
		if _, ok := keep[k]; !ok {
			delete(c.heights, k)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	return removed
}
