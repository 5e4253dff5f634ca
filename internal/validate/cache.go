package validate

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CacheEntry is a cached violation set for a resource at a specific content
// fingerprint. It is valid for presentation only while the live document's
// fingerprint still equals Fingerprint; any edit invalidates it.
type CacheEntry struct {
	Key         ResourceKey
	Fingerprint string
	RequestID   uint64
	Violations  []Violation
	CachedAt    time.Time
}

// ResultCache holds one entry per resource key, consulted before any
// network call: validating unchanged content twice yields the identical
// result without a second round trip. There is no size-based eviction at
// this scale; entries are dropped when the host reports the resource closed
// or on config changes that alter the server identity.
type ResultCache struct {
	store *gocache.Cache
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{store: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the entry for key when its fingerprint matches, absent
// otherwise. A fingerprint mismatch means the document changed and the
// entry is stale for presentation.
func (c *ResultCache) Get(key ResourceKey, fingerprint string) (*CacheEntry, bool) {
	v, ok := c.store.Get(key.String())
	if !ok {
		return nil, false
	}
	entry := v.(*CacheEntry)
	if entry.Fingerprint != fingerprint {
		return nil, false
	}
	return entry, true
}

// Put stores the committed result, superseding any prior entry for the key.
func (c *ResultCache) Put(key ResourceKey, fingerprint string, res *ValidationResult) {
	c.store.Set(key.String(), &CacheEntry{
		Key:         key,
		Fingerprint: fingerprint,
		RequestID:   res.RequestID,
		Violations:  res.Violations,
		CachedAt:    time.Now(),
	}, gocache.NoExpiration)
}

// Invalidate drops the entry for a single key.
func (c *ResultCache) Invalidate(key ResourceKey) {
	c.store.Delete(key.String())
}

// InvalidateResource drops every entry belonging to the resource: the
// whole-file entry plus any selection entries.
func (c *ResultCache) InvalidateResource(resourceID string) {
	for k, item := range c.store.Items() {
		entry := item.Object.(*CacheEntry)
		if entry.Key.ResourceID == resourceID {
			c.store.Delete(k)
		}
	}
}

// InvalidateAll empties the cache. Used when the server URL or project slug
// changes, since cached results from another server identity are
// meaningless.
func (c *ResultCache) InvalidateAll() {
	c.store.Flush()
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	return c.store.ItemCount()
}
