package shamap

import (
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// DefaultFullBelowExpiration is how long an entry survives without being touched.
const DefaultFullBelowExpiration = 10 * time.Minute

// FullBelowCache remembers the hashes of inner nodes whose entire subtree
// is known to be present in the backing store, so that sync can skip them.
//
// A cache must only be shared by maps that use the same Family. It never
// sweeps itself; the owner calls Sweep periodically.
type FullBelowCache struct {
	cache      *cache.Cache
	generation atomic.Uint32
}

// NewFullBelowCache creates a cache whose entries expire after expiration
// without being touched.
func NewFullBelowCache(expiration time.Duration) *FullBelowCache {
	if expiration <= 0 {
		expiration = DefaultFullBelowExpiration
	}
	c := &FullBelowCache{
		// A zero cleanup interval disables the janitor goroutine.
		cache: cache.New(expiration, 0),
	}
	c.generation.Store(1)
	return c
}

func fullBelowKey(hash [32]byte) string {
	return string(hash[:])
}

// TouchIfExists refreshes the entry for hash and reports whether it was present.
func (c *FullBelowCache) TouchIfExists(hash [32]byte) bool {
	key := fullBelowKey(hash)
	if _, found := c.cache.Get(key); !found {
		return false
	}
	c.cache.SetDefault(key, struct{}{})
	return true
}

// Insert records that the subtree rooted at hash is complete.
func (c *FullBelowCache) Insert(hash [32]byte) {
	c.cache.SetDefault(fullBelowKey(hash), struct{}{})
}

// Generation returns the current generation. Inner nodes stamped with it
// are known to be full below without consulting the cache.
func (c *FullBelowCache) Generation() uint32 {
	return c.generation.Load()
}

// Clear drops every entry and starts a new generation, invalidating the
// full-below marks on resident nodes.
func (c *FullBelowCache) Clear() {
	c.cache.Flush()
	for {
		next := c.generation.Add(1)
		if next != 0 {
			return
		}
	}
}

// Sweep removes expired entries and returns the number remaining.
func (c *FullBelowCache) Sweep() int {
	c.cache.DeleteExpired()
	return c.cache.ItemCount()
}

// Size returns the number of entries, including expired ones not yet swept.
func (c *FullBelowCache) Size() int {
	return c.cache.ItemCount()
}
