package nodestore

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// NegativeCache tracks nodes that are known to be missing from the store,
// so repeated lookups for absent hashes do not reach the backend.
type NegativeCache struct {
	entries *cache.Cache
	ttl     time.Duration

	stats struct {
		hits        atomic.Int64
		misses      atomic.Int64
		insertions  atomic.Int64
		expirations atomic.Int64
	}
}

// NewNegativeCache creates a negative cache whose entries live for ttl.
// Expired entries are dropped by Sweep; there is no background janitor.
func NewNegativeCache(ttl time.Duration) *NegativeCache {
	return &NegativeCache{
		entries: cache.New(ttl, 0),
		ttl:     ttl,
	}
}

func negativeKey(hash Hash256) string {
	return string(hash[:])
}

// MarkMissing records that a node is not present in the store.
func (nc *NegativeCache) MarkMissing(hash Hash256) {
	if nc.ttl <= 0 {
		return
	}
	nc.entries.SetDefault(negativeKey(hash), struct{}{})
	nc.stats.insertions.Add(1)
}

// IsMissing reports whether hash is known to be missing.
func (nc *NegativeCache) IsMissing(hash Hash256) bool {
	if _, found := nc.entries.Get(negativeKey(hash)); found {
		nc.stats.hits.Add(1)
		return true
	}
	nc.stats.misses.Add(1)
	return false
}

// Remove forgets hash. Called when the node is stored.
func (nc *NegativeCache) Remove(hash Hash256) {
	nc.entries.Delete(negativeKey(hash))
}

// Clear removes all entries.
func (nc *NegativeCache) Clear() {
	nc.entries.Flush()
}

// Sweep removes expired entries and returns how many were dropped.
func (nc *NegativeCache) Sweep() int {
	before := nc.entries.ItemCount()
	nc.entries.DeleteExpired()
	removed := before - nc.entries.ItemCount()
	if removed < 0 {
		removed = 0
	}
	nc.stats.expirations.Add(int64(removed))
	return removed
}

// Size returns the current number of entries, including expired ones not
// yet swept.
func (nc *NegativeCache) Size() int {
	return nc.entries.ItemCount()
}

// Stats returns statistics about the negative cache.
func (nc *NegativeCache) Stats() NegativeCacheStats {
	return NegativeCacheStats{
		Hits:        nc.stats.hits.Load(),
		Misses:      nc.stats.misses.Load(),
		Insertions:  nc.stats.insertions.Load(),
		Expirations: nc.stats.expirations.Load(),
		Size:        nc.Size(),
		TTL:         nc.ttl,
	}
}

// NegativeCacheStats holds statistics for the negative cache.
type NegativeCacheStats struct {
	Hits        int64
	Misses      int64
	Insertions  int64
	Expirations int64
	Size        int
	TTL         time.Duration
}

// HitRate returns the cache hit rate as a percentage.
func (s NegativeCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// String returns a formatted string representation of the statistics.
func (s NegativeCacheStats) String() string {
	return fmt.Sprintf("NegativeCache: %d entries, %d hits, %d misses (%.2f%% hit rate), %d expired, ttl %v",
		s.Size, s.Hits, s.Misses, s.HitRate(), s.Expirations, s.TTL)
}
