// Package signercache implements C4: memoization of the elected signer
// set for the current tip, keyed by the electing payload block's index.
//
// Grounded on the original implementation's embedded SignersCache
// struct (memoize-by-index, clear-on-replace). Modeled as a field of
// the chain engine, not a package-level global, per the specification's
// design note on interior mutability of caches.
package signercache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// entryTTL is generous: signer sets are deterministic in F alone and
// only invalidated explicitly by Clear, never by staleness. The TTL is
// a belt-and-braces memory bound, not a correctness mechanism.
const entryTTL = 24 * time.Hour

// Cache memoizes the ordered signer-key vector for a payload block,
// keyed by that block's index.
type Cache struct {
	cache *ttlcache.Cache[uint64, [][]byte]
}

func New() *Cache {
	c := ttlcache.New[uint64, [][]byte](ttlcache.WithTTL[uint64, [][]byte](entryTTL))
	go c.Start()
	return &Cache{cache: c}
}

// Get returns the memoized signer vector for payloadIndex, if present.
func (c *Cache) Get(payloadIndex uint64) ([][]byte, bool) {
	item := c.cache.Get(payloadIndex)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Put memoizes signers for payloadIndex.
func (c *Cache) Put(payloadIndex uint64, signers [][]byte) {
	c.cache.Set(payloadIndex, signers, entryTTL)
}

// Clear drops every memoized entry, called by replace_block/
// truncate_from since a rewritten chain invalidates every election that
// depended on the discarded blocks.
func (c *Cache) Clear() {
	c.cache.DeleteAll()
}

// Stop releases the cache's background eviction goroutine.
func (c *Cache) Stop() {
	c.cache.Stop()
}
