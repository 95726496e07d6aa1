// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	lru "github.com/hashicorp/golang-lru"
)

// countingCache wraps an LRU cache with the hit/miss counters spec.md
// §4.12 requires the storage engine to expose. Misses fall back to
// disk in the caller (Store.GetBlock et al.); the cache itself never
// touches the filesystem.
type countingCache struct {
	lru    *lru.Cache
	hits   uint64
	misses uint64
}

func newCountingCache(entries int) *countingCache {
	c, err := lru.New(entries)
	if err != nil {
		// Only occurs for entries <= 0, which every caller below
		// guards against with a validated config value.
		panic(err)
	}
	return &countingCache{lru: c}
}

func (c *countingCache) get(key interface{}) (interface{}, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *countingCache) add(key, value interface{}) {
	c.lru.Add(key, value)
}

func (c *countingCache) remove(key interface{}) {
	c.lru.Remove(key)
}

// CacheStats reports hit/miss counters for a cache (spec.md §4.12).
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

func (c *countingCache) stats() CacheStats {
	return CacheStats{Hits: c.hits, Misses: c.misses, Len: c.lru.Len()}
}
