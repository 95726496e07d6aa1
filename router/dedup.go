// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package router implements message deduplication, broadcast-flood
// control, and per-destination route selection (spec.md §4.7).
package router

import (
	"time"

	"github.com/meshchain/meshchain/chain"
)

// Default timers (spec.md §4.7).
const (
	DefaultMessageTimeout    = 60 * time.Second
	DefaultBroadcastTimeout  = 300 * time.Second
	DefaultFloodMinInterval  = 5 * time.Second
	DefaultRouteTimeout      = 300 * time.Second
	DefaultMaxHops           = 3
	DefaultCleanupInterval   = 30 * time.Second
)

// MessageHash is the deduplication key -- a transaction or block's
// truncated hash, both 16 bytes wide (chain.TxID and chain.BlockHash
// share that width).
type MessageHash [16]byte

type seenEntry struct {
	firstSender chain.NodeID
	firstSeen   time.Time
}

// DedupTable tracks recently-seen message hashes so a flooded message
// is processed exactly once per node (spec.md §4.7 seen messages).
type DedupTable struct {
	timeout time.Duration
	seen    map[MessageHash]seenEntry
	dropped uint64
}

// NewDedupTable constructs a table purging entries after timeout.
func NewDedupTable(timeout time.Duration) *DedupTable {
	if timeout <= 0 {
		timeout = DefaultMessageTimeout
	}
	return &DedupTable{timeout: timeout, seen: make(map[MessageHash]seenEntry)}
}

// Observe records hash as seen from sender if it is new, returning true
// if this is the first receipt (caller should process it) or false if
// it is a duplicate (caller should drop it and the drop counter is
// bumped).
func (d *DedupTable) Observe(hash MessageHash, sender chain.NodeID, now time.Time) bool {
	if e, ok := d.seen[hash]; ok && now.Sub(e.firstSeen) <= d.timeout {
		d.dropped++
		return false
	}
	d.seen[hash] = seenEntry{firstSender: sender, firstSeen: now}
	return true
}

// Dropped returns the count of duplicate receipts dropped.
func (d *DedupTable) Dropped() uint64 { return d.dropped }

// Purge evicts entries older than the table's timeout.
func (d *DedupTable) Purge(now time.Time) int {
	removed := 0
	for h, e := range d.seen {
		if now.Sub(e.firstSeen) > d.timeout {
			delete(d.seen, h)
			removed++
		}
	}
	return removed
}

// BroadcastCache rate-limits re-flooding of the same message (spec.md
// §4.7 broadcast cache).
type BroadcastCache struct {
	timeout      time.Duration
	floodMinGap  time.Duration
	lastFlooded  map[MessageHash]time.Time
}

// NewBroadcastCache constructs a cache purging entries after timeout.
func NewBroadcastCache(timeout, floodMinInterval time.Duration) *BroadcastCache {
	if timeout <= 0 {
		timeout = DefaultBroadcastTimeout
	}
	if floodMinInterval <= 0 {
		floodMinInterval = DefaultFloodMinInterval
	}
	return &BroadcastCache{
		timeout:     timeout,
		floodMinGap: floodMinInterval,
		lastFlooded: make(map[MessageHash]time.Time),
	}
}

// ShouldBroadcastFlood reports whether hash may be (re)flooded now,
// true iff it has not been flooded within flood_min_interval. It does
// not itself record the flood -- call RecordFlood after sending.
func (c *BroadcastCache) ShouldBroadcastFlood(hash MessageHash, now time.Time) bool {
	last, ok := c.lastFlooded[hash]
	return !ok || now.Sub(last) >= c.floodMinGap
}

// RecordFlood marks hash as flooded at now.
func (c *BroadcastCache) RecordFlood(hash MessageHash, now time.Time) {
	c.lastFlooded[hash] = now
}

// Purge evicts entries older than the cache's timeout.
func (c *BroadcastCache) Purge(now time.Time) int {
	removed := 0
	for h, t := range c.lastFlooded {
		if now.Sub(t) > c.timeout {
			delete(c.lastFlooded, h)
			removed++
		}
	}
	return removed
}
