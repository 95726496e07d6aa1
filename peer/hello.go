// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"time"

	"github.com/meshchain/meshchain/chain"
)

// DefaultHeightRegressionTolerance bounds how far a PeerHello's claimed
// height may regress below the last height seen from that peer within
// the staleness window before it is treated as a replay (supplemented
// feature, spec.md §C item 3).
const DefaultHeightRegressionTolerance = 2

// DefaultHelloStalenessWindow is how long a previously-seen height
// remains eligible for the regression check.
const DefaultHelloStalenessWindow = 5 * time.Minute

// helloRecord tracks the last height and timestamp seen from each peer
// for replay detection, independent of the peer table's own LastSeen
// bookkeeping (which a stale replay would otherwise refresh).
type helloRecord struct {
	height uint32
	seenAt time.Time
}

// HelloGuard rejects a replayed stale PeerHello -- one claiming a
// block_height that regresses more than a tolerance below the last
// height genuinely seen from that peer within the staleness window
// (grounded on original_source/network/peer_discovery.py; not in
// spec.md's invariant list, see SPEC_FULL.md §C item 3).
type HelloGuard struct {
	tolerance uint32
	window    time.Duration
	last      map[chain.NodeID]helloRecord
}

// NewHelloGuard constructs a guard with the given tolerance and
// staleness window.
func NewHelloGuard(tolerance uint32, window time.Duration) *HelloGuard {
	if window <= 0 {
		window = DefaultHelloStalenessWindow
	}
	return &HelloGuard{tolerance: tolerance, window: window, last: make(map[chain.NodeID]helloRecord)}
}

// Accept reports whether a PeerHello from id claiming claimedHeight
// should be accepted. On acceptance (or when no prior record exists,
// or the prior record has fallen outside the staleness window), the
// record is updated to reflect this hello.
func (g *HelloGuard) Accept(id chain.NodeID, claimedHeight uint32, now time.Time) bool {
	prev, ok := g.last[id]
	if !ok || now.Sub(prev.seenAt) > g.window {
		g.last[id] = helloRecord{height: claimedHeight, seenAt: now}
		return true
	}

	if claimedHeight+g.tolerance < prev.height {
		return false
	}

	if claimedHeight > prev.height {
		g.last[id] = helloRecord{height: claimedHeight, seenAt: now}
	} else {
		g.last[id] = helloRecord{height: prev.height, seenAt: now}
	}
	return true
}
