// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"crypto/rand"
	"math/big"
	"sort"
	"time"

	"github.com/meshchain/meshchain/chain"
)

// DefaultMaxPeers bounds the peer table (spec.md §4.9).
const DefaultMaxPeers = 100

// Peer is a single remote node's tracked state (spec.md §3).
type Peer struct {
	NodeID      chain.NodeID
	LastSeen    time.Time
	BlockHeight uint32
	Stake       uint64
	HopDistance uint8
	IsValidator bool

	Reputation *Reputation

	// Counters (spec.md §4.9 "increments the matching counter").
	MessagesReceived uint64
	BlocksReceived   uint64
	TxReceived       uint64
	SyncSuccesses    uint64
	SyncFailures     uint64

	// AvgLatencyMS is a running average over successful syncs
	// (spec.md §4.9).
	AvgLatencyMS float64
}

// Table owns the set of known peers exclusively (spec.md §3 Ownership).
type Table struct {
	maxPeers int
	byID     map[chain.NodeID]*Peer
}

// NewTable constructs an empty table bounded at maxPeers.
func NewTable(maxPeers int) *Table {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}
	return &Table{maxPeers: maxPeers, byID: make(map[chain.NodeID]*Peer)}
}

// Upsert records a receipt from id, creating the peer record if new
// and evicting the oldest last_seen peer if the table is full (spec.md
// §4.9).
func (t *Table) Upsert(id chain.NodeID, now time.Time) *Peer {
	if p, ok := t.byID[id]; ok {
		p.LastSeen = now
		return p
	}
	if len(t.byID) >= t.maxPeers {
		t.evictOldest()
	}
	p := &Peer{NodeID: id, LastSeen: now, Reputation: NewReputation(now)}
	t.byID[id] = p
	return p
}

func (t *Table) evictOldest() {
	var oldestID chain.NodeID
	var oldestTime time.Time
	first := true
	for id, p := range t.byID {
		if first || p.LastSeen.Before(oldestTime) {
			oldestID = id
			oldestTime = p.LastSeen
			first = false
		}
	}
	if !first {
		delete(t.byID, oldestID)
	}
}

// Get returns the peer for id, if known.
func (t *Table) Get(id chain.NodeID) (*Peer, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Len returns the number of tracked peers.
func (t *Table) Len() int { return len(t.byID) }

// RecordMessage bumps the message counter for id's receipt tracking.
func (t *Table) RecordMessage(id chain.NodeID, now time.Time) {
	if p, ok := t.byID[id]; ok {
		p.MessagesReceived++
		p.LastSeen = now
	}
}

// RecordBlock bumps the block counter for id.
func (t *Table) RecordBlock(id chain.NodeID, now time.Time) {
	if p, ok := t.byID[id]; ok {
		p.BlocksReceived++
		p.LastSeen = now
	}
}

// RecordTx bumps the transaction counter for id.
func (t *Table) RecordTx(id chain.NodeID, now time.Time) {
	if p, ok := t.byID[id]; ok {
		p.TxReceived++
		p.LastSeen = now
	}
}

// RecordSync updates sync success/failure counters and the running
// latency average over successful syncs (spec.md §4.9).
func (t *Table) RecordSync(id chain.NodeID, success bool, latencyMS float64, now time.Time) {
	p, ok := t.byID[id]
	if !ok {
		return
	}
	p.LastSeen = now
	if !success {
		p.SyncFailures++
		p.Reputation.AddEvent(EventSyncFailure, now)
		return
	}
	p.SyncSuccesses++
	p.Reputation.AddEvent(EventSyncSuccess, now)
	if p.SyncSuccesses == 1 {
		p.AvgLatencyMS = latencyMS
	} else {
		n := float64(p.SyncSuccesses)
		p.AvgLatencyMS += (latencyMS - p.AvgLatencyMS) / n
	}
}

// SelectPeerForSync picks a sync partner from Fair-or-better,
// non-excluded peers, weighted by score/height/latency, falling back
// to a uniform pick if every candidate has zero weight (spec.md §4.9
// select_peer_for_sync).
func (t *Table) SelectPeerForSync(exclude map[chain.NodeID]bool, maxHeight uint32, maxLatencyMS float64, now time.Time) (chain.NodeID, bool) {
	var candidates []*Peer
	for id, p := range t.byID {
		if exclude[id] {
			continue
		}
		if BandFor(p.Reputation.Score(now)) < BandFair {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return chain.NodeID{}, false
	}

	weights := make([]float64, len(candidates))
	var total float64
	for i, p := range candidates {
		heightRatio := 0.0
		if maxHeight > 0 {
			heightRatio = float64(p.BlockHeight) / float64(maxHeight)
		}
		latencyRatio := 0.0
		if maxLatencyMS > 0 {
			latencyRatio = p.AvgLatencyMS / maxLatencyMS
			if latencyRatio > 1 {
				latencyRatio = 1
			}
		}
		w := 0.5*p.Reputation.Score(now) + 0.3*heightRatio + 0.2*(1-latencyRatio)
		weights[i] = w
		total += w
	}

	if total == 0 {
		idx, err := uniformIndex(len(candidates))
		if err != nil {
			return chain.NodeID{}, false
		}
		return candidates[idx].NodeID, true
	}

	r, err := weightedDraw(total)
	if err != nil {
		return chain.NodeID{}, false
	}
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if cumulative >= r {
			return candidates[i].NodeID, true
		}
	}
	return candidates[len(candidates)-1].NodeID, true
}

// SelectPeersForBroadcast returns the top-k peers by reputation score
// among non-excluded peers (spec.md §4.9 select_peers_for_broadcast).
// Every peer in the table is a candidate; LastSeen is not consulted.
func (t *Table) SelectPeersForBroadcast(k int, exclude map[chain.NodeID]bool, now time.Time) []chain.NodeID {
	var candidates []*Peer
	for id, p := range t.byID {
		if !exclude[id] {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Reputation.Score(now) > candidates[j].Reputation.Score(now)
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]chain.NodeID, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].NodeID
	}
	return out
}

func uniformIndex(n int) (int, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}

func weightedDraw(total float64) (float64, error) {
	const precision = 1 << 30
	n, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return 0, err
	}
	return total * float64(n.Int64()) / precision, nil
}
