// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package propagator

import (
	"time"

	"github.com/meshchain/meshchain/chain"
)

// Propagator is the single instance that owns a node's outbound
// priority queues, per-peer rate limiter, and its own block dedup set
// (spec.md §4.8). Its seen_blocks set is distinct from the router's
// message dedup table: it exists to stop a node from re-broadcasting a
// block it itself already emitted, keyed on block hash rather than on
// the wire-frame hash the router dedups.
type Propagator struct {
	queues      *Queues
	rateLimiter *RateLimiter
	seenBlocks  map[chain.BlockHash]bool
}

// New constructs a Propagator with default queue capacities and rate
// limiter parameters.
func New() *Propagator {
	return &Propagator{
		queues:      NewQueues(),
		rateLimiter: NewRateLimiter(DefaultRateLimit, DefaultRateWindow),
		seenBlocks:  make(map[chain.BlockHash]bool),
	}
}

// HasEmitted reports whether hash has already been emitted by this
// node's propagator.
func (p *Propagator) HasEmitted(hash chain.BlockHash) bool {
	return p.seenBlocks[hash]
}

// PropagateBlock queues b for broadcast at Critical priority, unless
// this node has already emitted it. Returns false if it was a
// duplicate emission or the queue rejected it (full, dropped).
func (p *Propagator) PropagateBlock(hash chain.BlockHash, bytes []byte) bool {
	if p.seenBlocks[hash] {
		return false
	}
	p.seenBlocks[hash] = true
	return p.queues.Queue(Message{Bytes: bytes}, Critical)
}

// PropagateTransaction queues a transaction for broadcast at Normal
// priority (consensus-affecting messages -- blocks, votes -- use
// Critical/High; routine transaction relay does not need to starve
// them).
func (p *Propagator) PropagateTransaction(bytes []byte) bool {
	return p.queues.Queue(Message{Bytes: bytes}, Normal)
}

// SendTo gates a send to peer through the rate limiter before letting
// the caller hand msg to the router/codec layer; a rejected send must
// be dropped, not queued (spec.md §4.8).
func (p *Propagator) SendTo(peerID chain.NodeID, now time.Time) bool {
	return p.rateLimiter.CheckRateLimit(peerID, now)
}

// Next drains the highest-priority queued message, if any.
func (p *Propagator) Next() (Message, bool) {
	return p.queues.Next()
}

// Queues exposes the underlying priority queues for callers that need
// per-priority introspection (drop counts, lane lengths).
func (p *Propagator) Queues() *Queues { return p.queues }

// RateLimiter exposes the underlying per-peer rate limiter.
func (p *Propagator) RateLimiter() *RateLimiter { return p.rateLimiter }
