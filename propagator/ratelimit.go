// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package propagator

import (
	"time"

	"github.com/meshchain/meshchain/chain"
)

// Default token-bucket parameters (spec.md §4.8).
const (
	DefaultRateLimit  = 10
	DefaultRateWindow = 60 * time.Second
)

type bucket struct {
	count      int
	windowFrom time.Time
}

// RateLimiter is a per-peer token bucket gating outbound propagation
// (spec.md §4.8 "Rate limiter").
type RateLimiter struct {
	limit       int
	window      time.Duration
	buckets     map[chain.NodeID]*bucket
	rateLimited uint64
}

// NewRateLimiter constructs a limiter allowing limit sends per window,
// per peer.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{limit: limit, window: window, buckets: make(map[chain.NodeID]*bucket)}
}

// CheckRateLimit atomically refills peer's bucket if its window has
// elapsed, then admits the send if the peer is under its limit.
// Rejected sends increment RateLimited and must be dropped by the
// caller, not queued (spec.md §4.8 check_rate_limit).
func (r *RateLimiter) CheckRateLimit(id chain.NodeID, now time.Time) bool {
	b, ok := r.buckets[id]
	if !ok || now.Sub(b.windowFrom) >= r.window {
		b = &bucket{count: 0, windowFrom: now}
		r.buckets[id] = b
	}
	if b.count >= r.limit {
		r.rateLimited++
		return false
	}
	b.count++
	return true
}

// RateLimited returns the count of sends rejected by rate limiting.
func (r *RateLimiter) RateLimited() uint64 { return r.rateLimited }
