// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempool implements the bounded pending-transaction pool
// (spec.md §4.6): insertion with lowest-fee-rate eviction, staleness
// cleanup, and fee-rate-ordered retrieval for block proposal.
package mempool

import (
	"sort"
	"time"

	"github.com/meshchain/meshchain/chain"
)

// Defaults (spec.md §4.6).
const (
	DefaultMaxCount = 1000
	DefaultMaxBytes = 1 << 20 // 1 MiB
	DefaultMaxAge   = 3600 * time.Second
)

type entry struct {
	tx      *chain.Transaction
	size    int
	addedAt time.Time
}

func (e *entry) feeRate() float64 {
	if e.size == 0 {
		return 0
	}
	return float64(e.tx.Fee) / float64(e.size)
}

// Mempool is the single instance of the pending-transaction set a node
// process owns (spec.md §5 Global state / Shared-resource policy).
type Mempool struct {
	maxCount int
	maxBytes int

	byID  map[chain.TxID]*entry
	order []chain.TxID // insertion order, used to find the oldest entry on a fee-rate tie

	size      int
	totalFees uint64
}

// New constructs an empty mempool with the given bounds. Zero values
// fall back to the spec's defaults.
func New(maxCount, maxBytes int) *Mempool {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Mempool{
		maxCount: maxCount,
		maxBytes: maxBytes,
		byID:     make(map[chain.TxID]*entry),
	}
}

// Count returns the number of pending transactions.
func (m *Mempool) Count() int { return len(m.byID) }

// Size returns the total byte size of pending transactions.
func (m *Mempool) Size() int { return m.size }

// TotalFees returns the sum of fees across pending transactions.
func (m *Mempool) TotalFees() uint64 { return m.totalFees }

// Insert adds tx, evicting the single lowest-fee-rate entry as many
// times as needed to make room (spec.md §4.6 insert). Returns false if
// tx_id is already present.
func (m *Mempool) Insert(tx *chain.Transaction, now time.Time) bool {
	id := tx.Hash()
	if _, exists := m.byID[id]; exists {
		return false
	}

	txSize := len(tx.Encode())
	if m.Count() == m.maxCount {
		if rate, ok := m.lowestFeeRate(); ok && (&entry{tx: tx, size: txSize}).feeRate() <= rate {
			return false
		}
	}
	for m.Count() == m.maxCount || m.size+txSize > m.maxBytes {
		if !m.evictLowestFeeRate() {
			break // pool is empty but still can't fit tx; Append below handles it
		}
	}

	e := &entry{tx: tx, size: txSize, addedAt: now}
	m.byID[id] = e
	m.order = append(m.order, id)
	m.size += txSize
	m.totalFees += uint64(tx.Fee)
	return true
}

// lowestFeeRate reports the fee rate of the current worst entry, and
// false if the pool is empty.
func (m *Mempool) lowestFeeRate() (float64, bool) {
	if len(m.order) == 0 {
		return 0, false
	}
	worst := m.byID[m.order[0]].feeRate()
	for _, id := range m.order[1:] {
		if rate := m.byID[id].feeRate(); rate < worst {
			worst = rate
		}
	}
	return worst, true
}

// evictLowestFeeRate removes the single entry with the lowest fee
// rate, breaking ties by oldest insertion order. Returns false if the
// pool is already empty.
func (m *Mempool) evictLowestFeeRate() bool {
	if len(m.order) == 0 {
		return false
	}
	worstIdx := -1
	var worstRate float64
	for i, id := range m.order {
		e := m.byID[id]
		rate := e.feeRate()
		if worstIdx == -1 || rate < worstRate {
			worstIdx = i
			worstRate = rate
		}
	}
	m.removeAt(worstIdx)
	return true
}

// Remove deletes tx_id, returning false if it was not present (spec.md
// §4.6 remove).
func (m *Mempool) Remove(id chain.TxID) bool {
	if _, ok := m.byID[id]; !ok {
		return false
	}
	for i, o := range m.order {
		if o == id {
			m.removeAt(i)
			return true
		}
	}
	return false
}

func (m *Mempool) removeAt(i int) {
	id := m.order[i]
	e := m.byID[id]
	m.size -= e.size
	m.totalFees -= uint64(e.tx.Fee)
	delete(m.byID, id)
	m.order = append(m.order[:i], m.order[i+1:]...)
}

// PeekTopByFee returns up to k pending transactions ordered by
// descending fee rate, without removing them (spec.md §4.6
// peek_top_by_fee), used by block proposal to fill a block under its
// tx-count cap with the most valuable transactions first.
func (m *Mempool) PeekTopByFee(k int) []*chain.Transaction {
	entries := make([]*entry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.byID[id])
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].feeRate() > entries[j].feeRate() })
	if k > len(entries) {
		k = len(entries)
	}
	out := make([]*chain.Transaction, k)
	for i := 0; i < k; i++ {
		out[i] = entries[i].tx
	}
	return out
}

// CleanupStale removes entries older than age relative to now,
// returning the count removed (spec.md §4.6 cleanup_stale).
func (m *Mempool) CleanupStale(age time.Duration, now time.Time) int {
	removed := 0
	for i := 0; i < len(m.order); {
		id := m.order[i]
		e := m.byID[id]
		if now.Sub(e.addedAt) > age {
			m.removeAt(i)
			removed++
			continue
		}
		i++
	}
	return removed
}
