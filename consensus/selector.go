// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/meshchain/meshchain/chain"
)

// Selection records a completed proposer draw (spec.md §4.4 "record
// selection in history").
type Selection struct {
	NodeID chain.NodeID
	At     time.Time
}

// Selector implements DPoP proposer selection: validators are drawn
// with probability proportional to weight (spec.md §4.4).
type Selector struct {
	registry *Registry
	history  []Selection
}

// NewSelector wraps registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// History returns every completed selection, oldest first.
func (s *Selector) History() []Selection {
	return s.history
}

// SelectValidator draws a single validator proportional to weight,
// returning ok=false if total weight is zero (spec.md §4.4
// select_validator).
func (s *Selector) SelectValidator(now time.Time) (chain.NodeID, bool) {
	active := s.registry.ActiveValidators()
	weights := make([]uint64, len(active))
	var total uint64
	for i, v := range active {
		weights[i] = v.Weight(s.registry.minStake)
		total += weights[i]
	}
	if total == 0 {
		return chain.NodeID{}, false
	}

	r, err := drawUniform(total)
	if err != nil {
		return chain.NodeID{}, false
	}

	var cumulative uint64
	for i, v := range active {
		cumulative += weights[i]
		if cumulative > r || (cumulative == r && weights[i] > 0) {
			s.history = append(s.history, Selection{NodeID: v.NodeID, At: now})
			return v.NodeID, true
		}
	}
	// Unreachable when total > 0: the final cumulative sum always
	// equals total > r, so the loop above always returns.
	last := active[len(active)-1]
	s.history = append(s.history, Selection{NodeID: last.NodeID, At: now})
	return last.NodeID, true
}

// SelectCommittee performs k independent draws without replacement
// (spec.md §4.4 select_committee).
func (s *Selector) SelectCommittee(k int, now time.Time) []chain.NodeID {
	active := s.registry.ActiveValidators()
	excluded := make(map[chain.NodeID]bool, k)
	out := make([]chain.NodeID, 0, k)

	for len(out) < k && len(out) < len(active) {
		var total uint64
		weights := make([]uint64, len(active))
		for i, v := range active {
			if excluded[v.NodeID] {
				continue
			}
			weights[i] = v.Weight(s.registry.minStake)
			total += weights[i]
		}
		if total == 0 {
			break
		}
		r, err := drawUniform(total)
		if err != nil {
			break
		}
		var cumulative uint64
		for i, v := range active {
			if weights[i] == 0 {
				continue
			}
			cumulative += weights[i]
			if cumulative > r || cumulative == r {
				out = append(out, v.NodeID)
				excluded[v.NodeID] = true
				s.history = append(s.history, Selection{NodeID: v.NodeID, At: now})
				break
			}
		}
	}
	return out
}

// drawUniform returns a cryptographically-seeded uniform draw in
// [0, total) (spec.md §4.4).
func drawUniform(total uint64) (uint64, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(total))
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}
