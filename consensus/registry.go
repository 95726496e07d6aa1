// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package consensus implements the DPoP validator registry, stake
// delegation, slashing, and the weighted proposer selector (spec.md
// §4.3-§4.5).
package consensus

import (
	"errors"

	"github.com/meshchain/meshchain/chain"
)

// Default bounds (spec.md §6 node config defaults apply per-deployment;
// these are the registry's own fallbacks when unconfigured).
const (
	DefaultMinStake uint64 = 1
	DefaultMaxStake uint64 = 1 << 40
)

var (
	ErrStakeBelowMinimum = errors.New("consensus: stake below min_stake")
	ErrValidatorNotFound = errors.New("consensus: unknown validator")
	ErrValidatorInactive = errors.New("consensus: validator is not active")
)

// Validator is a registered DPoP participant (spec.md §3).
type Validator struct {
	NodeID       chain.NodeID
	Stake        uint64
	HopDistance  uint8 // 1..=255
	Active       bool
	SlashedAmount uint64

	// Performance counters (supplemented feature, grounded on the
	// prototype's validator.py ValidatorStats; feeds but never gates
	// the weight/Gini calculations).
	BlocksProposed  uint64
	BlocksMissed    uint64
	ApprovalsCast   uint64
	ApprovalsMissed uint64
}

// EffectiveStake is stake minus whatever has been slashed (spec.md §3).
func (v *Validator) EffectiveStake() uint64 {
	if v.SlashedAmount >= v.Stake {
		return 0
	}
	return v.Stake - v.SlashedAmount
}

// Weight is the DPoP selection weight: effective stake discounted by
// hop distance, zero unless the validator is active and has met
// min_stake (spec.md §3/§8 invariant 4).
func (v *Validator) Weight(minStake uint64) uint64 {
	if !v.Active {
		return 0
	}
	eff := v.EffectiveStake()
	if eff < minStake {
		return 0
	}
	hop := v.HopDistance
	if hop < 1 {
		hop = 1
	}
	return eff / uint64(hop)
}

// Performance summarizes a validator's counters (supplemented feature).
type Performance struct {
	BlocksProposed  uint64
	BlocksMissed    uint64
	ApprovalsCast   uint64
	ApprovalsMissed uint64
}

// Performance returns v's counters (spec.md §C item 5 supplement).
func (v *Validator) Performance() Performance {
	return Performance{
		BlocksProposed:  v.BlocksProposed,
		BlocksMissed:    v.BlocksMissed,
		ApprovalsCast:   v.ApprovalsCast,
		ApprovalsMissed: v.ApprovalsMissed,
	}
}

// Registry owns the set of known validators exclusively (spec.md §3
// Ownership); the stake manager borrows records read-mostly and
// mutates them under the single-writer lock the node's event loop
// provides.
type Registry struct {
	minStake uint64
	maxStake uint64

	byID       map[chain.NodeID]*Validator
	order      []chain.NodeID // insertion order, for deterministic prefix-sum walks
	totalStake uint64
}

// NewRegistry constructs an empty registry with the given stake bounds.
func NewRegistry(minStake, maxStake uint64) *Registry {
	if minStake == 0 {
		minStake = DefaultMinStake
	}
	if maxStake == 0 {
		maxStake = DefaultMaxStake
	}
	return &Registry{
		minStake: minStake,
		maxStake: maxStake,
		byID:     make(map[chain.NodeID]*Validator),
	}
}

// AddValidator registers id with the given stake and hop distance,
// rejecting stakes below min_stake and clamping to max_stake. Calling
// again for an existing id replaces its record (spec.md §4.3).
func (r *Registry) AddValidator(id chain.NodeID, stake uint64, hop uint8) bool {
	if stake < r.minStake {
		return false
	}
	if stake > r.maxStake {
		stake = r.maxStake
	}

	if existing, ok := r.byID[id]; ok {
		r.totalStake -= existing.Stake
		existing.Stake = stake
		existing.HopDistance = hop
		existing.Active = true
		r.totalStake += stake
		return true
	}

	r.byID[id] = &Validator{NodeID: id, Stake: stake, HopDistance: hop, Active: true}
	r.order = append(r.order, id)
	r.totalStake += stake
	return true
}

// RemoveValidator deletes id, idempotently (spec.md §4.3).
func (r *Registry) RemoveValidator(id chain.NodeID) bool {
	v, ok := r.byID[id]
	if !ok {
		return true
	}
	r.totalStake -= v.Stake
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// UpdateHopDistance mutates only hop_distance for id.
func (r *Registry) UpdateHopDistance(id chain.NodeID, hop uint8) error {
	v, ok := r.byID[id]
	if !ok {
		return ErrValidatorNotFound
	}
	v.HopDistance = hop
	return nil
}

// Get returns a read-only snapshot of id's record.
func (r *Registry) Get(id chain.NodeID) (Validator, bool) {
	v, ok := r.byID[id]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// ActiveValidators returns the registered validators with active set,
// in stable insertion order (spec.md §4.3 active_validators, a lazy
// iterator in the source; a materialized slice here since the
// registry's population is bounded by MaxValidators-scale deployments).
func (r *Registry) ActiveValidators() []*Validator {
	out := make([]*Validator, 0, len(r.order))
	for _, id := range r.order {
		if v := r.byID[id]; v.Active {
			out = append(out, v)
		}
	}
	return out
}

// TotalWeight returns Σ weight over all active validators.
func (r *Registry) TotalWeight() uint64 {
	var total uint64
	for _, v := range r.ActiveValidators() {
		total += v.Weight(r.minStake)
	}
	return total
}

// TotalStake returns the registry's aggregate stake counter.
func (r *Registry) TotalStake() uint64 { return r.totalStake }
