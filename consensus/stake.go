// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"errors"
	"time"

	"github.com/meshchain/meshchain/chain"
)

var (
	ErrDelegatorInactive       = errors.New("consensus: delegator is not active")
	ErrDelegateeInactive       = errors.New("consensus: delegatee is not active")
	ErrInsufficientStake       = errors.New("consensus: delegator's effective stake is below the delegation amount")
	ErrDelegationNotFound      = errors.New("consensus: no matching delegation edge")
	ErrSlashPercentOutOfBounds = errors.New("consensus: slash percent must be in [0, 100]")
)

// delegation is one delegator -> delegatee edge (spec.md §4.3). The
// delegator's own stake field is never decremented while the edge
// exists -- a deliberate legacy invariant the source carries forward
// (spec.md §9): the delegator keeps its selection weight, and the
// delegatee additionally gains the delegated amount.
type delegation struct {
	delegator chain.NodeID
	delegatee chain.NodeID
	amount    uint64
}

// SlashEvent records a slash/recover action for audit (spec.md §4.3
// "event logged with timestamp").
type SlashEvent struct {
	NodeID    chain.NodeID
	Amount    uint64
	Recover   bool
	Timestamp time.Time
}

// StakeManager mutates a Registry's validator stakes through
// delegation, slashing, recovery, and reward distribution. It borrows
// Registry records read-mostly (spec.md §3 Ownership) and is itself
// the single writer for delegation edges and slashed_amount.
type StakeManager struct {
	registry    *Registry
	delegations []delegation
	events      []SlashEvent
}

// NewStakeManager wraps registry.
func NewStakeManager(registry *Registry) *StakeManager {
	return &StakeManager{registry: registry}
}

// Delegate adds amount to delegatee's stake and to the registry's
// total stake, recording the edge; the delegator's own stake is left
// unchanged (spec.md §4.3 delegate).
func (m *StakeManager) Delegate(delegator, delegatee chain.NodeID, amount uint64) (bool, error) {
	dtor, ok := m.registry.byID[delegator]
	if !ok {
		return false, ErrValidatorNotFound
	}
	dtee, ok := m.registry.byID[delegatee]
	if !ok {
		return false, ErrValidatorNotFound
	}
	if !dtor.Active {
		return false, ErrDelegatorInactive
	}
	if !dtee.Active {
		return false, ErrDelegateeInactive
	}
	if dtor.EffectiveStake() < amount {
		return false, ErrInsufficientStake
	}

	dtee.Stake += amount
	m.registry.totalStake += amount
	m.delegations = append(m.delegations, delegation{delegator, delegatee, amount})
	return true, nil
}

// Revoke reverses the first matching delegation edge between delegator
// and delegatee (spec.md §4.3 revoke).
func (m *StakeManager) Revoke(delegator, delegatee chain.NodeID) error {
	for i, d := range m.delegations {
		if d.delegator == delegator && d.delegatee == delegatee {
			if dtee, ok := m.registry.byID[delegatee]; ok {
				if dtee.Stake >= d.amount {
					dtee.Stake -= d.amount
				} else {
					dtee.Stake = 0
				}
				if m.registry.totalStake >= d.amount {
					m.registry.totalStake -= d.amount
				} else {
					m.registry.totalStake = 0
				}
			}
			m.delegations = append(m.delegations[:i], m.delegations[i+1:]...)
			return nil
		}
	}
	return ErrDelegationNotFound
}

// Slash reduces id's effective stake by floor(effective_stake * pct / 100)
// (spec.md §4.3 slash). now is passed in explicitly so callers control
// the event timestamp deterministically.
func (m *StakeManager) Slash(id chain.NodeID, pct int, now time.Time) (uint64, error) {
	if pct < 0 || pct > 100 {
		return 0, ErrSlashPercentOutOfBounds
	}
	v, ok := m.registry.byID[id]
	if !ok {
		return 0, ErrValidatorNotFound
	}
	amount := v.EffectiveStake() * uint64(pct) / 100
	v.SlashedAmount += amount
	m.events = append(m.events, SlashEvent{NodeID: id, Amount: amount, Timestamp: now})
	return amount, nil
}

// Recover reverses slashing by up to floor(effective_stake * pct / 100),
// never driving slashed_amount below zero (spec.md §4.3 recover).
func (m *StakeManager) Recover(id chain.NodeID, pct int, now time.Time) (uint64, error) {
	if pct < 0 || pct > 100 {
		return 0, ErrSlashPercentOutOfBounds
	}
	v, ok := m.registry.byID[id]
	if !ok {
		return 0, ErrValidatorNotFound
	}
	amount := v.EffectiveStake() * uint64(pct) / 100
	if amount > v.SlashedAmount {
		amount = v.SlashedAmount
	}
	v.SlashedAmount -= amount
	m.events = append(m.events, SlashEvent{NodeID: id, Amount: amount, Recover: true, Timestamp: now})
	return amount, nil
}

// Rewards returns the block-reward split for delegatee and each of its
// delegators (spec.md §4.3 rewards): the delegatee receives the full
// block_reward, and every delegator to it additionally receives
// floor(block_reward * 0.05). The sum may exceed block_reward -- the
// spec leaves the delegator-reward mint policy to the caller (spec.md
// §9); this function only computes the split, it does not mint.
func (m *StakeManager) Rewards(delegatee chain.NodeID, blockReward uint64) map[chain.NodeID]uint64 {
	out := map[chain.NodeID]uint64{delegatee: blockReward}
	delegatorBonus := blockReward * 5 / 100
	for _, d := range m.delegations {
		if d.delegatee == delegatee {
			out[d.delegator] += delegatorBonus
		}
	}
	return out
}

// Events returns the slash/recover audit log.
func (m *StakeManager) Events() []SlashEvent {
	return m.events
}
