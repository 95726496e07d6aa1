// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"testing"

	"github.com/meshchain/meshchain/chain"
)

func TestAddValidatorRejectsBelowMinStake(t *testing.T) {
	t.Parallel()

	r := NewRegistry(100, 1000)
	if r.AddValidator(chain.NodeID{1}, 50, 1) {
		t.Fatal("expected stake below min_stake to be rejected")
	}
}

func TestAddValidatorClampsToMaxStake(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1000)
	if !r.AddValidator(chain.NodeID{1}, 5000, 1) {
		t.Fatal("expected a valid add to succeed")
	}
	v, ok := r.Get(chain.NodeID{1})
	if !ok || v.Stake != 1000 {
		t.Fatalf("expected stake clamped to 1000, got %+v", v)
	}
}

func TestAddValidatorReplacesExistingRecord(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1000)
	r.AddValidator(chain.NodeID{1}, 100, 1)
	r.AddValidator(chain.NodeID{1}, 200, 3)

	v, _ := r.Get(chain.NodeID{1})
	if v.Stake != 200 || v.HopDistance != 3 {
		t.Fatalf("expected the record to be replaced, got %+v", v)
	}
	if r.TotalStake() != 200 {
		t.Fatalf("got total stake %d, want 200", r.TotalStake())
	}
}

func TestRemoveValidatorIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 1000)
	r.AddValidator(chain.NodeID{1}, 100, 1)
	if !r.RemoveValidator(chain.NodeID{1}) {
		t.Fatal("first remove should succeed")
	}
	if !r.RemoveValidator(chain.NodeID{1}) {
		t.Fatal("second remove of an already-absent id should also report success")
	}
	if r.TotalStake() != 0 {
		t.Fatalf("got total stake %d, want 0", r.TotalStake())
	}
}

func TestValidatorWeightZeroWhenInactiveOrBelowMinStake(t *testing.T) {
	t.Parallel()

	v := &Validator{Stake: 1000, HopDistance: 2, Active: true}
	if got := v.Weight(1); got != 500 {
		t.Fatalf("got weight %d, want 500", got)
	}

	v.Active = false
	if got := v.Weight(1); got != 0 {
		t.Fatalf("inactive validator must have weight 0, got %d", got)
	}

	v.Active = true
	if got := v.Weight(2000); got != 0 {
		t.Fatalf("validator below min_stake must have weight 0, got %d", got)
	}
}

func TestValidatorWeightHopDistanceFloorsAtOne(t *testing.T) {
	t.Parallel()

	v := &Validator{Stake: 100, HopDistance: 0, Active: true}
	if got := v.Weight(1); got != 100 {
		t.Fatalf("hop_distance 0 should floor to 1, got weight %d", got)
	}
}

func TestEffectiveStakeNeverUnderflows(t *testing.T) {
	t.Parallel()

	v := &Validator{Stake: 100, SlashedAmount: 150}
	if got := v.EffectiveStake(); got != 0 {
		t.Fatalf("got %d, want 0 when slashed exceeds stake", got)
	}
}

func TestTotalWeightSumsActiveOnly(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1, 10000)
	r.AddValidator(chain.NodeID{1}, 100, 1)
	r.AddValidator(chain.NodeID{2}, 200, 2)
	r.RemoveValidator(chain.NodeID{2})

	if got := r.TotalWeight(); got != 100 {
		t.Fatalf("got total weight %d, want 100", got)
	}
}
