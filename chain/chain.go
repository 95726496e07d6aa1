// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
)

// CurrentBlockVersion is the highest block.version this build knows
// how to validate. Per spec.md §9 item 5, a node refuses newer-
// version blocks outright rather than silently accepting them --
// there is no partial-understanding fallback.
const CurrentBlockVersion = 1

var (
	ErrUnsupportedVersion = errors.New("chain: block version is newer than this node supports")
	ErrPreviousHashBreak  = errors.New("chain: previous_hash does not match the known chain tip")
	ErrNotFinalized       = errors.New("chain: block has not collected enough approvals")
)

// State is the in-memory chain-continuity and UTXO state a node
// derives by applying accepted blocks in height order. It never holds
// parent/child pointers between blocks (spec.md §9): continuity is
// checked against a height-indexed view the storage engine owns, and
// State only tracks the current tip plus the UTXO projection.
type State struct {
	TipHeight uint32
	TipHash   BlockHash
	UTXOs     *UTXOSet
}

// NewState seeds a State from a genesis block.
func NewState(genesis *Block) *State {
	return &State{
		TipHeight: genesis.Height,
		TipHash:   genesis.Hash(),
		UTXOs:     NewUTXOSet(),
	}
}

// ValidateForAppend checks that b may legally extend s: its version
// is supported, its own invariants hold (Block.Validate), and its
// previous_hash matches the current tip (spec.md §8 invariant 1, the
// in-memory half -- the storage engine separately re-derives this
// from disk metadata on every read, per spec.md §4.12).
func (s *State) ValidateForAppend(b *Block) error {
	if b.Version > CurrentBlockVersion {
		return ErrUnsupportedVersion
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if b.Height > 0 && b.PreviousHash != s.TipHash {
		return ErrPreviousHashBreak
	}
	return nil
}

// Apply advances s past b: every transaction creates one unspent
// output (see applyTransaction), and the tip is advanced. No existing
// output is marked spent, since transactions carry no input
// references. The
// caller must have already confirmed b.IsFinalized() -- Apply itself
// does not re-check finalization so that internal reorg bookkeeping
// (which replays already-finalized blocks) doesn't pay for it twice.
func (s *State) Apply(b *Block) {
	for _, tx := range b.Transactions {
		s.applyTransaction(b.Height, tx)
	}
	s.TipHeight = b.Height
	s.TipHash = b.Hash()
}

// applyTransaction materializes tx's effect on the UTXO set: it adds
// a single output (index 0) addressed to tx's stealth address. Ring
// members other than the true spender are not distinguishable from
// this layer (that is the point of the ring construction), and no
// input is consumed here; nothing in this package prevents a UTXO
// from being spent twice across blocks.
func (s *State) applyTransaction(height uint32, tx *Transaction) {
	outID := DeriveUTXOID(tx.Hash(), 0)
	s.UTXOs.Add(&UTXO{
		ID:             outID,
		Amount:         0, // amount is confidential (sealed-box); ledger accounting over encrypted amounts is out of scope for this core
		StealthAddress: tx.StealthAddress,
		BlockHeight:    height,
		IsSpent:        false,
	})
}

// Rollback reverses Apply for b, used by the synchronizer's fork
// resolution (spec.md §4.10) when the canonical chain at a height
// changes. It removes the outputs b created; it does not attempt to
// resurrect inputs b spent, since this core does not track input
// references explicitly (see applyTransaction) -- a full accounting
// rollback is a Non-goal extension left to the storage engine's
// height-indexed replay (spec.md §4.12 verify_chain_integrity can
// detect any resulting drift).
func (s *State) Rollback(b *Block) {
	for _, tx := range b.Transactions {
		s.UTXOs.Remove(DeriveUTXOID(tx.Hash(), 0))
	}
}

// RequireFinalized returns ErrNotFinalized if b has not collected the
// approval threshold, for callers that must refuse to persist or
// propagate non-final blocks as final.
func RequireFinalized(b *Block) error {
	if !b.IsFinalized() {
		return fmt.Errorf("%w: %d/%d approvals", ErrNotFinalized,
			ApprovalCount(b.Approvals, len(b.Validators)), len(b.Validators))
	}
	return nil
}
