// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import "github.com/jrick/bitset"

// NewGenesisBlock builds the deterministic height-0 block every
// MeshChain deployment starts from: zero previous_hash, no
// transactions, and a single bootstrap validator pre-approved (its
// approval bit is set at construction, since there is no prior chain
// state for it to vote over). This is not specified field-by-field in
// spec.md §3, but is required for the chain-continuity invariant
// (spec.md §8 invariant 1) to have a base case; it follows the
// prototype's node/genesis.py, which hard-codes exactly this shape.
func NewGenesisBlock(bootstrapValidator NodeID, networkTimestamp uint16) *Block {
	approvals := bitset.New(1)
	approvals.Set(0)
	b := &Block{
		Version:      1,
		Height:       0,
		Timestamp:    networkTimestamp,
		PreviousHash: BlockHash{},
		ProposerID:   bootstrapValidator,
		Validators:   []NodeID{bootstrapValidator},
		Approvals:    approvals,
		Transactions: nil,
	}
	b.MerkleRoot = MerkleRoot(nil)
	return b
}
