// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import "github.com/meshchain/meshchain/crypto"

// UTXOIDSize is the fixed width of a UTXO identifier (spec.md §3).
const UTXOIDSize = 16

// UTXOID identifies an unspent output, derived from the producing
// transaction's hash (plus an output index, since a transaction may
// in principle fund more than one output even though spec.md's
// Transaction models a single stealth destination per transfer --
// the index is retained for forward compatibility with multi-output
// transfers without changing any invariant in scope today).
type UTXOID [UTXOIDSize]byte

// UTXO is an unspent transaction output (spec.md §3).
type UTXO struct {
	ID             UTXOID
	Amount         uint64
	StealthAddress [StealthAddrSize]byte
	BlockHeight    uint32
	IsSpent        bool
}

// DeriveUTXOID computes the id a UTXO produced by tx at output index
// outIdx would carry.
func DeriveUTXOID(txHash TxID, outIdx uint8) UTXOID {
	buf := make([]byte, 0, len(txHash)+1)
	buf = append(buf, txHash[:]...)
	buf = append(buf, outIdx)
	full := crypto.Hash160(buf)
	return UTXOID(full)
}

// UTXOSet is the mutable set of unspent outputs the chain state
// machine owns exclusively; it is mutated only by block application
// and rollback (spec.md §3 Ownership).
type UTXOSet struct {
	byID map[UTXOID]*UTXO
}

// NewUTXOSet returns an empty set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{byID: make(map[UTXOID]*UTXO)}
}

// Add inserts a freshly-created unspent output.
func (s *UTXOSet) Add(u *UTXO) {
	cp := *u
	s.byID[u.ID] = &cp
}

// Spend marks id as spent, returning false if id is unknown or
// already spent.
func (s *UTXOSet) Spend(id UTXOID) bool {
	u, ok := s.byID[id]
	if !ok || u.IsSpent {
		return false
	}
	u.IsSpent = true
	return true
}

// Unspend reverses Spend, used when rolling back a block during a
// reorg (spec.md §9, height->hash indexed reorg, never parent
// pointers).
func (s *UTXOSet) Unspend(id UTXOID) bool {
	u, ok := s.byID[id]
	if !ok || !u.IsSpent {
		return false
	}
	u.IsSpent = false
	return true
}

// Remove deletes id entirely, used when rolling back the block that
// created it.
func (s *UTXOSet) Remove(id UTXOID) {
	delete(s.byID, id)
}

// Get returns a read-only snapshot of the UTXO for id, if present.
func (s *UTXOSet) Get(id UTXOID) (UTXO, bool) {
	u, ok := s.byID[id]
	if !ok {
		return UTXO{}, false
	}
	return *u, true
}

// Balance returns the sum of unspent amounts for addr (spec.md §3:
// Balance(addr) = sum of unspent.amount where utxo.address == addr).
func (s *UTXOSet) Balance(addr [StealthAddrSize]byte) uint64 {
	var total uint64
	for _, u := range s.byID {
		if !u.IsSpent && u.StealthAddress == addr {
			total += u.Amount
		}
	}
	return total
}
