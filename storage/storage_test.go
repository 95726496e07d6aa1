// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"testing"

	"github.com/meshchain/meshchain/chain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func childOf(parent *chain.Block, validators int) *chain.Block {
	vs := make([]chain.NodeID, validators)
	for i := range vs {
		vs[i] = chain.NodeID{byte(i + 1)}
	}
	b := &chain.Block{
		Version:      chain.CurrentBlockVersion,
		Height:       parent.Height + 1,
		Timestamp:    parent.Timestamp + 1,
		PreviousHash: parent.Hash(),
		ProposerID:   vs[0],
		Validators:   vs,
		Approvals:    chain.NewApprovals(validators),
	}
	b.MerkleRoot = chain.MerkleRoot(nil)
	return b
}

func TestAddBlockAndGetBlockRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	genesis := chain.NewGenesisBlock(chain.NodeID{1}, 0)
	encoded := genesis.Encode()

	if err := s.AddBlock(0, genesis.Hash(), encoded, chain.BlockHash{}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	got, err := s.GetBlock(0)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if string(got) != string(encoded) {
		t.Fatal("round-tripped block bytes do not match what was stored")
	}
}

func TestAddBlockRejectsEmptyBytes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.AddBlock(0, chain.BlockHash{}, nil, chain.BlockHash{}); err != ErrEmptyBlock {
		t.Fatalf("got %v, want ErrEmptyBlock", err)
	}
}

func TestAddBlockRejectsHashMismatch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	genesis := chain.NewGenesisBlock(chain.NodeID{1}, 0)
	bogusHash := genesis.Hash()
	bogusHash[0] ^= 0xFF

	if err := s.AddBlock(0, bogusHash, genesis.Encode(), chain.BlockHash{}); err != ErrHashMismatch {
		t.Fatalf("got %v, want ErrHashMismatch", err)
	}
}

func TestAddBlockRejectsPreviousHashBreak(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	genesis := chain.NewGenesisBlock(chain.NodeID{1}, 0)
	if err := s.AddBlock(0, genesis.Hash(), genesis.Encode(), chain.BlockHash{}); err != nil {
		t.Fatalf("AddBlock genesis: %v", err)
	}

	next := childOf(genesis, 3)
	wrongPrev := next.PreviousHash
	wrongPrev[0] ^= 0xFF

	if err := s.AddBlock(1, next.Hash(), next.Encode(), wrongPrev); err != ErrPreviousHashBreak {
		t.Fatalf("got %v, want ErrPreviousHashBreak", err)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, err := s.GetBlock(42); err != ErrBlockNotFound {
		t.Fatalf("got %v, want ErrBlockNotFound", err)
	}
}

func TestAddTransactionRequiresExistingBlock(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var txHash chain.TxID
	txHash[0] = 1

	if err := s.AddTransaction(txHash, 0, []byte("fake"), 0); err != ErrBlockMissingParent {
		t.Fatalf("got %v, want ErrBlockMissingParent", err)
	}
}

func TestAddTransactionAndLookupRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	genesis := chain.NewGenesisBlock(chain.NodeID{1}, 0)
	if err := s.AddBlock(0, genesis.Hash(), genesis.Encode(), chain.BlockHash{}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	var txHash chain.TxID
	txHash[0] = 7
	payload := []byte("transaction payload")
	if err := s.AddTransaction(txHash, 0, payload, 5); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	got, err := s.GetTransaction(txHash)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatal("transaction bytes did not round trip")
	}

	height, err := s.TransactionBlockHeight(txHash)
	if err != nil {
		t.Fatalf("TransactionBlockHeight: %v", err)
	}
	if height != 0 {
		t.Fatalf("got height %d, want 0", height)
	}
}

func TestPutAndGetUTXORoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var addr [chain.StealthAddrSize]byte
	addr[0] = 0xAB
	u := &chain.UTXO{Amount: 100, StealthAddress: addr, BlockHeight: 1}
	u.ID[0] = 9

	if err := s.PutUTXO(u); err != nil {
		t.Fatalf("PutUTXO: %v", err)
	}
	got, err := s.GetUTXO(u.ID)
	if err != nil {
		t.Fatalf("GetUTXO: %v", err)
	}
	if got.Amount != u.Amount || got.StealthAddress != u.StealthAddress {
		t.Fatal("UTXO did not round trip")
	}

	ids, err := s.UTXOIDsForAddress(addr)
	if err != nil {
		t.Fatalf("UTXOIDsForAddress: %v", err)
	}
	if len(ids) != 1 || ids[0] != u.ID {
		t.Fatalf("got %v, want exactly [%v]", ids, u.ID)
	}
}

func TestVerifyChainIntegrityDetectsCorruption(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	genesis := chain.NewGenesisBlock(chain.NodeID{1}, 0)
	if err := s.AddBlock(0, genesis.Hash(), genesis.Encode(), chain.BlockHash{}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	next := childOf(genesis, 3)
	if err := s.AddBlock(1, next.Hash(), next.Encode(), next.PreviousHash); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	report, err := s.VerifyChainIntegrity()
	if err != nil {
		t.Fatalf("VerifyChainIntegrity: %v", err)
	}
	if !report.IsValid || report.BlocksCorrupted != 0 {
		t.Fatalf("expected a clean chain, got %+v", report)
	}
	if report.BlocksChecked != 2 {
		t.Fatalf("got BlocksChecked=%d, want 2", report.BlocksChecked)
	}
}

func TestPruneBelowRemovesOlderHeightsOnly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	genesis := chain.NewGenesisBlock(chain.NodeID{1}, 0)
	if err := s.AddBlock(0, genesis.Hash(), genesis.Encode(), chain.BlockHash{}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	next := childOf(genesis, 3)
	if err := s.AddBlock(1, next.Hash(), next.Encode(), next.PreviousHash); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	if err := s.PruneBelow(1); err != nil {
		t.Fatalf("PruneBelow: %v", err)
	}

	if _, err := s.GetBlock(0); err != ErrBlockNotFound {
		t.Fatalf("height 0 should have been pruned, got %v", err)
	}
	if _, err := s.GetBlock(1); err != nil {
		t.Fatalf("height 1 should survive pruning, got %v", err)
	}
}
