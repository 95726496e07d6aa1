// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"

	"github.com/jrick/bitset"
	"github.com/meshchain/meshchain/crypto"
	"github.com/meshchain/meshchain/wire"
)

// Block-level bounds (spec.md §3).
const (
	MaxValidators  = 7
	MaxTxPerBlock  = 5
	BlockHashSize  = 16
	MerkleRootSize = 16
)

// BlockHash is the truncated-SHA-256 identifier of a block.
type BlockHash [BlockHashSize]byte

func (h BlockHash) String() string { return fmt.Sprintf("%x", h[:]) }

// Block is MeshChain's unit of finality (spec.md §3).
type Block struct {
	Version      uint8
	Height       uint32 // u24 range enforced by Validate/encode
	Timestamp    uint16
	PreviousHash BlockHash
	MerkleRoot   [MerkleRootSize]byte
	ProposerID   NodeID
	Validators   []NodeID
	Approvals    bitset.Bitset // byte length == ceil(len(Validators)/8); bit i approves Validators[i]
	Transactions []*Transaction
}

var (
	ErrTooManyValidators    = errors.New("chain: more than MaxValidators validators")
	ErrTooManyTransactions  = errors.New("chain: more than MaxTxPerBlock transactions")
	ErrApprovalsLenMismatch = errors.New("chain: len(approvals) != len(validators)")
	ErrMerkleMismatch       = errors.New("chain: merkle_root does not match transactions")
	ErrHeightOutOfRange     = errors.New("chain: height exceeds the 24-bit range")
)

const maxHeight = 1<<24 - 1

// Validate checks the structural invariants spec.md §3/§8 place on a
// block in isolation -- it does not check previous_hash continuity
// against a store, which is the storage engine's job (spec.md §4.12).
func (b *Block) Validate() error {
	if b.Height > maxHeight {
		return ErrHeightOutOfRange
	}
	if len(b.Validators) > MaxValidators {
		return ErrTooManyValidators
	}
	if len(b.Transactions) > MaxTxPerBlock {
		return ErrTooManyTransactions
	}
	if len(b.Approvals) != approvalByteLen(len(b.Validators)) {
		return ErrApprovalsLenMismatch
	}
	if got, want := b.MerkleRoot, MerkleRoot(b.Transactions); got != want {
		return ErrMerkleMismatch
	}
	for i, tx := range b.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("chain: transaction %d invalid: %w", i, err)
		}
	}
	return nil
}

// approvalByteLen reports the byte length bitset.New(n) allocates for
// n validators: ceil(n/8). bitset.Bitset only tracks byte length
// internally, so a block's approvals length is validated against this
// rather than against n*8 bits, which would only match multiples of 8.
func approvalByteLen(n int) int {
	return (n + 7) / 8
}

// NewApprovals allocates an all-zero approvals bitset sized for n validators.
func NewApprovals(n int) bitset.Bitset {
	return bitset.New(n)
}

// ApprovalCount returns the number of set bits across the first n bits
// of approvals, where n == len(Validators).
func ApprovalCount(approvals bitset.Bitset, n int) int {
	count := 0
	for i := 0; i < n; i++ {
		if approvals.Get(i) {
			count++
		}
	}
	return count
}

// FinalizationThreshold returns ceil((2*n+2)/3), the minimum number of
// set approval bits required to finalize a block with n validators
// (spec.md §3 Finalization).
func FinalizationThreshold(n int) int {
	return (2*n + 2 + 2) / 3
}

// IsFinalized reports whether b has collected enough approvals to be
// finalized.
func (b *Block) IsFinalized() bool {
	n := len(b.Validators)
	return ApprovalCount(b.Approvals, n) >= FinalizationThreshold(n)
}

// Encode serializes b into its canonical form.
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, 64+len(b.Validators)*NodeIDSize+len(b.Approvals))
	buf = append(buf, b.Version)
	buf = wire.EncodeVarint(buf, int64(b.Height))
	buf = wire.EncodeVarint(buf, int64(b.Timestamp))
	buf = append(buf, b.PreviousHash[:]...)
	buf = append(buf, b.MerkleRoot[:]...)
	buf = append(buf, b.ProposerID[:]...)

	buf = append(buf, byte(len(b.Validators)))
	for _, v := range b.Validators {
		buf = append(buf, v[:]...)
	}
	buf = append(buf, b.Approvals...)

	buf = append(buf, byte(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txBytes := tx.Encode()
		buf = wire.EncodeVarint(buf, int64(len(txBytes)))
		buf = append(buf, txBytes...)
	}
	return buf
}

// DecodeBlock parses a canonical-form block.
func DecodeBlock(buf []byte) (*Block, error) {
	b := &Block{}
	off := 0

	if len(buf) < 1 {
		return nil, errBlockMalformed("empty buffer")
	}
	b.Version = buf[off]
	off++

	height, n, err := wire.DecodeVarint(buf[off:])
	if err != nil {
		return nil, err
	}
	b.Height = uint32(height)
	off += n

	ts, n, err := wire.DecodeVarint(buf[off:])
	if err != nil {
		return nil, err
	}
	b.Timestamp = uint16(ts)
	off += n

	if off+BlockHashSize > len(buf) {
		return nil, errBlockMalformed("previous_hash exceeds remaining buffer")
	}
	copy(b.PreviousHash[:], buf[off:off+BlockHashSize])
	off += BlockHashSize

	if off+MerkleRootSize > len(buf) {
		return nil, errBlockMalformed("merkle_root exceeds remaining buffer")
	}
	copy(b.MerkleRoot[:], buf[off:off+MerkleRootSize])
	off += MerkleRootSize

	if off+NodeIDSize > len(buf) {
		return nil, errBlockMalformed("proposer_id exceeds remaining buffer")
	}
	copy(b.ProposerID[:], buf[off:off+NodeIDSize])
	off += NodeIDSize

	if off >= len(buf) {
		return nil, errBlockMalformed("missing validator count")
	}
	numValidators := int(buf[off])
	off++
	if numValidators > MaxValidators {
		return nil, ErrTooManyValidators
	}
	if off+numValidators*NodeIDSize > len(buf) {
		return nil, errBlockMalformed("validators exceeds remaining buffer")
	}
	b.Validators = make([]NodeID, numValidators)
	for i := range b.Validators {
		copy(b.Validators[i][:], buf[off:off+NodeIDSize])
		off += NodeIDSize
	}

	approvalBytes := (numValidators + 7) / 8
	if off+approvalBytes > len(buf) {
		return nil, errBlockMalformed("approvals exceeds remaining buffer")
	}
	b.Approvals = bitset.New(numValidators)
	copy(b.Approvals, buf[off:off+approvalBytes])
	off += approvalBytes

	if off >= len(buf) {
		return nil, errBlockMalformed("missing transaction count")
	}
	numTx := int(buf[off])
	off++
	if numTx > MaxTxPerBlock {
		return nil, ErrTooManyTransactions
	}
	b.Transactions = make([]*Transaction, numTx)
	for i := 0; i < numTx; i++ {
		txLen, n, err := wire.DecodeVarint(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if off+int(txLen) > len(buf) {
			return nil, errBlockMalformed("transaction exceeds remaining buffer")
		}
		tx, _, err := DecodeTransaction(buf[off : off+int(txLen)])
		if err != nil {
			return nil, err
		}
		b.Transactions[i] = tx
		off += int(txLen)
	}

	return b, nil
}

func errBlockMalformed(reason string) error {
	return fmt.Errorf("chain: malformed block: %s", reason)
}

// Hash returns the truncated-SHA-256 block identifier used as
// previous_hash by the following block and as the storage engine's
// integrity anchor (spec.md §3/§4.12).
func (b *Block) Hash() BlockHash {
	return crypto.Hash160(b.Encode())
}

// MerkleRoot computes the truncated-SHA-256 merkle root over txs,
// duplicating the last leaf on odd levels (spec.md §3). An empty
// transaction list's root is SHA256("") truncated to 16 bytes
// (spec.md §8 boundary behavior).
func MerkleRoot(txs []*Transaction) [MerkleRootSize]byte {
	if len(txs) == 0 {
		return crypto.Hash160(nil)
	}
	level := make([][MerkleRootSize]byte, len(txs))
	for i, tx := range txs {
		h := tx.Hash()
		level[i] = [MerkleRootSize]byte(h)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][MerkleRootSize]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := make([]byte, 0, 2*MerkleRootSize)
			pair = append(pair, level[i][:]...)
			pair = append(pair, level[i+1][:]...)
			next = append(next, crypto.Hash160(pair))
		}
		level = next
	}
	return level[0]
}
