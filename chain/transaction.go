// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"

	"github.com/meshchain/meshchain/crypto"
	"github.com/meshchain/meshchain/wire"
)

// TxKind distinguishes the three transaction shapes spec.md §3 defines.
type TxKind uint8

const (
	TxTransfer TxKind = iota
	TxStake
	TxVote
)

func (k TxKind) String() string {
	switch k {
	case TxTransfer:
		return "Transfer"
	case TxStake:
		return "Stake"
	case TxVote:
		return "Vote"
	default:
		return fmt.Sprintf("TxKind(%d)", uint8(k))
	}
}

// Ring size bounds (spec.md §3, §8 invariant 3).
const (
	MinRingSize = 2
	MaxRingSize = 16

	StealthAddrSize     = 16
	AmountEncryptedSize = 8
	// TxSignatureSize is fixed at 32 bytes by spec.md §3. This is
	// narrower than a raw 64-byte Ed25519 signature: the field holds
	// the output of the pluggable ring-signature backend
	// (crypto.RingSigner, see spec.md §4.2/§9 item 1), sized to fit
	// the compact wire format, not a direct single-key Ed25519
	// signature. Single-key signatures use crypto.Sign/crypto.Verify
	// at their native 64-byte width; Block carries no signature
	// field.
	TxSignatureSize = 32
)

// TxID is the truncated-SHA-256 identifier of a transaction.
type TxID [crypto.TruncatedSize]byte

func (id TxID) String() string { return fmt.Sprintf("%x", id[:]) }

// Transaction is MeshChain's sole ledger-mutating entity (spec.md §3).
type Transaction struct {
	Version          uint8
	Kind             TxKind
	Nonce            uint32
	Fee              uint8
	RingSize         uint8
	RingMembers      []NodeID
	StealthAddress   [StealthAddrSize]byte
	AmountEncrypted  [AmountEncryptedSize]byte
	Signature        [TxSignatureSize]byte
	Timestamp        uint16 // block-height hint, not wall-clock time
}

var (
	ErrRingSizeOutOfBounds  = errors.New("chain: ring_size out of [2,16] bounds")
	ErrRingMembersMismatch  = errors.New("chain: len(ring_members) != ring_size")
	ErrSignatureMissing     = errors.New("chain: signature is empty")
)

// Validate checks the structural invariants spec.md §3/§8 place on a
// transaction, independent of chain context (balance, UTXO existence,
// etc., which the chain state machine checks separately).
func (tx *Transaction) Validate() error {
	if tx.RingSize < MinRingSize || tx.RingSize > MaxRingSize {
		return ErrRingSizeOutOfBounds
	}
	if int(tx.RingSize) != len(tx.RingMembers) {
		return ErrRingMembersMismatch
	}
	if tx.Signature == ([TxSignatureSize]byte{}) {
		return ErrSignatureMissing
	}
	return nil
}

// Encode serializes tx into its canonical form, the byte sequence
// Hash and wire transmission both operate over. Field order follows
// spec.md §3 exactly.
func (tx *Transaction) Encode() []byte {
	buf := make([]byte, 0, 64+len(tx.RingMembers)*NodeIDSize)
	buf = append(buf, tx.Version)
	buf = append(buf, byte(tx.Kind))
	buf = wire.EncodeVarint(buf, int64(tx.Nonce))
	buf = append(buf, tx.Fee)
	buf = append(buf, tx.RingSize)
	for _, m := range tx.RingMembers {
		buf = append(buf, m[:]...)
	}
	buf = append(buf, tx.StealthAddress[:]...)
	buf = append(buf, tx.AmountEncrypted[:]...)
	buf = append(buf, tx.Signature[:]...)
	buf = wire.EncodeVarint(buf, int64(tx.Timestamp))
	return buf
}

// DecodeTransaction parses a canonical-form transaction, failing with
// a malformed-frame style error if buf is truncated or a length field
// disagrees with the remaining bytes (spec.md §4.1).
func DecodeTransaction(buf []byte) (*Transaction, int, error) {
	const fixedMin = 1 + 1 /*nonce varint min*/ + 1 + 1
	if len(buf) < fixedMin {
		return nil, 0, errTxMalformed("buffer too short for transaction header")
	}
	tx := &Transaction{}
	off := 0

	tx.Version = buf[off]
	off++

	tx.Kind = TxKind(buf[off])
	off++

	nonce, n, err := wire.DecodeVarint(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	tx.Nonce = uint32(nonce)
	off += n

	if off >= len(buf) {
		return nil, 0, errTxMalformed("missing fee byte")
	}
	tx.Fee = buf[off]
	off++

	if off >= len(buf) {
		return nil, 0, errTxMalformed("missing ring_size byte")
	}
	tx.RingSize = buf[off]
	off++
	if tx.RingSize < MinRingSize || tx.RingSize > MaxRingSize {
		return nil, 0, ErrRingSizeOutOfBounds
	}

	ringBytes := int(tx.RingSize) * NodeIDSize
	if off+ringBytes > len(buf) {
		return nil, 0, errTxMalformed("ring_members exceeds remaining buffer")
	}
	tx.RingMembers = make([]NodeID, tx.RingSize)
	for i := range tx.RingMembers {
		copy(tx.RingMembers[i][:], buf[off:off+NodeIDSize])
		off += NodeIDSize
	}

	if off+StealthAddrSize > len(buf) {
		return nil, 0, errTxMalformed("stealth_address exceeds remaining buffer")
	}
	copy(tx.StealthAddress[:], buf[off:off+StealthAddrSize])
	off += StealthAddrSize

	if off+AmountEncryptedSize > len(buf) {
		return nil, 0, errTxMalformed("amount_encrypted exceeds remaining buffer")
	}
	copy(tx.AmountEncrypted[:], buf[off:off+AmountEncryptedSize])
	off += AmountEncryptedSize

	if off+TxSignatureSize > len(buf) {
		return nil, 0, errTxMalformed("signature exceeds remaining buffer")
	}
	copy(tx.Signature[:], buf[off:off+TxSignatureSize])
	off += TxSignatureSize

	ts, n, err := wire.DecodeVarint(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	tx.Timestamp = uint16(ts)
	off += n

	return tx, off, nil
}

func errTxMalformed(reason string) error {
	return fmt.Errorf("chain: malformed transaction: %s", reason)
}

// Hash returns the truncated-SHA-256 transaction id (spec.md §3).
func (tx *Transaction) Hash() TxID {
	return crypto.Hash160(tx.Encode())
}
