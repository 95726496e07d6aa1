// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain implements MeshChain's data model: node identifiers,
// transactions, blocks, the UTXO set, and the merkle commitment and
// continuity rules that bind them together (spec.md §3).
package chain

import "encoding/hex"

// NodeIDSize is the fixed width of a node identifier (spec.md §3).
const NodeIDSize = 8

// NodeID is an opaque, globally-unique-per-deployment identifier.
// Once assigned to a node it is never mutated.
type NodeID [NodeIDSize]byte

// String renders a NodeID as lowercase hex, for logging.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero value.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}
