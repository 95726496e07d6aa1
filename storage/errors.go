// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import "errors"

// Errors the storage engine returns to callers (spec.md §4.12/§7). A
// Corrupted result is caller-visible and should trigger a resync at
// that height; an IoError is retried at most once by the caller before
// being surfaced further.
var (
	ErrEmptyBlock         = errors.New("storage: block bytes must not be empty")
	ErrNegativeHeight     = errors.New("storage: height must not be negative")
	ErrHashMismatch       = errors.New("storage: SHA-256 of bytes does not match the claimed hash")
	ErrPreviousHashBreak  = errors.New("storage: previous_hash does not match the prior block's recorded hash")
	ErrBlockNotFound      = errors.New("storage: no block at that height")
	ErrBlockMissingParent = errors.New("storage: referencing block does not exist")
	ErrCorrupted          = errors.New("storage: on-disk block failed hash verification")
	ErrTxNotFound         = errors.New("storage: no transaction with that hash")
)
