// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

var (
	// ErrInvalidPINLength is returned by Create when the PIN is not
	// 4-6 digits (spec.md §4.13 create).
	ErrInvalidPINLength = errors.New("wallet: pin must be 4 to 6 digits")
	// ErrIncorrectPIN is returned by Unlock on a PIN mismatch while
	// not locked out.
	ErrIncorrectPIN = errors.New("wallet: incorrect pin")
	// ErrPinLocked is returned by Unlock while lockout_until has not
	// yet elapsed; a 4th attempt during lockout fails without
	// incrementing the attempt counter (spec.md §8 boundary behavior).
	ErrPinLocked = errors.New("wallet: pin locked out, try again later")
	// ErrNotUnlocked is returned by Sign when the wallet has no key
	// material resident in memory.
	ErrNotUnlocked = errors.New("wallet: wallet is locked")
)
