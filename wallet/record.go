// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

// walletRecord is the on-disk schema for wallets/{id}.json (spec.md
// §6 Wallet storage).
type walletRecord struct {
	WalletID       string `json:"wallet_id"`
	Name           string `json:"name"`
	PinHash        string `json:"pin_hash"`
	PinSalt        string `json:"pin_salt"`
	CreatedAt      int64  `json:"created_at"`
	LastAccessed   int64  `json:"last_accessed"`
	Version        string `json:"version"`
	PinAttempts    int    `json:"pin_attempts"`
	PinLockedUntil int64  `json:"pin_locked_until"`
}

// keyRecord is the on-disk schema for keys/{id}_{key_id}.json (spec.md
// §6 Wallet storage). EncryptedPrivate holds nonce||ciphertext, hex
// encoded; the seed never appears in plaintext outside an unlocked
// Wallet's memory.
type keyRecord struct {
	KeyID            string `json:"key_id"`
	PublicKey        string `json:"public_key"`
	EncryptedPrivate string `json:"encrypted_private"`
	KeyType          string `json:"key_type"`
	CreatedAt        int64  `json:"created_at"`
}

const keyTypeEd25519 = "ed25519"
const walletSchemaVersion = "1"
