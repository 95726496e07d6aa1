// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealSeed encrypts an Ed25519 seed under pinKey with ChaCha20-
// Poly1305 and a random nonce (spec.md §4.13 create), returning
// nonce||ciphertext for storage as encrypted_private.
func sealSeed(pinKey, seed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(pinKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, seed, nil)
	out := make([]byte, 0, len(nonce)+len(ct))
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// openSeed reverses sealSeed given the same pinKey.
func openSeed(pinKey, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(pinKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("wallet: sealed seed too short")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, nil)
}
