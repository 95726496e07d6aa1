// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements the PIN-hardened Ed25519 keystore nodes
// use to sign outbound transactions (spec.md §4.13).
package wallet

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/meshchain/meshchain/crypto"
)

const (
	walletsDirName = "wallets"
	keysDirName    = "keys"

	// DefaultPinAttempts and DefaultPinLockDuration mirror spec.md
	// §4.13: the 3rd failed PIN triggers a 300s lockout.
	DefaultPinAttempts     = 3
	DefaultPinLockDuration = 300 * time.Second
)

// Wallet is one node's keystore: the on-disk encrypted record plus,
// while unlocked, the Ed25519 seed resident in memory. Sign never
// returns the seed itself (spec.md §4.13).
type Wallet struct {
	baseDir string
	id      string
	keyID   string

	record walletRecord
	key    keyRecord

	maxAttempts  int
	lockDuration time.Duration

	unlocked bool
	seed     []byte // zeroed by Lock
	keyPair  *crypto.KeyPair
}

func walletPath(baseDir, id string) string {
	return filepath.Join(baseDir, walletsDirName, id+".json")
}

func keyPath(baseDir, id, keyID string) string {
	return filepath.Join(baseDir, keysDirName, id+"_"+keyID+".json")
}

// validPIN reports whether pin is 4-6 ASCII digits (spec.md §4.13
// create).
func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Create provisions a new wallet under baseDir, protected by pin, and
// atomically writes both its config record and encrypted key record
// (spec.md §4.13 create). The returned Wallet starts locked.
func Create(baseDir, name, pin string, now time.Time) (*Wallet, error) {
	if !validPIN(pin) {
		return nil, ErrInvalidPINLength
	}
	for _, dir := range []string{walletsDirName, keysDirName} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o700); err != nil {
			return nil, err
		}
	}

	salt, err := crypto.NewPINSalt()
	if err != nil {
		return nil, err
	}
	pinKey := crypto.DerivePINKey(pin, salt)
	authenticator := crypto.PINAuthenticator(pinKey)

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	encSeed, err := sealSeed(pinKey, kp.Seed())
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		baseDir:      baseDir,
		id:           uuid.New().String(),
		keyID:        uuid.New().String(),
		maxAttempts:  DefaultPinAttempts,
		lockDuration: DefaultPinLockDuration,
	}
	w.record = walletRecord{
		WalletID:     w.id,
		Name:         name,
		PinHash:      hex.EncodeToString(authenticator[:]),
		PinSalt:      hex.EncodeToString(salt[:]),
		CreatedAt:    now.Unix(),
		LastAccessed: now.Unix(),
		Version:      walletSchemaVersion,
	}
	w.key = keyRecord{
		KeyID:            w.keyID,
		PublicKey:        hex.EncodeToString(kp.Public),
		EncryptedPrivate: hex.EncodeToString(encSeed),
		KeyType:          keyTypeEd25519,
		CreatedAt:        now.Unix(),
	}

	if err := w.persistRecord(); err != nil {
		return nil, err
	}
	if err := w.persistKey(); err != nil {
		return nil, err
	}
	return w, nil
}

// Open loads an existing wallet's config and key record from baseDir.
// The returned Wallet starts locked.
func Open(baseDir, id, keyID string) (*Wallet, error) {
	w := &Wallet{
		baseDir:      baseDir,
		id:           id,
		keyID:        keyID,
		maxAttempts:  DefaultPinAttempts,
		lockDuration: DefaultPinLockDuration,
	}
	recBytes, err := os.ReadFile(walletPath(baseDir, id))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recBytes, &w.record); err != nil {
		return nil, err
	}
	keyBytes, err := os.ReadFile(keyPath(baseDir, id, keyID))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keyBytes, &w.key); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Wallet) persistRecord() error {
	data, err := json.Marshal(w.record)
	if err != nil {
		return err
	}
	return atomicWriteFile(walletPath(w.baseDir, w.id), data)
}

func (w *Wallet) persistKey() error {
	data, err := json.Marshal(w.key)
	if err != nil {
		return err
	}
	return atomicWriteFile(keyPath(w.baseDir, w.id, w.keyID), data)
}

// ID returns the wallet's id.
func (w *Wallet) ID() string { return w.id }

// IsUnlocked reports whether secret key material is currently resident.
func (w *Wallet) IsUnlocked() bool { return w.unlocked }

// Unlock verifies pin against the stored authenticator in constant
// time and, on success, loads the Ed25519 seed into memory (spec.md
// §4.13 unlock). Rejected while lockout_until has not elapsed; a
// rejection during lockout does not increment pin_attempts (spec.md
// §8 boundary behavior).
func (w *Wallet) Unlock(pin string, now time.Time) error {
	if w.record.PinLockedUntil > 0 && now.Unix() < w.record.PinLockedUntil {
		return ErrPinLocked
	}

	salt, err := decodeSalt(w.record.PinSalt)
	if err != nil {
		return err
	}
	pinKey := crypto.DerivePINKey(pin, salt)
	got := crypto.PINAuthenticator(pinKey)
	want, err := hex.DecodeString(w.record.PinHash)
	if err != nil {
		return err
	}

	if !crypto.ConstantTimeEqual(got[:], want) {
		w.record.PinAttempts++
		if w.record.PinAttempts >= w.maxAttempts {
			w.record.PinLockedUntil = now.Add(w.lockDuration).Unix()
		}
		if perr := w.persistRecord(); perr != nil {
			return perr
		}
		return ErrIncorrectPIN
	}

	encSeed, err := hex.DecodeString(w.key.EncryptedPrivate)
	if err != nil {
		return err
	}
	seed, err := openSeed(pinKey, encSeed)
	if err != nil {
		return err
	}
	kp, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		return err
	}

	w.seed = seed
	w.keyPair = kp
	w.unlocked = true
	w.record.PinAttempts = 0
	w.record.PinLockedUntil = 0
	w.record.LastAccessed = now.Unix()
	return w.persistRecord()
}

// Lock zeroizes in-memory secret material (spec.md §4.13 lock).
func (w *Wallet) Lock() {
	for i := range w.seed {
		w.seed[i] = 0
	}
	w.seed = nil
	w.keyPair = nil
	w.unlocked = false
}

// Sign produces an Ed25519 signature over msg. Only available while
// unlocked; the secret key itself is never returned (spec.md §4.13).
func (w *Wallet) Sign(msg []byte) ([]byte, error) {
	if !w.unlocked || w.keyPair == nil {
		return nil, ErrNotUnlocked
	}
	return crypto.Sign(w.keyPair.Secret, msg)
}

// PublicKey returns the wallet's Ed25519 public key, readable whether
// locked or unlocked.
func (w *Wallet) PublicKey() ([crypto.PublicKeySize]byte, error) {
	var out [crypto.PublicKeySize]byte
	raw, err := hex.DecodeString(w.key.PublicKey)
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func decodeSalt(s string) (crypto.PINSalt, error) {
	var salt crypto.PINSalt
	raw, err := hex.DecodeString(s)
	if err != nil {
		return salt, err
	}
	copy(salt[:], raw)
	return salt, nil
}
