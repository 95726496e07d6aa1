// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"bytes"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("propose block at height 42")
	sig, err := Sign(kp.Secret, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("got signature len %d, want %d", len(sig), SignatureSize)
	}
	if !Verify(kp.Public, msg, sig) {
		t.Fatal("Verify rejected a valid signature")
	}
	if Verify(kp.Public, []byte("tampered"), sig) {
		t.Fatal("Verify accepted a signature over the wrong message")
	}
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		pub  []byte
		sig  []byte
	}{
		{"empty pub", nil, make([]byte, SignatureSize)},
		{"short pub", make([]byte, 4), make([]byte, SignatureSize)},
		{"empty sig", make([]byte, PublicKeySize), nil},
		{"short sig", make([]byte, PublicKeySize), make([]byte, 8)},
		{"oversized sig", make([]byte, PublicKeySize), make([]byte, 128)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if Verify(tc.pub, []byte("msg"), tc.sig) {
				t.Fatal("expected Verify to return false for malformed input")
			}
		})
	}
}

func TestHash160Length(t *testing.T) {
	t.Parallel()

	h := Hash160([]byte("block bytes"))
	if len(h) != TruncatedSize {
		t.Fatalf("got %d bytes, want %d", len(h), TruncatedSize)
	}
}

func TestSealOpenAmountRoundTrip(t *testing.T) {
	t.Parallel()

	var recipientSecret [32]byte
	copy(recipientSecret[:], bytes.Repeat([]byte{0x07}, 32))
	recipientPub, err := DeriveX25519Public(recipientSecret)
	if err != nil {
		t.Fatalf("derive public: %v", err)
	}

	var amount [8]byte
	amount[0] = 0xEF // arbitrary nonzero payload
	sealed, err := SealAmount(recipientPub, amount)
	if err != nil {
		t.Fatalf("SealAmount: %v", err)
	}
	got, err := OpenAmount(recipientSecret, sealed)
	if err != nil {
		t.Fatalf("OpenAmount: %v", err)
	}
	if got != amount {
		t.Fatalf("got %x, want %x", got, amount)
	}
}

func TestStealthAddressDetection(t *testing.T) {
	t.Parallel()

	var viewSecret [32]byte
	copy(viewSecret[:], bytes.Repeat([]byte{0x11}, 32))
	viewPub, err := DeriveX25519Public(viewSecret)
	if err != nil {
		t.Fatalf("derive view pub: %v", err)
	}

	var ephemeralSecret [32]byte
	copy(ephemeralSecret[:], bytes.Repeat([]byte{0x22}, 32))
	ephemeralPub, err := DeriveX25519Public(ephemeralSecret)
	if err != nil {
		t.Fatalf("derive ephemeral pub: %v", err)
	}

	want := wantStealthKey(t, viewSecret, ephemeralPub, viewPub)
	if !DetectOwnership(viewSecret, ephemeralPub, viewPub, want) {
		t.Fatal("DetectOwnership rejected the matching stealth key")
	}

	var wrongKey [16]byte
	if DetectOwnership(viewSecret, ephemeralPub, viewPub, wrongKey) {
		t.Fatal("DetectOwnership accepted a non-matching stealth key")
	}
}

func wantStealthKey(t *testing.T, viewSecret, ephemeralPub, viewPub [32]byte) [16]byte {
	t.Helper()
	innerInput := append(append([]byte{}, viewSecret[:]...), ephemeralPub[:]...)
	inner := Hash160(innerInput)
	outerInput := append(append([]byte{}, inner[:]...), viewPub[:]...)
	return Hash160(outerInput)
}

func TestPINKeyDerivationDeterministic(t *testing.T) {
	t.Parallel()

	salt, err := NewPINSalt()
	if err != nil {
		t.Fatalf("NewPINSalt: %v", err)
	}
	k1 := DerivePINKey("1234", salt)
	k2 := DerivePINKey("1234", salt)
	if !bytes.Equal(k1, k2) {
		t.Fatal("DerivePINKey is not deterministic for the same pin+salt")
	}
	k3 := DerivePINKey("4321", salt)
	if bytes.Equal(k1, k3) {
		t.Fatal("DerivePINKey produced the same key for different pins")
	}
}

func TestStubRingSignerFailsClosed(t *testing.T) {
	t.Parallel()

	var s StubRingSigner
	ring := [][PublicKeySize]byte{{}, {}}
	if s.Verify(ring, []byte("msg"), []byte("sig")) {
		t.Fatal("stub ring signer must never verify successfully")
	}
	if _, err := s.Sign(ed25519Seed{}, ring, []byte("msg")); err != ErrRingSigNotImplemented {
		t.Fatalf("got err %v, want ErrRingSigNotImplemented", err)
	}
}
