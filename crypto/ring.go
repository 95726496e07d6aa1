// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import "errors"

// ErrRingSigNotImplemented is returned by the stub RingSigner until a
// production backend is wired in. Returning an error (rather than
// silently accepting every signature) is deliberate: spec.md §4.2 and
// §9 flag the source's ring-signature construction as cryptographically
// weak and require treating verification as a pluggable extension
// point, never an accept-all default.
var ErrRingSigNotImplemented = errors.New("crypto: ring signature backend not configured")

// RingSigner is the pluggable backend for MeshChain's ring-signature
// transactions (Transaction.kind covers Transfer, which may carry a
// ring of size [2,16] per spec.md §3). No production implementation
// ships in this core: the upstream prototype's construction is not a
// secure linkable ring signature, and substituting one is explicitly
// out of scope (spec.md §1 Non-goals). Callers needing genuine
// anonymity-set unlinkability must supply their own RingSigner.
type RingSigner interface {
	// Sign produces a ring signature over msg attributable to one of
	// ring (the true signer's index is known only to the
	// implementation holding the secret key).
	Sign(secret ed25519Seed, ring [][PublicKeySize]byte, msg []byte) ([]byte, error)

	// Verify reports whether sig is a valid ring signature over msg
	// for the given ring. It must never unconditionally return true;
	// a stub with no real cryptography should instead return
	// ErrRingSigNotImplemented from Sign so callers fail closed.
	Verify(ring [][PublicKeySize]byte, msg, sig []byte) bool
}

type ed25519Seed = [SecretKeySize]byte

// StubRingSigner is the default RingSigner: it refuses to sign and
// treats every verification as failed, so a node configured without
// an explicit backend cannot silently accept forged ring signatures.
type StubRingSigner struct{}

// Sign always fails; see RingSigner and spec.md §9 item 1.
func (StubRingSigner) Sign(ed25519Seed, [][PublicKeySize]byte, []byte) ([]byte, error) {
	return nil, ErrRingSigNotImplemented
}

// Verify always fails closed.
func (StubRingSigner) Verify([][PublicKeySize]byte, []byte, []byte) bool {
	return false
}
