// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypto provides the node's cryptographic primitives: SHA-256,
// hash160 (ripemd160(sha256(x))), and secp256k1 ECDSA sign/verify with
// RFC 6979 deterministic nonces and low-S canonical signatures. Every
// consensus signature in the system is produced and checked here; there is
// no other signature path (specification §4.1, Open Question on curve
// choice resolved in favor of secp256k1/ECDSA).
package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // teacher dependency; still the canonical hash160 source
)

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = 33

// SignatureSize is the length of a compact (r||s) ECDSA signature.
const SignatureSize = 64

// PrivateKey wraps a secp256k1 scalar.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey wraps a secp256k1 point in compressed form.
type PublicKey [PublicKeySize]byte

// GeneratePrivateKey returns a new random secp256k1 private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating private key")
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte big-endian scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, errors.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Serialize returns the 32-byte big-endian scalar.
func (p *PrivateKey) Serialize() []byte {
	return p.key.Serialize()
}

// PubKey returns the compressed public key corresponding to p.
func (p *PrivateKey) PubKey() PublicKey {
	var pk PublicKey
	copy(pk[:], p.key.PubKey().SerializeCompressed())
	return pk
}

// Sign produces a compact (r||s) signature over msg32 using deterministic
// k per RFC 6979, with s canonicalized to its low-S form so that no second
// (malleable) valid signature exists for the same message and key.
func Sign(p *PrivateKey, msg32 [32]byte) ([SignatureSize]byte, error) {
	var out [SignatureSize]byte
	sig := ecdsa.Sign(p.key, msg32[:])
	r := sig.R()
	s := sig.S()
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[32-len(rBytes):32], rBytes[:])
	copy(out[64-len(sBytes):64], sBytes[:])
	return out, nil
}

// Verify checks a compact (r||s) signature over msg32 under the compressed
// public key pub. Verification rejects any signature whose s is not in
// low-S canonical form, so a single valid signature per (key, message)
// survives — the malleability guard required by specification §4.1.
func Verify(pub PublicKey, msg32 [32]byte, sig [SignatureSize]byte) bool {
	pk, err := btcec.ParsePubKey(pub[:])
	if err != nil {
		return false
	}

	var rBytes, sBytes btcec.ModNScalar
	if rBytes.SetByteSlice(sig[:32]) {
		return false // overflowed the curve order: not canonical
	}
	if sBytes.SetByteSlice(sig[32:]) {
		return false
	}
	if sBytes.IsOverHalfOrder() {
		return false // high-S: malleable, reject
	}

	parsedSig := ecdsa.NewSignature(&rBytes, &sBytes)
	return parsedSig.Verify(msg32[:], pk)
}

// SHA256 computes a single SHA-256 digest.
func SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Hash160 computes ripemd160(sha256(x)), the address-derivation digest.
func Hash160(b []byte) [20]byte {
	first := sha256.Sum256(b)
	hasher := ripemd160.New()
	_, _ = hasher.Write(first[:])
	var out [20]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
