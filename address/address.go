// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package address derives and validates printable addresses from
// secp256k1 public keys, following specification §3: prefix ||
// base32(hash160(compressed_pubkey)) with a 4-byte checksum. The prefix
// is purely a network parameter (Open Question #3 in DESIGN.md) and
// carries no semantic meaning about which network it names.
package address

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/xaichain/xaid/crypto"
)

// base32Alphabet is the Crockford-style alphabet used to encode the
// hash160 payload into a printable string, chosen (as the teacher's
// Bech32Prefix type does for its own encoding) to avoid visually
// ambiguous characters.
const base32Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var base32Index [256]int8

func init() {
	for i := range base32Index {
		base32Index[i] = -1
	}
	for i, c := range base32Alphabet {
		base32Index[c] = int8(i)
	}
}

func encodeBase32(data []byte) string {
	var sb strings.Builder
	var acc uint32
	var bits uint
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(acc>>bits)&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(acc<<(5-bits))&0x1f])
	}
	return sb.String()
}

func decodeBase32(s string) ([]byte, error) {
	var acc uint32
	var bits uint
	out := make([]byte, 0, len(s)*5/8+1)
	for i := 0; i < len(s); i++ {
		idx := base32Index[s[i]]
		if idx < 0 {
			return nil, errors.Errorf("invalid base32 character %q", s[i])
		}
		acc = acc<<5 | uint32(idx)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}
	if acc&(1<<bits-1) != 0 {
		return nil, errors.New("non-zero base32 padding bits")
	}
	return out, nil
}

// checksum4 returns the first 4 bytes of sha256(sha256(prefix || payload)),
// the same Base58Check-style construction the teacher's util/base58
// convention uses, adapted to a base32 alphabet per the specification.
func checksum4(prefix string, payload []byte) [4]byte {
	full := append([]byte(prefix), payload...)
	digest := crypto.SHA256(full[:])
	digest2 := crypto.SHA256(digest[:])
	var out [4]byte
	copy(out[:], digest2[:4])
	return out
}

// ErrChecksumMismatch is returned by Validate/Decode when the checksum
// does not verify.
var ErrChecksumMismatch = errors.New("address checksum mismatch")

// ErrUnknownPrefix is returned when the parsed prefix does not match any
// configured network.
var ErrUnknownPrefix = errors.New("unrecognized address prefix")

// Derive computes the address string for a compressed secp256k1 public
// key under the given network prefix: prefix || base32(hash160(pubkey))
// with a trailing 4-byte checksum, also base32-encoded as part of the
// same payload.
func Derive(prefix string, pubKey crypto.PublicKey) string {
	h160 := crypto.Hash160(pubKey[:])
	cksum := checksum4(prefix, h160[:])
	payload := append(append([]byte(nil), h160[:]...), cksum[:]...)
	return prefix + encodeBase32(payload)
}

// Decode parses an address string, returning its hash160 payload. It
// fails if the prefix does not match expectedPrefix or the checksum does
// not verify.
func Decode(expectedPrefix, addr string) ([20]byte, error) {
	var hash160 [20]byte
	if !strings.HasPrefix(addr, expectedPrefix) {
		return hash160, ErrUnknownPrefix
	}
	body := strings.TrimPrefix(addr, expectedPrefix)
	raw, err := decodeBase32(body)
	if err != nil {
		return hash160, err
	}
	if len(raw) < 24 {
		return hash160, errors.Errorf("address payload too short: %d bytes", len(raw))
	}
	payload := raw[:20]
	cksum := raw[20:24]
	expected := checksum4(expectedPrefix, payload)
	if string(cksum) != string(expected[:]) {
		return hash160, ErrChecksumMismatch
	}
	copy(hash160[:], payload)
	return hash160, nil
}

// Validate reports whether addr parses, its prefix matches the active
// network, and its checksum verifies (specification §3, Address).
func Validate(expectedPrefix, addr string) bool {
	_, err := Decode(expectedPrefix, addr)
	return err == nil
}

// Matches reports whether addr was derived from pubKey under prefix —
// the "sender address derives from sender public key" invariant.
func Matches(prefix string, addr string, pubKey crypto.PublicKey) bool {
	want, err := Decode(prefix, addr)
	if err != nil {
		return false
	}
	got := crypto.Hash160(pubKey[:])
	return want == got
}
