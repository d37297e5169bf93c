// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "math/big"

// CompactToBig converts a compact representation of a proof-of-work target
// into a big.Int, the same "nBits" packing Bitcoin-family chains use: the
// low 23 bits are a mantissa and the high byte is a base-256 exponent.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if compact&0x00800000 != 0 {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a big.Int proof-of-work target into its compact
// "nBits" representation. This is the inverse of CompactToBig, lossy in
// the same way: only the top 3 mantissa bytes survive.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// TargetFromBits is CompactToBig under the name difficulty code actually
// calls it by: the 256-bit integer a block hash must not exceed.
func TargetFromBits(bits uint32) *big.Int {
	return CompactToBig(bits)
}

// HashToBig interprets a Hash as a big-endian big.Int, for comparing a
// block hash against its difficulty target (specification §4: "block_hash
// as a big-endian integer ≤ difficulty_target(difficulty_bits)").
func HashToBig(h Hash) *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// MeetsTarget reports whether hash, read as a big-endian integer, does
// not exceed the target implied by bits. Shared by the validator's
// proof-of-work check and the miner's nonce search so both agree on
// exactly the same comparison.
func MeetsTarget(h Hash, bits uint32) bool {
	return HashToBig(h).Cmp(TargetFromBits(bits)) <= 0
}
