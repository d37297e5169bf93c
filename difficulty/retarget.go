// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package difficulty retargets the proof-of-work target every
// RETARGET_INTERVAL blocks by comparing actual versus expected time for
// the window, multiplying the target by actual/expected and clamping the
// multiplier to [1/MAX_ADJUSTMENT, MAX_ADJUSTMENT] (specification §4.9).
// All arithmetic happens on the 256-bit target space via math/big; no
// floating point ever touches a consensus value.
package difficulty

import (
	"math/big"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

// WindowStart is the header at the beginning of the just-completed
// retarget window and WindowEnd is the header at its end; NextBits
// computes the difficulty_bits every header at height windowEnd.Height+1
// must carry.
//
// Callers off a window boundary (height % RetargetInterval != 0) keep
// the previous bits unchanged — that decision belongs to the chain
// package, which is the only caller that knows block height relative to
// the window.
func NextBits(params *netparams.Params, windowStart, windowEnd *wire.BlockHeader) uint32 {
	actual := windowEnd.Timestamp - windowStart.Timestamp
	expected := int64(params.RetargetInterval) * int64(params.TargetBlockTime.Seconds())
	if expected <= 0 {
		return windowEnd.DifficultyBits
	}

	oldTarget := wire.CompactToBig(windowEnd.DifficultyBits)
	newTarget := clampAndScale(oldTarget, actual, expected, params.MaxAdjustment)
	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget = new(big.Int).Set(params.PowLimit)
	}
	if newTarget.Sign() <= 0 {
		newTarget = big.NewInt(1)
	}
	return wire.BigToCompact(newTarget)
}

// clampAndScale multiplies oldTarget by actual/expected, clamping the
// ratio to [1/maxAdjustment, maxAdjustment] before applying it, all in
// integer arithmetic: the ratio is expressed as a rational
// numerator/denominator pair rather than a float64 so the result is
// reproducible bit-for-bit across platforms.
func clampAndScale(oldTarget *big.Int, actual, expected int64, maxAdjustment float64) *big.Int {
	const scaleBits = 32
	scale := new(big.Int).Lsh(big.NewInt(1), scaleBits)

	maxAdjNum, maxAdjDen := rationalize(maxAdjustment, scaleBits)

	num := big.NewInt(actual)
	den := big.NewInt(expected)

	// Clamp num/den to [den/maxAdjNum*maxAdjDen ... ] i.e.
	// [1/maxAdjustment, maxAdjustment] relative to 1.
	upperNum, upperDen := maxAdjNum, maxAdjDen
	lowerNum, lowerDen := maxAdjDen, maxAdjNum

	if compareRational(num, den, upperNum, upperDen) > 0 {
		num, den = upperNum, upperDen
	} else if compareRational(num, den, lowerNum, lowerDen) < 0 {
		num, den = lowerNum, lowerDen
	}

	scaled := new(big.Int).Mul(oldTarget, scale)
	scaled.Mul(scaled, num)
	scaled.Div(scaled, den)
	scaled.Div(scaled, scale)
	return scaled
}

// rationalize expresses f as an integer fraction num/den accurate to
// 2^-precisionBits, used to turn MaxAdjustment (a policy constant, not a
// consensus-critical float) into exact integer arithmetic.
func rationalize(f float64, precisionBits uint) (num, den *big.Int) {
	den = new(big.Int).Lsh(big.NewInt(1), precisionBits)
	scaled := f * float64(int64(1)<<precisionBits)
	num = big.NewInt(int64(scaled))
	return num, den
}

// compareRational reports sign(aNum/aDen - bNum/bDen) without division.
func compareRational(aNum, aDen, bNum, bDen *big.Int) int {
	lhs := new(big.Int).Mul(aNum, bDen)
	rhs := new(big.Int).Mul(bNum, aDen)
	return lhs.Cmp(rhs)
}
