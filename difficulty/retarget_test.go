package difficulty

import (
	"math/big"
	"testing"
	"time"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

func params() *netparams.Params {
	return &netparams.Params{
		TargetBlockTime:  10 * time.Second,
		RetargetInterval: 10,
		MaxAdjustment:    4,
		PowLimit:         new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1)),
	}
}

func bitsForTarget(n int64) uint32 {
	return wire.BigToCompact(big.NewInt(n))
}

func TestNextBitsUnchangedWhenOnSchedule(t *testing.T) {
	p := params()
	bits := bitsForTarget(1_000_000)
	start := &wire.BlockHeader{Timestamp: 0, DifficultyBits: bits}
	end := &wire.BlockHeader{Timestamp: 100, DifficultyBits: bits} // 10 intervals * 10s = 100s expected
	got := NextBits(p, start, end)
	if got != bits {
		t.Fatalf("expected unchanged difficulty when window took exactly the expected time, got %x want %x", got, bits)
	}
}

func TestNextBitsEasesWhenBlocksAreSlow(t *testing.T) {
	p := params()
	bits := bitsForTarget(1_000_000)
	start := &wire.BlockHeader{Timestamp: 0, DifficultyBits: bits}
	end := &wire.BlockHeader{Timestamp: 400, DifficultyBits: bits} // 4x slower than expected
	got := NextBits(p, start, end)
	gotTarget := wire.CompactToBig(got)
	oldTarget := wire.CompactToBig(bits)
	if gotTarget.Cmp(oldTarget) <= 0 {
		t.Fatal("expected a larger (easier) target when blocks arrive slower than expected")
	}
}

func TestNextBitsTightensWhenBlocksAreFast(t *testing.T) {
	p := params()
	bits := bitsForTarget(1_000_000)
	start := &wire.BlockHeader{Timestamp: 0, DifficultyBits: bits}
	end := &wire.BlockHeader{Timestamp: 25, DifficultyBits: bits} // 4x faster than expected
	got := NextBits(p, start, end)
	gotTarget := wire.CompactToBig(got)
	oldTarget := wire.CompactToBig(bits)
	if gotTarget.Cmp(oldTarget) >= 0 {
		t.Fatal("expected a smaller (harder) target when blocks arrive faster than expected")
	}
}

func TestNextBitsClampsExtremeAdjustment(t *testing.T) {
	p := params()
	bits := bitsForTarget(1_000_000)
	start := &wire.BlockHeader{Timestamp: 0, DifficultyBits: bits}
	// 100x slower than expected: must clamp to MaxAdjustment (4x), not 100x.
	end := &wire.BlockHeader{Timestamp: 10_000, DifficultyBits: bits}
	got := NextBits(p, start, end)
	gotTarget := wire.CompactToBig(got)
	oldTarget := wire.CompactToBig(bits)

	maxTarget := new(big.Int).Mul(oldTarget, big.NewInt(int64(p.MaxAdjustment)))
	// Allow a small margin for the fixed-point rationalization of MaxAdjustment.
	margin := new(big.Int).Rsh(maxTarget, 8)
	ceiling := new(big.Int).Add(maxTarget, margin)
	if gotTarget.Cmp(ceiling) > 0 {
		t.Fatalf("retarget exceeded the clamp: got %s, ceiling %s", gotTarget, ceiling)
	}
}

func TestNextBitsNeverExceedsPowLimit(t *testing.T) {
	p := params()
	bits := wire.BigToCompact(p.PowLimit)
	start := &wire.BlockHeader{Timestamp: 0, DifficultyBits: bits}
	end := &wire.BlockHeader{Timestamp: 100_000, DifficultyBits: bits}
	got := NextBits(p, start, end)
	if wire.CompactToBig(got).Cmp(p.PowLimit) > 0 {
		t.Fatal("retargeted target must never exceed PowLimit")
	}
}
