package validator

import (
	"time"

	"github.com/xaichain/xaid/utxo"
	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

const (
	CodeBadParent      xaierr.Code = "val_bad_parent"
	CodeBadHeight      xaierr.Code = "val_bad_height"
	CodeBadTimestamp   xaierr.Code = "val_bad_timestamp"
	CodeBadPoW         xaierr.Code = "val_bad_pow"
	CodeBadMerkleRoot  xaierr.Code = "val_bad_merkle_root"
	CodeBadCoinbase    xaierr.Code = "val_bad_coinbase"
	CodeDuplicateTx    xaierr.Code = "val_duplicate_tx"
	CodeBlockTooLarge  xaierr.Code = "val_block_too_large"
)

// ParentInfo is everything CheckBlock needs to know about the block's
// parent without importing the chain package (which itself depends on
// validator).
type ParentInfo struct {
	Height              uint64
	Hash                wire.Hash
	MedianTimePast      int64
	RequiredDifficulty  uint32
}

// CheckBlockHeader validates everything derivable from the header alone
// against its parent: height/previous-hash linkage, the median-time-past
// timestamp floor plus clock-skew ceiling, difficulty match, and
// proof-of-work (specification §4.3 block invariants, §4.6 "header
// rules: PoW, timestamp median, difficulty match, parent known").
func (v *Validator) CheckBlockHeader(header *wire.BlockHeader, parent ParentInfo, now time.Time) error {
	if header.Height != parent.Height+1 {
		return xaierr.New(xaierr.KindConsensus, CodeBadHeight, "height %d is not parent height %d + 1", header.Height, parent.Height)
	}
	if header.PrevHash != parent.Hash {
		return xaierr.New(xaierr.KindConsensus, CodeBadParent, "previous_hash does not match parent")
	}
	if header.Timestamp <= parent.MedianTimePast {
		return xaierr.New(xaierr.KindConsensus, CodeBadTimestamp,
			"timestamp %d is not greater than median time past %d", header.Timestamp, parent.MedianTimePast)
	}
	skewCeiling := now.Add(v.params.ClockSkew).Unix()
	if header.Timestamp > skewCeiling {
		return xaierr.New(xaierr.KindConsensus, CodeBadTimestamp,
			"timestamp %d is beyond the allowed clock skew ceiling %d", header.Timestamp, skewCeiling)
	}
	if header.DifficultyBits != parent.RequiredDifficulty {
		return xaierr.New(xaierr.KindConsensus, CodeBadPoW, "difficulty_bits %x does not match required %x", header.DifficultyBits, parent.RequiredDifficulty)
	}
	if err := v.checkProofOfWork(header); err != nil {
		return err
	}
	return nil
}

// checkProofOfWork verifies the block hash, read as a big-endian
// integer, does not exceed the target implied by difficulty_bits
// (specification §4: "block_hash as a big-endian integer ≤
// difficulty_target(difficulty_bits)").
func (v *Validator) checkProofOfWork(header *wire.BlockHeader) error {
	target := wire.TargetFromBits(header.DifficultyBits)
	if target.Sign() <= 0 || target.Cmp(v.params.PowLimit) > 0 {
		return xaierr.New(xaierr.KindConsensus, CodeBadPoW, "difficulty_bits %x decodes to a target outside the allowed range", header.DifficultyBits)
	}
	if !wire.MeetsTarget(header.Hash(), header.DifficultyBits) {
		return xaierr.New(xaierr.KindConsensus, CodeBadPoW, "block hash %x exceeds its difficulty target", header.Hash())
	}
	return nil
}

// CheckBlockBody validates everything about the transaction list: no
// duplicate txids, the Merkle root commits to them in order, the
// cumulative size ceiling, and the coinbase paying exactly
// subsidy(height) + sum(fees) to miner_address (specification §4.3 block
// invariants).
func (v *Validator) CheckBlockBody(block *wire.Block) error {
	if uint64(block.SerializeSize()) > v.params.MaxBlockBytes {
		return xaierr.New(xaierr.KindConsensus, CodeBlockTooLarge, "block is %d bytes, max is %d", block.SerializeSize(), v.params.MaxBlockBytes)
	}
	if len(block.Transactions) == 0 || !block.Transactions[0].IsCoinbase() {
		return xaierr.New(xaierr.KindConsensus, CodeBadCoinbase, "block's first transaction must be the coinbase")
	}

	seen := make(map[wire.Hash]bool, len(block.Transactions))
	var totalFees uint64
	for i, tx := range block.Transactions {
		id := tx.TxID()
		if seen[id] {
			return xaierr.New(xaierr.KindConsensus, CodeDuplicateTx, "duplicate transaction id %x", id)
		}
		seen[id] = true
		if i == 0 {
			continue
		}
		if tx.IsCoinbase() {
			return xaierr.New(xaierr.KindConsensus, CodeBadCoinbase, "only Transactions[0] may be a coinbase")
		}
		totalFees += tx.Fee
	}

	txIDs := block.TransactionIDs()
	if wire.CalculateMerkleRoot(txIDs) != block.Header.MerkleRoot {
		return xaierr.New(xaierr.KindConsensus, CodeBadMerkleRoot, "merkle root does not match the transaction list")
	}

	expectedSubsidy := v.params.BlockSubsidy(block.Header.Height) + totalFees
	coinbase := block.Transactions[0]
	var coinbasePaid uint64
	var paysMiner bool
	for _, out := range coinbase.Outputs {
		coinbasePaid += out.Amount
		if out.Address == block.Header.MinerAddress {
			paysMiner = true
		}
	}
	if coinbasePaid != expectedSubsidy {
		return xaierr.New(xaierr.KindConsensus, CodeBadCoinbase,
			"coinbase pays %d, expected subsidy(%d)+fees(%d)=%d", coinbasePaid, block.Header.Height, totalFees, expectedSubsidy)
	}
	if !paysMiner && len(coinbase.Outputs) > 0 {
		return xaierr.New(xaierr.KindConsensus, CodeBadCoinbase, "coinbase does not pay miner_address %q", block.Header.MinerAddress)
	}
	return nil
}

// ApplyToScratch runs UTXO.ApplyBlock against set, returning the delta on
// success. The caller is expected to pass a scratch copy (or be prepared
// to call set.RevertDeltas on the result) so a block rejected after this
// step never leaves a partial mutation — specification §4.6: "calls
// UTXO.apply_block on a scratch copy before committing".
func (v *Validator) ApplyToScratch(block *wire.Block, set *utxo.Set) (*utxo.Delta, error) {
	return set.ApplyBlock(block)
}
