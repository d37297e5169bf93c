package validator

import (
	"math/big"
	"testing"
	"time"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/utxo"
	"github.com/xaichain/xaid/wire"
)

func testParams() *netparams.Params {
	return &netparams.Params{
		PowLimit:         new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1)),
		CoinbaseMaturity: 1,
		MaxBlockBytes:    1 << 20,
		MaxTxBytes:       1 << 16,
		ClockSkew:        2 * time.Hour,
		BlockSubsidyTable: []netparams.SubsidyStep{
			{FromHeight: 0, Amount: 50},
		},
	}
}

func easyBits(params *netparams.Params) uint32 {
	return wire.BigToCompact(params.PowLimit)
}

func coinbaseTx(height uint64, minerAddr string, amount uint64) *wire.Transaction {
	return &wire.Transaction{
		Version: wire.TxVersion,
		Outputs: []wire.TxOutput{{Address: minerAddr, Amount: amount}},
	}
}

func buildBlock(v *Validator, height uint64, prevHash wire.Hash, minerAddr string, fees uint64, extra ...*wire.Transaction) *wire.Block {
	subsidy := v.params.BlockSubsidy(height) + fees
	txs := append([]*wire.Transaction{coinbaseTx(height, minerAddr, subsidy)}, extra...)
	b := &wire.Block{
		Header: wire.BlockHeader{
			Version:        wire.BlockVersion,
			Height:         height,
			PrevHash:       prevHash,
			Timestamp:      time.Now().Unix(),
			DifficultyBits: easyBits(v.params),
			MinerAddress:   minerAddr,
		},
	}
	b.Transactions = txs
	ids := make([]wire.Hash, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxID()
	}
	b.Header.MerkleRoot = wire.CalculateMerkleRoot(ids)
	return b
}

func TestCheckBlockHeaderAcceptsValidHeader(t *testing.T) {
	v := New(testParams())
	parent := ParentInfo{Height: 10, Hash: wire.Hash{9}, MedianTimePast: 1000, RequiredDifficulty: easyBits(v.params)}
	header := &wire.BlockHeader{
		Height:         11,
		PrevHash:       parent.Hash,
		Timestamp:      2000,
		DifficultyBits: parent.RequiredDifficulty,
	}
	if err := v.CheckBlockHeader(header, parent, time.Unix(2000, 0)); err != nil {
		t.Fatalf("expected valid header to pass, got %v", err)
	}
}

func TestCheckBlockHeaderRejectsStaleTimestamp(t *testing.T) {
	v := New(testParams())
	parent := ParentInfo{Height: 10, Hash: wire.Hash{9}, MedianTimePast: 1000, RequiredDifficulty: easyBits(v.params)}
	header := &wire.BlockHeader{
		Height:         11,
		PrevHash:       parent.Hash,
		Timestamp:      999,
		DifficultyBits: parent.RequiredDifficulty,
	}
	if err := v.CheckBlockHeader(header, parent, time.Unix(2000, 0)); err == nil {
		t.Fatal("expected timestamp not exceeding median time past to be rejected")
	}
}

func TestCheckBlockHeaderRejectsWrongParent(t *testing.T) {
	v := New(testParams())
	parent := ParentInfo{Height: 10, Hash: wire.Hash{9}, MedianTimePast: 1000, RequiredDifficulty: easyBits(v.params)}
	header := &wire.BlockHeader{
		Height:         11,
		PrevHash:       wire.Hash{0xaa},
		Timestamp:      2000,
		DifficultyBits: parent.RequiredDifficulty,
	}
	if err := v.CheckBlockHeader(header, parent, time.Unix(2000, 0)); err == nil {
		t.Fatal("expected mismatched previous hash to be rejected")
	}
}

func TestCheckBlockHeaderRejectsBadDifficultyTarget(t *testing.T) {
	v := New(testParams())
	impossible := uint32(0x01010000) // a target of 1, unreachable without mining
	parent := ParentInfo{Height: 10, Hash: wire.Hash{9}, MedianTimePast: 1000, RequiredDifficulty: impossible}
	header := &wire.BlockHeader{
		Height:         11,
		PrevHash:       parent.Hash,
		Timestamp:      2000,
		DifficultyBits: impossible,
	}
	if err := v.CheckBlockHeader(header, parent, time.Unix(2000, 0)); err == nil {
		t.Fatal("expected a hash exceeding its target to be rejected")
	}
}

func TestCheckBlockBodyAcceptsValidBlock(t *testing.T) {
	v := New(testParams())
	b := buildBlock(v, 1, wire.Hash{}, "miner", 0)
	if err := v.CheckBlockBody(b); err != nil {
		t.Fatalf("expected valid block body to pass, got %v", err)
	}
}

func TestCheckBlockBodyRejectsWrongCoinbaseAmount(t *testing.T) {
	v := New(testParams())
	b := buildBlock(v, 1, wire.Hash{}, "miner", 0)
	b.Transactions[0].Outputs[0].Amount += 1
	b.Header.MerkleRoot = wire.CalculateMerkleRoot(b.TransactionIDs())
	if err := v.CheckBlockBody(b); err == nil {
		t.Fatal("expected coinbase amount mismatch to be rejected")
	}
}

func TestCheckBlockBodyRejectsBadMerkleRoot(t *testing.T) {
	v := New(testParams())
	b := buildBlock(v, 1, wire.Hash{}, "miner", 0)
	b.Header.MerkleRoot = wire.Hash{0x1}
	if err := v.CheckBlockBody(b); err == nil {
		t.Fatal("expected corrupted merkle root to be rejected")
	}
}

func TestCheckBlockBodyRejectsDuplicateTransaction(t *testing.T) {
	v := New(testParams())
	spend := &wire.Transaction{
		Version: wire.TxVersion,
		Inputs:  []wire.Outpoint{{PrevTxID: wire.Hash{1}, PrevVout: 0}},
		Outputs: []wire.TxOutput{{Address: "x", Amount: 1}},
		Sender:  "alice",
	}
	b := buildBlock(v, 1, wire.Hash{}, "miner", 0, spend, spend)
	if err := v.CheckBlockBody(b); err == nil {
		t.Fatal("expected duplicate transaction ids to be rejected")
	}
}

func TestApplyToScratchAppliesAndReverts(t *testing.T) {
	v := New(testParams())
	set := utxo.NewSet(1)
	b := buildBlock(v, 1, wire.Hash{}, "miner", 0)
	delta, err := v.ApplyToScratch(b, set)
	if err != nil {
		t.Fatalf("ApplyToScratch: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 utxo entry, got %d", set.Len())
	}
	set.RevertDeltas(delta)
	if set.Len() != 0 {
		t.Fatalf("expected revert to empty the set, got %d", set.Len())
	}
}
