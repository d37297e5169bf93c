package utxo

import (
	"testing"

	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

func block(height uint64, coinbaseOut wire.TxOutput, txs ...*wire.Transaction) *wire.Block {
	coinbase := &wire.Transaction{Version: wire.TxVersion, Outputs: []wire.TxOutput{coinbaseOut}}
	all := append([]*wire.Transaction{coinbase}, txs...)
	return &wire.Block{Header: wire.BlockHeader{Height: height}, Transactions: all}
}

func TestApplyBlockAndRevert(t *testing.T) {
	set := NewSet(100)
	b1 := block(1, wire.TxOutput{Address: "miner", Amount: 50})

	delta, err := set.ApplyBlock(b1)
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 entry after genesis-style block, got %d", set.Len())
	}

	set.RevertDeltas(delta)
	if set.Len() != 0 {
		t.Fatalf("expected 0 entries after revert, got %d", set.Len())
	}
}

func TestConsumeImmatureCoinbaseRejected(t *testing.T) {
	set := NewSet(100)
	b1 := block(1, wire.TxOutput{Address: "miner", Amount: 50})
	delta, err := set.ApplyBlock(b1)
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	coinbaseOutpoint := delta.Created[0]

	_, err = set.Consume([]wire.Outpoint{coinbaseOutpoint}, 50)
	if err == nil {
		t.Fatal("expected immature coinbase spend to fail")
	}
	if !xaierr.Is(err, xaierr.KindConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	if _, err := set.Consume([]wire.Outpoint{coinbaseOutpoint}, 101); err != nil {
		t.Fatalf("expected mature coinbase spend to succeed, got %v", err)
	}
}

func TestApplyBlockAllOrNothing(t *testing.T) {
	set := NewSet(1)
	badSpend := &wire.Transaction{
		Version: wire.TxVersion,
		Inputs:  []wire.Outpoint{{PrevTxID: wire.Hash{0xff}, PrevVout: 0}},
		Outputs: []wire.TxOutput{{Address: "x", Amount: 1}},
	}
	b := block(1, wire.TxOutput{Address: "miner", Amount: 50}, badSpend)

	before := set.Len()
	if _, err := set.ApplyBlock(b); err == nil {
		t.Fatal("expected block with a missing input to fail")
	}
	if set.Len() != before {
		t.Fatalf("set was mutated by a failed block: before=%d after=%d", before, set.Len())
	}
}

func TestMerkleRootStableUnderInsertOrder(t *testing.T) {
	setA := NewSet(100)
	setB := NewSet(100)

	txA := wire.Hash{1}
	txB := wire.Hash{2}
	setA.Produce(txA, []wire.TxOutput{{Address: "a", Amount: 1}}, 1, false)
	setA.Produce(txB, []wire.TxOutput{{Address: "b", Amount: 2}}, 1, false)

	setB.Produce(txB, []wire.TxOutput{{Address: "b", Amount: 2}}, 1, false)
	setB.Produce(txA, []wire.TxOutput{{Address: "a", Amount: 1}}, 1, false)

	if setA.MerkleRoot() != setB.MerkleRoot() {
		t.Fatal("merkle root must be independent of insertion order")
	}
}
