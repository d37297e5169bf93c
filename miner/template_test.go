package miner

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/xaichain/xaid/mempool"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

func testParams() *netparams.Params {
	return &netparams.Params{
		PowLimit:          new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1)),
		MaxBlockBytes:     1 << 20,
		MaxTxBytes:        1 << 16,
		ClockSkew:         time.Hour,
		CandidateTxLimit:  10,
		BlockSubsidyTable: []netparams.SubsidyStep{{FromHeight: 0, Amount: 50}},
	}
}

func TestBuildTemplateIncludesCoinbaseAndFees(t *testing.T) {
	params := testParams()
	pool := mempool.New(1<<20, 1, 10, time.Hour)
	tx := &wire.Transaction{
		Version: wire.TxVersion,
		Inputs:  []wire.Outpoint{{PrevTxID: wire.Hash{1}, PrevVout: 0}},
		Outputs: []wire.TxOutput{{Address: "recipient", Amount: 10}},
		Sender:  "alice",
		Fee:     5,
	}
	if err := pool.Accept(tx, params.MaxTxBytes); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	tip := TipInfo{Height: 0, Hash: wire.Hash{}, MedianTimePast: 1_000, RequiredDifficulty: wire.BigToCompact(params.PowLimit)}
	tmpl := BuildTemplate(params, pool, tip, "miner1", 0, 2_000)

	if len(tmpl.Transactions) != 2 {
		t.Fatalf("expected coinbase + 1 pending tx, got %d", len(tmpl.Transactions))
	}
	coinbase := tmpl.Transactions[0]
	if !coinbase.IsCoinbase() {
		t.Fatal("expected the first transaction to be a coinbase")
	}
	if coinbase.Outputs[0].Amount != params.BlockSubsidy(1)+5 {
		t.Fatalf("expected coinbase to pay subsidy+fees, got %d", coinbase.Outputs[0].Amount)
	}
	if tmpl.Header.MerkleRoot != wire.CalculateMerkleRoot(idsOf(tmpl.Transactions)) {
		t.Fatal("template merkle root does not match its transaction list")
	}
}

func TestBuildTemplateRespectsMedianTimeFloor(t *testing.T) {
	params := testParams()
	pool := mempool.New(1<<20, 1, 10, time.Hour)
	tip := TipInfo{Height: 0, Hash: wire.Hash{}, MedianTimePast: 5_000, RequiredDifficulty: wire.BigToCompact(params.PowLimit)}
	tmpl := BuildTemplate(params, pool, tip, "miner1", 0, 4_000)
	if tmpl.Header.Timestamp <= tip.MedianTimePast {
		t.Fatalf("expected timestamp to be bumped past median time past, got %d", tmpl.Header.Timestamp)
	}
}

func TestPoolMineFindsWinningNonce(t *testing.T) {
	params := testParams()
	pool := mempool.New(1<<20, 1, 10, time.Hour)
	tip := TipInfo{Height: 0, Hash: wire.Hash{}, MedianTimePast: 1_000, RequiredDifficulty: wire.BigToCompact(params.PowLimit)}
	tmpl := BuildTemplate(params, pool, tip, "miner1", 0, 2_000)

	workerPool := NewPool(params, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = workerPool.Mine(ctx, tmpl, tip.MedianTimePast)
		close(done)
	}()

	select {
	case found := <-workerPool.Found():
		if !wire.MeetsTarget(found.Block.Hash(), found.Block.Header.DifficultyBits) {
			t.Fatal("found block does not actually meet its difficulty target")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the worker pool to find a winning nonce against an easy target")
	}
	<-done
}
