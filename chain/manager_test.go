package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/storage"
	"github.com/xaichain/xaid/validator"
	"github.com/xaichain/xaid/wire"
)

func testParams() *netparams.Params {
	return &netparams.Params{
		PowLimit:             new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1)),
		CoinbaseMaturity:     100,
		MaxBlockBytes:        1 << 20,
		MaxTxBytes:           1 << 16,
		ClockSkew:            24 * time.Hour,
		RetargetInterval:     0, // disabled: keeps difficulty_bits constant across the test chain
		MedianTimeBlockCount: 11,
		MaxReorgDepth:        5,
		BlockSubsidyTable:    []netparams.SubsidyStep{{FromHeight: 0, Amount: 50}},
	}
}

func easyBits(p *netparams.Params) uint32 { return wire.BigToCompact(p.PowLimit) }

func mineBlock(p *netparams.Params, height uint64, prev wire.Hash, minerAddr string, timestamp int64) *wire.Block {
	coinbase := &wire.Transaction{
		Version: wire.TxVersion,
		Outputs: []wire.TxOutput{{Address: minerAddr, Amount: p.BlockSubsidy(height)}},
	}
	b := &wire.Block{
		Header: wire.BlockHeader{
			Version:        wire.BlockVersion,
			Height:         height,
			PrevHash:       prev,
			Timestamp:      timestamp,
			DifficultyBits: easyBits(p),
			MinerAddress:   minerAddr,
		},
		Transactions: []*wire.Transaction{coinbase},
	}
	b.Header.MerkleRoot = wire.CalculateMerkleRoot(b.TransactionIDs())
	for !wire.MeetsTarget(b.Header.Hash(), b.Header.DifficultyBits) {
		b.Header.Nonce++
	}
	return b
}

func newTestManager(t *testing.T) (*Manager, *netparams.Params, *storage.Store) {
	t.Helper()
	params := testParams()
	params.GenesisBlock = mineBlock(params, 0, wire.Hash{}, "genesis-miner", 1_700_000_000)

	store, err := storage.Open(t.TempDir(), params.CoinbaseMaturity, 1000)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	v := validator.New(params)
	m, err := New(params, store, v)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, params, store
}

func TestProcessBlockExtendsTip(t *testing.T) {
	m, params, store := newTestManager(t)
	b1 := mineBlock(params, 1, m.TipHash(), "miner1", 1_700_000_010)
	if isOrphan, err := m.ProcessBlock(b1); err != nil || isOrphan {
		t.Fatalf("ProcessBlock: isOrphan=%v err=%v", isOrphan, err)
	}
	height, ok := store.TipHeight()
	if !ok || height != 1 {
		t.Fatalf("expected tip height 1, got %d (ok=%v)", height, ok)
	}
	if m.TipHash() != b1.Hash() {
		t.Fatal("expected manager tip to track the new block")
	}
}

func TestProcessBlockQueuesOrphan(t *testing.T) {
	m, params, _ := newTestManager(t)
	unknownParent := wire.Hash{0xde, 0xad}
	b := mineBlock(params, 5, unknownParent, "miner1", 1_700_000_050)
	isOrphan, err := m.ProcessBlock(b)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if !isOrphan {
		t.Fatal("expected a block with an unknown parent to be queued as an orphan")
	}
}

func TestProcessBlockReorganizesToHigherWork(t *testing.T) {
	m, params, store := newTestManager(t)
	a1 := mineBlock(params, 1, m.TipHash(), "minerA", 1_700_000_010)
	if _, err := m.ProcessBlock(a1); err != nil {
		t.Fatalf("ProcessBlock a1: %v", err)
	}
	a2 := mineBlock(params, 2, a1.Hash(), "minerA", 1_700_000_020)
	if _, err := m.ProcessBlock(a2); err != nil {
		t.Fatalf("ProcessBlock a2: %v", err)
	}

	// Side branch at height 1, not enough work alone to beat the tip.
	b1 := mineBlock(params, 1, a1.Header.PrevHash, "minerB", 1_700_000_011)
	if isOrphan, err := m.ProcessBlock(b1); err != nil || isOrphan {
		t.Fatalf("ProcessBlock b1: isOrphan=%v err=%v", isOrphan, err)
	}
	if m.TipHash() != a2.Hash() {
		t.Fatal("side branch at equal height must not become the tip")
	}

	// Extend the side branch past a2's cumulative work.
	b2 := mineBlock(params, 2, b1.Hash(), "minerB", 1_700_000_021)
	if _, err := m.ProcessBlock(b2); err != nil {
		t.Fatalf("ProcessBlock b2: %v", err)
	}
	b3 := mineBlock(params, 3, b2.Hash(), "minerB", 1_700_000_031)
	if _, err := m.ProcessBlock(b3); err != nil {
		t.Fatalf("ProcessBlock b3: %v", err)
	}

	if m.TipHash() != b3.Hash() {
		t.Fatal("expected the longer branch to become the active tip after reorg")
	}
	height, ok := store.TipHeight()
	if !ok || height != 3 {
		t.Fatalf("expected store tip height 3 after reorg, got %d (ok=%v)", height, ok)
	}
	got, err := store.GetBlockByHeight(1)
	if err != nil {
		t.Fatalf("GetBlockByHeight(1): %v", err)
	}
	if got.Hash() != b1.Hash() {
		t.Fatal("expected the reorg to have replaced height 1 with the winning branch's block")
	}
}
