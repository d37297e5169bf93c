package sync

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/xaichain/xaid/chain"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/p2p"
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
		RetargetInterval:     0,
		MedianTimeBlockCount: 11,
		MaxReorgDepth:        5,
		BlockSubsidyTable:    []netparams.SubsidyStep{{FromHeight: 0, Amount: 50}},
		SyncPeerSampleSize:   3,
		HeaderBatch:          10,
		GapTolerance:         0,
		MaxHeaderWalk:        10,
		PeerRPCTimeout:       2 * time.Second,
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

func newManager(t *testing.T, params *netparams.Params) *chain.Manager {
	t.Helper()
	store, err := storage.Open(t.TempDir(), params.CoinbaseMaturity, 1000)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	m, err := chain.New(params, store, validator.New(params))
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	return m
}

// fakePeerServer answers get_headers/get_block requests arriving on
// requestRoute out of remote's store, replying on responseRoute — a
// same-process stand-in for the real network transport.
func fakePeerServer(t *testing.T, remote *chain.Manager, requestRoute, responseRoute *p2p.Route) {
	t.Helper()
	go func() {
		for {
			msg, err := requestRoute.Dequeue()
			if err != nil {
				return
			}
			switch m := msg.(type) {
			case *wire.MsgGetHeaders:
				headers := collectHeaders(remote, m.FromHash, int(m.Count))
				_ = responseRoute.Enqueue(&wire.MsgHeaders{Headers: headers})
			case *wire.MsgGetBlock:
				block, err := remote.Store().GetBlockByHash(m.BlockHash)
				if err != nil {
					continue
				}
				_ = responseRoute.Enqueue(&wire.MsgIBDBlock{Block: *block})
			}
		}
	}()
}

func collectHeaders(remote *chain.Manager, from wire.Hash, count int) []wire.BlockHeader {
	fromBlock, err := remote.Store().GetBlockByHash(from)
	if err != nil {
		return nil
	}
	var out []wire.BlockHeader
	for height := fromBlock.Header.Height + 1; len(out) < count; height++ {
		b, err := remote.Store().GetBlockByHeight(height)
		if err != nil {
			break
		}
		out = append(out, b.Header)
	}
	return out
}

func TestFlowDownloadsAndAppliesMissingBlocks(t *testing.T) {
	params := testParams()
	params.GenesisBlock = mineBlock(params, 0, wire.Hash{}, "genesis-miner", 1_700_000_000)

	remote := newManager(t, params)
	local := newManager(t, params)

	b1 := mineBlock(params, 1, remote.TipHash(), "miner1", 1_700_000_010)
	if _, err := remote.ProcessBlock(b1); err != nil {
		t.Fatalf("remote ProcessBlock b1: %v", err)
	}
	b2 := mineBlock(params, 2, b1.Hash(), "miner1", 1_700_000_020)
	if _, err := remote.ProcessBlock(b2); err != nil {
		t.Fatalf("remote ProcessBlock b2: %v", err)
	}

	requestRoute := p2p.NewRoute()
	responseRoute := p2p.NewRoute()
	fakePeerServer(t, remote, requestRoute, responseRoute)

	peerTip := PeerTip{PeerID: "remote", Hash: remote.TipHash(), Height: remote.TipHeight(), CumulativeWork: remote.TipWork()}
	flow := NewFlow(local, params, responseRoute, requestRoute, peerTip)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := flow.Run(ctx); err != nil {
		t.Fatalf("flow.Run: %v", err)
	}

	if local.TipHash() != remote.TipHash() {
		t.Fatalf("expected local tip to match remote tip after sync, got local=%x remote=%x", local.TipHash(), remote.TipHash())
	}
	if local.TipHeight() != 2 {
		t.Fatalf("expected local height 2, got %d", local.TipHeight())
	}
	if local.State() != chain.StateActive {
		t.Fatalf("expected local manager to return to Active once caught up, got %s", local.State())
	}
}

func TestFlowSkipsAlreadyCaughtUpPeer(t *testing.T) {
	params := testParams()
	params.GenesisBlock = mineBlock(params, 0, wire.Hash{}, "genesis-miner", 1_700_000_000)
	local := newManager(t, params)

	peerTip := PeerTip{PeerID: "remote", Hash: local.TipHash(), Height: local.TipHeight(), CumulativeWork: local.TipWork()}
	flow := NewFlow(local, params, p2p.NewRoute(), p2p.NewRoute(), peerTip)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := flow.Run(ctx); err != nil {
		t.Fatalf("flow.Run should be a no-op for an already-matching tip: %v", err)
	}
}

func TestBestTipPicksGreatestCumulativeWork(t *testing.T) {
	tips := []PeerTip{
		{PeerID: "a", CumulativeWork: big.NewInt(10)},
		{PeerID: "b", CumulativeWork: big.NewInt(30)},
		{PeerID: "c", CumulativeWork: big.NewInt(20)},
	}
	best, ok := BestTip(tips)
	if !ok || best.PeerID != "b" {
		t.Fatalf("expected peer b to have the greatest cumulative work, got %+v (ok=%v)", best, ok)
	}
}
