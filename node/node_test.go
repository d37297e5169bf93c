package node

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/p2p"
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
		MempoolMaxBytes:      1 << 20,
		MempoolTTL:           time.Hour,
		CandidateTxLimit:     10,
		MaxMsgRate:           100,
		MaxBWIn:              1 << 20,
		ReplayCacheMax:       1024,
		NonceTTL:             time.Minute,
		BanThreshold:         50,
		BanDuration:          time.Minute,
		PeerFanout:           4,
		PeerSendQueueSize:    8,
		PeerRPCTimeout:       time.Second,
		SyncPeerSampleSize:   3,
		HeaderBatch:          10,
		MaxHeaderWalk:        10,
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

func newNodeParams(t *testing.T) *netparams.Params {
	t.Helper()
	params := testParams()
	params.GenesisBlock = mineBlock(params, 0, wire.Hash{}, "genesis-miner", 1_700_000_000)
	return params
}

func TestNewOpensStoreAndChainManager(t *testing.T) {
	params := newNodeParams(t)
	n, err := New(params, Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status := n.Status()
	if status.Height != 0 {
		t.Fatalf("expected a fresh node to start at height 0, got %d", status.Height)
	}
	if status.PeerCount != 0 {
		t.Fatalf("expected zero peers before Start, got %d", status.PeerCount)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	params := newNodeParams(t)
	n, err := New(params, Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
}

func TestStartWithListenAddrAcceptsConnections(t *testing.T) {
	params := newNodeParams(t)
	n, err := New(params, Config{DataDir: t.TempDir(), ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	addr := n.listener.Addr().String()
	conn, err := p2p.Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
	time.Sleep(50 * time.Millisecond) // let serveConn register and tear down the peer
}

// TestConnectPeerSyncsFromAhead builds two nodes sharing the same
// genesis, mines a short chain directly into node A's manager, starts
// both nodes listening, and connects B to A. The handshake should
// learn A's greater cumulative work and run a sync.Flow that catches B
// up to A's tip without either side touching storage directly.
func TestConnectPeerSyncsFromAhead(t *testing.T) {
	params := newNodeParams(t)

	nodeA, err := New(params, Config{DataDir: t.TempDir(), ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New (A): %v", err)
	}
	prev := params.GenesisBlock.Hash()
	for h := uint64(1); h <= 3; h++ {
		block := mineBlock(params, h, prev, "miner-a", 1_700_000_000+int64(h)*10)
		if _, err := nodeA.Manager.ProcessBlock(block); err != nil {
			t.Fatalf("ProcessBlock height %d: %v", h, err)
		}
		prev = block.Hash()
	}
	if err := nodeA.Start(); err != nil {
		t.Fatalf("Start (A): %v", err)
	}
	defer nodeA.Stop()

	nodeB, err := New(params, Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New (B): %v", err)
	}
	if err := nodeB.Start(); err != nil {
		t.Fatalf("Start (B): %v", err)
	}
	defer nodeB.Stop()

	addr := nodeA.listener.Addr().String()
	connErr := make(chan error, 1)
	go func() { connErr <- nodeB.ConnectPeer(context.Background(), addr) }()

	deadline := time.After(5 * time.Second)
	for {
		if nodeB.Manager.TipHeight() == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("node B never caught up, tip height %d", nodeB.Manager.TipHeight())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestEventBusDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()
	bus.Publish(TipEvent{Height: 1, Work: big.NewInt(5)})

	select {
	case ev := <-sub:
		if ev.Height != 1 {
			t.Fatalf("expected height 1, got %d", ev.Height)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the subscriber to receive the published event")
	}
}

func TestEventBusDropsOnFullSubscriberQueue(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()
	for i := 0; i < 100; i++ {
		bus.Publish(TipEvent{Height: uint64(i)})
	}
	count := 0
	for {
		select {
		case <-sub:
			count++
		default:
			if count == 0 {
				t.Fatal("expected at least the buffer's worth of events to survive")
			}
			return
		}
	}
}
