package p2p

import (
	"testing"

	"github.com/xaichain/xaid/wire"
)

func TestAnnounceRespectsFanoutBound(t *testing.T) {
	params := testParams()
	params.PeerFanout = 2
	registry := NewRegistry(params)
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		registry.Add(id, id+":9000")
	}

	gossiper := NewGossiper(params, registry)
	sent := gossiper.Announce(wire.InvTypeBlock, []wire.Hash{{1}}, "")
	if sent > params.PeerFanout {
		t.Fatalf("expected at most %d peers to receive the announcement, got %d", params.PeerFanout, sent)
	}
	if sent == 0 {
		t.Fatal("expected the announcement to reach at least one peer")
	}
}

func TestAnnounceExcludesOriginatingPeer(t *testing.T) {
	params := testParams()
	params.PeerFanout = 10 // large enough that every eligible peer is selected
	registry := NewRegistry(params)
	registry.Add("origin", "origin:9000")
	peerB := registry.Add("peerB", "peerB:9000")

	gossiper := NewGossiper(params, registry)
	gossiper.Announce(wire.InvTypeTx, []wire.Hash{{1}}, "origin")

	select {
	case <-peerB.SendQueue:
	default:
		t.Fatal("expected peerB to have received the announcement")
	}

	// origin's queue should be empty: it must not be gossiped its own announcement.
	origin, _ := registry.Get("origin")
	select {
	case <-origin.SendQueue:
		t.Fatal("the originating peer should be excluded from its own announcement's fan-out")
	default:
	}
}

func TestAnnounceSkipsBannedPeers(t *testing.T) {
	params := testParams()
	params.PeerFanout = 10
	registry := NewRegistry(params)
	banned := registry.Add("banned", "banned:9000")
	banned.Penalize(1000, params.BanThreshold, params.BanDuration)

	gossiper := NewGossiper(params, registry)
	gossiper.Announce(wire.InvTypeBlock, []wire.Hash{{1}}, "")

	select {
	case <-banned.SendQueue:
		t.Fatal("a banned peer should never be gossiped to")
	default:
	}
}
