package p2p

import (
	"math/rand"
	"sort"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

// Gossiper fans an announcement out to a bounded subset of the known
// peer set (specification §4.10: "announcements are gossiped to a
// bounded fan-out of peers, not flooded to the full peer set").
type Gossiper struct {
	params   *netparams.Params
	registry *Registry
}

// NewGossiper returns a fan-out helper bound to params and registry.
func NewGossiper(params *netparams.Params, registry *Registry) *Gossiper {
	return &Gossiper{params: params, registry: registry}
}

// Announce encodes an inventory announcement for ids and sends it to up
// to PeerFanout peers, preferring peers with the highest reputation and
// excluding except (typically the peer the object was received from).
func (g *Gossiper) Announce(invType wire.InvType, ids []wire.Hash, except string) int {
	msg := &wire.MsgInv{Type: invType, IDs: ids}
	frame, err := encodeGossipFrame(msg)
	if err != nil {
		return 0
	}

	targets := g.selectFanout(except)
	sent := 0
	for _, peer := range targets {
		if peer.Send(frame) {
			continue // queue full: peer dropped this round, not disconnected
		}
		sent++
	}
	return sent
}

func (g *Gossiper) selectFanout(except string) []*Peer {
	all := g.registry.Snapshot()
	candidates := make([]*Peer, 0, len(all))
	for _, p := range all {
		if p.ID == except || p.Trust() == TrustBanned {
			continue
		}
		candidates = append(candidates, p)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Reputation() > candidates[j].Reputation()
	})

	fanout := g.params.PeerFanout
	if fanout <= 0 || fanout >= len(candidates) {
		return candidates
	}

	// Among equally-reasonable candidates, avoid always gossiping to the
	// identical top-N peers by shuffling within the selected slice.
	selected := candidates[:fanout]
	rand.Shuffle(len(selected), func(i, j int) { selected[i], selected[j] = selected[j], selected[i] })
	return selected
}

func encodeGossipFrame(msg wire.Message) ([]byte, error) {
	return encodeMessage(msg)
}
