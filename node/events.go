// Package node is the lifecycle orchestrator that wires chain, mempool,
// p2p, sync, and miner into one running process (specification §2's
// ownership rules, §5's concurrency model). It owns no consensus logic
// of its own — every decision is made by the package responsible for
// it; node only starts, stops, and connects them.
package node

import (
	"math/big"
	"sync"

	"github.com/xaichain/xaid/wire"
)

// TipEvent announces a new active-chain tip. The node's mining loop is
// the only publisher (after committing a block it mined itself) and the
// only subscriber; tips committed through sync or gossip publish nothing,
// and p2p does not subscribe. It is a one-directional event bus, never a
// channel for feeding state back into the chain manager.
type TipEvent struct {
	Hash   wire.Hash
	Height uint64
	Work   *big.Int
}

// EventBus fans a published event out to every current subscriber,
// dropping it for any subscriber whose channel is full rather than
// blocking the publisher, so the publisher never waits on a slow
// subscriber.
type EventBus struct {
	mu   sync.Mutex
	subs []chan TipEvent
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel that receives every subsequent Publish.
func (b *EventBus) Subscribe() <-chan TipEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan TipEvent, 8)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish announces ev to every subscriber, non-blocking.
func (b *EventBus) Publish(ev TipEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
