// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package p2p is the peer registry, signed-envelope verification,
// rate-limiting/reputation, and gossip fan-out layer (specification
// §4.10). It speaks the wire package's message vocabulary wrapped in
// signed envelopes and never touches chain state directly — validated
// blocks and transactions are handed to the chain manager / mempool by
// the node orchestrator that wires this package to them.
package p2p

import (
	"bytes"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xaichain/xaid/wire"
)

// TrustState is a peer's standing with this node.
type TrustState int

const (
	TrustUnknown TrustState = iota
	TrustTrusted
	TrustBanned
)

func (t TrustState) String() string {
	switch t {
	case TrustTrusted:
		return "trusted"
	case TrustBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Peer is one connection's bookkeeping: identity, endpoint, trust and
// reputation state, and the per-peer rate limiters (specification
// §4.10: "each peer has an identifier ... endpoint, trust state ...
// reputation score ... a sliding-window message counter, and a
// last-seen timestamp").
type Peer struct {
	ID       string // registry key; the node uses the remote address
	Endpoint string

	mu         sync.Mutex
	trust      TrustState
	reputation int
	lastSeen   time.Time
	bannedTil  time.Time

	msgLimiter *rate.Limiter
	bwLimiter  *rate.Limiter

	SendQueue chan []byte
}

func newPeer(id, endpoint string, maxMsgRate, maxBWIn float64, sendQueueSize int) *Peer {
	return &Peer{
		ID:         id,
		Endpoint:   endpoint,
		trust:      TrustUnknown,
		reputation: 100,
		lastSeen:   time.Now(),
		msgLimiter: rate.NewLimiter(rate.Limit(maxMsgRate), int(maxMsgRate)+1),
		bwLimiter:  rate.NewLimiter(rate.Limit(maxBWIn), int(maxBWIn)+1),
		SendQueue:  make(chan []byte, sendQueueSize),
	}
}

// Trust reports the peer's current trust state, resolving an expired
// ban back to Unknown.
func (p *Peer) Trust() TrustState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trust == TrustBanned && time.Now().After(p.bannedTil) {
		p.trust = TrustUnknown
		p.reputation = 100
	}
	return p.trust
}

// Reputation reports the peer's current score.
func (p *Peer) Reputation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reputation
}

// Touch records that a message was just received from this peer.
func (p *Peer) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = time.Now()
}

// LastSeen reports the last time a message was received from this peer.
func (p *Peer) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// AllowMessage consults the per-peer token buckets for one message of
// size bytes, the MAX_MSG_RATE/MAX_BW_IN rate limit (specification
// §4.10).
func (p *Peer) AllowMessage(size int) bool {
	return p.msgLimiter.Allow() && p.bwLimiter.AllowN(time.Now(), size)
}

// Penalize debits delta reputation points (e.g. for an over-limit event
// or an invalid announced object) and bans the peer once reputation
// drops below banThreshold, for banDuration.
func (p *Peer) Penalize(delta int, banThreshold int, banDuration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reputation -= delta
	if p.reputation < 0 {
		p.reputation = 0
	}
	if p.reputation < banThreshold {
		p.trust = TrustBanned
		p.bannedTil = time.Now().Add(banDuration)
	}
}

// MarkTrusted promotes the peer to the trusted trust state (e.g. a
// configured bootstrap peer).
func (p *Peer) MarkTrusted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trust = TrustTrusted
}

// Send enqueues a framed message for this peer's writer goroutine. If
// the queue is full it discards the frame instead of blocking and
// reports dropped=true; the peer itself stays registered and connected.
func (p *Peer) Send(frame []byte) (dropped bool) {
	select {
	case p.SendQueue <- frame:
		return false
	default:
		return true
	}
}

// EncodeEnvelopeFrame serializes env into a byte slice suitable for Send.
func EncodeEnvelopeFrame(env *wire.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := env.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
