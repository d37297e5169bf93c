// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempool holds pending transactions that have passed stateless
// and stateful validation but are not yet in a committed block: a
// fee/arrival/sender/nonce-indexed pool, RBF replacement, and TTL/
// conflict/fee-displacement eviction (specification §4.5).
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

const (
	// CodeDuplicateNonce means a pending tx already occupies this
	// (sender, nonce) slot and the newcomer does not qualify as its RBF
	// replacement.
	CodeDuplicateNonce xaierr.Code = "mempool_duplicate_nonce"
	// CodeConflict means an input is already referenced by another
	// pending transaction.
	CodeConflict xaierr.Code = "mempool_conflict"
	// CodeLowFee means a transaction's fee is below the min relay fee,
	// or its fee rate is below the current eviction floor.
	CodeLowFee xaierr.Code = "mempool_low_fee"
	// CodeTooLarge means the transaction exceeds MAX_TX_BYTES.
	CodeTooLarge xaierr.Code = "mempool_too_large"
)

// entry wraps a pending transaction with the bookkeeping the pool needs:
// arrival order, byte size, and fee rate.
type entry struct {
	tx        *wire.Transaction
	arrivedAt time.Time
	size      int
	feeRate   float64 // fee per byte
	index     int     // heap index, maintained by container/heap
}

// senderNonceKey identifies one pending slot for RBF lookups.
type senderNonceKey struct {
	sender string
	nonce  uint64
}

// Pool is the node's set of pending transactions, ordered for mining by
// descending fee rate then ascending arrival time, subject to per-sender
// nonce order (specification §4.5).
type Pool struct {
	mu sync.RWMutex

	maxBytes       uint64
	minRelayFee    uint64
	rbfBumpPercent uint64
	ttl            time.Duration

	byTxID        map[wire.Hash]*entry
	bySenderNonce map[senderNonceKey]*entry
	spentInputs   map[wire.Outpoint]*entry
	byFeeRate     feeRateHeap
	totalBytes    uint64
}

// New returns an empty pool configured from the active network's policy
// parameters.
func New(maxBytes, minRelayFee, rbfBumpPercent uint64, ttl time.Duration) *Pool {
	return &Pool{
		maxBytes:       maxBytes,
		minRelayFee:    minRelayFee,
		rbfBumpPercent: rbfBumpPercent,
		ttl:            ttl,
		byTxID:         make(map[wire.Hash]*entry),
		bySenderNonce:  make(map[senderNonceKey]*entry),
		spentInputs:    make(map[wire.Outpoint]*entry),
	}
}

// Len reports the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byTxID)
}

// Has reports whether txID is currently pending.
func (p *Pool) Has(txID wire.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byTxID[txID]
	return ok
}

// Get returns the pending transaction with the given id, if any.
func (p *Pool) Get(txID wire.Hash) (*wire.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byTxID[txID]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// SenderOf reports the sender of a currently pending transaction,
// satisfying validator.MempoolLookup for RBF replaces-txid checks
// (specification §4.6).
func (p *Pool) SenderOf(txID wire.Hash) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byTxID[txID]
	if !ok {
		return "", false
	}
	return e.tx.Sender, true
}

func feeRate(tx *wire.Transaction, size int) float64 {
	if size == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(size)
}

// Accept admits tx into the pool. It enforces the fee floor, the
// per-(sender,nonce) slot rule (replacing an existing occupant only via a
// qualifying RBF bump), the no-double-spend-within-the-pool rule, and the
// MEMPOOL_MAX_BYTES eviction floor (specification §4.5).
func (p *Pool) Accept(tx *wire.Transaction, maxTxBytes uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := tx.SerializeSize()
	if uint64(size) > maxTxBytes {
		return xaierr.New(xaierr.KindValidation, CodeTooLarge, "transaction is %d bytes, max is %d", size, maxTxBytes)
	}
	rate := feeRate(tx, size)
	if tx.Fee < p.minRelayFee {
		return xaierr.New(xaierr.KindValidation, CodeLowFee, "fee %d is below min relay fee %d", tx.Fee, p.minRelayFee)
	}
	if p.maxBytes > 0 && p.totalBytes+uint64(size) > p.maxBytes {
		if lowest := p.lowestFeeRateEntry(); lowest != nil && rate < lowest.feeRate {
			return xaierr.New(xaierr.KindValidation, CodeLowFee,
				"fee rate %.4f is below the eviction floor %.4f", rate, lowest.feeRate)
		}
	}

	key := senderNonceKey{sender: tx.Sender, nonce: tx.Nonce}
	if existing, ok := p.bySenderNonce[key]; ok {
		if !tx.RBF || !supersetInputs(tx.Inputs, existing.tx.Inputs) {
			return xaierr.New(xaierr.KindConflict, CodeDuplicateNonce,
				"sender %s already has a pending transaction at nonce %d", tx.Sender, tx.Nonce)
		}
		bumpFloor := existing.feeRate * (1 + float64(p.rbfBumpPercent)/100)
		if rate < bumpFloor {
			return xaierr.New(xaierr.KindConflict, CodeDuplicateNonce,
				"replacement fee rate %.4f does not exceed required bump over %.4f", rate, bumpFloor)
		}
		p.removeEntry(existing)
	} else {
		for _, in := range tx.Inputs {
			if _, conflict := p.spentInputs[in]; conflict {
				return xaierr.New(xaierr.KindConflict, CodeConflict, "input %x:%d already spent by a pending transaction", in.PrevTxID, in.PrevVout)
			}
		}
	}

	e := &entry{tx: tx, arrivedAt: now(), size: size, feeRate: rate}
	p.byTxID[tx.TxID()] = e
	p.bySenderNonce[key] = e
	for _, in := range tx.Inputs {
		p.spentInputs[in] = e
	}
	heap.Push(&p.byFeeRate, e)
	p.totalBytes += uint64(size)

	p.evictToFit()
	return nil
}

// supersetInputs reports whether candidate's input set is a superset of
// (or equal to) existing's, the RBF eligibility rule (specification
// §4.5).
func supersetInputs(candidate, existing []wire.Outpoint) bool {
	have := make(map[wire.Outpoint]bool, len(candidate))
	for _, in := range candidate {
		have[in] = true
	}
	for _, in := range existing {
		if !have[in] {
			return false
		}
	}
	return true
}

func (p *Pool) removeEntry(e *entry) {
	delete(p.byTxID, e.tx.TxID())
	delete(p.bySenderNonce, senderNonceKey{sender: e.tx.Sender, nonce: e.tx.Nonce})
	for _, in := range e.tx.Inputs {
		if p.spentInputs[in] == e {
			delete(p.spentInputs, in)
		}
	}
	if e.index >= 0 && e.index < len(p.byFeeRate) && p.byFeeRate[e.index] == e {
		heap.Remove(&p.byFeeRate, e.index)
	}
	p.totalBytes -= uint64(e.size)
}

// Remove evicts txID from the pool, if present.
func (p *Pool) Remove(txID wire.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeByID(txID)
}

// removeByID is the unlocked form of Remove, for callers already holding
// p.mu.
func (p *Pool) removeByID(txID wire.Hash) {
	e, ok := p.byTxID[txID]
	if !ok {
		return
	}
	p.removeEntry(e)
}

// evictToFit drops the lowest fee-rate entries until the pool is back
// under maxBytes, the fee-displacement rule (specification §4.5). Caller
// must hold p.mu.
func (p *Pool) evictToFit() {
	for p.maxBytes > 0 && p.totalBytes > p.maxBytes && len(p.byFeeRate) > 0 {
		lowest := p.lowestFeeRateEntry()
		if lowest == nil {
			return
		}
		p.removeEntry(lowest)
	}
}

func (p *Pool) lowestFeeRateEntry() *entry {
	var lowest *entry
	for _, e := range p.byTxID {
		if lowest == nil || e.feeRate < lowest.feeRate {
			lowest = e
		}
	}
	return lowest
}

// EvictionFloor returns the lowest pending fee rate while the pool holds
// more than maxBytes, and zero otherwise. Accept evicts back under
// maxBytes before it returns, so between calls this reports zero; Accept
// applies its own floor check against the lowest pending fee rate.
func (p *Pool) EvictionFloor() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.maxBytes == 0 || p.totalBytes <= p.maxBytes {
		return 0
	}
	lowest := p.lowestFeeRateEntry()
	if lowest == nil {
		return 0
	}
	return lowest.feeRate
}

// RemoveExpired evicts every transaction older than the pool's TTL,
// skipping conflict/committed bookkeeping since expiry is a pure time
// check (specification §4.5: MEMPOOL_TTL_SECONDS eviction).
func (p *Pool) RemoveExpired() []wire.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []wire.Hash
	cutoff := now().Add(-p.ttl)
	for id, e := range p.byTxID {
		if e.arrivedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		p.removeByID(id)
	}
	return expired
}

// RemoveConflicting evicts any pending transaction that spends an input
// also spent by a just-committed block, the conflict-eviction rule
// triggered on block commit (specification §4.5).
func (p *Pool) RemoveConflicting(spent []wire.Outpoint) []wire.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []wire.Hash
	seen := make(map[wire.Hash]bool)
	for _, in := range spent {
		if e, ok := p.spentInputs[in]; ok {
			id := e.tx.TxID()
			if !seen[id] {
				seen[id] = true
				removed = append(removed, id)
			}
		}
	}
	for _, id := range removed {
		p.removeByID(id)
	}
	return removed
}

// MiningOrder returns pending transactions ordered for block inclusion:
// descending fee rate, ascending arrival time, with each sender's
// transactions constrained to appear in ascending nonce order
// (specification §4.5).
func (p *Pool) MiningOrder() []*wire.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.byTxID))
	for _, e := range p.byTxID {
		entries = append(entries, e)
	}

	bySender := make(map[string][]*entry)
	for _, e := range entries {
		bySender[e.tx.Sender] = append(bySender[e.tx.Sender], e)
	}
	for sender, es := range bySender {
		sortEntriesByNonce(es)
		bySender[sender] = es
	}
	nextIdx := make(map[string]int)

	h := &miningHeap{}
	heap.Init(h)
	headOf := func(sender string) *entry {
		es := bySender[sender]
		i := nextIdx[sender]
		if i >= len(es) {
			return nil
		}
		return es[i]
	}

	pushed := make(map[string]bool)
	for sender := range bySender {
		if head := headOf(sender); head != nil {
			heap.Push(h, head)
			pushed[sender] = true
		}
	}

	ordered := make([]*wire.Transaction, 0, len(entries))
	for h.Len() > 0 {
		e := heap.Pop(h).(*entry)
		ordered = append(ordered, e.tx)
		nextIdx[e.tx.Sender]++
		if next := headOf(e.tx.Sender); next != nil {
			heap.Push(h, next)
		}
	}
	return ordered
}

func sortEntriesByNonce(es []*entry) {
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j].tx.Nonce < es[j-1].tx.Nonce; j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

var now = time.Now
