package utxo

import (
	"sort"
	"sync"

	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

const (
	// CodeMissing means an input referenced an outpoint this set has no
	// record of.
	CodeMissing xaierr.Code = "utxo_missing"
	// CodeImmature means an input referenced an unmatured coinbase output.
	CodeImmature xaierr.Code = "utxo_immature"
)

// Delta records everything ApplyBlock changed, in the exact shape
// RevertDeltas needs to undo it (specification §4.3's WAL record:
// {block_hash, spent, created}).
type Delta struct {
	BlockHash wire.Hash
	Spent     []SpentEntry
	Created   []wire.Outpoint
}

// SpentEntry pairs an outpoint with the entry that occupied it before it
// was consumed, so a revert can restore it verbatim.
type SpentEntry struct {
	Outpoint wire.Outpoint
	Entry    *Entry
}

// Set is the authoritative in-memory (txid,vout) -> Entry map. The chain
// manager is its only writer; every other component reads a snapshot or
// operates on a candidate copy (specification §2 ownership rule).
type Set struct {
	mu       sync.RWMutex
	entries  map[wire.Outpoint]*Entry
	maturity uint64
}

// NewSet returns an empty set that enforces coinbaseMaturity confirmations
// before a coinbase output may be consumed.
func NewSet(coinbaseMaturity uint64) *Set {
	return &Set{entries: make(map[wire.Outpoint]*Entry), maturity: coinbaseMaturity}
}

// Get returns the entry at outpoint, if any.
func (s *Set) Get(outpoint wire.Outpoint) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[outpoint]
	return e, ok
}

// Len reports the number of unspent entries currently held.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Consume atomically removes the entries for inputs at spendHeight,
// returning the removed entries or a *xaierr.Error if any input is
// missing, already spent, or an immature coinbase. On any failure no
// entry is removed (specification §4.4: consume is atomic).
func (s *Set) Consume(inputs []wire.Outpoint, spendHeight uint64) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeLocked(inputs, spendHeight)
}

func (s *Set) consumeLocked(inputs []wire.Outpoint, spendHeight uint64) ([]*Entry, error) {
	removed := make([]*Entry, len(inputs))
	for i, in := range inputs {
		entry, ok := s.entries[in]
		if !ok {
			return nil, xaierr.New(xaierr.KindConflict, CodeMissing,
				"outpoint %x:%d not found in utxo set", in.PrevTxID, in.PrevVout)
		}
		if !entry.IsMatureAt(spendHeight, s.maturity) {
			return nil, xaierr.New(xaierr.KindConflict, CodeImmature,
				"outpoint %x:%d is an immature coinbase (created %d, spend %d, maturity %d)",
				in.PrevTxID, in.PrevVout, entry.BlockHeight, spendHeight, s.maturity)
		}
		removed[i] = entry
	}
	for i, in := range inputs {
		delete(s.entries, in)
		_ = removed[i]
	}
	return removed, nil
}

// Produce inserts newly created outputs, keyed by their owning txid.
func (s *Set) Produce(txID wire.Hash, outputs []wire.TxOutput, height uint64, isCoinbase bool) []wire.Outpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produceLocked(txID, outputs, height, isCoinbase)
}

func (s *Set) produceLocked(txID wire.Hash, outputs []wire.TxOutput, height uint64, isCoinbase bool) []wire.Outpoint {
	created := make([]wire.Outpoint, len(outputs))
	for i, out := range outputs {
		op := wire.Outpoint{PrevTxID: txID, PrevVout: uint32(i)}
		s.entries[op] = NewEntry(out.Address, out.Amount, height, isCoinbase)
		created[i] = op
	}
	return created
}

// ApplyBlock consumes every transaction's inputs and produces every
// transaction's outputs in order, rolling back all partial changes if any
// transaction in the block fails (specification §4.4: "blocks are
// all-or-nothing").
func (s *Set) ApplyBlock(block *wire.Block) (*Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep a copy of the whole entry map so a failure partway through the
	// block can restore the live set as it was.
	snapshot := make(map[wire.Outpoint]*Entry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}

	delta := &Delta{BlockHash: block.Hash()}
	for i, tx := range block.Transactions {
		isCoinbase := i == 0
		if !isCoinbase {
			removed, err := s.consumeLocked(tx.Inputs, block.Header.Height)
			if err != nil {
				s.entries = snapshot
				return nil, err
			}
			for i, in := range tx.Inputs {
				delta.Spent = append(delta.Spent, SpentEntry{Outpoint: in, Entry: removed[i]})
			}
		}
		created := s.produceLocked(tx.TxID(), tx.Outputs, block.Header.Height, isCoinbase)
		delta.Created = append(delta.Created, created...)
	}
	return delta, nil
}

// RevertDeltas undoes exactly what ApplyBlock recorded: every created
// outpoint is removed and every spent entry is restored, the inverse
// operation the WAL drives during a reorg (specification §4.4).
func (s *Set) RevertDeltas(delta *Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range delta.Created {
		delete(s.entries, op)
	}
	for _, spent := range delta.Spent {
		s.entries[spent.Outpoint] = spent.Entry
	}
}

// TotalAmount sums every unspent entry's amount, used to check the
// invariant sum(all entry amounts) = sum(block subsidies) - burned.
func (s *Set) TotalAmount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, e := range s.entries {
		total += e.Amount
	}
	return total
}

// MerkleRoot computes a Merkle root over every (txid,vout,entry) tuple
// sorted into canonical order, the UTXO root computed at each checkpoint
// for audit (specification §4.4).
func (s *Set) MerkleRoot() wire.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type leafKey struct {
		op  wire.Outpoint
		leaf wire.Hash
	}
	leaves := make([]leafKey, 0, len(s.entries))
	for op, e := range s.entries {
		leaves = append(leaves, leafKey{op: op, leaf: leafHash(op, e)})
	}
	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].op.PrevTxID != leaves[j].op.PrevTxID {
			return lessHash(leaves[i].op.PrevTxID, leaves[j].op.PrevTxID)
		}
		return leaves[i].op.PrevVout < leaves[j].op.PrevVout
	})
	ordered := make([]wire.Hash, len(leaves))
	for i, l := range leaves {
		ordered[i] = l.leaf
	}
	return wire.CalculateMerkleRoot(ordered)
}

func lessHash(a, b wire.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func leafHash(op wire.Outpoint, e *Entry) wire.Hash {
	var buf []byte
	buf = append(buf, op.PrevTxID[:]...)
	buf = append(buf, byte(op.PrevVout), byte(op.PrevVout>>8), byte(op.PrevVout>>16), byte(op.PrevVout>>24))
	buf = append(buf, []byte(e.Address)...)
	amt := e.Amount
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(amt))
		amt >>= 8
	}
	return wire.DoubleHashH(buf)
}
