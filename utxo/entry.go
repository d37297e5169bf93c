// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxo maintains the in-memory unspent-transaction-output set:
// consume/produce/apply_block/revert_deltas over (txid,vout) keys, the
// coinbase-maturity check, and the UTXO Merkle root used by checkpoints
// (specification §4.4).
package utxo

import (
	"github.com/xaichain/xaid/wire"
)

// entryFlags is a bitmask of additional per-entry state, packed to keep
// Entry small — there is one of these per unspent output, and a live
// chain can hold millions.
type entryFlags uint8

const flagCoinbase entryFlags = 1 << iota

// Entry records one unspent output: the address it pays, its amount, the
// height of the block that created it, and whether that creating
// transaction was a coinbase (for maturity checks).
type Entry struct {
	Address     string
	Amount      uint64
	BlockHeight uint64
	flags       entryFlags
}

// NewEntry builds an Entry for a transaction output produced at height.
func NewEntry(address string, amount, height uint64, isCoinbase bool) *Entry {
	e := &Entry{Address: address, Amount: amount, BlockHeight: height}
	if isCoinbase {
		e.flags |= flagCoinbase
	}
	return e
}

// IsCoinbase reports whether the output being described was created by a
// coinbase transaction.
func (e *Entry) IsCoinbase() bool {
	return e.flags&flagCoinbase != 0
}

// IsMatureAt reports whether an output created at e.BlockHeight may be
// spent in a block at spendHeight, given a coinbaseMaturity confirmation
// requirement. Non-coinbase outputs are always mature.
func (e *Entry) IsMatureAt(spendHeight, coinbaseMaturity uint64) bool {
	if !e.IsCoinbase() {
		return true
	}
	return spendHeight >= e.BlockHeight+coinbaseMaturity
}

// Key identifies one entry in the set.
type Key = wire.Outpoint
