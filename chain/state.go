// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain owns tip selection: a state machine over
// SyncingHeaders/SyncingBlocks/Active/Reorganizing, an orphan pool keyed
// by previous_hash, common-ancestor reorganization through the storage
// write-ahead log, and cumulative-work tie-breaking (specification
// §4.7).
package chain

import "sync/atomic"

// State is one of the tip-selection states a Manager moves through.
type State int32

const (
	// StateSyncingHeaders is the state while only header chains are
	// being validated against announced peer tips.
	StateSyncingHeaders State = iota
	// StateSyncingBlocks is entered when a peer announces a tip with
	// more cumulative work than ours and full blocks are being fetched.
	StateSyncingBlocks
	// StateActive is the steady state: new blocks are validated and
	// applied to the tip as they arrive.
	StateActive
	// StateReorganizing is entered for the duration of a reorg and left
	// once the new tip (or the restored old tip, on abort) is active.
	StateReorganizing
)

func (s State) String() string {
	switch s {
	case StateSyncingHeaders:
		return "SyncingHeaders"
	case StateSyncingBlocks:
		return "SyncingBlocks"
	case StateActive:
		return "Active"
	case StateReorganizing:
		return "Reorganizing"
	default:
		return "Unknown"
	}
}

// stateHolder is a small atomic wrapper so State() can be read from any
// goroutine without taking Manager's main lock.
type stateHolder struct {
	v int32
}

func (h *stateHolder) get() State       { return State(atomic.LoadInt32(&h.v)) }
func (h *stateHolder) set(s State)      { atomic.StoreInt32(&h.v, int32(s)) }
