package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xaichain/xaid/wire"
)

// Direction distinguishes an address's incoming payments from its
// outgoing spends in its history index.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// AddrHistoryEntry is one (txid, direction) record returned by
// GetAddressHistory.
type AddrHistoryEntry struct {
	TxID      wire.Hash `json:"txid"`
	Direction Direction `json:"direction"`
}

// addrIndex maintains one append-only bucket file per address under
// addr_index/, mapping address -> ordered (txid, direction) history
// (specification §4.3 layout).
type addrIndex struct {
	mu  sync.Mutex
	dir string
}

func newAddrIndex(dir string) *addrIndex {
	return &addrIndex{dir: dir}
}

func (a *addrIndex) bucketPath(address string) string {
	return filepath.Join(a.dir, bucketFileName(address))
}

// bucketFileName maps an address to a bucket file name. Addresses are
// already fixed-alphabet strings (see package address), so no escaping
// beyond a length clamp is needed to keep the file name well-formed.
func bucketFileName(address string) string {
	if len(address) > 64 {
		address = address[:64]
	}
	return address + ".jsonl"
}

// record appends one history entry per input (outgoing from its sender)
// and per output (incoming to its address) of tx.
func (a *addrIndex) record(tx *wire.Transaction, isCoinbase bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !isCoinbase && tx.Sender != "" {
		a.append(tx.Sender, AddrHistoryEntry{TxID: tx.TxID(), Direction: DirectionOut})
	}
	for _, out := range tx.Outputs {
		a.append(out.Address, AddrHistoryEntry{TxID: tx.TxID(), Direction: DirectionIn})
	}
}

func (a *addrIndex) append(address string, entry AddrHistoryEntry) {
	f, err := os.OpenFile(a.bucketPath(address), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return // address history is best-effort; it never blocks a commit
	}
	defer f.Close()
	_ = json.NewEncoder(f).Encode(entry)
}

// history returns up to limit entries for address, oldest first, after
// skipping the first offset.
func (a *addrIndex) history(address string, limit, offset int) ([]AddrHistoryEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := os.ReadFile(a.bucketPath(address))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading address history bucket: %w", err)
	}

	var all []AddrHistoryEntry
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var entry AddrHistoryEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decoding address history bucket: %w", err)
		}
		all = append(all, entry)
	}

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
