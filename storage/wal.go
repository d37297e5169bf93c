package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"

	"github.com/xaichain/xaid/utxo"
	"github.com/xaichain/xaid/wire"
)

// walRecord is one write-ahead-log entry: everything ApplyBlock changed
// for one block, fsynced before the block is considered committed
// (specification §4.3: "{block_hash, spent=[...], created=[...]}
// records, fsynced before the block is considered committed").
type walRecord struct {
	BlockHash wire.Hash          `json:"block_hash"`
	Height    uint64             `json:"height"`
	Spent     []utxo.SpentEntry  `json:"spent"`
	Created   []wire.Outpoint    `json:"created"`
	Reverted  bool               `json:"reverted"`
}

// walLog is an append-only, newline-delimited JSON log. Each record is
// written and fsynced before its caller may treat the corresponding
// block as committed. A "reverted" record re-states an earlier entry's
// hash with Reverted=true rather than rewriting history in place, so the
// file never needs anything but appends.
type walLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func openWAL(path string) (*walLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &walLog{path: path, file: f}, nil
}

func (w *walLog) append(rec walRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	enc := json.NewEncoder(w.file)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	return w.file.Sync()
}

// markReverted appends a tombstone record for hash so a future recovery
// pass skips it; blocks must be reverted in reverse order (specification
// §4.3 revert_block), so the most recent un-reverted record for hash is
// always the one being closed out.
func (w *walLog) markReverted(hash wire.Hash) error {
	return w.append(walRecord{BlockHash: hash, Reverted: true})
}

// readAll returns every record in the log, in append order.
func (w *walLog) readAll() ([]walRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := os.ReadFile(w.path)
	if err != nil {
		return nil, err
	}
	var records []walRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var rec walRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// tail returns the records for heights strictly after tipHeight (or all
// records, if the caller has no tip yet), collapsing reverted entries.
func (w *walLog) tail(tipHeight uint64, haveTip bool) ([]walRecord, error) {
	all, err := w.readAll()
	if err != nil {
		return nil, err
	}
	reverted := make(map[wire.Hash]bool)
	for _, rec := range all {
		if rec.Reverted {
			reverted[rec.BlockHash] = true
		}
	}
	var out []walRecord
	for _, rec := range all {
		if rec.Reverted {
			continue
		}
		if reverted[rec.BlockHash] {
			continue
		}
		if haveTip && rec.Height <= tipHeight {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// findByHash returns the most recent non-reverted record for hash.
func (w *walLog) findByHash(hash wire.Hash) (*walRecord, error) {
	all, err := w.readAll()
	if err != nil {
		return nil, err
	}
	var found *walRecord
	for i := range all {
		if all[i].BlockHash == hash && !all[i].Reverted {
			rec := all[i]
			found = &rec
		}
	}
	if found == nil {
		return nil, os.ErrNotExist
	}
	return found, nil
}
