// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage is the node's durability layer: an append-only
// block-per-file log, a write-ahead log of per-block UTXO deltas that
// makes block commit and reorg revert atomic, periodic checkpoints, and
// an address history index (specification §4.3). The UTXO set is held in
// memory only; no snapshot file is written, and Open rebuilds the set by
// replaying the block log.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/xaichain/xaid/utxo"
	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

const (
	blocksDirName      = "blocks"
	checkpointsDirName = "checkpoints"
	addrIndexDirName   = "addr_index"
	walFileName        = "wal.log"
	indexFileName      = "blocks.idx"

	// CodeCorrupt marks a StorageError raised by on-disk corruption the
	// engine could not repair by itself.
	CodeCorrupt xaierr.Code = "storage_corrupt"
	// CodeNotFound marks a lookup miss, not a corruption.
	CodeNotFound xaierr.Code = "storage_not_found"
)

// blockIndexEntry is the .idx sidecar record mapping a block hash to its
// height (and therefore its blocks/NNNNNN.blk file).
type blockIndexEntry struct {
	Height uint64    `json:"height"`
	Hash   wire.Hash `json:"hash"`
}

// Store is the durable block log, UTXO set, WAL, checkpoint set, and
// address index for one chain instance. The chain manager is its only
// writer (specification §2 ownership rule); every other component reads
// through Get* methods.
type Store struct {
	dir              string
	coinbaseMaturity uint64
	checkpointEvery  uint64

	mu          sync.RWMutex
	utxoSet     *utxo.Set
	wal         *walLog
	heightToHash map[uint64]wire.Hash
	hashToHeight map[wire.Hash]uint64
	tipHeight   uint64
	haveTip     bool
	addrIndex   *addrIndex
}

// Open opens (creating if necessary) the on-disk layout rooted at dir,
// replays any uncommitted WAL tail, and rebuilds in-memory indexes if the
// block count on disk doesn't match what the index file records
// (specification §4.3 corruption policy).
func Open(dir string, coinbaseMaturity, checkpointEvery uint64) (*Store, error) {
	for _, sub := range []string{blocksDirName, checkpointsDirName, addrIndexDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "creating %s", sub)
		}
	}

	wal, err := openWAL(filepath.Join(dir, walFileName))
	if err != nil {
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "opening wal")
	}

	s := &Store{
		dir:              dir,
		coinbaseMaturity: coinbaseMaturity,
		checkpointEvery:  checkpointEvery,
		utxoSet:          utxo.NewSet(coinbaseMaturity),
		wal:              wal,
		heightToHash:     make(map[uint64]wire.Hash),
		hashToHeight:     make(map[wire.Hash]uint64),
		addrIndex:        newAddrIndex(filepath.Join(dir, addrIndexDirName)),
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

// UTXOSet exposes the live UTXO set for read access by other components
// (the chain manager is the only writer, reached through AppendBlock/
// RevertBlock).
func (s *Store) UTXOSet() *utxo.Set { return s.utxoSet }

// TipHeight reports the height of the most recently appended block.
func (s *Store) TipHeight() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tipHeight, s.haveTip
}

func (s *Store) blockPath(height uint64) string {
	return filepath.Join(s.dir, blocksDirName, fmt.Sprintf("%06d.blk", height))
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

// AppendBlock durably commits block: the in-memory UTXO set is updated
// first (and rolled back if the WAL record or block file cannot be
// written), then a WAL record is written and fsynced before the block
// file, block index, address index, and in-memory indexes are updated.
// If the process dies mid-way, Open's recovery step replays
// the WAL tail on next startup (specification §4.3 append_block).
func (s *Store) AppendBlock(block *wire.Block) (*utxo.Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta, err := s.utxoSet.ApplyBlock(block)
	if err != nil {
		return nil, err
	}

	rec := walRecord{
		BlockHash: block.Hash(),
		Height:    block.Header.Height,
		Spent:     delta.Spent,
		Created:   delta.Created,
	}
	if err := s.wal.append(rec); err != nil {
		s.utxoSet.RevertDeltas(delta)
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "writing wal record for block %x", block.Hash())
	}

	if err := s.writeBlockFile(block); err != nil {
		s.utxoSet.RevertDeltas(delta)
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "writing block file for %x", block.Hash())
	}

	hash := block.Hash()
	s.heightToHash[block.Header.Height] = hash
	s.hashToHeight[hash] = block.Header.Height
	s.tipHeight = block.Header.Height
	s.haveTip = true

	if err := s.appendIndex(blockIndexEntry{Height: block.Header.Height, Hash: hash}); err != nil {
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "appending block index")
	}

	for i, tx := range block.Transactions {
		s.addrIndex.record(tx, i == 0)
	}

	if s.checkpointEvery > 0 && block.Header.Height%s.checkpointEvery == 0 {
		if err := s.writeCheckpoint(block.Header.Height, hash); err != nil {
			return nil, err
		}
	}

	return delta, nil
}

// RevertBlock reverses the WAL record for hash, which must be the current
// tip: blocks must be reverted in reverse order (specification §4.3
// revert_block).
func (s *Store) RevertBlock(hash wire.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revertLocked(hash)
}

func (s *Store) revertLocked(hash wire.Hash) error {
	height, ok := s.hashToHeight[hash]
	if !ok {
		return xaierr.New(xaierr.KindStorage, CodeNotFound, "revert: block %x not known", hash)
	}
	if !s.haveTip || height != s.tipHeight {
		return xaierr.New(xaierr.KindStorage, CodeCorrupt, "revert: block %x (height %d) is not the current tip (%d)", hash, height, s.tipHeight)
	}

	rec, err := s.wal.findByHash(hash)
	if err != nil {
		return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "locating wal record for %x", hash)
	}

	s.utxoSet.RevertDeltas(&utxo.Delta{BlockHash: hash, Spent: rec.Spent, Created: rec.Created})

	delete(s.heightToHash, height)
	delete(s.hashToHeight, hash)
	if height == 0 {
		s.haveTip = false
		s.tipHeight = 0
	} else {
		s.tipHeight = height - 1
	}
	return s.wal.markReverted(hash)
}

func (s *Store) writeBlockFile(block *wire.Block) error {
	var buf bytes.Buffer
	if err := block.Encode(&buf); err != nil {
		return err
	}
	return os.WriteFile(s.blockPath(block.Header.Height), buf.Bytes(), 0o644)
}

// GetBlockByHeight reads and decodes the block stored at height, failing
// with a StorageError if its on-disk hash does not match the index
// (specification §4.3 corruption policy).
func (s *Store) GetBlockByHeight(height uint64) (*wire.Block, error) {
	s.mu.RLock()
	expectedHash, ok := s.heightToHash[height]
	s.mu.RUnlock()
	if !ok {
		return nil, xaierr.New(xaierr.KindStorage, CodeNotFound, "no block at height %d", height)
	}
	return s.readAndVerify(height, expectedHash)
}

// GetBlockByHash reads and decodes the block identified by hash.
func (s *Store) GetBlockByHash(hash wire.Hash) (*wire.Block, error) {
	s.mu.RLock()
	height, ok := s.hashToHeight[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, xaierr.New(xaierr.KindStorage, CodeNotFound, "no block with hash %x", hash)
	}
	return s.readAndVerify(height, hash)
}

func (s *Store) readAndVerify(height uint64, expectedHash wire.Hash) (*wire.Block, error) {
	raw, err := os.ReadFile(s.blockPath(height))
	if err != nil {
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "reading block file at height %d", height)
	}
	block := &wire.Block{}
	if err := block.Decode(bytes.NewReader(raw)); err != nil {
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "decoding block file at height %d", height)
	}
	if block.Hash() != expectedHash {
		return nil, xaierr.New(xaierr.KindStorage, CodeCorrupt,
			"block file at height %d fails hash verification: expected %x, got %x", height, expectedHash, block.Hash())
	}
	return block, nil
}

// GetUTXO looks up a single unspent output.
func (s *Store) GetUTXO(outpoint wire.Outpoint) (*utxo.Entry, bool) {
	return s.utxoSet.Get(outpoint)
}

// GetAddressHistory returns up to limit (txid, direction) entries for
// address, skipping the first offset, oldest first.
func (s *Store) GetAddressHistory(address string, limit, offset int) ([]AddrHistoryEntry, error) {
	return s.addrIndex.history(address, limit, offset)
}

func (s *Store) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "reading block index")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var entry blockIndexEntry
		if err := dec.Decode(&entry); err != nil {
			return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "decoding block index")
		}
		s.heightToHash[entry.Height] = entry.Hash
		s.hashToHeight[entry.Hash] = entry.Height
		if !s.haveTip || entry.Height > s.tipHeight {
			s.tipHeight = entry.Height
			s.haveTip = true
		}
	}
	return nil
}

func (s *Store) appendIndex(entry blockIndexEntry) error {
	f, err := os.OpenFile(s.indexPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(entry); err != nil {
		return err
	}
	return f.Sync()
}

// recover rebuilds the in-memory UTXO set by replaying every indexed
// block in height order, then replays any WAL records past the block
// index that have a verifiable block file on disk but were not yet
// reflected in the index — the crash window between "WAL fsynced" and
// "index entry appended" (specification §4.3: "the engine verifies the
// WAL tail, replays any uncommitted deltas, and rebuilds indexes if the
// block count mismatches").
func (s *Store) recover() error {
	for height := uint64(0); s.haveTip && height <= s.tipHeight; height++ {
		hash, ok := s.heightToHash[height]
		if !ok {
			return xaierr.New(xaierr.KindStorage, CodeCorrupt, "block index has a gap at height %d", height)
		}
		block, err := s.readAndVerify(height, hash)
		if err != nil {
			return err
		}
		if _, err := s.utxoSet.ApplyBlock(block); err != nil {
			return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "replaying block %d into utxo set", height)
		}
		for i, tx := range block.Transactions {
			s.addrIndex.record(tx, i == 0)
		}
	}

	records, err := s.wal.tail(s.tipHeight, s.haveTip)
	if err != nil {
		return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "reading wal tail")
	}
	for _, rec := range records {
		if rec.Reverted {
			continue
		}
		if _, ok := s.hashToHeight[rec.BlockHash]; ok {
			continue // already replayed above
		}
		if _, err := os.Stat(s.blockPath(rec.Height)); err != nil {
			return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt,
				"wal has an uncommitted record for height %d but its block file is missing", rec.Height)
		}
		block, err := s.readAndVerify(rec.Height, rec.BlockHash)
		if err != nil {
			return err
		}
		if _, err := s.utxoSet.ApplyBlock(block); err != nil {
			return xaierr.Wrap(err, xaierr.KindStorage, CodeCorrupt, "replaying uncommitted block %d", rec.Height)
		}
		for i, tx := range block.Transactions {
			s.addrIndex.record(tx, i == 0)
		}
		s.heightToHash[rec.Height] = rec.BlockHash
		s.hashToHeight[rec.BlockHash] = rec.Height
		if !s.haveTip || rec.Height > s.tipHeight {
			s.tipHeight = rec.Height
			s.haveTip = true
		}
		if err := s.appendIndex(blockIndexEntry{Height: rec.Height, Hash: rec.BlockHash}); err != nil {
			return errors.Wrap(err, "repairing block index during wal replay")
		}
	}
	return nil
}
