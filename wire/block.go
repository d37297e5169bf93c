// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// BlockVersion is the only block version this node will produce.
const BlockVersion int32 = 1

// MaxBlockTransactions bounds the array a hostile peer can make us
// allocate while decoding a block's transaction list.
const MaxBlockTransactions = 1 << 20

// BlockHeader holds every field that is hashed to produce the block hash.
// The transaction list is committed to via MerkleRoot but is not itself
// part of the header.
type BlockHeader struct {
	Version        int32
	Height         uint64
	PrevHash       Hash
	MerkleRoot     Hash
	Timestamp      int64 // unix seconds
	DifficultyBits uint32
	Nonce          uint64
	ExtraNonce     uint64 // mutated by the miner once Nonce space is exhausted
	MinerAddress   string
}

// Block is a header plus its ordered transaction list. Transactions[0] is
// always the coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

func (h *BlockHeader) encode(w io.Writer) error {
	if err := WriteInt64(w, int64(h.Version)); err != nil {
		return err
	}
	if err := WriteUint64(w, h.Height); err != nil {
		return err
	}
	if err := WriteHash(w, h.PrevHash); err != nil {
		return err
	}
	if err := WriteHash(w, h.MerkleRoot); err != nil {
		return err
	}
	if err := WriteInt64(w, h.Timestamp); err != nil {
		return err
	}
	if err := WriteUint32(w, h.DifficultyBits); err != nil {
		return err
	}
	if err := WriteUint64(w, h.Nonce); err != nil {
		return err
	}
	if err := WriteUint64(w, h.ExtraNonce); err != nil {
		return err
	}
	return WriteVarString(w, h.MinerAddress)
}

func (h *BlockHeader) decode(r io.Reader) error {
	version, err := ReadInt64(r)
	if err != nil {
		return err
	}
	h.Version = int32(version)
	if h.Height, err = ReadUint64(r); err != nil {
		return err
	}
	if h.PrevHash, err = ReadHash(r); err != nil {
		return err
	}
	if h.MerkleRoot, err = ReadHash(r); err != nil {
		return err
	}
	if h.Timestamp, err = ReadInt64(r); err != nil {
		return err
	}
	if h.DifficultyBits, err = ReadUint32(r); err != nil {
		return err
	}
	if h.Nonce, err = ReadUint64(r); err != nil {
		return err
	}
	if h.ExtraNonce, err = ReadUint64(r); err != nil {
		return err
	}
	h.MinerAddress, err = ReadVarString(r, 128)
	return err
}

// Hash computes the block hash: sha256(sha256(canonical header encoding)).
// It depends only on the header fields, never on in-memory representation
// or the transaction list directly (that influences the hash only via
// MerkleRoot).
func (h *BlockHeader) Hash() Hash {
	var buf bytes.Buffer
	_ = h.encode(&buf)
	return DoubleHashH(buf.Bytes())
}

// Encode writes the full canonical block encoding: header then
// count-prefixed transaction list.
func (b *Block) Encode(w io.Writer) error {
	if err := b.Header.encode(w); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(b.Transactions))); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := tx.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode populates b from a full canonical block encoding.
func (b *Block) Decode(r io.Reader) error {
	if err := b.Header.decode(r); err != nil {
		return err
	}
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockTransactions {
		return errors.Errorf("block has too many transactions: %d", count)
	}
	b.Transactions = make([]*Transaction, count)
	for i := range b.Transactions {
		tx := &Transaction{}
		if err := tx.Decode(r); err != nil {
			return err
		}
		b.Transactions[i] = tx
	}
	return nil
}

// SerializeSize returns the length in bytes of the full canonical
// encoding, used to enforce MAX_BLOCK_BYTES.
func (b *Block) SerializeSize() int {
	var buf bytes.Buffer
	_ = b.Encode(&buf)
	return buf.Len()
}

// Hash returns the block hash (a convenience wrapper over Header.Hash).
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// Coinbase returns the block's coinbase transaction, which is always
// Transactions[0] for any block that has passed shape validation.
func (b *Block) Coinbase() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// CalculateMerkleRoot computes the Merkle root over the transaction ids in
// order. An empty list's root is the zero hash; a single-element list's
// root is that element's id, following the same convention the teacher's
// merkle.go uses (duplicate the last node on an odd level).
func CalculateMerkleRoot(txIDs []Hash) Hash {
	if len(txIDs) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(txIDs))
	copy(level, txIDs)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			var buf bytes.Buffer
			buf.Write(level[2*i][:])
			buf.Write(level[2*i+1][:])
			next[i] = DoubleHashH(buf.Bytes())
		}
		level = next
	}
	return level[0]
}

// TransactionIDs returns the ordered txids of the block's transactions,
// the input to CalculateMerkleRoot.
func (b *Block) TransactionIDs() []Hash {
	ids := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.TxID()
	}
	return ids
}
