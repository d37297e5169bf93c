// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// MaxTxInputsPerTx and MaxTxOutputsPerTx bound the arrays a hostile peer
// can make us allocate while decoding a transaction off the wire, well
// above anything a real transaction would ever need.
const (
	MaxTxInputsPerTx  = 1 << 16
	MaxTxOutputsPerTx = 1 << 16
	maxMemoLength     = 512
)

// TxVersion is the only transaction version this node will produce.
// Unknown versions are reserved: they decode (fields are still fixed-
// width/length-prefixed) but this node will never construct one.
const TxVersion int32 = 1

// Outpoint identifies a previously created transaction output.
type Outpoint struct {
	PrevTxID Hash
	PrevVout uint32
}

// TxOutput is a single payment of Amount micro-units to Address.
type TxOutput struct {
	Address string
	Amount  uint64
}

// Transaction is the canonical, fixed-shape transaction record. A
// transaction with no Inputs is a coinbase; it must be the first (and
// only coinbase) entry of a block's transaction list.
type Transaction struct {
	Version      int32
	Inputs       []Outpoint
	Outputs      []TxOutput
	LockTime     uint64
	Sender       string // empty for a coinbase transaction
	SenderPubKey [33]byte
	Signature    [64]byte // compact (r||s), low-S canonical form
	Nonce        uint64
	Fee          uint64
	Memo         string
	ReplacesTxID *Hash // nil unless RBF
	RBF          bool
}

// IsCoinbase reports whether tx has no inputs, the only legal shape for
// the reward transaction at index 0 of a block.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// encode writes tx to w. When includeSignature is false, the Signature
// field is omitted entirely (not zero-filled) — this is the "tx without
// signature" form that signatures are computed and verified over, so the
// signature itself is never part of what it signs.
func (tx *Transaction) encode(w io.Writer, includeSignature bool) error {
	if err := WriteInt64(w, int64(tx.Version)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if err := WriteHash(w, in.PrevTxID); err != nil {
			return err
		}
		if err := WriteUint32(w, in.PrevVout); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for _, out := range tx.Outputs {
		if err := WriteVarString(w, out.Address); err != nil {
			return err
		}
		if err := WriteUint64(w, out.Amount); err != nil {
			return err
		}
	}
	if err := WriteUint64(w, tx.LockTime); err != nil {
		return err
	}
	if err := WriteVarString(w, tx.Sender); err != nil {
		return err
	}
	if _, err := w.Write(tx.SenderPubKey[:]); err != nil {
		return err
	}
	if includeSignature {
		if _, err := w.Write(tx.Signature[:]); err != nil {
			return err
		}
	}
	if err := WriteUint64(w, tx.Nonce); err != nil {
		return err
	}
	if err := WriteUint64(w, tx.Fee); err != nil {
		return err
	}
	if err := WriteVarString(w, tx.Memo); err != nil {
		return err
	}
	hasReplaces := tx.ReplacesTxID != nil
	if err := writeByte(w, boolByte(hasReplaces)); err != nil {
		return err
	}
	if hasReplaces {
		if err := WriteHash(w, *tx.ReplacesTxID); err != nil {
			return err
		}
	}
	return writeByte(w, boolByte(tx.RBF))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Encode writes the full canonical encoding of tx, including its
// signature, used for wire transfer and storage.
func (tx *Transaction) Encode(w io.Writer) error {
	return tx.encode(w, true)
}

// EncodeForSigning writes the canonical encoding of tx with the signature
// field omitted — the payload that Sign/Verify operate on (after a further
// double-SHA256).
func (tx *Transaction) EncodeForSigning(w io.Writer) error {
	return tx.encode(w, false)
}

// Decode populates tx by reading a full canonical encoding (as produced by
// Encode) from r.
func (tx *Transaction) Decode(r io.Reader) error {
	version, err := ReadInt64(r)
	if err != nil {
		return err
	}
	tx.Version = int32(version)

	numInputs, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if numInputs > MaxTxInputsPerTx {
		return errors.Errorf("transaction has too many inputs: %d", numInputs)
	}
	tx.Inputs = nil
	if numInputs > 0 {
		tx.Inputs = make([]Outpoint, numInputs)
	}
	for i := range tx.Inputs {
		h, err := ReadHash(r)
		if err != nil {
			return err
		}
		vout, err := ReadUint32(r)
		if err != nil {
			return err
		}
		tx.Inputs[i] = Outpoint{PrevTxID: h, PrevVout: vout}
	}

	numOutputs, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if numOutputs > MaxTxOutputsPerTx {
		return errors.Errorf("transaction has too many outputs: %d", numOutputs)
	}
	tx.Outputs = make([]TxOutput, numOutputs)
	for i := range tx.Outputs {
		addr, err := ReadVarString(r, 128)
		if err != nil {
			return err
		}
		amount, err := ReadUint64(r)
		if err != nil {
			return err
		}
		tx.Outputs[i] = TxOutput{Address: addr, Amount: amount}
	}

	tx.LockTime, err = ReadUint64(r)
	if err != nil {
		return err
	}
	tx.Sender, err = ReadVarString(r, 128)
	if err != nil {
		return err
	}
	if _, err := io.ReadFull(r, tx.SenderPubKey[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, tx.Signature[:]); err != nil {
		return err
	}
	tx.Nonce, err = ReadUint64(r)
	if err != nil {
		return err
	}
	tx.Fee, err = ReadUint64(r)
	if err != nil {
		return err
	}
	tx.Memo, err = ReadVarString(r, maxMemoLength)
	if err != nil {
		return err
	}

	var hasReplacesBuf [1]byte
	if _, err := io.ReadFull(r, hasReplacesBuf[:]); err != nil {
		return err
	}
	if hasReplacesBuf[0] != 0 {
		h, err := ReadHash(r)
		if err != nil {
			return err
		}
		tx.ReplacesTxID = &h
	} else {
		tx.ReplacesTxID = nil
	}

	var rbfBuf [1]byte
	if _, err := io.ReadFull(r, rbfBuf[:]); err != nil {
		return err
	}
	tx.RBF = rbfBuf[0] != 0

	return nil
}

// SerializeSize returns the length in bytes of the full canonical
// encoding, used to enforce MAX_TX_BYTES.
func (tx *Transaction) SerializeSize() int {
	var buf bytes.Buffer
	// Encode errors are impossible against a bytes.Buffer.
	_ = tx.Encode(&buf)
	return buf.Len()
}

// SigningHash returns the double-SHA256 of the signature-less canonical
// encoding — the 32-byte message that Sign/Verify operate on.
func (tx *Transaction) SigningHash() Hash {
	var buf bytes.Buffer
	_ = tx.EncodeForSigning(&buf)
	return DoubleHashH(buf.Bytes())
}

// TxID is the canonical transaction id: sha256(sha256(canonical
// encoding of tx without its signature)). The signature is excluded so
// that grinding a new signature for the same logical transaction (e.g. a
// different valid low-S value is not possible under RFC 6979 determinism,
// but a re-signed RBF bump is) does not change identity semantics that
// depend on what was actually agreed to.
func (tx *Transaction) TxID() Hash {
	return tx.SigningHash()
}

// Clone returns a deep copy of tx, used when the miner or mempool needs a
// candidate copy to mutate without perturbing the original.
func (tx *Transaction) Clone() *Transaction {
	clone := *tx
	clone.Inputs = append([]Outpoint(nil), tx.Inputs...)
	clone.Outputs = append([]TxOutput(nil), tx.Outputs...)
	if tx.ReplacesTxID != nil {
		replaces := *tx.ReplacesTxID
		clone.ReplacesTxID = &replaces
	}
	return &clone
}
