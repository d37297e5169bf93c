// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package validator exposes stateless and stateful transaction checks
// and a composed block validator (specification §4.6), returning the
// tagged xaierr taxonomy instead of panicking or using exceptions for
// control flow.
package validator

import (
	"bytes"

	"github.com/xaichain/xaid/address"
	"github.com/xaichain/xaid/crypto"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/utxo"
	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

const (
	CodeBadEncoding     xaierr.Code = "val_bad_encoding"
	CodeBadSignature    xaierr.Code = "val_bad_signature"
	CodeAddressMismatch xaierr.Code = "val_address_mismatch"
	CodeDuplicateInput  xaierr.Code = "val_duplicate_input"
	CodeBadShape        xaierr.Code = "val_bad_shape"
	CodeTooLarge        xaierr.Code = "val_too_large"
	CodeInputMissing    xaierr.Code = "val_input_missing"
	CodeImmature        xaierr.Code = "val_immature"
	CodeBadNonce        xaierr.Code = "val_bad_nonce"
	CodeBadReplaces     xaierr.Code = "val_bad_replaces"
	CodeInsufficient    xaierr.Code = "val_insufficient_funds"
	CodeZeroAmount      xaierr.Code = "val_zero_amount"
)

// AccountState is the minimal per-sender state the stateful checks
// consult: the nonce the next accepted transaction from this sender must
// carry (specification §4: "nonce exactly equal to
// account.next_pending_nonce").
type AccountState struct {
	NextPendingNonce uint64
}

// MempoolLookup answers "is this txid currently pending, and if so from
// which sender", used to validate an RBF ReplacesTxID reference
// (specification §4.6: "replaces-txid refers to a known mempool tx from
// the same sender").
type MempoolLookup interface {
	SenderOf(txID wire.Hash) (sender string, ok bool)
}

// Validator holds the network parameters every check is relative to.
type Validator struct {
	params *netparams.Params
}

// New returns a Validator bound to params.
func New(params *netparams.Params) *Validator {
	return &Validator{params: params}
}

// CheckTransactionStateless runs every check that needs no chain access:
// canonical encoding round-trip, signature validity, address/public-key
// match, numeric ranges, no duplicate inputs, and coinbase-vs-regular
// shape (specification §4.6).
func (v *Validator) CheckTransactionStateless(tx *wire.Transaction) error {
	if err := v.checkEncodingRoundTrips(tx); err != nil {
		return err
	}
	if uint64(tx.SerializeSize()) > v.params.MaxTxBytes {
		return xaierr.New(xaierr.KindValidation, CodeTooLarge,
			"transaction is %d bytes, max is %d", tx.SerializeSize(), v.params.MaxTxBytes)
	}

	isCoinbase := tx.IsCoinbase()
	if isCoinbase {
		if tx.Sender != "" || tx.SenderPubKey != [33]byte{} {
			return xaierr.New(xaierr.KindValidation, CodeBadShape, "coinbase transaction must not carry a sender")
		}
		if len(tx.Outputs) == 0 {
			return xaierr.New(xaierr.KindValidation, CodeBadShape, "coinbase transaction must have at least one output")
		}
		return v.checkOutputAmounts(tx)
	}

	if err := v.checkNoDuplicateInputs(tx); err != nil {
		return err
	}
	if len(tx.Inputs) == 0 {
		return xaierr.New(xaierr.KindValidation, CodeBadShape, "non-coinbase transaction must have at least one input")
	}
	if err := v.checkOutputAmounts(tx); err != nil {
		return err
	}
	if !address.Validate(v.params.AddressPrefix, tx.Sender) {
		return xaierr.New(xaierr.KindValidation, CodeAddressMismatch, "sender %q does not validate under network prefix %q", tx.Sender, v.params.AddressPrefix)
	}
	if !address.Matches(v.params.AddressPrefix, tx.Sender, tx.SenderPubKey) {
		return xaierr.New(xaierr.KindValidation, CodeAddressMismatch, "sender address does not derive from sender public key")
	}
	if !crypto.Verify(tx.SenderPubKey, tx.SigningHash(), tx.Signature) {
		return xaierr.New(xaierr.KindValidation, CodeBadSignature, "invalid signature for transaction %x", tx.TxID())
	}
	return nil
}

// checkOutputAmounts rejects any output carrying a zero amount
// (specification §3: every output amount must be > 0).
func (v *Validator) checkOutputAmounts(tx *wire.Transaction) error {
	for i, out := range tx.Outputs {
		if out.Amount == 0 {
			return xaierr.New(xaierr.KindValidation, CodeZeroAmount, "output %d has zero amount", i)
		}
	}
	return nil
}

func (v *Validator) checkEncodingRoundTrips(tx *wire.Transaction) error {
	var buf bytes.Buffer
	if err := tx.Encode(&buf); err != nil {
		return xaierr.Wrap(err, xaierr.KindValidation, CodeBadEncoding, "encoding transaction")
	}
	var decoded wire.Transaction
	if err := decoded.Decode(bytes.NewReader(buf.Bytes())); err != nil {
		return xaierr.Wrap(err, xaierr.KindValidation, CodeBadEncoding, "decoding transaction")
	}
	if decoded.TxID() != tx.TxID() {
		return xaierr.New(xaierr.KindValidation, CodeBadEncoding, "transaction does not round-trip through canonical encoding")
	}
	return nil
}

func (v *Validator) checkNoDuplicateInputs(tx *wire.Transaction) error {
	seen := make(map[wire.Outpoint]bool, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if seen[in] {
			return xaierr.New(xaierr.KindValidation, CodeDuplicateInput, "duplicate input %x:%d", in.PrevTxID, in.PrevVout)
		}
		seen[in] = true
	}
	return nil
}

// CheckTransactionStateful runs the checks that need a UTXO snapshot and
// account state: inputs exist and are mature, nonce matches, fee
// non-negative, RBF replaces-txid is known and same-sender, and total
// output does not exceed total input (specification §4.6).
func (v *Validator) CheckTransactionStateful(
	tx *wire.Transaction,
	spendHeight uint64,
	set *utxo.Set,
	account AccountState,
	mempool MempoolLookup,
) error {
	if tx.IsCoinbase() {
		return nil // coinbase amount is checked by CheckBlock against the subsidy+fees total.
	}

	if tx.Nonce != account.NextPendingNonce {
		return xaierr.New(xaierr.KindConflict, CodeBadNonce,
			"nonce %d does not match expected next nonce %d", tx.Nonce, account.NextPendingNonce)
	}

	var totalIn uint64
	for _, in := range tx.Inputs {
		entry, ok := set.Get(in)
		if !ok {
			return xaierr.New(xaierr.KindConflict, CodeInputMissing, "input %x:%d not found in utxo set", in.PrevTxID, in.PrevVout)
		}
		if !entry.IsMatureAt(spendHeight, v.params.CoinbaseMaturity) {
			return xaierr.New(xaierr.KindConflict, CodeImmature, "input %x:%d is an immature coinbase", in.PrevTxID, in.PrevVout)
		}
		totalIn += entry.Amount
	}

	var totalOut uint64
	for _, out := range tx.Outputs {
		totalOut += out.Amount
	}
	if totalOut+tx.Fee > totalIn {
		return xaierr.New(xaierr.KindValidation, CodeInsufficient,
			"total output %d + fee %d exceeds total input %d", totalOut, tx.Fee, totalIn)
	}

	if mempool != nil && tx.RBF && tx.ReplacesTxID != nil {
		sender, ok := mempool.SenderOf(*tx.ReplacesTxID)
		if !ok || sender != tx.Sender {
			return xaierr.New(xaierr.KindValidation, CodeBadReplaces,
				"replaces_txid %x does not refer to a known pending transaction from the same sender", *tx.ReplacesTxID)
		}
	}

	return nil
}
