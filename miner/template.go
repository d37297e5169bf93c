// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package miner assembles candidate block templates from the mempool
// and runs an N-worker proof-of-work search over them, submitting
// winning blocks back through the same validator path as any externally
// received block (specification §4.8).
package miner

import (
	"github.com/xaichain/xaid/mempool"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

// Template is a candidate block still missing its winning nonce.
type Template struct {
	Header       wire.BlockHeader
	Transactions []*wire.Transaction
}

// TipInfo is what the miner needs to know about the chain tip to build
// a template on top of it.
type TipInfo struct {
	Height             uint64
	Hash               wire.Hash
	MedianTimePast     int64
	RequiredDifficulty uint32
}

// BuildTemplate assembles a candidate: a coinbase paying block_subsidy
// plus the fees of the included transactions to minerAddress, followed
// by up to CandidateTxLimit pending transactions in the mempool's
// mining order (fee rate descending, per-sender nonce order preserved —
// specification §4.8: "top-K transactions from mempool by fee rate
// under per-sender nonce order").
func BuildTemplate(params *netparams.Params, pool *mempool.Pool, tip TipInfo, minerAddress string, extraNonce uint64, now int64) *Template {
	order := pool.MiningOrder()
	limit := params.CandidateTxLimit
	if limit <= 0 || limit > len(order) {
		limit = len(order)
	}

	included := make([]*wire.Transaction, 0, limit)
	var totalBytes uint64
	var fees uint64
	for _, tx := range order {
		if len(included) >= limit {
			break
		}
		size := uint64(tx.SerializeSize())
		if totalBytes+size > params.MaxBlockBytes {
			continue
		}
		included = append(included, tx)
		totalBytes += size
		fees += tx.Fee
	}

	coinbase := &wire.Transaction{
		Version: wire.TxVersion,
		Outputs: []wire.TxOutput{{Address: minerAddress, Amount: params.BlockSubsidy(tip.Height+1) + fees}},
		Nonce:   extraNonce,
	}

	txs := append([]*wire.Transaction{coinbase}, included...)
	timestamp := now
	if timestamp <= tip.MedianTimePast {
		timestamp = tip.MedianTimePast + 1
	}

	header := wire.BlockHeader{
		Version:        wire.BlockVersion,
		Height:         tip.Height + 1,
		PrevHash:       tip.Hash,
		Timestamp:      timestamp,
		DifficultyBits: tip.RequiredDifficulty,
		ExtraNonce:     extraNonce,
		MinerAddress:   minerAddress,
	}
	header.MerkleRoot = wire.CalculateMerkleRoot(idsOf(txs))

	return &Template{Header: header, Transactions: txs}
}

func idsOf(txs []*wire.Transaction) []wire.Hash {
	ids := make([]wire.Hash, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxID()
	}
	return ids
}

// Block materializes the template's current header/transaction state
// into a full block, e.g. for submission once a nonce search succeeds.
func (t *Template) Block() *wire.Block {
	return &wire.Block{Header: t.Header, Transactions: t.Transactions}
}

// Retimestamp refreshes the template's timestamp (bounded to
// median+clock_skew by the caller) and recomputes nothing else — used
// when the nonce space is exhausted (specification §4.8: "mutates the
// coinbase extra-nonce or timestamp ... and resumes").
func (t *Template) Retimestamp(newTimestamp int64) {
	t.Header.Timestamp = newTimestamp
}

// BumpExtraNonce mutates the coinbase's nonce field and the header's
// ExtraNonce, then recomputes the Merkle root since the coinbase txid
// changes.
func (t *Template) BumpExtraNonce(extraNonce uint64) {
	t.Header.ExtraNonce = extraNonce
	t.Transactions[0].Nonce = extraNonce
	t.Header.MerkleRoot = wire.CalculateMerkleRoot(idsOf(t.Transactions))
}
