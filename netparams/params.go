// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams defines the network parameters that distinguish one
// chain instance from another — magic bytes, genesis block, difficulty
// and subsidy schedule, relay policy, and protocol timeouts. A node
// looks every consensus-relevant constant up through an active *Params
// value rather than a compiled-in literal, mirroring dagconfig's role
// in the teacher (specification §8, Configuration/Parameters table).
package netparams

import (
	"math/big"
	"time"

	"github.com/xaichain/xaid/wire"
)

// Magic identifies the network a peer belongs to; peers on different
// magics never gossip with each other.
type Magic uint32

const (
	MagicMainNet Magic = 0xd9b4bef9
	MagicTestNet Magic = 0x0709110b
	MagicRegtest Magic = 0xdab5bffa
)

// SubsidyStep is one entry of a height-ordered halving schedule: starting
// at FromHeight, the block subsidy is Amount until the next entry's
// FromHeight is reached.
type SubsidyStep struct {
	FromHeight uint64
	Amount     uint64
}

// Params defines one network's full set of consensus and policy
// parameters (specification §8 Configuration/Parameters table). No
// consensus code may reference a bare numeric literal for anything
// listed here — it reads the active Params instead, so a config change
// alone is enough to stand up a new network.
type Params struct {
	// NetworkID selects the address prefix, magic bytes, genesis block,
	// and bootstrap peers for this network.
	NetworkID string
	Magic     Magic

	// AddressPrefix is the human-readable prefix stringed addresses
	// begin with on this network (see package address). It carries no
	// meaning beyond "addresses from a different network don't collide
	// visually"; see DESIGN.md Open Question #3.
	AddressPrefix string

	// GenesisBlock is the first block of the chain.
	GenesisBlock *wire.Block

	// TargetBlockTime is the desired average time between blocks.
	TargetBlockTime time.Duration

	// RetargetInterval is the number of blocks between difficulty
	// retargets.
	RetargetInterval uint64

	// MaxAdjustment bounds how far a single retarget may move the
	// difficulty: the new target is clamped to
	// [old/MaxAdjustment, old*MaxAdjustment].
	MaxAdjustment float64

	// PowLimit is the easiest allowed difficulty target (the ceiling on
	// the 256-bit target value).
	PowLimit *big.Int

	// CoinbaseMaturity is the number of confirmations a coinbase output
	// needs before it may be spent.
	CoinbaseMaturity uint64

	// BlockSubsidyTable is the height-ordered halving schedule; see
	// BlockSubsidy.
	BlockSubsidyTable []SubsidyStep

	// MaxSupply is the configured total-supply figure (the sum of all
	// subsidies ever paid). No code reads it: Validate does not check
	// BlockSubsidyTable against it, and no consensus rule enforces it.
	MaxSupply uint64

	// MaxBlockBytes bounds the canonical-serialized size of a block.
	MaxBlockBytes uint64

	// MaxTxBytes bounds the canonical-serialized size of one
	// transaction.
	MaxTxBytes uint64

	// MinRelayFee is the minimum fee a transaction must pay to be
	// accepted into a mempool or relayed.
	MinRelayFee uint64

	// RBFBumpPercent is the minimum percentage by which a replacement
	// transaction's fee rate must exceed the transaction it replaces.
	RBFBumpPercent uint64

	// MaxReorgDepth is the deepest reorg a node will accept; anything
	// deeper is refused with a ConsensusError.
	MaxReorgDepth uint64

	// NonceTTL is the P2P envelope replay window: a (sender_pubkey,
	// nonce) pair is rejected if seen again within this window.
	NonceTTL time.Duration

	// ClockSkew is how far into the future a block timestamp may sit
	// relative to the receiving node's clock before being rejected.
	ClockSkew time.Duration

	// MedianTimeBlockCount is how many of the most recent ancestor
	// blocks are used to compute the median-time-past timestamp floor.
	MedianTimeBlockCount int

	// TemplateRefresh bounds how long a miner worker may keep hashing
	// against a stale candidate block after the chain manager reports a
	// new tip.
	TemplateRefresh time.Duration

	// MempoolMaxBytes and MempoolTTL size and age out the pending pool.
	MempoolMaxBytes uint64
	MempoolTTL      time.Duration

	// CandidateTxLimit is the top-K transactions (by fee rate, under
	// per-sender nonce order) a miner draws from the mempool per
	// candidate template.
	CandidateTxLimit int

	// DefaultPort is the default peer-to-peer listen port.
	DefaultPort string

	// DNSSeeds lists bootstrap peer discovery hostnames.
	DNSSeeds []string

	// MaxMsgRate and MaxBWIn are the per-peer token-bucket ceilings:
	// messages per second and bytes per second, respectively.
	MaxMsgRate float64
	MaxBWIn    float64

	// ReplayCacheMax bounds the size of the (sender_pubkey, nonce)
	// replay-detection cache; oldest entries are evicted past it.
	ReplayCacheMax int

	// BanThreshold is the reputation score (out of 100) below which a
	// peer is banned; BanDuration is how long the ban lasts.
	BanThreshold int
	BanDuration  time.Duration

	// PeerFanout bounds how many peers one announcement is gossiped to.
	PeerFanout int

	// PeerSendQueueSize bounds each peer's outbound message queue; a
	// frame sent to a peer whose queue is full is discarded (the peer is
	// not disconnected).
	PeerSendQueueSize int

	// PeerRPCTimeout bounds every outbound request-response round trip.
	PeerRPCTimeout time.Duration

	// SyncPeerSampleSize (K) is how many peers are asked for their tip
	// on startup; HeaderBatch bounds one get_headers response;
	// GapTolerance is how close to observed peer tips is close enough
	// to leave SyncingBlocks for Active; MaxHeaderWalk bounds how many
	// ancestors an orphan's missing-parent walk will request.
	SyncPeerSampleSize int
	HeaderBatch        int
	GapTolerance       uint64
	MaxHeaderWalk      int
}

// BlockSubsidy returns the coinbase subsidy due at height, looking up the
// halving step in effect, per specification §4 block invariant "the
// coinbase ... pays exactly block_subsidy(height) + sum(fees)".
func (p *Params) BlockSubsidy(height uint64) uint64 {
	subsidy := p.BlockSubsidyTable[0].Amount
	for _, step := range p.BlockSubsidyTable {
		if height < step.FromHeight {
			break
		}
		subsidy = step.Amount
	}
	return subsidy
}

// Validate sanity-checks a Params value at load time; it never runs
// against production state, only against configuration.
func (p *Params) Validate() error {
	if len(p.BlockSubsidyTable) == 0 {
		return errParamsf("block subsidy table must not be empty")
	}
	if p.BlockSubsidyTable[0].FromHeight != 0 {
		return errParamsf("block subsidy table must start at height 0")
	}
	for i := 1; i < len(p.BlockSubsidyTable); i++ {
		if p.BlockSubsidyTable[i].FromHeight <= p.BlockSubsidyTable[i-1].FromHeight {
			return errParamsf("block subsidy table heights must strictly increase")
		}
	}
	if p.RetargetInterval == 0 {
		return errParamsf("retarget interval must be positive")
	}
	if p.MaxAdjustment <= 1 {
		return errParamsf("max adjustment must be greater than 1")
	}
	return nil
}
