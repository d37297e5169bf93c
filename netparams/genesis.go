package netparams

import (
	"math/big"
	"time"

	"github.com/xaichain/xaid/wire"
)

// genesisPowLimit is 2^239-1, the easiest allowed target on the test and
// regression networks — generous enough that a laptop can mine the
// genesis-successor blocks a test suite needs in milliseconds.
var genesisPowLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 239), big.NewInt(1))

// mainPowLimit is 2^224-1, a tighter ceiling appropriate for a network
// meant to run with real miners.
var mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))

func genesisBlock(bits uint32, timestamp int64, minerAddress string) *wire.Block {
	coinbase := &wire.Transaction{
		Version: wire.TxVersion,
		Nonce:   0,
		Outputs: []wire.TxOutput{
			{Address: minerAddress, Amount: 50_00000000},
		},
	}
	txIDs := []wire.Hash{coinbase.TxID()}
	header := wire.BlockHeader{
		Version:        wire.BlockVersion,
		Height:         0,
		PrevHash:       wire.Hash{},
		MerkleRoot:     wire.CalculateMerkleRoot(txIDs),
		Timestamp:      timestamp,
		DifficultyBits: bits,
		Nonce:          0,
		ExtraNonce:     0,
		MinerAddress:   minerAddress,
	}
	return &wire.Block{Header: header, Transactions: []*wire.Transaction{coinbase}}
}

// defaultSubsidyTable halves every 210,000 blocks starting from a 50-coin
// subsidy (amounts in the smallest unit), following the classic halving
// shape the specification leaves to configuration (see DESIGN.md Open
// Question #1: total supply is never hardcoded in consensus code itself).
func defaultSubsidyTable() []SubsidyStep {
	const halvingInterval = 210_000
	const initial = 50_00000000
	table := make([]SubsidyStep, 0, 34)
	subsidy := uint64(initial)
	for i := 0; i < 34 && subsidy > 0; i++ {
		table = append(table, SubsidyStep{FromHeight: uint64(i) * halvingInterval, Amount: subsidy})
		subsidy /= 2
	}
	return table
}

// MainNetParams are the parameters for the production network.
var MainNetParams = Params{
	NetworkID:            "mainnet",
	Magic:                MagicMainNet,
	AddressPrefix:        "xai",
	GenesisBlock:         genesisBlock(wire.BigToCompact(mainPowLimit), 1_700_000_000, "xai1genesisgenesisgenesisgenesis00"),
	TargetBlockTime:      10 * time.Minute,
	RetargetInterval:     2016,
	MaxAdjustment:        4.0,
	PowLimit:             mainPowLimit,
	CoinbaseMaturity:     100,
	BlockSubsidyTable:    defaultSubsidyTable(),
	MaxSupply:            21_000_000_00000000,
	MaxBlockBytes:        4 * 1024 * 1024,
	MaxTxBytes:           256 * 1024,
	MinRelayFee:          1000,
	RBFBumpPercent:       10,
	MaxReorgDepth:        100,
	NonceTTL:             5 * time.Minute,
	ClockSkew:            2 * time.Hour,
	MedianTimeBlockCount: 11,
	DefaultPort:          "8433",
	DNSSeeds:             []string{},
	TemplateRefresh:      30 * time.Second,
	MempoolMaxBytes:      300 * 1024 * 1024,
	MempoolTTL:           72 * time.Hour,
	CandidateTxLimit:     20000,
	MaxMsgRate:           100,
	MaxBWIn:              10 * 1024 * 1024,
	ReplayCacheMax:       100000,
	BanThreshold:         10,
	BanDuration:          24 * time.Hour,
	PeerFanout:           8,
	PeerSendQueueSize:    1000,
	PeerRPCTimeout:       30 * time.Second,
	SyncPeerSampleSize:   8,
	HeaderBatch:          2000,
	GapTolerance:         2,
	MaxHeaderWalk:        500,
}

// TestNetParams are the parameters for the public test network: same
// shape as MainNetParams but with a much easier PowLimit and a short
// coinbase maturity so test chains reorganize in a reasonable number of
// blocks.
var TestNetParams = Params{
	NetworkID:            "testnet",
	Magic:                MagicTestNet,
	AddressPrefix:        "xait",
	GenesisBlock:         genesisBlock(wire.BigToCompact(genesisPowLimit), 1_700_000_000, "xait1genesisgenesisgenesisgenesi0"),
	TargetBlockTime:      2 * time.Minute,
	RetargetInterval:     144,
	MaxAdjustment:        4.0,
	PowLimit:             genesisPowLimit,
	CoinbaseMaturity:     30,
	BlockSubsidyTable:    defaultSubsidyTable(),
	MaxSupply:            21_000_000_00000000,
	MaxBlockBytes:        4 * 1024 * 1024,
	MaxTxBytes:           256 * 1024,
	MinRelayFee:          100,
	RBFBumpPercent:       10,
	MaxReorgDepth:        144,
	NonceTTL:             5 * time.Minute,
	ClockSkew:            2 * time.Hour,
	MedianTimeBlockCount: 11,
	DefaultPort:          "18433",
	DNSSeeds:             []string{},
	TemplateRefresh:      10 * time.Second,
	MempoolMaxBytes:      100 * 1024 * 1024,
	MempoolTTL:           24 * time.Hour,
	CandidateTxLimit:     5000,
	MaxMsgRate:           200,
	MaxBWIn:              10 * 1024 * 1024,
	ReplayCacheMax:       50000,
	BanThreshold:         10,
	BanDuration:          time.Hour,
	PeerFanout:           8,
	PeerSendQueueSize:    1000,
	PeerRPCTimeout:       15 * time.Second,
	SyncPeerSampleSize:   5,
	HeaderBatch:          2000,
	GapTolerance:         2,
	MaxHeaderWalk:        500,
}

// RegtestParams are the parameters for local single-node/integration test
// networks: trivial difficulty, short maturity, no bootstrap peers.
var RegtestParams = Params{
	NetworkID:            "regtest",
	Magic:                MagicRegtest,
	AddressPrefix:        "xair",
	GenesisBlock:         genesisBlock(wire.BigToCompact(genesisPowLimit), 1_700_000_000, "xair1genesisgenesisgenesisgenesi0"),
	TargetBlockTime:      1 * time.Second,
	RetargetInterval:     10,
	MaxAdjustment:        4.0,
	PowLimit:             genesisPowLimit,
	CoinbaseMaturity:     5,
	BlockSubsidyTable:    defaultSubsidyTable(),
	MaxSupply:            21_000_000_00000000,
	MaxBlockBytes:        4 * 1024 * 1024,
	MaxTxBytes:           256 * 1024,
	MinRelayFee:          1,
	RBFBumpPercent:       10,
	MaxReorgDepth:        20,
	NonceTTL:             1 * time.Minute,
	ClockSkew:            2 * time.Hour,
	MedianTimeBlockCount: 11,
	DefaultPort:          "18555",
	DNSSeeds:             []string{},
	TemplateRefresh:      time.Second,
	MempoolMaxBytes:      20 * 1024 * 1024,
	MempoolTTL:           time.Hour,
	CandidateTxLimit:     2000,
	MaxMsgRate:           1000,
	MaxBWIn:              50 * 1024 * 1024,
	ReplayCacheMax:       10000,
	BanThreshold:         10,
	BanDuration:          10 * time.Minute,
	PeerFanout:           8,
	PeerSendQueueSize:    1000,
	PeerRPCTimeout:       5 * time.Second,
	SyncPeerSampleSize:   3,
	HeaderBatch:          500,
	GapTolerance:         1,
	MaxHeaderWalk:        200,
}

// ByNetworkID looks up one of the three built-in parameter sets by their
// NetworkID string.
func ByNetworkID(id string) (*Params, bool) {
	switch id {
	case MainNetParams.NetworkID:
		return &MainNetParams, true
	case TestNetParams.NetworkID:
		return &TestNetParams, true
	case RegtestParams.NetworkID:
		return &RegtestParams, true
	default:
		return nil, false
	}
}
