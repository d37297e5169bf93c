package chain

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/xaichain/xaid/difficulty"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/storage"
	"github.com/xaichain/xaid/validator"
	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

const (
	// CodeUnknownParent means a block's previous_hash does not match
	// any known header; it is queued in the orphan pool instead.
	CodeUnknownParent xaierr.Code = "chain_unknown_parent"
	// CodeReorgTooDeep means a candidate branch's common ancestor with
	// the active tip is deeper than MaxReorgDepth.
	CodeReorgTooDeep xaierr.Code = "chain_reorg_too_deep"
	// CodeAlreadyKnown means the block (by hash) has already been
	// accepted, either on the active chain or as a side branch.
	CodeAlreadyKnown xaierr.Code = "chain_already_known"
)

// blockRecord is everything the manager tracks about one accepted
// (header+body validated) block, whether or not it is on the active
// chain.
type blockRecord struct {
	block          *wire.Block
	cumulativeWork *big.Int
	committed      bool
	firstSeen      time.Time
}

// Manager is the node's single writer of chain state: it is the only
// component that calls storage.Store's AppendBlock/RevertBlock
// (specification §2 ownership rule).
type Manager struct {
	mu sync.Mutex

	params    *netparams.Params
	store     *storage.Store
	validator *validator.Validator
	state     stateHolder

	knownHeaders map[wire.Hash]*blockRecord
	orphans      map[wire.Hash][]*wire.Block // keyed by previous_hash
	accountNonce map[string]uint64

	tipHash wire.Hash

	onCommit func(*wire.Block)
	onRevert func(*wire.Block)
}

// SetCommitHooks registers callbacks invoked whenever a block is applied
// to (onCommit) or removed from (onRevert) the active chain, on every tip
// change including an ordinary single-block extension, not just a deep
// reorg (specification §2: mempool conflict-eviction on commit, tx
// re-admission on revert). Either callback may be nil.
func (m *Manager) SetCommitHooks(onCommit, onRevert func(*wire.Block)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCommit = onCommit
	m.onRevert = onRevert
}

// New wires a Manager around an already-open store and commits the
// network's genesis block if the store is empty.
func New(params *netparams.Params, store *storage.Store, v *validator.Validator) (*Manager, error) {
	m := &Manager{
		params:       params,
		store:        store,
		validator:    v,
		knownHeaders: make(map[wire.Hash]*blockRecord),
		orphans:      make(map[wire.Hash][]*wire.Block),
		accountNonce: make(map[string]uint64),
	}
	m.state.set(StateActive)

	if height, ok := store.TipHeight(); ok {
		if err := m.reindexCommittedChain(height); err != nil {
			return nil, err
		}
		return m, nil
	}

	genesis := params.GenesisBlock
	if _, err := store.AppendBlock(genesis); err != nil {
		return nil, xaierr.Wrap(err, xaierr.KindStorage, CodeAlreadyKnown, "committing genesis block")
	}
	m.registerCommitted(genesis, workFromBits(genesis.Header.DifficultyBits))
	return m, nil
}

// reindexCommittedChain rebuilds knownHeaders and accountNonce by
// replaying every block the store already has on its active chain, the
// bookkeeping counterpart to storage.Open's own UTXO-set replay.
func (m *Manager) reindexCommittedChain(tipHeight uint64) error {
	var work *big.Int
	for height := uint64(0); height <= tipHeight; height++ {
		block, err := m.store.GetBlockByHeight(height)
		if err != nil {
			return err
		}
		if work == nil {
			work = big.NewInt(0)
		}
		work = new(big.Int).Add(work, workFromBits(block.Header.DifficultyBits))
		rec := &blockRecord{block: block, cumulativeWork: new(big.Int).Set(work), committed: true}
		m.knownHeaders[block.Hash()] = rec
		m.applyNonces(block)
		m.tipHash = block.Hash()
	}
	return nil
}

func (m *Manager) registerCommitted(block *wire.Block, cumWork *big.Int) {
	rec := &blockRecord{block: block, cumulativeWork: cumWork, committed: true}
	m.knownHeaders[block.Hash()] = rec
	m.tipHash = block.Hash()
	m.applyNonces(block)
}

func (m *Manager) applyNonces(block *wire.Block) {
	for i, tx := range block.Transactions {
		if i == 0 {
			continue // coinbase carries no sender nonce
		}
		m.accountNonce[tx.Sender] = tx.Nonce + 1
	}
}

// AccountNonce reports the nonce a sender's next accepted transaction
// must carry, for validating an inbound peer-submitted or CLI-submitted
// transaction against committed chain state (specification §4: "nonce
// exactly equal to account.next_pending_nonce").
func (m *Manager) AccountNonce(sender string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountNonce[sender]
}

// State reports the manager's current tip-selection state.
func (m *Manager) State() State { return m.state.get() }

// AnnounceHigherWork transitions Active into SyncingBlocks when a peer
// reports a tip with more cumulative work than ours (specification
// §4.7: "Active --peer_announces_higher_work--> SyncingBlocks").
func (m *Manager) AnnounceHigherWork() {
	if m.state.get() == StateActive {
		m.state.set(StateSyncingBlocks)
	}
}

// TipHash returns the active chain's current tip.
func (m *Manager) TipHash() wire.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tipHash
}

// TipHeight returns the active chain's current tip height.
func (m *Manager) TipHeight() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownHeaders[m.tipHash].block.Header.Height
}

// TipWork returns the active chain's cumulative work.
func (m *Manager) TipWork() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.knownHeaders[m.tipHash].cumulativeWork)
}

// HasBlock reports whether hash is already known, on the active chain
// or a side branch, so a sync walk doesn't re-request it.
func (m *Manager) HasBlock(hash wire.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.knownHeaders[hash]
	return ok
}

// Store returns the block store backing this manager, for read-only
// access by the sync and P2P layers (serving get_block/get_headers).
func (m *Manager) Store() *storage.Store { return m.store }

// BeginHeaderSync transitions Active into SyncingHeaders at startup,
// before any peer has announced higher work (specification §4.7).
func (m *Manager) BeginHeaderSync() {
	if m.state.get() == StateActive {
		m.state.set(StateSyncingHeaders)
	}
}

// MarkActive transitions SyncingHeaders/SyncingBlocks back into Active
// once the local tip is within GapTolerance of observed peer tips.
func (m *Manager) MarkActive() {
	m.state.set(StateActive)
}

// CandidateTipInfo reports the active tip's height, hash,
// median-time-past, and the difficulty_bits required of the next
// block, exactly what a miner needs to build a candidate template
// (specification §4.8) without reaching into chain manager internals.
func (m *Manager) CandidateTipInfo() (height uint64, hash wire.Hash, medianTimePast int64, requiredDifficulty uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tip := m.knownHeaders[m.tipHash].block
	return tip.Header.Height, m.tipHash, m.medianTimePast(tip), m.requiredDifficulty(tip)
}

// workFromBits converts a compact difficulty target into the amount of
// work a block at that difficulty represents: floor(2^256 / (target+1)),
// the standard cumulative-work measure.
func workFromBits(bits uint32) *big.Int {
	target := wire.CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(1)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(numerator, denom)
}

// ProcessBlock runs the block-arrival algorithm (specification §4.7):
// orphan queueing on an unknown parent, header+body validation, and
// reorganization when the candidate's cumulative work exceeds the active
// tip's.
func (m *Manager) ProcessBlock(block *wire.Block) (isOrphan bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processBlockLocked(block)
}

func (m *Manager) processBlockLocked(block *wire.Block) (bool, error) {
	hash := block.Hash()
	if _, known := m.knownHeaders[hash]; known {
		return false, nil
	}

	parentRec, ok := m.knownHeaders[block.Header.PrevHash]
	if !ok {
		m.orphans[block.Header.PrevHash] = append(m.orphans[block.Header.PrevHash], block)
		return true, nil
	}

	if err := m.validateAgainstParent(block, parentRec); err != nil {
		return false, err
	}

	cumWork := new(big.Int).Add(parentRec.cumulativeWork, workFromBits(block.Header.DifficultyBits))
	rec := &blockRecord{block: block, cumulativeWork: cumWork, firstSeen: now()}
	m.knownHeaders[hash] = rec

	tipRec := m.knownHeaders[m.tipHash]
	if !m.beatsTip(rec, tipRec) {
		return false, nil // accepted as a side branch, no reorg
	}

	if err := m.reorganizeTo(hash); err != nil {
		return false, err
	}
	m.acceptOrphansOf(hash)
	return false, nil
}

// beatsTip applies the cumulative-work-then-tie-break ordering
// (specification §4.7: "Tie-breaking (equal cumulative work): smallest
// block hash, then earliest observed timestamp").
func (m *Manager) beatsTip(candidate, tip *blockRecord) bool {
	cmp := candidate.cumulativeWork.Cmp(tip.cumulativeWork)
	if cmp != 0 {
		return cmp > 0
	}
	candHash, tipHash := candidate.block.Hash(), tip.block.Hash()
	if hashLess(candHash, tipHash) != hashLess(tipHash, candHash) {
		return hashLess(candHash, tipHash)
	}
	return candidate.firstSeen.Before(tip.firstSeen)
}

func hashLess(a, b wire.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (m *Manager) validateAgainstParent(block *wire.Block, parentRec *blockRecord) error {
	parent := parentRec.block
	parentInfo := validator.ParentInfo{
		Height:             parent.Header.Height,
		Hash:               parent.Hash(),
		MedianTimePast:     m.medianTimePast(parent),
		RequiredDifficulty: m.requiredDifficulty(parent),
	}
	if err := m.validator.CheckBlockHeader(&block.Header, parentInfo, time.Unix(timeNowUnix(), 0)); err != nil {
		return err
	}
	return m.validator.CheckBlockBody(block)
}

// medianTimePast computes the median timestamp of the most recent
// MedianTimeBlockCount ancestors ending at tip, inclusive (specification
// §4: "timestamp > median(last 11 parents)").
func (m *Manager) medianTimePast(tip *wire.Block) int64 {
	n := m.params.MedianTimeBlockCount
	if n <= 0 {
		n = 11
	}
	timestamps := make([]int64, 0, n)
	cur := tip
	for i := 0; i < n; i++ {
		timestamps = append(timestamps, cur.Header.Timestamp)
		if cur.Header.Height == 0 {
			break
		}
		parentRec, ok := m.knownHeaders[cur.Header.PrevHash]
		if !ok {
			break
		}
		cur = parentRec.block
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2]
}

// requiredDifficulty returns the difficulty_bits the block after tip
// must carry: tip's own bits unless the new height falls on a retarget
// boundary, in which case difficulty.NextBits recomputes it over the
// just-completed window (specification §4.9).
func (m *Manager) requiredDifficulty(tip *wire.Block) uint32 {
	nextHeight := tip.Header.Height + 1
	interval := m.params.RetargetInterval
	if interval == 0 || nextHeight%interval != 0 {
		return tip.Header.DifficultyBits
	}
	windowStart := m.ancestorHeader(tip, interval)
	if windowStart == nil {
		return tip.Header.DifficultyBits
	}
	return difficulty.NextBits(m.params, windowStart, &tip.Header)
}

// ancestorHeader walks back steps generations from tip through
// knownHeaders.
func (m *Manager) ancestorHeader(tip *wire.Block, steps uint64) *wire.BlockHeader {
	cur := tip
	for i := uint64(0); i < steps; i++ {
		if cur.Header.Height == 0 {
			return &cur.Header
		}
		rec, ok := m.knownHeaders[cur.Header.PrevHash]
		if !ok {
			return nil
		}
		cur = rec.block
	}
	return &cur.Header
}

func (m *Manager) acceptOrphansOf(hash wire.Hash) {
	pending := m.orphans[hash]
	delete(m.orphans, hash)
	for _, orphan := range pending {
		_, _ = m.processBlockLocked(orphan)
	}
}

// now and timeNowUnix are indirections so tests can freeze arrival
// order and the clock-skew ceiling.
var now = time.Now
var timeNowUnix = func() int64 { return time.Now().Unix() }
