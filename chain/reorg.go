package chain

import (
	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

// reorganizeTo makes newTip's branch the active chain: it finds the
// common ancestor with the current tip, reverts committed blocks down
// to that ancestor through the storage WAL, then appends the new
// branch's blocks upward. A failure partway through the append phase
// rolls the store back to the pre-reorg tip (specification §4.7 step 4).
func (m *Manager) reorganizeTo(newTip wire.Hash) error {
	prevState := m.state.get()
	m.state.set(StateReorganizing)
	defer m.state.set(prevState)

	oldTipHash := m.tipHash
	_, oldBranch, newBranch, err := m.commonAncestor(oldTipHash, newTip)
	if err != nil {
		return err
	}

	depth := uint64(len(oldBranch))
	if m.params.MaxReorgDepth > 0 && depth > m.params.MaxReorgDepth {
		return xaierr.New(xaierr.KindConsensus, CodeReorgTooDeep,
			"reorg of depth %d exceeds max_reorg_depth %d", depth, m.params.MaxReorgDepth)
	}

	if err := m.revertBranch(oldBranch); err != nil {
		return err
	}

	if err := m.appendBranch(newBranch); err != nil {
		// Abort: restore the pre-reorg tip. The just-reverted old
		// blocks are still held (unreverted state) in knownHeaders,
		// so they can be re-appended from their in-memory bodies.
		m.revertBranch(reverseBlocks(committedPrefix(newBranch, m.tipHash)))
		if restoreErr := m.appendBranch(reverseBlocks(oldBranch)); restoreErr != nil {
			return xaierr.Wrap(restoreErr, xaierr.KindConsensus, CodeReorgTooDeep,
				"reorg aborted after append failure (%v) but restoring the previous tip also failed", err)
		}
		return err
	}

	m.rebuildAccountNonces()
	return nil
}

// commonAncestor walks both branches back via PrevHash until the hashes
// coincide, returning the ancestor's hash and the two branches ordered
// from the ancestor's child up to their respective tips (oldBranch in
// tip-to-ancestor order for reverting, newBranch in ancestor-to-tip
// order for appending).
func (m *Manager) commonAncestor(oldTip, newTip wire.Hash) (ancestor wire.Hash, oldBranch, newBranch []*wire.Block, err error) {
	oldPath, err := m.pathToGenesis(oldTip)
	if err != nil {
		return wire.Hash{}, nil, nil, err
	}
	newPath, err := m.pathToGenesis(newTip)
	if err != nil {
		return wire.Hash{}, nil, nil, err
	}

	oldHeights := make(map[wire.Hash]int, len(oldPath))
	for i, b := range oldPath {
		oldHeights[b.Hash()] = i
	}

	for _, b := range newPath {
		if idx, ok := oldHeights[b.Hash()]; ok {
			ancestor = b.Hash()
			oldBranch = oldPath[:idx] // tip-first, ancestor-exclusive
			newBranchRev := newPath[:indexOf(newPath, b.Hash())]
			newBranch = reverseBlocks(newBranchRev) // ancestor-first
			return ancestor, oldBranch, newBranch, nil
		}
	}
	return wire.Hash{}, nil, nil, xaierr.New(xaierr.KindConsensus, CodeReorgTooDeep, "no common ancestor found within known history")
}

// pathToGenesis returns the blocks from tip back to (and including)
// genesis, tip-first, by walking knownHeaders.
func (m *Manager) pathToGenesis(tip wire.Hash) ([]*wire.Block, error) {
	var path []*wire.Block
	cur := tip
	for {
		rec, ok := m.knownHeaders[cur]
		if !ok {
			return nil, xaierr.New(xaierr.KindConsensus, CodeReorgTooDeep, "block %x is missing from known history", cur)
		}
		path = append(path, rec.block)
		if rec.block.Header.Height == 0 {
			return path, nil
		}
		cur = rec.block.Header.PrevHash
	}
}

func indexOf(blocks []*wire.Block, hash wire.Hash) int {
	for i, b := range blocks {
		if b.Hash() == hash {
			return i
		}
	}
	return len(blocks)
}

func reverseBlocks(blocks []*wire.Block) []*wire.Block {
	out := make([]*wire.Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

// committedPrefix is used only on the abort path, to figure out how
// much of the partially-applied new branch needs reverting; it is a
// best-effort reconstruction since the abort path is already handling
// an unexpected failure.
func committedPrefix(newBranch []*wire.Block, currentTip wire.Hash) []*wire.Block {
	var applied []*wire.Block
	for _, b := range newBranch {
		applied = append(applied, b)
		if b.Hash() == currentTip {
			break
		}
	}
	return applied
}

// revertBranch reverts blocks in tip-to-ancestor order (the order
// storage.Store.RevertBlock requires: always the current tip).
func (m *Manager) revertBranch(blocks []*wire.Block) error {
	for _, b := range blocks {
		if err := m.store.RevertBlock(b.Hash()); err != nil {
			return err
		}
		if rec, ok := m.knownHeaders[b.Hash()]; ok {
			rec.committed = false
		}
		m.tipHash = b.Header.PrevHash
		if m.onRevert != nil {
			m.onRevert(b)
		}
	}
	return nil
}

// appendBranch applies blocks in ancestor-to-tip order, committing each
// to the store in turn.
func (m *Manager) appendBranch(blocks []*wire.Block) error {
	for _, b := range blocks {
		if _, err := m.store.AppendBlock(b); err != nil {
			return err
		}
		if rec, ok := m.knownHeaders[b.Hash()]; ok {
			rec.committed = true
		}
		m.tipHash = b.Hash()
		if m.onCommit != nil {
			m.onCommit(b)
		}
	}
	return nil
}

// rebuildAccountNonces recomputes per-sender next-pending-nonce state
// from the now-active chain. A full rescan after every reorg trades
// throughput for simplicity — reorgs are rare compared to single-block
// extensions, which update accountNonce incrementally instead.
func (m *Manager) rebuildAccountNonces() {
	m.accountNonce = make(map[string]uint64)
	height, ok := m.store.TipHeight()
	if !ok {
		return
	}
	for h := uint64(0); h <= height; h++ {
		block, err := m.store.GetBlockByHeight(h)
		if err != nil {
			return
		}
		m.applyNonces(block)
	}
}
