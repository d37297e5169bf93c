// Package sync drives initial block download and catch-up sync: it asks
// a sample of peers for their chain tip, picks the one with the
// greatest cumulative work, downloads headers in batches, validates
// their linkage, downloads block bodies in parallel, and applies them
// to the chain manager in order — leaving SyncingHeaders/SyncingBlocks
// for Active once the local tip is within GAP_TOLERANCE of what peers
// report (specification §4.7, §6). It is grounded on the teacher's
// per-peer IBD flow: a goroutine per peer reading/writing through a
// pair of routers.Route queues rather than touching a socket directly.
package sync

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xaichain/xaid/chain"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/p2p"
	"github.com/xaichain/xaid/wire"
)

// ErrUnexpectedMessage means a peer replied to a request with a message
// of the wrong command — a protocol violation, not a transient error.
var ErrUnexpectedMessage = errors.New("received unexpected message type")

// PeerTip is what a peer reported of its own chain state, gathered
// during the handshake that precedes a Flow.
type PeerTip struct {
	PeerID         string
	Hash           wire.Hash
	Height         uint64
	CumulativeWork *big.Int
}

// BestTip picks the tip with the greatest cumulative work among a
// sample of peers (specification §4.7 fork choice, applied to peer
// selection rather than local branches); ties are broken by the first
// one observed, mirroring Manager.beatsTip's determinism goal without
// needing the full hash/first-seen tiebreak (peers are not competing
// local branches, just candidate download sources).
func BestTip(tips []PeerTip) (PeerTip, bool) {
	var best PeerTip
	found := false
	for _, tip := range tips {
		if !found || tip.CumulativeWork.Cmp(best.CumulativeWork) > 0 {
			best = tip
			found = true
		}
	}
	return best, found
}

// Flow runs one peer's header-then-block download, the synchronous
// counterpart to the teacher's handleIBDFlow.
type Flow struct {
	manager *chain.Manager
	params  *netparams.Params

	incoming, outgoing *p2p.Route
	peerID             string

	peerTipHash   wire.Hash
	peerTipHeight uint64
}

// NewFlow builds a sync flow against one peer, whose previously
// announced tip is peerTip.
func NewFlow(manager *chain.Manager, params *netparams.Params, incoming, outgoing *p2p.Route, peerTip PeerTip) *Flow {
	return &Flow{
		manager:       manager,
		params:        params,
		incoming:      incoming,
		outgoing:      outgoing,
		peerID:        peerTip.PeerID,
		peerTipHash:   peerTip.Hash,
		peerTipHeight: peerTip.Height,
	}
}

// Run downloads and applies every block between the local tip and the
// peer's announced tip, returning once the local chain has caught up
// to it or ctx is canceled.
func (f *Flow) Run(ctx context.Context) error {
	if f.manager.HasBlock(f.peerTipHash) {
		return nil // already caught up to this peer
	}

	f.manager.AnnounceHigherWork()
	f.manager.BeginHeaderSync()

	headers, err := f.downloadHeaders(ctx)
	if err != nil {
		return errors.Wrap(err, "downloading headers")
	}

	if err := f.downloadAndApplyBlocks(ctx, headers); err != nil {
		return errors.Wrap(err, "downloading blocks")
	}

	if f.withinGapTolerance() {
		f.manager.MarkActive()
	}
	return nil
}

func (f *Flow) withinGapTolerance() bool {
	tipHeight := f.manager.TipHeight()
	if tipHeight >= f.peerTipHeight {
		return true
	}
	return f.peerTipHeight-tipHeight <= f.params.GapTolerance
}

// downloadHeaders walks forward from the local tip in HeaderBatch-sized
// pages, bounded by MaxHeaderWalk round trips, validating only that
// each page links to the previous one (full consensus validation
// happens when the body is later applied through the chain manager).
func (f *Flow) downloadHeaders(ctx context.Context) ([]wire.BlockHeader, error) {
	var all []wire.BlockHeader
	from := f.manager.TipHash()

	for walk := 0; walk < f.params.MaxHeaderWalk; walk++ {
		page, err := f.requestHeaders(ctx, from)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		if err := validateHeaderLinkage(from, page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		from = page[len(page)-1].Hash()

		if from == f.peerTipHash || len(page) < f.params.HeaderBatch {
			return all, nil
		}
	}
	return all, errors.Errorf("exceeded max header walk (%d) syncing from peer %s", f.params.MaxHeaderWalk, f.peerID)
}

func validateHeaderLinkage(parentHash wire.Hash, page []wire.BlockHeader) error {
	prev := parentHash
	for i := range page {
		if page[i].PrevHash != prev {
			return errors.Errorf("header at offset %d does not link to its predecessor", i)
		}
		prev = page[i].Hash()
	}
	return nil
}

func (f *Flow) requestHeaders(ctx context.Context, from wire.Hash) ([]wire.BlockHeader, error) {
	req := &wire.MsgGetHeaders{FromHash: from, Count: uint32(f.params.HeaderBatch)}
	if err := f.outgoing.Enqueue(req); err != nil {
		return nil, err
	}

	msg, err := f.dequeueWithContext(ctx)
	if err != nil {
		return nil, err
	}
	headers, ok := msg.(*wire.MsgHeaders)
	if !ok {
		return nil, errors.Wrapf(ErrUnexpectedMessage, "expected %s, got %s", wire.CmdHeaders, msg.Command())
	}
	return headers.Headers, nil
}

func (f *Flow) dequeueWithContext(ctx context.Context) (wire.Message, error) {
	type result struct {
		msg wire.Message
		err error
	}
	out := make(chan result, 1)
	go func() {
		msg, err := f.incoming.DequeueWithTimeout(f.params.PeerRPCTimeout)
		out <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-out:
		return r.msg, r.err
	}
}

// downloadAndApplyBlocks fetches every header's full body concurrently
// (golang.org/x/sync/errgroup, bounded by the errgroup's own
// goroutine-per-header fan-out) but commits them to the chain manager
// strictly in header order, since the manager rejects a block whose
// parent it has not yet seen.
func (f *Flow) downloadAndApplyBlocks(ctx context.Context, headers []wire.BlockHeader) error {
	bodies := make([]*wire.Block, len(headers))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range headers {
		i, hash := i, h.Hash()
		if f.manager.HasBlock(hash) {
			continue
		}
		g.Go(func() error {
			block, err := f.requestBlock(gctx, hash)
			if err != nil {
				return err
			}
			bodies[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Replies share one route, so a goroutine may receive the body another
	// one requested; match bodies to headers by hash before applying.
	byHash := make(map[wire.Hash]*wire.Block, len(bodies))
	for _, block := range bodies {
		if block != nil {
			byHash[block.Hash()] = block
		}
	}
	for _, h := range headers {
		block, ok := byHash[h.Hash()]
		if !ok {
			continue // already had this one
		}
		if _, err := f.manager.ProcessBlock(block); err != nil {
			return errors.Wrapf(err, "applying block %s during sync", block.Hash())
		}
	}
	return nil
}

func (f *Flow) requestBlock(ctx context.Context, hash wire.Hash) (*wire.Block, error) {
	req := &wire.MsgGetBlock{BlockHash: hash}
	if err := f.outgoing.Enqueue(req); err != nil {
		return nil, err
	}

	msg, err := f.dequeueWithContext(ctx)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*wire.MsgIBDBlock)
	if !ok {
		return nil, errors.Wrapf(ErrUnexpectedMessage, "expected %s, got %s", wire.CmdIBDBlock, msg.Command())
	}
	return &resp.Block, nil
}

// waitForPeerSample blocks until count tip reports have arrived or
// timeout elapses, the SYNC_PEER_SAMPLE_SIZE (K) gather step that
// precedes BestTip.
func waitForPeerSample(tips <-chan PeerTip, count int, timeout time.Duration) []PeerTip {
	deadline := time.After(timeout)
	out := make([]PeerTip, 0, count)
	for len(out) < count {
		select {
		case tip := <-tips:
			out = append(out, tip)
		case <-deadline:
			return out
		}
	}
	return out
}
