package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/xaichain/xaid/chain"
	"github.com/xaichain/xaid/netparams"
)

// Coordinator drives a sample-K-peers-then-sync step
// (SYNC_PEER_SAMPLE_SIZE). It owns no network connections itself: the
// caller feeds it peer tip reports over a channel and supplies a Flow for
// whichever peer ends up selected. The node constructs one but does not
// call SampleAndSync; node.serveConn runs a Flow against each connected
// peer whose handshake reports more work than the local tip.
type Coordinator struct {
	manager *chain.Manager
	params  *netparams.Params
}

// NewCoordinator returns a sync coordinator bound to manager and params.
func NewCoordinator(manager *chain.Manager, params *netparams.Params) *Coordinator {
	return &Coordinator{manager: manager, params: params}
}

// SampleAndSync waits for up to SyncPeerSampleSize tip reports on tips
// (or SampleTimeout, whichever comes first), picks the peer with the
// greatest cumulative work, and — if that work exceeds the local tip's
// — runs the sync flow newFlow builds for it.
func (c *Coordinator) SampleAndSync(ctx context.Context, tips <-chan PeerTip, sampleTimeout time.Duration, newFlow func(PeerTip) *Flow) error {
	sample := waitForPeerSample(tips, c.params.SyncPeerSampleSize, sampleTimeout)
	if len(sample) == 0 {
		return nil // no peers reported in time; nothing to sync against yet
	}

	best, ok := BestTip(sample)
	if !ok {
		return nil
	}

	if best.CumulativeWork.Cmp(c.manager.TipWork()) <= 0 {
		return nil // already at or ahead of every sampled peer
	}

	flow := newFlow(best)
	if err := flow.Run(ctx); err != nil {
		return errors.Wrapf(err, "syncing against peer %s", best.PeerID)
	}
	return nil
}
