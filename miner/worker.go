package miner

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

// NonceRange divides the uint64 nonce space into NumWorkers disjoint
// stripes so concurrent workers searching the same template never
// retry each other's work.
type NonceRange struct {
	Start, End uint64 // [Start, End)
}

func splitNonceSpace(numWorkers int) []NonceRange {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	span := uint64(math.MaxUint64) / uint64(numWorkers)
	ranges := make([]NonceRange, numWorkers)
	for i := 0; i < numWorkers; i++ {
		start := uint64(i) * span
		end := start + span
		if i == numWorkers-1 {
			end = math.MaxUint64
		}
		ranges[i] = NonceRange{Start: start, End: end}
	}
	return ranges
}

// Found is a template whose header nonce now produces a hash meeting
// its difficulty target.
type Found struct {
	Block *wire.Block
}

// Pool runs NumWorkers goroutines searching a shared Template for a
// winning nonce, restarting immediately on every call to Mine with a
// fresh template (specification §4.8: "on any new tip ... workers
// abandon the current template and receive a fresh one within
// BLOCK_TEMPLATE_REFRESH_MS").
type Pool struct {
	params     *netparams.Params
	numWorkers int
	extraNonce uint64

	found chan Found
}

// NewPool returns a worker pool of the given size, bound to params for
// its clock-skew-bounded timestamp mutation.
func NewPool(params *netparams.Params, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{params: params, numWorkers: numWorkers, found: make(chan Found, 1)}
}

// Found is the channel winning blocks are published on; the caller
// (typically the node orchestrator) submits them through the validator
// like any externally received block.
func (p *Pool) Found() <-chan Found { return p.found }

// Mine runs the worker pool against template until ctx is canceled (a
// new tip arrived) or a worker finds a winning nonce, in which case it
// is published on Found(), the other workers stop, and Mine returns nil.
// Each worker searches its own copy of the coinbase. A worker that
// exhausts its nonce stripe advances the timestamp by one second while
// that stays within medianTimePast+ClockSkew, and otherwise takes a fresh
// coinbase extra-nonce (and so a fresh Merkle root), then searches the
// stripe again.
func (p *Pool) Mine(ctx context.Context, template *Template, medianTimePast int64) error {
	g, ctx := errgroup.WithContext(ctx)
	var winner int32

	ranges := splitNonceSpace(p.numWorkers)
	for _, r := range ranges {
		r := r
		g.Go(func() error {
			return p.searchRange(ctx, template, r, medianTimePast, &winner)
		})
	}
	return g.Wait()
}

func (p *Pool) searchRange(ctx context.Context, template *Template, r NonceRange, medianTimePast int64, winner *int32) error {
	local := &Template{Header: template.Header, Transactions: append([]*wire.Transaction(nil), template.Transactions...)}
	local.Transactions[0] = local.Transactions[0].Clone()
	extraNonce := atomic.AddUint64(&p.extraNonce, 1)
	local.BumpExtraNonce(extraNonce)

	ceiling := medianTimePast + int64(p.params.ClockSkew.Seconds())
	for nonce := r.Start; nonce < r.End; nonce++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if atomic.LoadInt32(winner) != 0 {
			return nil
		}

		local.Header.Nonce = nonce
		if wire.MeetsTarget(local.Header.Hash(), local.Header.DifficultyBits) {
			if atomic.CompareAndSwapInt32(winner, 0, 1) {
				select {
				case p.found <- Found{Block: local.Block()}:
				case <-ctx.Done():
				}
			}
			return nil
		}

		if nonce == r.End-1 {
			// Nonce space for this stripe is exhausted: mutate the
			// timestamp (bounded) or extra-nonce and resume.
			if local.Header.Timestamp+1 <= ceiling {
				local.Retimestamp(local.Header.Timestamp + 1)
			} else {
				extraNonce = atomic.AddUint64(&p.extraNonce, 1)
				local.BumpExtraNonce(extraNonce)
			}
			nonce = r.Start - 1 // restart the stripe under the mutated header
		}
	}
	return nil
}
