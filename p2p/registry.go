package p2p

import (
	"sync"

	"github.com/xaichain/xaid/netparams"
)

// Registry tracks every peer this node currently knows about, keyed by
// the identifier it was registered under. The node registers each
// connection under its remote address, not a public-key fingerprint.
type Registry struct {
	params *netparams.Params

	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry returns an empty registry bound to params for its
// per-peer rate-limit and ban constants.
func NewRegistry(params *netparams.Params) *Registry {
	return &Registry{params: params, peers: make(map[string]*Peer)}
}

// Add registers a newly connected peer, or returns the existing entry
// if one is already registered under this identifier.
func (r *Registry) Add(id, endpoint string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		return p
	}
	p := newPeer(id, endpoint, r.params.MaxMsgRate, r.params.MaxBWIn, r.params.PeerSendQueueSize)
	r.peers[id] = p
	return p
}

// Remove drops a peer from the registry, e.g. on disconnect.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Get returns the peer registered under id, if any.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// IsBanned reports whether id is currently banned.
func (r *Registry) IsBanned(id string) bool {
	p, ok := r.Get(id)
	return ok && p.Trust() == TrustBanned
}

// Snapshot returns every currently registered peer, for gossip fan-out
// and periodic health sweeps.
func (r *Registry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
