// Package registry tracks the two pieces of locally replicated state an
// LCP node keeps about the rest of the network: known peers and the
// groups they belong to. Both registries are guarded by their own
// mutex, and neither registry ever calls into the other while holding
// its own lock.
package registry

import (
	"net"
	"sync"
	"time"

	"github.com/zeromq/lcp-node/internal/codec"
)

// PeerInfo is a snapshot of one peer record, safe to read without a lock.
type PeerInfo struct {
	ID       codec.PeerID
	Addr     *net.UDPAddr
	LastSeen time.Time
}

// PeerRegistry tracks peer_id -> (address, last_seen), evicting entries
// that go quiet. It never stores the local node's own PeerID; that
// self-filtering is the engine's responsibility since the registry has
// no notion of "self".
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[codec.PeerID]*PeerInfo
}

// NewPeerRegistry creates an empty peer registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		peers: make(map[codec.PeerID]*PeerInfo),
	}
}

// Observe records activity from a peer, creating the record on first
// sight and refreshing LastSeen on every later call. Returns true if
// this is the first time the peer has been observed.
func (r *PeerRegistry) Observe(id codec.PeerID, addr *net.UDPAddr) (firstSight bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.peers[id]
	if !ok {
		r.peers[id] = &PeerInfo{ID: id, Addr: addr, LastSeen: now}
		return true
	}
	existing.Addr = addr
	existing.LastSeen = now
	return false
}

// Lookup returns the address of a known peer.
func (r *PeerRegistry) Lookup(id codec.PeerID) (*net.UDPAddr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return p.Addr, true
}

// List returns a snapshot of all known peers.
func (r *PeerRegistry) List() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

// EvictInactive removes and returns every peer whose LastSeen predates
// now by more than threshold.
func (r *PeerRegistry) EvictInactive(now time.Time, threshold time.Duration) []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []PeerInfo
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > threshold {
			evicted = append(evicted, *p)
			delete(r.peers, id)
		}
	}
	return evicted
}
