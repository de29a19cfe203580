package registry

import (
	"sync"

	"github.com/zeromq/lcp-node/internal/codec"
)

// GroupInfo is a snapshot of one group record.
type GroupInfo struct {
	Name    string
	Creator codec.PeerID
	Members []codec.PeerID
}

type group struct {
	creator codec.PeerID
	members map[codec.PeerID]struct{}
}

// GroupRegistry tracks group_name -> set<peer_id>, replicated locally
// from CREAR_GRUPO/UNIRSE_A_GRUPO broadcasts. Grounded on gyre's
// group.go join/leave pair, generalized with an explicit creator field
// and idempotent Create since LCP groups (unlike ZRE's) carry one.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]*group
}

// NewGroupRegistry creates an empty group registry.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		groups: make(map[string]*group),
	}
}

// Create registers a group if it doesn't already exist. A duplicate
// create by the same peer is a silent no-op; by a different peer, the
// original creator is preserved. Returns true if the group was newly
// created.
func (r *GroupRegistry) Create(name string, creator codec.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[name]; ok {
		return false
	}
	g := &group{creator: creator, members: make(map[codec.PeerID]struct{})}
	g.members[creator] = struct{}{}
	r.groups[name] = g
	return true
}

// Join adds a member to an existing group. Silently no-ops if the peer
// is already a member or the group doesn't exist locally; the caller
// can distinguish "already a member" from "rejected, unknown group" via
// the two bool returns.
func (r *GroupRegistry) Join(name string, member codec.PeerID) (joined, groupExists bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return false, false
	}
	if _, already := g.members[member]; already {
		return false, true
	}
	g.members[member] = struct{}{}
	return true, true
}

// IsMember reports whether a peer belongs to a group.
func (r *GroupRegistry) IsMember(name string, id codec.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[name]
	if !ok {
		return false
	}
	_, member := g.members[id]
	return member
}

// Exists reports whether a group has been observed locally.
func (r *GroupRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.groups[name]
	return ok
}

// Members returns a snapshot of a group's member peer IDs.
func (r *GroupRegistry) Members(name string) []codec.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[name]
	if !ok {
		return nil
	}
	out := make([]codec.PeerID, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	return out
}

// List returns a snapshot (name, creator, members) of every known group.
func (r *GroupRegistry) List() []GroupInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GroupInfo, 0, len(r.groups))
	for name, g := range r.groups {
		members := make([]codec.PeerID, 0, len(g.members))
		for id := range g.members {
			members = append(members, id)
		}
		out = append(out, GroupInfo{Name: name, Creator: g.creator, Members: members})
	}
	return out
}
