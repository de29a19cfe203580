package registry

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeromq/lcp-node/internal/codec"
)

func peerID(fill byte) codec.PeerID {
	var id codec.PeerID
	for i := range id {
		id[i] = fill
	}
	return id
}

func TestPeerRegistryObserveCreatesThenRefreshes(t *testing.T) {
	r := NewPeerRegistry()
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 9990}
	id := peerID(0x01)

	first := r.Observe(id, addr)
	assert.True(t, first)

	second := r.Observe(id, addr)
	assert.False(t, second)

	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, addr, got)
}

func TestPeerRegistryEvictInactiveLeavesFreshPeers(t *testing.T) {
	r := NewPeerRegistry()
	stale := peerID(0x02)
	fresh := peerID(0x03)
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1")}

	r.Observe(stale, addr)
	r.Observe(fresh, addr)

	// Force the stale entry's clock back beyond the threshold.
	r.mu.Lock()
	r.peers[stale].LastSeen = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	evicted := r.EvictInactive(time.Now(), 5*time.Second)
	require.Len(t, evicted, 1)
	assert.Equal(t, stale, evicted[0].ID)

	_, ok := r.Lookup(stale)
	assert.False(t, ok)
	_, ok = r.Lookup(fresh)
	assert.True(t, ok)
}

func TestPeerRegistryListIsSnapshot(t *testing.T) {
	r := NewPeerRegistry()
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1")}
	r.Observe(peerID(0x01), addr)
	r.Observe(peerID(0x02), addr)

	list := r.List()
	assert.Len(t, list, 2)
}
