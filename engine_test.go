package lcp

import (
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeromq/lcp-node/internal/codec"
)

// newLoopbackPair brings up two real engines on loopback with distinct
// ports (two engines can't share a wildcard-bound port on one host) and
// cross-wires each one's broadcast destination directly at the other's
// bound address. A real LAN deployment has every node converge on one
// well-known port and a genuine broadcast domain; this reaches into the
// unexported broadcastAddr field purely to simulate that on a single
// test host, the same way the registry tests reach into unexported
// fields to force state a real clock wouldn't produce in a unit test.
var nextTestPort uint32 = 19990

func newLoopbackPair(t *testing.T) (e1, e2 *Engine) {
	t.Helper()

	p1 := int(nextTestPort)
	p2 := p1 + 1
	nextTestPort += 2

	e1 = newTestEngine(t, p1)
	e2 = newTestEngine(t, p2)

	e1.broadcastAddr = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: p2}
	e2.broadcastAddr = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: p1}

	return e1, e2
}

func newTestEngine(t *testing.T, port int) *Engine {
	t.Helper()

	e, err := New(
		WithPort(port),
		WithTimeout(300*time.Millisecond),
		WithEchoInterval(40*time.Millisecond),
		WithReceiveDir(t.TempDir()),
		WithBroadcastAddr("127.0.0.1"),
	)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return e
}

// waitDiscovery blocks until a knows b, or fails the test.
func waitDiscovery(t *testing.T, a, b *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.peers.Lookup(b.ID()); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("peer %x never discovered %x", a.ID()[:4], b.ID()[:4])
}

func TestEngineDiscoversPeerByBroadcastEcho(t *testing.T) {
	e1, e2 := newLoopbackPair(t)

	waitDiscovery(t, e1, e2)
	waitDiscovery(t, e2, e1)

	select {
	case ev := <-e1.Events():
		assert.Equal(t, EventPeerDiscovered, ev.Type)
		assert.Equal(t, e2.ID(), ev.Peer)
	case <-time.After(2 * time.Second):
		t.Fatal("e1 never emitted a discovery event")
	}
}

func TestEngineSendMessageDirectRoundTrip(t *testing.T) {
	e1, e2 := newLoopbackPair(t)
	waitDiscovery(t, e1, e2)
	waitDiscovery(t, e2, e1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res := e1.SendMessage(ctx, e2.ID(), "hello there")
	require.Equal(t, SendOK, res.Status, "%v", res.Err)

	select {
	case msg := <-e2.Incoming():
		assert.Equal(t, e1.ID(), msg.From)
		assert.Equal(t, "hello there", msg.Text)
		assert.False(t, msg.Broadcast)
		assert.Empty(t, msg.Group)
	case <-time.After(time.Second):
		t.Fatal("e2 never received the message")
	}
}

func TestEngineSendBroadcastDrawsNoAckAndDelivers(t *testing.T) {
	e1, e2 := newLoopbackPair(t)
	waitDiscovery(t, e1, e2)
	waitDiscovery(t, e2, e1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res := e1.SendBroadcast(ctx, "everyone hi")
	require.Equal(t, SendOK, res.Status, "%v", res.Err)

	select {
	case msg := <-e2.Incoming():
		assert.Equal(t, e1.ID(), msg.From)
		assert.True(t, msg.Broadcast)
		assert.Equal(t, "everyone hi", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("e2 never received the broadcast message")
	}
}

func TestEngineGroupCreateJoinAndMessageReplicate(t *testing.T) {
	e1, e2 := newLoopbackPair(t)
	waitDiscovery(t, e1, e2)
	waitDiscovery(t, e2, e1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.Equal(t, SendOK, e1.CreateGroup(ctx, "friends").Status)

	drainUntilGroupKnown(t, e2, "friends")
	require.True(t, e2.groups.Exists("friends"))

	require.Equal(t, SendOK, e2.JoinGroup(ctx, "friends").Status)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !e1.groups.IsMember("friends", e2.ID()) {
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, e1.groups.IsMember("friends", e2.ID()), "e1 never saw e2 join")

	res := e1.SendGroupMessage(ctx, "friends", "group hello")
	require.Equal(t, SendOK, res.Status, "%v", res.Err)

	select {
	case msg := <-e2.Incoming():
		assert.Equal(t, "friends", msg.Group)
		assert.Equal(t, "group hello", msg.Text)
		assert.Equal(t, e1.ID(), msg.From)
	case <-time.After(2 * time.Second):
		t.Fatal("e2 never received the group message")
	}
}

func drainUntilGroupKnown(t *testing.T, e *Engine, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.groups.Exists(name) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("group %q never replicated", name)
}

func TestEngineSendFileTransfersByteIdenticalContent(t *testing.T) {
	e1, e2 := newLoopbackPair(t)
	waitDiscovery(t, e1, e2)
	waitDiscovery(t, e2, e1)

	payload := make([]byte, 128*1024+37)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	srcPath := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(srcPath, payload, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := e1.SendFile(ctx, e2.ID(), srcPath)
	require.Equal(t, SendOK, res.Status, "%v", res.Err)

	select {
	case notice := <-e2.IncomingFiles():
		require.True(t, notice.Success)
		assert.Equal(t, e1.ID(), notice.From)
		assert.Equal(t, int64(len(payload)), notice.Size)

		got, err := os.ReadFile(notice.Path)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("e2 never reported a completed file transfer")
	}
}

func TestEngineSendMessageToUnknownPeerIsRejectedLocally(t *testing.T) {
	e := newTestEngine(t, int(nextTestPort))
	nextTestPort++

	var unknown codec.PeerID
	_, err := rand.Read(unknown[:])
	require.NoError(t, err)

	res := e.SendMessage(context.Background(), unknown, "hello")
	assert.Equal(t, SendPeerUnknown, res.Status)
}

func TestEngineSendMessageTimesOutAgainstUnresponsivePeer(t *testing.T) {
	e := newTestEngine(t, int(nextTestPort))
	nextTestPort++

	var ghost codec.PeerID
	_, err := rand.Read(ghost[:])
	require.NoError(t, err)
	for ghost.IsBroadcast() {
		_, err := rand.Read(ghost[:])
		require.NoError(t, err)
	}

	// Nobody is listening on this port; the header send succeeds but no
	// ack will ever arrive.
	e.peers.Observe(ghost, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(nextTestPort) + 500})

	start := time.Now()
	res := e.SendMessage(context.Background(), ghost, "hello")
	elapsed := time.Since(start)

	assert.Equal(t, SendTimeout, res.Status)
	assert.GreaterOrEqual(t, elapsed, e.cfg.Timeout)
}
