package lcp

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/zeromq/lcp-node/internal/codec"
)

// SendMessage delivers text to a single known peer, running the full
// header/ack, body/ack handshake. Grounded on node.go's Whisper,
// generalized from a single ROUTER-framed send to LCP's two-phase
// handshake with a single shared ack queue.
func (e *Engine) SendMessage(ctx context.Context, peer codec.PeerID, text string) SendResult {
	addr, ok := e.peers.Lookup(peer)
	if !ok {
		return SendResult{Status: SendPeerUnknown}
	}
	return e.sendDirected(ctx, peer, addr, text)
}

// SendBroadcast delivers text to every peer at once. A broadcast
// header/body draws no response, so this returns as soon as both
// frames are on the wire.
func (e *Engine) SendBroadcast(ctx context.Context, text string) SendResult {
	payload := []byte(text)
	if !validPayload(payload) {
		return SendResult{Status: SendLocalError, Err: fmt.Errorf("lcp: payload is not valid UTF-8 text")}
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	msgID := e.nextMsgID()
	header := codec.EncodeHeader(codec.Header{
		From:   e.selfID,
		To:     codec.Broadcast,
		Op:     codec.OpMessage,
		SubID:  msgID,
		Length: uint64(len(payload)),
	})
	if _, err := e.conn.WriteToUDP(header, e.broadcastAddr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}

	body, err := codec.EncodeBody(msgID, payload)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := e.conn.WriteToUDP(body, e.broadcastAddr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	return SendResult{Status: SendOK}
}

func (e *Engine) sendDirected(ctx context.Context, peer codec.PeerID, addr *net.UDPAddr, text string) SendResult {
	payload := []byte(text)
	if !validPayload(payload) {
		return SendResult{Status: SendLocalError, Err: fmt.Errorf("lcp: payload is not valid UTF-8 text")}
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	msgID := e.nextMsgID()
	header := codec.EncodeHeader(codec.Header{
		From:   e.selfID,
		To:     peer,
		Op:     codec.OpMessage,
		SubID:  msgID,
		Length: uint64(len(payload)),
	})
	if _, err := e.conn.WriteToUDP(header, addr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if res := e.awaitAck(ctx, peer); !res.ok() {
		return res
	}

	body, err := codec.EncodeBody(msgID, payload)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := e.conn.WriteToUDP(body, addr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	return e.awaitAck(ctx, peer)
}

// SendFile announces then streams path to peer: a UDP announce
// carrying the file size, followed by a raw TCP byte stream framed
// with the same file_id. Grounded on chat_lan.py's enviar_archivo,
// generalized to the Engine's shared-socket/ack-serialization model.
func (e *Engine) SendFile(ctx context.Context, peer codec.PeerID, path string) SendResult {
	addr, ok := e.peers.Lookup(peer)
	if !ok {
		return SendResult{Status: SendPeerUnknown}
	}

	f, err := os.Open(path)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	size := info.Size()

	var fileID codec.FileID
	if _, err := rand.Read(fileID[:]); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}

	// The announce draws no ack: the receiver just records a pending-file
	// entry, and the sender moves straight to the TCP phase. sendMu still
	// serializes the write against other senders sharing the socket, even
	// though nothing is awaited afterward.
	announceErr := func() error {
		e.sendMu.Lock()
		defer e.sendMu.Unlock()

		announce := codec.EncodeFileAnnounce(e.selfID, peer, fileID, uint64(size))
		_, err := e.conn.WriteToUDP(announce, addr)
		return err
	}()
	if announceErr != nil {
		return SendResult{Status: SendLocalError, Err: announceErr}
	}

	dialer := net.Dialer{Timeout: e.cfg.Timeout}
	tcpEndpoint := net.JoinHostPort(addr.IP.String(), fmt.Sprintf("%d", addr.Port))
	conn, err := dialer.DialContext(ctx, "tcp4", tcpEndpoint)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write(fileID[:]); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := io.CopyN(conn, f, size); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}

	status := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(e.cfg.Timeout))
	if _, err := io.ReadFull(conn, status); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if status[0] != codec.StatusOK {
		return SendResult{Status: SendRejected, Err: fmt.Errorf("lcp: receiver reported transfer failure with status %d", status[0])}
	}
	return SendResult{Status: SendOK}
}

// CreateGroup registers a named group locally, naming this node as
// creator, and broadcasts the creation so every reachable peer records
// it too. The local registration happens directly rather
// than via loopback of the broadcast frame: a net.ListenUDP socket is
// not guaranteed to deliver a broadcast back to its own sender on every
// platform, so relying on that loopback for local state would be
// fragile (a deliberate departure from the original's single-path
// design, recorded as an explicit resolution of an open question).
func (e *Engine) CreateGroup(ctx context.Context, name string) SendResult {
	if e.groups.Create(name, e.selfID) {
		e.emitEvent(Event{Type: EventGroupCreatedLocal, Peer: e.selfID, Group: name})
	}

	header, err := codec.EncodeGroupHeader(e.selfID, codec.OpGroupCreate, name)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := e.conn.WriteToUDP(header, e.broadcastAddr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	return SendResult{Status: SendOK}
}

// JoinGroup adds this node to a group it already knows about, then
// broadcasts the join so every reachable peer updates its membership
// view. Joining a group this node has never heard of is a local error:
// group existence is required before membership.
func (e *Engine) JoinGroup(ctx context.Context, name string) SendResult {
	if !e.groups.Exists(name) {
		return SendResult{Status: SendLocalError, Err: fmt.Errorf("lcp: group %q is not known locally", name)}
	}
	if joined, _ := e.groups.Join(name, e.selfID); joined {
		e.emitEvent(Event{Type: EventGroupJoinedLocal, Peer: e.selfID, Group: name})
	}

	header, err := codec.EncodeGroupHeader(e.selfID, codec.OpGroupJoin, name)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := e.conn.WriteToUDP(header, e.broadcastAddr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	return SendResult{Status: SendOK}
}

// SendGroupMessage broadcasts text to a group's members. Only this
// node's own membership is checked locally; delivery to other members
// is best-effort broadcast and, as with SendBroadcast, no
// per-recipient ack is awaited (members still send one): group
// messages are broadcast frames gated by membership, not unicast
// fan-out.
func (e *Engine) SendGroupMessage(ctx context.Context, name, text string) SendResult {
	if !e.groups.IsMember(name, e.selfID) {
		return SendResult{Status: SendLocalError, Err: fmt.Errorf("lcp: not a member of group %q", name)}
	}
	payload := []byte(text)
	if !validPayload(payload) {
		return SendResult{Status: SendLocalError, Err: fmt.Errorf("lcp: payload is not valid UTF-8 text")}
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	msgID := e.nextMsgID()
	header, err := codec.EncodeGroupMessageHeader(e.selfID, msgID, uint64(len(payload)), name)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := e.conn.WriteToUDP(header, e.broadcastAddr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}

	body, err := codec.EncodeBody(msgID, payload)
	if err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	if _, err := e.conn.WriteToUDP(body, e.broadcastAddr); err != nil {
		return SendResult{Status: SendLocalError, Err: err}
	}
	return SendResult{Status: SendOK}
}

// awaitAck blocks on the shared response queue until an ack whose From
// field matches peer arrives, ctx is cancelled, or the node's
// configured timeout elapses.
// Callers must hold sendMu: only one ack may be outstanding per sender
// at a time, since a single demultiplexed queue serves every response.
// Mismatched responses are logged and the wait continues rather than
// treating an unrelated reply as the awaited ack.
func (e *Engine) awaitAck(ctx context.Context, peer codec.PeerID) SendResult {
	deadline := time.NewTimer(e.cfg.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return SendResult{Status: SendLocalError, Err: ctx.Err()}
		case <-deadline.C:
			return SendResult{Status: SendTimeout}
		case resp := <-e.respQ:
			if resp.From != peer {
				e.log.WithField("peer", shortID(resp.From)).Debug("discarding ack from unexpected peer while awaiting correlated response")
				continue
			}
			if resp.Status != codec.StatusOK {
				return SendResult{Status: SendRejected, Err: fmt.Errorf("lcp: peer rejected request with status %d", resp.Status)}
			}
			return SendResult{Status: SendOK}
		}
	}
}
