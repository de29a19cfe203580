package lcp

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/zeromq/lcp-node/internal/codec"
	"github.com/zeromq/lcp-node/internal/registry"
)

// echoWorker drains the echo (op-0) queue: discovery pings and their
// solicited acks. Grounded on node.go's HELLO case in recvFromPeer,
// generalized from a ZRE handshake-with-mailbox-connect to a stateless
// observe-and-maybe-ack.
func (e *Engine) echoWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.echoQ:
			e.handleEcho(f)
		}
	}
}

func (e *Engine) handleEcho(f frame) {
	h, err := codec.DecodeHeader(f.data)
	if err != nil {
		return
	}
	if h.From == e.selfID {
		return
	}

	firstSight := e.peers.Observe(h.From, f.addr)
	if firstSight {
		e.log.WithField("peer", shortID(h.From)).Info("peer discovered")
		e.emitEvent(Event{Type: EventPeerDiscovered, Peer: h.From})
	}

	if h.To.IsBroadcast() {
		resp := codec.EncodeResponse(codec.StatusOK, e.selfID)
		e.conn.WriteToUDP(resp, f.addr)
	}
}

// echoEmitter periodically broadcasts this node's presence.
func (e *Engine) echoEmitter(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.EchoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sendEcho()
		}
	}
}

func (e *Engine) sendEcho() {
	header := codec.EncodeHeader(codec.Header{
		From: e.selfID,
		To:   codec.Broadcast,
		Op:   codec.OpEcho,
	})
	if _, err := e.conn.WriteToUDP(header, e.broadcastAddr); err != nil {
		e.log.WithError(err).Debug("failed to send discovery echo")
	}
}

// peerReaper evicts peers that have gone quiet for longer than 3*Timeout
// emitting a notice per evicted peer.
func (e *Engine) peerReaper(ctx context.Context) {
	interval := e.cfg.inactivityThreshold()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := e.peers.EvictInactive(time.Now(), interval)
			for _, p := range evicted {
				e.log.WithField("peer", shortID(p.ID)).Info("peer evicted for inactivity")
				e.emitEvent(Event{Type: EventPeerEvicted, Peer: p.ID})
			}
		}
	}
}

// pendingReaper garbage-collects pending-file and pending-header
// records that never completed, bounding the "nothing expires" gap the
// the older reference implementation left open.
func (e *Engine) pendingReaper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Timeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			expired := e.pendingFiles.EvictExpired(now, e.cfg.fileTimeout())
			for _, id := range expired {
				e.log.WithField("file_id", shortFileID(id)).Debug("pending file announce expired unclaimed")
			}
			e.pendingHeaders.EvictExpired(now, e.cfg.Timeout)
		}
	}
}

// messageHeaderWorker drains the message (op-1) queue: the receiver
// side of the two-phase header/body handshake for direct and broadcast
// messages. Grounded on node.go's Whisper case, generalized from a
// single-frame ZRE WHISPER to LCP's header-then-body split.
func (e *Engine) messageHeaderWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.msgQ:
			e.handleMessageHeader(f)
		}
	}
}

func (e *Engine) handleMessageHeader(f frame) {
	h, err := codec.DecodeHeader(f.data)
	if err != nil {
		return
	}
	if h.From == e.selfID {
		return
	}
	broadcast := h.To.IsBroadcast()
	if !broadcast && h.To != e.selfID {
		return
	}

	e.pendingHeaders.Put(h.SubID, registry.PendingHeader{
		Sender:    h.From,
		Broadcast: broadcast,
		Created:   time.Now(),
	})

	if !broadcast {
		resp := codec.EncodeResponse(codec.StatusOK, e.selfID)
		e.conn.WriteToUDP(resp, f.addr)
	}
}

// groupMessageHeaderWorker drains the group-message (op-5) queue.
// Grounded on node.go's Join/Leave membership-gated cases, generalized
// to gate message acceptance on local group membership.
func (e *Engine) groupMessageHeaderWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.groupMsgQ:
			e.handleGroupMessageHeader(f)
		}
	}
}

func (e *Engine) handleGroupMessageHeader(f frame) {
	h, err := codec.DecodeHeader(f.data)
	if err != nil {
		return
	}
	if h.From == e.selfID {
		return
	}
	name, err := codec.DecodeGroupMessageName(h)
	if err != nil {
		return
	}
	if !e.groups.IsMember(name, e.selfID) {
		return
	}

	e.pendingHeaders.Put(h.SubID, registry.PendingHeader{
		Sender:    h.From,
		Broadcast: false,
		Group:     name,
		Created:   time.Now(),
	})

	resp := codec.EncodeResponse(codec.StatusOK, e.selfID)
	e.conn.WriteToUDP(resp, f.addr)
}

// bodyWorker drains the shared body queue, matching each body datagram
// to a pending header by msg_id and delivering validated payloads to
// the incoming-message stream. Pooled (see Engine.start) since message
// throughput is dominated by body delivery, so more than one instance
// may run concurrently.
func (e *Engine) bodyWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.bodyQ:
			e.handleBody(f)
		}
	}
}

func (e *Engine) handleBody(f frame) {
	msgID, payload, err := codec.DecodeBody(f.data)
	if err != nil {
		return
	}
	if !validPayload(payload) {
		return
	}

	pending, ok := e.pendingHeaders.Take(msgID)
	if !ok {
		return
	}

	text := string(payload)
	e.deliver(Message{
		From:      pending.Sender,
		Text:      text,
		Broadcast: pending.Broadcast,
		Group:     pending.Group,
	})

	if !pending.Broadcast && pending.Group == "" {
		resp := codec.EncodeResponse(codec.StatusOK, e.selfID)
		e.conn.WriteToUDP(resp, f.addr)
	}
}

// validPayload enforces the UTF-8 and printability rules on a message
// body: non-UTF-8 or control-character-only payloads are dropped.
func validPayload(payload []byte) bool {
	if len(payload) == 0 || len(payload) > codec.MaxPayload {
		return false
	}
	if !utf8.Valid(payload) {
		return false
	}
	for _, r := range string(payload) {
		if r == '\n' || r >= 0x20 {
			return true
		}
	}
	return false
}

func (e *Engine) deliver(m Message) {
	select {
	case e.incoming <- m:
	default:
		e.log.Warn("incoming-message queue full, dropping delivered message")
	}
}

// fileAnnounceWorker drains the file-announce (op-2) queue, recording a
// pending-file entry the TCP server will later resolve. Grounded on
// the original chat_lan.py's procesar_transferencias.
func (e *Engine) fileAnnounceWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.fileQ:
			e.handleFileAnnounce(f)
		}
	}
}

func (e *Engine) handleFileAnnounce(f frame) {
	fa, err := codec.DecodeFileAnnounce(f.data)
	if err != nil {
		return
	}
	if fa.From == e.selfID {
		return
	}
	if !fa.To.IsBroadcast() && fa.To != e.selfID {
		return
	}

	e.pendingFiles.Put(fa.FileID, registry.PendingFile{
		Sender:       fa.From,
		ExpectedSize: fa.ExpectedSize,
		Addr:         f.addr,
		Announced:    time.Now(),
	})
	e.log.WithField("peer", shortID(fa.From)).Debugf("file announce received, expecting %d bytes", fa.ExpectedSize)
}

// groupCreateWorker drains the group-create (op-3) queue.
func (e *Engine) groupCreateWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.groupCreateQ:
			e.handleGroupCreate(f)
		}
	}
}

func (e *Engine) handleGroupCreate(f frame) {
	h, err := codec.DecodeHeader(f.data)
	if err != nil {
		return
	}
	if h.From == e.selfID {
		return
	}
	name, err := codec.DecodeGroupName(f.data)
	if err != nil {
		return
	}

	if e.groups.Create(name, h.From) {
		e.log.WithField("group", name).Info("group created by remote peer")
		e.emitEvent(Event{Type: EventGroupCreatedRemote, Peer: h.From, Group: name})
	}
}

// groupJoinWorker drains the group-join (op-4) queue.
func (e *Engine) groupJoinWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.groupJoinQ:
			e.handleGroupJoin(f)
		}
	}
}

func (e *Engine) handleGroupJoin(f frame) {
	h, err := codec.DecodeHeader(f.data)
	if err != nil {
		return
	}
	if h.From == e.selfID {
		return
	}
	name, err := codec.DecodeGroupName(f.data)
	if err != nil {
		return
	}

	joined, exists := e.groups.Join(name, h.From)
	if !exists {
		e.log.WithField("group", name).Debug("join rejected: group unknown locally")
		return
	}
	if joined {
		e.log.WithFields(map[string]interface{}{"group": name, "peer": shortID(h.From)}).Info("peer joined group")
		e.emitEvent(Event{Type: EventGroupJoinedRemote, Peer: h.From, Group: name})
	}
}

func (e *Engine) emitEvent(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("event queue full, dropping notice")
	}
}

func shortID(id codec.PeerID) string {
	return hexPrefix(id[:], 4)
}

func shortFileID(id codec.FileID) string {
	return hexPrefix(id[:], 8)
}

func hexPrefix(b []byte, n int) string {
	if n > len(b) {
		n = len(b)
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, n*2)
	for _, c := range b[:n] {
		out = append(out, hexDigits[c>>4], hexDigits[c&0x0F])
	}
	return string(out)
}
