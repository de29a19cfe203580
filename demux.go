package lcp

import (
	"context"
	"net"
	"time"

	"github.com/zeromq/lcp-node/internal/codec"
)

// maxDatagram is the largest UDP payload this node will ever receive
// the theoretical max UDP payload.
const maxDatagram = 65507

// readDeadline bounds each blocking read so the loop can observe ctx
// cancellation promptly.
const readDeadline = time.Second

// readLoop is the single reader of the UDP socket's receive side. It
// classifies each datagram purely by length and routes it to the
// appropriate typed queue, doing no protocol work itself. Grounded on
// node.go's inboxHandler/handler split (a dedicated reader goroutine
// feeding a buffered channel that a second goroutine fans out from),
// collapsed into one loop since LCP's classification is a pure function
// of datagram length rather than a ZRE frame type.
func (e *Engine) readLoop(ctx context.Context) {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, cm, src, err := e.pconn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			e.log.WithError(err).Debug("udp read failed")
			continue
		}

		addr, ok := src.(*net.UDPAddr)
		if !ok {
			if cm == nil {
				continue
			}
			addr = &net.UDPAddr{IP: cm.Src, Port: e.cfg.Port}
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		e.dispatch(data, addr)
	}
}

// dispatch implements the length-based classification table: a
// 25-byte frame is a response, anything 41 bytes or longer is an
// operation header, anything else non-empty is a message body.
func (e *Engine) dispatch(data []byte, addr *net.UDPAddr) {
	switch codec.Classify(len(data)) {
	case codec.ClassResponse:
		resp, err := codec.DecodeResponse(data)
		if err != nil {
			return
		}
		select {
		case e.respQ <- resp:
		default:
			e.log.Warn("response queue full, dropping ack")
		}

	case codec.ClassHeader:
		op := data[40]
		var q chan frame
		switch op {
		case codec.OpEcho:
			q = e.echoQ
		case codec.OpMessage:
			q = e.msgQ
		case codec.OpFile:
			q = e.fileQ
		case codec.OpGroupCreate:
			q = e.groupCreateQ
		case codec.OpGroupJoin:
			q = e.groupJoinQ
		case codec.OpGroupMessage:
			q = e.groupMsgQ
		default:
			e.log.WithField("op", op).Debug("unknown operation, dropping frame")
			return
		}
		if !enqueue(q, data, addr) {
			e.log.WithField("op", op).Warn("operation queue full, dropping frame")
		}

	case codec.ClassBody:
		if !enqueue(e.bodyQ, data, addr) {
			e.log.Warn("body queue full, dropping frame")
		}

	default:
		// Empty datagram; nothing to do.
	}
}
