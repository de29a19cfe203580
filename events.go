package lcp

import (
	"github.com/zeromq/lcp-node/internal/codec"
)

// EventType classifies a notice pushed onto an Engine's Events stream.
// Grounded on gyre's event.go EventType enum, generalized to LCP's own
// set of liveness/membership notices.
type EventType int

// Event kinds an external collaborator (console, logger, ...) may see.
const (
	EventPeerDiscovered EventType = iota + 1
	EventPeerEvicted
	EventGroupCreatedLocal
	EventGroupCreatedRemote
	EventGroupJoinedLocal
	EventGroupJoinedRemote
)

// String renders an EventType for logging.
func (e EventType) String() string {
	switch e {
	case EventPeerDiscovered:
		return "PeerDiscovered"
	case EventPeerEvicted:
		return "PeerEvicted"
	case EventGroupCreatedLocal:
		return "GroupCreatedLocal"
	case EventGroupCreatedRemote:
		return "GroupCreatedRemote"
	case EventGroupJoinedLocal:
		return "GroupJoinedLocal"
	case EventGroupJoinedRemote:
		return "GroupJoinedRemote"
	default:
		return "Unknown"
	}
}

// Event is a liveness/membership notice for the external collaborator.
type Event struct {
	Type  EventType
	Peer  codec.PeerID
	Group string
}

// Message is a delivered chat payload, tagged with its provenance.
type Message struct {
	From      codec.PeerID
	Text      string
	Broadcast bool
	Group     string // empty unless this was a group message
}

// FileNotification reports the outcome of a received file transfer.
type FileNotification struct {
	From    codec.PeerID
	FileID  codec.FileID
	Path    string
	Size    int64
	Success bool
}

// SendStatus is the outcome of a Sender API call that awaits an ack.
type SendStatus int

// Possible SendStatus values.
const (
	SendOK SendStatus = iota
	SendTimeout
	SendRejected
	SendPeerUnknown
	SendLocalError
)

// String renders a SendStatus for logging/tests.
func (s SendStatus) String() string {
	switch s {
	case SendOK:
		return "OK"
	case SendTimeout:
		return "Timeout"
	case SendRejected:
		return "Rejected"
	case SendPeerUnknown:
		return "PeerUnknown"
	case SendLocalError:
		return "LocalError"
	default:
		return "Unknown"
	}
}

// SendResult is the full outcome of a send, including the wrapped local
// error when SendStatus is SendLocalError.
type SendResult struct {
	Status SendStatus
	Err    error
}

func (r SendResult) ok() bool { return r.Status == SendOK }
