package registry

import (
	"net"
	"sync"
	"time"

	"github.com/zeromq/lcp-node/internal/codec"
)

// PendingFile is a file-announce record awaiting its matching TCP
// connection.
type PendingFile struct {
	Sender       codec.PeerID
	ExpectedSize uint64
	Addr         *net.UDPAddr
	Announced    time.Time
}

// PendingFiles tracks file_id -> PendingFile, created on a UDP
// file-announce and consumed by the TCP server once the matching
// connection arrives. Entries older than the expiry bound are
// garbage-collected even if no connection ever shows up, bounding a gap
// an unbounded table would otherwise leave open.
type PendingFiles struct {
	mu      sync.Mutex
	entries map[codec.FileID]PendingFile
}

// NewPendingFiles creates an empty pending-file table.
func NewPendingFiles() *PendingFiles {
	return &PendingFiles{entries: make(map[codec.FileID]PendingFile)}
}

// Put records a new pending file-announce.
func (p *PendingFiles) Put(id codec.FileID, rec PendingFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[id] = rec
}

// Take removes and returns the pending record for id, if any.
func (p *PendingFiles) Take(id codec.FileID) (PendingFile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return rec, ok
}

// EvictExpired removes announces older than ttl and returns their ids.
func (p *PendingFiles) EvictExpired(now time.Time, ttl time.Duration) []codec.FileID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []codec.FileID
	for id, rec := range p.entries {
		if now.Sub(rec.Announced) > ttl {
			expired = append(expired, id)
			delete(p.entries, id)
		}
	}
	return expired
}

// PendingHeader is a receiver-side record correlating a just-accepted
// message header with the body datagram that will follow it.
type PendingHeader struct {
	Sender    codec.PeerID
	Broadcast bool
	Group     string // empty unless this header was a group message
	Created   time.Time
}

// PendingHeaders tracks msg_id -> PendingHeader between a header and
// its body datagram. Entries are consumed on first matching body and
// otherwise garbage-collected after a bounded wait, since the 1-byte
// msg_id namespace is small enough that a stray stale entry could
// mis-correlate an unrelated later flow.
type PendingHeaders struct {
	mu      sync.Mutex
	entries map[byte]PendingHeader
}

// NewPendingHeaders creates an empty pending-header table.
func NewPendingHeaders() *PendingHeaders {
	return &PendingHeaders{entries: make(map[byte]PendingHeader)}
}

// Put records a newly accepted header.
func (p *PendingHeaders) Put(msgID byte, rec PendingHeader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[msgID] = rec
}

// Take removes and returns the pending header for msgID, if any.
func (p *PendingHeaders) Take(msgID byte) (PendingHeader, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.entries[msgID]
	if ok {
		delete(p.entries, msgID)
	}
	return rec, ok
}

// EvictExpired removes headers older than ttl.
func (p *PendingHeaders) EvictExpired(now time.Time, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, rec := range p.entries {
		if now.Sub(rec.Created) > ttl {
			delete(p.entries, id)
		}
	}
}
