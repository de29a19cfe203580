// Package codec encodes and decodes the fixed-layout LCP wire frames:
// the 100-byte operation header, the 25-byte standard response, the
// variable-length message body, and the file-announce payload packed
// into a header's trailer area. All frames are big-endian and framing
// is pure (no I/O); short or malformed frames are rejected with
// ErrMalformed rather than panicking.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Operation codes (offset 40 of a header frame).
const (
	OpEcho          byte = 0
	OpMessage       byte = 1
	OpFile          byte = 2
	OpGroupCreate   byte = 3
	OpGroupJoin     byte = 4
	OpGroupMessage  byte = 5
)

// Response status codes (offset 0 of a 25-byte response frame).
const (
	StatusOK                byte = 0
	StatusPeticionInvalida   byte = 1
	StatusErrorInterno       byte = 2
)

const (
	// HeaderSize is the fixed size of an LCP operation header.
	HeaderSize = 100
	// ResponseSize is the fixed size of an LCP standard response.
	ResponseSize = 25
	// PeerIDSize is the width of a PeerId field.
	PeerIDSize = 20
	// FileIDSize is the width of a FileId field.
	FileIDSize = 8
	// TrailerSize is the width of the header's 50-byte trailer.
	TrailerSize = 50
	// GroupNameHeaderSize is the max group-name length allowed in the
	// create/join frame layout (offset 41, 59 bytes).
	GroupNameHeaderSize = 59
	// GroupNameTrailerSize is the max group-name length allowed in the
	// group-message frame's 50-byte trailer.
	GroupNameTrailerSize = TrailerSize
	// MaxPayload is the largest body payload a sender may produce.
	MaxPayload = 1024
)

// ErrMalformed is returned for any frame too short, too long, or
// carrying an unrecognized field. Callers drop the frame silently.
var ErrMalformed = errors.New("codec: malformed frame")

// PeerID identifies a node. The all-ones value is the BROADCAST sentinel.
type PeerID [PeerIDSize]byte

// Broadcast is the reserved PeerID meaning "all peers".
var Broadcast = func() PeerID {
	var id PeerID
	for i := range id {
		id[i] = 0xFF
	}
	return id
}()

// IsBroadcast reports whether id is the BROADCAST sentinel.
func (id PeerID) IsBroadcast() bool {
	return id == Broadcast
}

// FileID is an 8-byte opaque identifier chosen by a file sender.
type FileID [FileIDSize]byte

// Header is the decoded form of the 100-byte LCP operation header.
type Header struct {
	From    PeerID
	To      PeerID
	Op      byte
	SubID   byte   // msg_id for ops 0/1/5, first file_id byte for op 2
	Length  uint64 // payload length in bytes; for op 2 these bytes are part of file_id/size, read via DecodeFileAnnounce
	Trailer [TrailerSize]byte
}

// EncodeHeader serializes h into a HeaderSize-byte frame.
func EncodeHeader(h Header) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	buf.Write(h.From[:])
	buf.Write(h.To[:])
	buf.WriteByte(h.Op)
	buf.WriteByte(h.SubID)
	binary.Write(buf, binary.BigEndian, h.Length)
	buf.Write(h.Trailer[:])
	return buf.Bytes()
}

// DecodeHeader parses the first HeaderSize bytes of data into a Header.
// Frames shorter than HeaderSize are rejected.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrMalformed
	}
	var h Header
	copy(h.From[:], data[0:20])
	copy(h.To[:], data[20:40])
	h.Op = data[40]
	h.SubID = data[41]
	h.Length = binary.BigEndian.Uint64(data[42:50])
	copy(h.Trailer[:], data[50:100])
	return h, nil
}

// EncodeGroupHeader builds a header for ops 3/4 (create/join), where the
// group name occupies up to GroupNameHeaderSize bytes starting at offset
// 41, zero-padded to fill the rest of the frame.
func EncodeGroupHeader(from PeerID, op byte, name string) ([]byte, error) {
	nameBytes := []byte(name)
	if len(nameBytes) > GroupNameHeaderSize {
		return nil, ErrMalformed
	}
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	buf.Write(from[:])
	buf.Write(Broadcast[:])
	buf.WriteByte(op)
	padded := make([]byte, GroupNameHeaderSize)
	copy(padded, nameBytes)
	buf.Write(padded)
	return buf.Bytes(), nil
}

// DecodeGroupName extracts a zero-padded, trimmed UTF-8 group name from
// the 59-byte create/join payload area (header bytes 41 onward).
func DecodeGroupName(data []byte) (string, error) {
	if len(data) < HeaderSize {
		return "", ErrMalformed
	}
	raw := bytes.TrimRight(data[41:100], "\x00")
	return normalizeGroupName(raw)
}

// EncodeGroupMessageHeader builds a header for op 5 (group message),
// where the group name occupies the 50-byte trailer.
func EncodeGroupMessageHeader(from PeerID, msgID byte, length uint64, group string) ([]byte, error) {
	nameBytes := []byte(group)
	if len(nameBytes) > GroupNameTrailerSize {
		return nil, ErrMalformed
	}
	var trailer [TrailerSize]byte
	copy(trailer[:], nameBytes)
	return EncodeHeader(Header{
		From:    from,
		To:      Broadcast,
		Op:      OpGroupMessage,
		SubID:   msgID,
		Length:  length,
		Trailer: trailer,
	}), nil
}

// DecodeGroupMessageName extracts the group name from a decoded
// group-message header's trailer.
func DecodeGroupMessageName(h Header) (string, error) {
	raw := bytes.TrimRight(h.Trailer[:], "\x00")
	return normalizeGroupName(raw)
}

func normalizeGroupName(raw []byte) (string, error) {
	name := string(bytes.TrimSpace(raw))
	if name == "" {
		return "", ErrMalformed
	}
	return name, nil
}

// Response is the decoded form of the 25-byte standard response.
type Response struct {
	Status byte
	From   PeerID
}

// EncodeResponse serializes a standard response frame.
func EncodeResponse(status byte, from PeerID) []byte {
	buf := make([]byte, 0, ResponseSize)
	buf = append(buf, status)
	buf = append(buf, from[:]...)
	buf = append(buf, make([]byte, 4)...)
	return buf
}

// DecodeResponse parses a ResponseSize-byte frame.
func DecodeResponse(data []byte) (Response, error) {
	if len(data) != ResponseSize {
		return Response{}, ErrMalformed
	}
	var r Response
	r.Status = data[0]
	copy(r.From[:], data[1:21])
	return r, nil
}

// EncodeBody serializes a message body: 1-byte msg_id followed by the
// UTF-8 payload. Rejects payloads over MaxPayload bytes.
func EncodeBody(msgID byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrMalformed
	}
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, msgID)
	buf = append(buf, payload...)
	return buf, nil
}

// DecodeBody splits a body datagram into its msg_id and payload.
func DecodeBody(data []byte) (msgID byte, payload []byte, err error) {
	if len(data) < 1 {
		return 0, nil, ErrMalformed
	}
	return data[0], data[1:], nil
}

// EncodeFileAnnounce builds the header for an op-2 file announce. The
// 8-byte file_id and 8-byte expected_size are packed starting at offset
// 41, overlapping what a message header calls sub_id+length. Encoded
// directly here rather than through Header/EncodeHeader since the field
// shapes diverge from the generic header after offset 40.
func EncodeFileAnnounce(from, to PeerID, fileID FileID, size uint64) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	buf.Write(from[:])
	buf.Write(to[:])
	buf.WriteByte(OpFile)
	buf.Write(fileID[:])
	binary.Write(buf, binary.BigEndian, size)
	buf.Write(make([]byte, HeaderSize-41-FileIDSize-8))
	return buf.Bytes()
}

// FileAnnounce is the decoded form of an op-2 header.
type FileAnnounce struct {
	From         PeerID
	To           PeerID
	FileID       FileID
	ExpectedSize uint64
}

// DecodeFileAnnounce parses an op-2 header frame.
func DecodeFileAnnounce(data []byte) (FileAnnounce, error) {
	if len(data) < HeaderSize {
		return FileAnnounce{}, ErrMalformed
	}
	if data[40] != OpFile {
		return FileAnnounce{}, ErrMalformed
	}
	var fa FileAnnounce
	copy(fa.From[:], data[0:20])
	copy(fa.To[:], data[20:40])
	copy(fa.FileID[:], data[41:49])
	fa.ExpectedSize = binary.BigEndian.Uint64(data[49:57])
	return fa, nil
}

// FrameClass identifies how the demultiplexer should route a raw
// datagram, based purely on its length.
type FrameClass int

const (
	// ClassUnknown is returned for empty or otherwise unroutable datagrams.
	ClassUnknown FrameClass = iota
	// ClassResponse is a 25-byte standard response.
	ClassResponse
	// ClassHeader is a >=41-byte operation header.
	ClassHeader
	// ClassBody is any other non-empty datagram (a message body).
	ClassBody
)

// Classify implements the demultiplexer's length-based dispatch.
func Classify(n int) FrameClass {
	switch {
	case n == ResponseSize:
		return ClassResponse
	case n >= 41:
		return ClassHeader
	case n > 0:
		return ClassBody
	default:
		return ClassUnknown
	}
}
