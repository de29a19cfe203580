package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePeerID(fill byte) PeerID {
	var id PeerID
	for i := range id {
		id[i] = fill
	}
	return id
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		From:  samplePeerID(0x01),
		To:    Broadcast,
		Op:    OpMessage,
		SubID: 42,
		Length: 4,
	}
	copy(h.Trailer[:], "ignored")

	encoded := EncodeHeader(h)
	require.Len(t, encoded, HeaderSize)

	decoded, err := DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestDecodeHeaderRejectsShortFrames(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIsBroadcastRecognizesOnlySentinel(t *testing.T) {
	assert.True(t, Broadcast.IsBroadcast())
	assert.False(t, samplePeerID(0x01).IsBroadcast())
}

func TestResponseRoundTrip(t *testing.T) {
	from := samplePeerID(0xAB)
	encoded := EncodeResponse(StatusOK, from)
	require.Len(t, encoded, ResponseSize)

	resp, err := DecodeResponse(encoded)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, from, resp.From)
}

func TestDecodeResponseRejectsWrongSize(t *testing.T) {
	_, err := DecodeResponse(make([]byte, ResponseSize+1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBodyRoundTrip(t *testing.T) {
	encoded, err := EncodeBody(7, []byte("hola"))
	require.NoError(t, err)

	msgID, payload, err := DecodeBody(encoded)
	require.NoError(t, err)
	assert.Equal(t, byte(7), msgID)
	assert.Equal(t, []byte("hola"), payload)
}

func TestEncodeBodyRejectsOversizedPayload(t *testing.T) {
	_, err := EncodeBody(1, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestGroupHeaderRoundTrip(t *testing.T) {
	from := samplePeerID(0x02)
	encoded, err := EncodeGroupHeader(from, OpGroupCreate, "  dev  ")
	require.NoError(t, err)
	require.Len(t, encoded, HeaderSize)

	name, err := DecodeGroupName(encoded)
	require.NoError(t, err)
	assert.Equal(t, "dev", name)
}

func TestGroupHeaderRejectsOverlongName(t *testing.T) {
	from := samplePeerID(0x02)
	longName := make([]byte, GroupNameHeaderSize+1)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err := EncodeGroupHeader(from, OpGroupCreate, string(longName))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestGroupMessageHeaderRoundTrip(t *testing.T) {
	from := samplePeerID(0x03)
	encoded, err := EncodeGroupMessageHeader(from, 9, 5, "dev")
	require.NoError(t, err)

	h, err := DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, OpGroupMessage, h.Op)
	assert.True(t, h.To.IsBroadcast())

	name, err := DecodeGroupMessageName(h)
	require.NoError(t, err)
	assert.Equal(t, "dev", name)
}

func TestFileAnnounceRoundTrip(t *testing.T) {
	from := samplePeerID(0x04)
	to := samplePeerID(0x05)
	var fileID FileID
	copy(fileID[:], "abcdefgh")

	encoded := EncodeFileAnnounce(from, to, fileID, 10240)
	require.Len(t, encoded, HeaderSize)

	fa, err := DecodeFileAnnounce(encoded)
	require.NoError(t, err)
	assert.Equal(t, from, fa.From)
	assert.Equal(t, to, fa.To)
	assert.Equal(t, fileID, fa.FileID)
	assert.Equal(t, uint64(10240), fa.ExpectedSize)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassResponse, Classify(ResponseSize))
	assert.Equal(t, ClassHeader, Classify(HeaderSize))
	assert.Equal(t, ClassHeader, Classify(41))
	assert.Equal(t, ClassBody, Classify(5))
	assert.Equal(t, ClassUnknown, Classify(0))
}
