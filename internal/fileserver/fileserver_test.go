package fileserver

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeromq/lcp-node/internal/codec"
	"github.com/zeromq/lcp-node/internal/registry"
)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestServerReceivesCompleteFile(t *testing.T) {
	dir := t.TempDir()
	pending := registry.NewPendingFiles()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	results := make(chan Result, 1)
	srv := New(ln, pending, dir, 5*time.Second, discardLogger(), func(r Result) {
		results <- r
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	var fileID codec.FileID
	copy(fileID[:], "12345678")
	payload := make([]byte, 10*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	pending.Put(fileID, registry.PendingFile{
		ExpectedSize: uint64(len(payload)),
		Announced:    time.Now(),
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(fileID[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)

	status := make([]byte, 1)
	_, err = conn.Read(status)
	require.NoError(t, err)
	assert.Equal(t, codec.StatusOK, status[0])

	select {
	case res := <-results:
		assert.True(t, res.Success)
		assert.Equal(t, int64(len(payload)), res.Size)
		got, err := os.ReadFile(res.Path)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result notification")
	}
}

func TestServerRejectsUnknownFileID(t *testing.T) {
	dir := t.TempDir()
	pending := registry.NewPendingFiles()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(ln, pending, dir, 5*time.Second, discardLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var unknown codec.FileID
	copy(unknown[:], "deadbeef")
	conn.Write(unknown[:])

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "connection should be closed without an ack")
}

func TestServerLeavesNoResidueOnAbortedTransfer(t *testing.T) {
	dir := t.TempDir()
	pending := registry.NewPendingFiles()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	results := make(chan Result, 1)
	srv := New(ln, pending, dir, 5*time.Second, discardLogger(), func(r Result) {
		results <- r
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	var fileID codec.FileID
	copy(fileID[:], "abortme1")
	pending.Put(fileID, registry.PendingFile{ExpectedSize: 1 << 20, Announced: time.Now()})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Write(fileID[:])
	conn.Write(make([]byte, 100)) // far short of the announced size
	conn.Close()                 // abrupt disconnect

	select {
	case res := <-results:
		assert.False(t, res.Success)
		_, statErr := os.Stat(res.Path)
		assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result notification")
	}
}
