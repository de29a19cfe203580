// Package fileserver implements the TCP half of LCP file transfer: a
// single accept loop handing each connection to a worker that reads the
// file_id, resolves it against the pending-announce table, streams the
// declared number of bytes to disk, and acks with a one-byte status.
// Grounded on peer.go's connect/send/disconnect resource lifecycle
// (gyre's DEALER-socket bookkeeping, adapted here to plain net.Conn),
// and on the original chat_lan.py's manejar_conexion_tcp for the exact
// byte-counting receive loop and status-byte convention.
package fileserver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zeromq/lcp-node/internal/codec"
	"github.com/zeromq/lcp-node/internal/registry"
)

// ChunkSize is the read/write granularity for file streaming.
const ChunkSize = 4096

// Result describes the outcome of one received transfer, delivered to
// the engine's incoming-file-notification stream.
type Result struct {
	FileID  codec.FileID
	Sender  codec.PeerID
	Path    string
	Size    int64
	Success bool
}

// Server owns the TCP listener side of file transfer.
type Server struct {
	ln      net.Listener
	pending *registry.PendingFiles
	dir     string
	timeout time.Duration
	log     logrus.FieldLogger
	notify  func(Result)

	mu       sync.Mutex
	inflight map[net.Conn]*os.File
}

// New wraps an already-bound listener. The caller owns binding so that
// the TCP listener and the UDP socket can share one well-known port.
func New(ln net.Listener, pending *registry.PendingFiles, receiveDir string, timeout time.Duration, log logrus.FieldLogger, notify func(Result)) *Server {
	return &Server{
		ln:       ln,
		pending:  pending,
		dir:      receiveDir,
		timeout:  timeout,
		log:      log,
		notify:   notify,
		inflight: make(map[net.Conn]*os.File),
	}
}

// Serve runs the accept loop until ctx is canceled or the listener is
// closed. Closing ln (e.g. via ctx cancellation in the caller) is what
// unblocks Accept — idiomatic Go rather than gyre's self-connect trick.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.ln.Close()
		s.abortAll()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.WithError(err).Warn("tcp accept failed")
				return
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("recovered panic in file connection handler: %v", r)
		}
	}()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(s.timeout))

	var idBuf [codec.FileIDSize]byte
	if _, err := io.ReadFull(conn, idBuf[:]); err != nil {
		return
	}
	var fileID codec.FileID
	copy(fileID[:], idBuf[:])

	rec, ok := s.pending.Take(fileID)
	if !ok {
		s.log.WithField("file_id", hex.EncodeToString(fileID[:])).Debug("no pending announce for file, dropping connection")
		return
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.WithError(err).Error("cannot create receive directory")
		return
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%d.bin", hex.EncodeToString(fileID[:]), time.Now().Unix()))

	f, err := os.Create(path)
	if err != nil {
		s.log.WithError(err).Error("cannot create output file")
		return
	}
	s.track(conn, f)
	defer s.untrack(conn)

	written, err := copyExactly(conn, f, int64(rec.ExpectedSize))
	success := err == nil && written == int64(rec.ExpectedSize)
	f.Close()

	if success {
		conn.Write([]byte{codec.StatusOK})
	} else {
		conn.Write([]byte{codec.StatusErrorInterno})
		os.Remove(path)
	}

	if s.notify != nil {
		s.notify(Result{
			FileID:  fileID,
			Sender:  rec.Sender,
			Path:    path,
			Size:    written,
			Success: success,
		})
	}
}

// copyExactly reads exactly n bytes from src into dst in ChunkSize
// chunks, returning a short-read error on premature EOF.
func copyExactly(src io.Reader, dst io.Writer, n int64) (int64, error) {
	var written int64
	buf := make([]byte, ChunkSize)
	for written < n {
		want := int64(len(buf))
		if remaining := n - written; remaining < want {
			want = remaining
		}
		read, err := src.Read(buf[:want])
		if read > 0 {
			if _, werr := dst.Write(buf[:read]); werr != nil {
				return written, werr
			}
			written += int64(read)
		}
		if err != nil {
			if err == io.EOF && written < n {
				return written, errors.New("fileserver: premature EOF")
			}
			if err != io.EOF {
				return written, err
			}
		}
	}
	return written, nil
}

func (s *Server) track(conn net.Conn, f *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[conn] = f
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, conn)
}

// abortAll closes every in-flight connection on shutdown; each worker's
// own cleanup path removes its partial output file.
func (s *Server) abortAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.inflight {
		conn.Close()
	}
}
