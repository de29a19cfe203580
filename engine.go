package lcp

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"github.com/zeromq/lcp-node/internal/beaconutil"
	"github.com/zeromq/lcp-node/internal/codec"
	"github.com/zeromq/lcp-node/internal/fileserver"
	"github.com/zeromq/lcp-node/internal/registry"
)

// Engine is a running LCP node: it owns the shared UDP socket and TCP
// listener, the peer/group registries, the pending-transfer tables, and
// the goroutines that classify and serve incoming traffic. External
// collaborators (a console, a GUI, a persistence layer) hold an *Engine
// and drive it through the Sender API while reading its event/message/
// file-notification streams.
//
// Grounded on gyre's Node (node.go): the same "one struct owns every
// socket and registry, long-lived goroutines feed typed channels"
// shape, adapted from a ZeroMQ ROUTER/DEALER transport and a beacon
// side-channel to one shared UDP socket (demultiplexed by datagram
// length) plus a TCP listener on the same port.
type Engine struct {
	cfg    Config
	selfID codec.PeerID
	log    logrus.FieldLogger

	conn          *net.UDPConn
	pconn         *ipv4.PacketConn
	broadcastAddr *net.UDPAddr
	tcpListener   net.Listener
	fileServer    *fileserver.Server

	peers          *registry.PeerRegistry
	groups         *registry.GroupRegistry
	pendingFiles   *registry.PendingFiles
	pendingHeaders *registry.PendingHeaders

	echoQ        chan frame
	msgQ         chan frame
	fileQ        chan frame
	groupCreateQ chan frame
	groupJoinQ   chan frame
	groupMsgQ    chan frame
	bodyQ        chan frame
	respQ        chan codec.Response

	sendMu sync.Mutex

	events        chan Event
	incoming      chan Message
	incomingFiles chan FileNotification

	msgIDCounter uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New brings up a fully running LCP node: it binds the shared UDP/TCP
// port, resolves a broadcast address, and starts every background
// goroutine (demultiplexer, operation handlers, TCP file server, echo
// emitter, inactivity reaper, pending-record garbage collector).
func New(opts ...Option) (*Engine, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	selfID, err := newPeerID()
	if err != nil {
		return nil, fmt.Errorf("lcp: generating node identity: %w", err)
	}

	log := logrus.WithField("node", fmt.Sprintf("%x", selfID[:4]))

	udpAddr := &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("lcp: binding udp socket: %w", err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("lcp: enabling SO_BROADCAST: %w", err)
	}
	pconn, err := beaconutil.EnableSourceTracking(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("lcp: enabling source tracking: %w", err)
	}

	broadcastAddr, err := resolveBroadcastAddr(cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("lcp: resolving broadcast address: %w", err)
	}

	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("lcp: binding tcp listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:            cfg,
		selfID:         selfID,
		log:            log,
		conn:           conn,
		pconn:          pconn,
		broadcastAddr:  broadcastAddr,
		tcpListener:    ln,
		peers:          registry.NewPeerRegistry(),
		groups:         registry.NewGroupRegistry(),
		pendingFiles:   registry.NewPendingFiles(),
		pendingHeaders: registry.NewPendingHeaders(),
		echoQ:          make(chan frame, queueDepth),
		msgQ:           make(chan frame, queueDepth),
		fileQ:          make(chan frame, queueDepth),
		groupCreateQ:   make(chan frame, queueDepth),
		groupJoinQ:     make(chan frame, queueDepth),
		groupMsgQ:      make(chan frame, queueDepth),
		bodyQ:          make(chan frame, queueDepth*2),
		respQ:          make(chan codec.Response, queueDepth),
		events:         make(chan Event, queueDepth),
		incoming:       make(chan Message, queueDepth),
		incomingFiles:  make(chan FileNotification, 64),
		ctx:            ctx,
		cancel:         cancel,
	}

	e.fileServer = fileserver.New(ln, e.pendingFiles, cfg.ReceiveDir, cfg.fileTimeout(), log, e.onFileResult)

	e.start()

	return e, nil
}

// ID returns this node's PeerID.
func (e *Engine) ID() codec.PeerID {
	return e.selfID
}

// Peers returns a snapshot of every peer currently known.
func (e *Engine) Peers() []registry.PeerInfo {
	return e.peers.List()
}

// Groups returns a snapshot of every group currently known.
func (e *Engine) Groups() []registry.GroupInfo {
	return e.groups.List()
}

// Events returns the stream of liveness/membership notices.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Incoming returns the stream of delivered chat messages.
func (e *Engine) Incoming() <-chan Message {
	return e.incoming
}

// IncomingFiles returns the stream of completed/aborted file transfers.
func (e *Engine) IncomingFiles() <-chan FileNotification {
	return e.incomingFiles
}

// Shutdown stops every background goroutine, aborts in-flight file
// transfers, and releases the UDP/TCP sockets. It blocks until
// everything has stopped.
func (e *Engine) Shutdown() {
	e.cancel()
	e.tcpListener.Close()
	e.conn.Close()
	e.wg.Wait()
	close(e.events)
	close(e.incoming)
	close(e.incomingFiles)
}

func (e *Engine) start() {
	workers := []func(context.Context){
		e.readLoop,
		e.echoWorker,
		e.messageHeaderWorker,
		e.groupMessageHeaderWorker,
		e.bodyWorker,
		e.bodyWorker, // pooled for throughput
		e.fileAnnounceWorker,
		e.groupCreateWorker,
		e.groupJoinWorker,
		e.echoEmitter,
		e.peerReaper,
		e.pendingReaper,
		e.runFileServer,
	}
	for _, w := range workers {
		e.wg.Add(1)
		go func(fn func(context.Context)) {
			defer e.wg.Done()
			defer e.recoverWorker()
			fn(e.ctx)
		}(w)
	}
}

func (e *Engine) recoverWorker() {
	if r := recover(); r != nil {
		e.log.Errorf("recovered panic in worker: %v", r)
	}
}

func (e *Engine) runFileServer(ctx context.Context) {
	e.fileServer.Serve(ctx)
}

func (e *Engine) onFileResult(res fileserver.Result) {
	select {
	case e.incomingFiles <- FileNotification{
		From:    res.Sender,
		FileID:  res.FileID,
		Path:    res.Path,
		Size:    res.Size,
		Success: res.Success,
	}:
	default:
		e.log.Warn("incoming-files queue full, dropping notification")
	}
}

func (e *Engine) nextMsgID() byte {
	return byte(atomic.AddUint32(&e.msgIDCounter, 1) % 256)
}

func newPeerID() (codec.PeerID, error) {
	for {
		var id codec.PeerID
		if _, err := rand.Read(id[:]); err != nil {
			return codec.PeerID{}, err
		}
		if !id.IsBroadcast() {
			return id, nil
		}
	}
}

func resolveBroadcastAddr(cfg Config) (*net.UDPAddr, error) {
	if cfg.BroadcastAddr != "" {
		ip := net.ParseIP(cfg.BroadcastAddr)
		if ip == nil {
			return nil, fmt.Errorf("invalid broadcast address %q", cfg.BroadcastAddr)
		}
		return &net.UDPAddr{IP: ip, Port: cfg.Port}, nil
	}
	ep, err := beaconutil.Resolve(cfg.Interface)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ep.Broadcast, Port: cfg.Port}, nil
}
