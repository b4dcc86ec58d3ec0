package fabric

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/daemon"
	"github.com/sv2d/sv2d/internal/miningtypes"
	"github.com/sv2d/sv2d/internal/protocol/detect"
)

// acceptRetryBaseDelay and acceptRetryMaxDelay bound the backoff applied
// between Accept retries on a transient error (e.g. EMFILE), doubling
// from base to max rather than busy-looping, the way net/http's server
// backs off its own accept loop.
const (
	acceptRetryBaseDelay = 5 * time.Millisecond
	acceptRetryMaxDelay  = 1 * time.Second
)

// Acceptor runs the single accept loop spec.md §4.4 describes: accept a
// TCP connection, spawn its Reader and Writer, and register the
// resulting Session, generalising the teacher's StratumServer.Start
// (net.Listen+Accept in a select against ctx.Done()) to hybrid v1/v2
// detection and a pluggable Handler.
type Acceptor struct {
	registry    *Registry
	reader      *Reader
	handler     Handler
	queueSize   int
	wg          sync.WaitGroup
	listener    net.Listener
	listenerMu  sync.Mutex
}

// NewAcceptor builds an Acceptor serving handler's connections into
// registry. queueSize <= 0 uses DefaultOutboundQueueSize.
func NewAcceptor(registry *Registry, handler Handler, queueSize int) *Acceptor {
	return &Acceptor{
		registry:  registry,
		reader:    NewReader(detect.NewDetector(), 0, 0),
		handler:   handler,
		queueSize: queueSize,
	}
}

// Serve listens on address and accepts connections until ctx is
// cancelled. It returns once the listener is closed and every spawned
// connection goroutine has exited.
func (a *Acceptor) Serve(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return daemon.WrapError(daemon.ErrKindConnection, "listen "+address, err)
	}
	a.listenerMu.Lock()
	a.listener = ln
	a.listenerMu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var retryDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			retryDelay = nextAcceptRetryDelay(retryDelay)
			time.Sleep(retryDelay)
			continue
		}
		retryDelay = 0
		a.wg.Add(1)
		go a.handleConn(ctx, conn)
	}
	a.wg.Wait()
	return nil
}

// nextAcceptRetryDelay doubles prev (starting from acceptRetryBaseDelay),
// capped at acceptRetryMaxDelay, the backoff Serve applies between
// Accept retries on a transient error.
func nextAcceptRetryDelay(prev time.Duration) time.Duration {
	next := prev * 2
	if prev == 0 {
		next = acceptRetryBaseDelay
	}
	if next > acceptRetryMaxDelay {
		next = acceptRetryMaxDelay
	}
	return next
}

// Addr returns the listener's bound address, or "" before Serve starts
// listening.
func (a *Acceptor) Addr() string {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

func (a *Acceptor) handleConn(ctx context.Context, netConn net.Conn) {
	defer a.wg.Done()
	defer netConn.Close()

	domainConn := miningtypes.NewConnection(netConn.RemoteAddr().String())
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := NewWriter(netConn, a.queueSize)
	sess := NewSession(domainConn, netConn, writer, cancel, a.handler)

	if err := a.registry.Insert(sess); err != nil {
		// At capacity: refuse without running a reader/writer for this
		// peer (spec.md §8 max_connections admission boundary).
		return
	}
	defer a.registry.Remove(domainConn.ID)

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		writer.Run(sessCtx.Done())
	}()
	defer func() {
		writer.Close()
		writerWg.Wait()
	}()

	a.reader.Run(sess, sessCtx.Done())
}
