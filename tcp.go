package rowcache

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/rowcache/internal/shm"
	"github.com/unkn0wn-root/rowcache/internal/wire"
)

const (
	defaultDialTimeout = 3 * time.Second
	defaultIOBufSize   = 64 * 1024
)

// TCPTransportConfig tunes the stock TCP transport.
type TCPTransportConfig struct {
	// Addr is the host:port of the cache service.
	Addr string

	// NumWorkers is the number of sender goroutines. 0 => 2.
	NumWorkers int

	// QueueDepth bounds requests queued for dispatch. 0 => 16.
	QueueDepth int

	// DialTimeout limits connection establishment. 0 => 3s.
	DialTimeout time.Duration

	Logger Logger // nil => NopLogger
}

// TCPTransport speaks the rowcache wire protocol over a single TCP connection.
// Requests are queued to a bounded channel, serialized and written by a pool
// of sender workers, and matched back to their completion by sequence number
// in a single reader loop.
type TCPTransport struct {
	addr        string
	numWorkers  int
	dialTimeout time.Duration
	log         Logger

	mu      sync.Mutex
	started bool
	closed  bool
	conn    net.Conn

	// gate is held read-side across the closed check and the enqueue in
	// Dispatch, and write-side by Close before it signals shutdown. Without
	// it a dispatch could slip its request into the queue after Close already
	// drained it, leaving the request completed never instead of exactly once.
	gate sync.RWMutex

	queue chan Request
	quit  chan struct{}
	grp   *errgroup.Group

	seq atomic.Uint64

	pmu     sync.Mutex
	pending map[uint64]Request

	writeMu sync.Mutex
	writer  *bufio.Writer

	seg atomic.Pointer[shm.Segment]
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport builds a transport; the connection is made in Start.
func NewTCPTransport(cfg TCPTransportConfig) *TCPTransport {
	return &TCPTransport{
		addr:        cfg.Addr,
		numWorkers:  coalesce(cfg.NumWorkers, 2),
		dialTimeout: coalesce(cfg.DialTimeout, defaultDialTimeout),
		log:         coalesce[Logger](cfg.Logger, NopLogger{}),
		queue:       make(chan Request, coalesce(cfg.QueueDepth, 16)),
		quit:        make(chan struct{}),
		pending:     make(map[uint64]Request),
	}
}

func (t *TCPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return nil
	}

	d := net.Dialer{Timeout: t.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("rowcache: dial %s: %w", t.addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
	}
	t.conn = conn
	t.writer = bufio.NewWriterSize(conn, defaultIOBufSize)

	t.grp = &errgroup.Group{}
	reader := bufio.NewReaderSize(conn, defaultIOBufSize)
	t.grp.Go(func() error { return t.readLoop(reader) })
	for i := 0; i < t.numWorkers; i++ {
		t.grp.Go(t.sendLoop)
	}

	t.started = true
	t.log.Debug("transport started", Fields{"addr": t.addr, "workers": t.numWorkers})
	return nil
}

func (t *TCPTransport) Dispatch(rq Request) error {
	t.gate.RLock()
	defer t.gate.RUnlock()

	t.mu.Lock()
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	if !started {
		return ErrNotStarted
	}

	select {
	case t.queue <- rq:
		return nil
	case <-t.quit:
		return ErrTransportClosed
	}
}

func (t *TCPTransport) sendLoop() error {
	for {
		select {
		case rq := <-t.queue:
			t.send(rq)
		case <-t.quit:
			return nil
		}
	}
}

func (t *TCPTransport) send(rq Request) {
	body, err := rq.Serialize()
	if err != nil {
		rq.Fail(err)
		return
	}

	seq := t.seq.Add(1)
	t.pmu.Lock()
	t.pending[seq] = rq
	t.pmu.Unlock()

	f := wire.Frame{Verb: rq.Verb(), Seq: seq, Conn: rq.ConnectionID(), Body: body}

	t.writeMu.Lock()
	err = wire.WriteFrame(t.writer, f)
	if err == nil {
		err = t.writer.Flush()
	}
	t.writeMu.Unlock()

	if err != nil {
		t.pmu.Lock()
		delete(t.pending, seq)
		t.pmu.Unlock()
		rq.Fail(fmt.Errorf("rowcache: send %s: %w", rq.Verb(), err))
	}
}

func (t *TCPTransport) readLoop(r *bufio.Reader) error {
	for {
		f, err := wire.ReadFrame(r)
		if err != nil {
			t.failPending(err)
			return nil
		}
		t.pmu.Lock()
		rq, ok := t.pending[f.Seq]
		delete(t.pending, f.Seq)
		t.pmu.Unlock()
		if !ok {
			t.log.Warn("response for unknown sequence", Fields{"seq": f.Seq, "verb": f.Verb.String()})
			continue
		}
		rq.Complete(f.Code, f.Body)
	}
}

// failPending completes every in-flight request with err (or
// ErrTransportClosed during an orderly shutdown).
func (t *TCPTransport) failPending(err error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed || err == nil {
		err = ErrTransportClosed
	}

	t.pmu.Lock()
	pending := t.pending
	t.pending = make(map[uint64]Request)
	t.pmu.Unlock()

	for _, rq := range pending {
		rq.Fail(err)
	}
}

func (t *TCPTransport) AttachSharedMemory(port int32) (bool, error) {
	seg, err := shm.Attach(shm.SegmentPath(port))
	if err != nil {
		return false, err
	}
	t.seg.Store(seg)
	return true, nil
}

func (t *TCPTransport) SharedBlock(off, n int64) ([]byte, error) {
	seg := t.seg.Load()
	if seg == nil {
		return nil, fmt.Errorf("rowcache: shared memory not attached")
	}
	return seg.Block(off, n)
}

func (t *TCPTransport) WriteSharedBlock(off int64, b []byte) error {
	seg := t.seg.Load()
	if seg == nil {
		return fmt.Errorf("rowcache: shared memory not attached")
	}
	return seg.WriteBlock(off, b)
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	conn := t.conn
	t.mu.Unlock()

	// Closing the connection first keeps the sender workers draining the
	// queue (failing each request fast) while the gate is acquired, so a
	// dispatch blocked on a full queue cannot hold the read side forever.
	var err error
	if conn != nil {
		err = conn.Close()
	}

	// Wait out dispatches already past their closed check; once the write
	// side is held, every later Dispatch observes closed and nothing can be
	// enqueued after the drain below.
	t.gate.Lock()
	close(t.quit)
	t.gate.Unlock()
	if started {
		_ = t.grp.Wait()
	}

	// Requests queued but never sent, then anything still pending.
	for {
		select {
		case rq := <-t.queue:
			rq.Fail(ErrTransportClosed)
			continue
		default:
		}
		break
	}
	t.failPending(ErrTransportClosed)

	if seg := t.seg.Swap(nil); seg != nil {
		_ = seg.Close()
	}
	return err
}
