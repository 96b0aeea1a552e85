package rowcache

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/rowcache/internal/wire"
)

// startFakeServer listens on loopback and serves a single connection, passing
// every decoded frame to handle along with the response writer.
func startFakeServer(t *testing.T, handle func(f wire.Frame, w io.Writer) error) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var wmu sync.Mutex
		for {
			f, err := wire.ReadFrame(conn)
			if err != nil {
				return
			}
			wmu.Lock()
			err = handle(f, conn)
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func echoStatServer(t *testing.T) string {
	t.Helper()
	return startFakeServer(t, func(f wire.Frame, w io.Writer) error {
		body, err := wire.Marshal(&wire.StatReply{MaxRowID: int64(f.Conn), State: uint8(StateFetch)})
		if err != nil {
			return err
		}
		return wire.WriteFrame(w, wire.Frame{Verb: f.Verb, Code: wire.CodeOK, Seq: f.Seq, Conn: f.Conn, Body: body})
	})
}

func TestTCPTransportRoundTrip(t *testing.T) {
	ctx := context.Background()
	addr := echoStatServer(t)
	tr := NewTCPTransport(TCPTransportConfig{Addr: addr})
	defer tr.Close()

	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Start is idempotent on a live transport.
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	rq := newGetStatRequest(42)
	if err := tr.Dispatch(rq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := rq.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if stat := rq.Stat(); stat.MaxRowID != 42 || stat.State != StateFetch {
		t.Fatalf("stat = %+v", stat)
	}
}

// TestTCPTransportOutOfOrderReplies holds the first request's reply until a
// second arrived and answers them in reverse; sequence matching must still
// route each reply to its own request.
func TestTCPTransportOutOfOrderReplies(t *testing.T) {
	ctx := context.Background()
	var held *wire.Frame
	addr := startFakeServer(t, func(f wire.Frame, w io.Writer) error {
		var ab wire.AllocBlockBody
		if err := wire.Unmarshal(f.Body, &ab); err != nil {
			return err
		}
		body, err := wire.Marshal(&wire.AllocBlockReply{Offset: ab.Size * 2})
		if err != nil {
			return err
		}
		reply := wire.Frame{Verb: f.Verb, Code: wire.CodeOK, Seq: f.Seq, Conn: f.Conn, Body: body}
		if held == nil {
			held = &reply
			return nil
		}
		if err := wire.WriteFrame(w, reply); err != nil {
			return err
		}
		err = wire.WriteFrame(w, *held)
		held = nil
		return err
	})

	tr := NewTCPTransport(TCPTransportConfig{Addr: addr, NumWorkers: 1})
	defer tr.Close()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := newAllocBlockRequest(42, 10)
	second := newAllocBlockRequest(42, 20)
	if err := tr.Dispatch(first); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := tr.Dispatch(second); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := first.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if err := second.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if first.Offset() != 20 || second.Offset() != 40 {
		t.Fatalf("offsets = %d, %d; replies crossed requests", first.Offset(), second.Offset())
	}
}

func TestTCPTransportDispatchBeforeStart(t *testing.T) {
	tr := NewTCPTransport(TCPTransportConfig{Addr: "127.0.0.1:0"})
	if err := tr.Dispatch(newGetStatRequest(1)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Dispatch = %v, want ErrNotStarted", err)
	}
}

func TestTCPTransportDialFailure(t *testing.T) {
	// A listener closed before Start guarantees a refused connection.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	tr := NewTCPTransport(TCPTransportConfig{Addr: addr, DialTimeout: time.Second})
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded against a closed listener")
	}
}

// TestTCPTransportCloseFailsInFlight verifies a request the server never
// answers is failed by Close instead of blocking its waiter forever.
func TestTCPTransportCloseFailsInFlight(t *testing.T) {
	ctx := context.Background()
	addr := startFakeServer(t, func(wire.Frame, io.Writer) error { return nil }) // swallow everything
	tr := NewTCPTransport(TCPTransportConfig{Addr: addr})
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rq := newGetStatRequest(42)
	if err := tr.Dispatch(rq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// Give a sender worker time to put the request on the wire.
	time.Sleep(50 * time.Millisecond)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rq.Wait(ctx); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Wait = %v, want ErrTransportClosed", err)
	}

	if err := tr.Dispatch(newGetStatRequest(42)); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Dispatch after Close = %v, want ErrTransportClosed", err)
	}
	if err := tr.Start(ctx); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Start after Close = %v, want ErrTransportClosed", err)
	}
	// Close is idempotent.
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// TestTCPTransportCloseCompletesConcurrentDispatches races Close against a
// burst of dispatchers on a tiny queue: every request Dispatch accepted must
// still be completed, never silently dropped by the shutdown drain.
func TestTCPTransportCloseCompletesConcurrentDispatches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < 50; i++ {
		addr := startFakeServer(t, func(wire.Frame, io.Writer) error { return nil })
		tr := NewTCPTransport(TCPTransportConfig{Addr: addr, QueueDepth: 1})
		if err := tr.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}

		const dispatchers = 8
		accepted := make(chan *getStatRequest, dispatchers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for d := 0; d < dispatchers; d++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				rq := newGetStatRequest(1)
				if tr.Dispatch(rq) == nil {
					accepted <- rq
				}
			}()
		}
		go func() { <-start; _ = tr.Close() }()
		close(start)
		wg.Wait()
		_ = tr.Close()
		close(accepted)

		for rq := range accepted {
			err := rq.Wait(ctx)
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatal("accepted request never completed after Close")
			}
			if err == nil {
				t.Fatal("silent server cannot complete a request successfully")
			}
		}
	}
}

// TestTCPTransportServerDisconnect verifies an in-flight request fails when
// the server drops the connection.
func TestTCPTransportServerDisconnect(t *testing.T) {
	ctx := context.Background()
	addr := startFakeServer(t, func(wire.Frame, io.Writer) error {
		return errors.New("hang up") // close the connection on first frame
	})
	tr := NewTCPTransport(TCPTransportConfig{Addr: addr})
	defer tr.Close()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rq := newGetStatRequest(42)
	if err := tr.Dispatch(rq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := rq.Wait(ctx); err == nil {
		t.Fatal("Wait succeeded after server disconnect")
	}
}

func TestTCPTransportSharedBlockUnattached(t *testing.T) {
	tr := NewTCPTransport(TCPTransportConfig{Addr: "127.0.0.1:0"})
	if _, err := tr.SharedBlock(0, 16); err == nil {
		t.Fatal("SharedBlock succeeded without an attached segment")
	}
	if err := tr.WriteSharedBlock(0, []byte("x")); err == nil {
		t.Fatal("WriteSharedBlock succeeded without an attached segment")
	}
}
