package router_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/zapsplice/zap/router"
	"github.com/zapsplice/zap/wire"
)

// fakeWorker answers Invoke frames it receives according to a caller-
// supplied responder, standing in for a real workerrt.Worker the way
// broker_test.go's mockReadWriter stands in for a real USB endpoint.
type fakeWorker struct {
	conn *wire.Conn
}

func dialFakeWorker(nc net.Conn) *fakeWorker {
	return &fakeWorker{conn: wire.NewConn(nc, 0)}
}

func (f *fakeWorker) serveOnce(t *testing.T, respond func(wire.Invoke) wire.Message) {
	t.Helper()
	msg, err := f.conn.Recv()
	if err != nil {
		t.Fatalf("fakeWorker recv: %v", err)
	}
	inv, ok := msg.(wire.Invoke)
	if !ok {
		t.Fatalf("expected Invoke, got %T", msg)
	}
	reply := respond(inv)
	if err := f.conn.Send(context.Background(), reply); err != nil {
		t.Fatalf("fakeWorker send: %v", err)
	}
}

func newRouterPair(t *testing.T) (*router.Router, *fakeWorker) {
	t.Helper()
	routerNC, workerNC := net.Pipe()

	// Cleanups run last-in first-out: the pipes close first, which ends
	// the router's read loop, so r.Close does not block.
	r := router.New(wire.NewConn(routerNC, 0))
	t.Cleanup(r.Close)
	t.Cleanup(func() { routerNC.Close(); workerNC.Close() })
	return r, dialFakeWorker(workerNC)
}

func TestInvokeSuccess(t *testing.T) {
	r, fw := newRouterPair(t)

	go fw.serveOnce(t, func(inv wire.Invoke) wire.Message {
		return wire.InvokeResult{RequestID: inv.RequestID, Result: []byte("ok")}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, rerr := r.Invoke(ctx, "add", []byte{}, wire.RequestContext{}, time.Second)
	if rerr != nil {
		t.Fatalf("unexpected error: %+v", rerr)
	}
	if string(result) != "ok" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestInvokeExecutionError(t *testing.T) {
	r, fw := newRouterPair(t)

	go fw.serveOnce(t, func(inv wire.Invoke) wire.Message {
		return wire.InvokeError{RequestID: inv.RequestID, Code: wire.CodeExecutionFailed, ErrKind: wire.KindUser, Message: "bad input"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, rerr := r.Invoke(ctx, "add", []byte{}, wire.RequestContext{}, time.Second)
	if rerr == nil || rerr.Kind != router.KindExecutionError {
		t.Fatalf("expected ExecutionError, got %+v", rerr)
	}
}

func TestInvokeTimeoutSendsCancel(t *testing.T) {
	r, fw := newRouterPair(t)

	cancelReceived := make(chan struct{})
	go func() {
		msg, err := fw.conn.Recv() // the Invoke itself
		if err != nil {
			return
		}
		_ = msg
		msg, err = fw.conn.Recv() // the follow-up Cancel
		if err != nil {
			return
		}
		if _, ok := msg.(wire.Cancel); ok {
			close(cancelReceived)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, rerr := r.Invoke(ctx, "slow_function", []byte{}, wire.RequestContext{}, 50*time.Millisecond)
	if rerr == nil || rerr.Kind != router.KindTimeout {
		t.Fatalf("expected Timeout, got %+v", rerr)
	}

	select {
	case <-cancelReceived:
	case <-time.After(time.Second):
		t.Fatal("expected router to send a best-effort Cancel on timeout")
	}
}

func TestInvokeGlobalCapacityOverload(t *testing.T) {
	routerNC, workerNC := net.Pipe()

	r := router.New(wire.NewConn(routerNC, 0), router.WithGlobalCapacity(1))
	defer r.Close()
	defer routerNC.Close()
	defer workerNC.Close()
	fw := dialFakeWorker(workerNC)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The fake worker reads the first Invoke and never answers it, so that
	// call keeps the only global slot.
	received := make(chan struct{})
	go func() {
		if _, err := fw.conn.Recv(); err == nil {
			close(received)
		}
	}()
	go func() { _, _ = r.Invoke(ctx, "add", []byte{}, wire.RequestContext{}, time.Second) }()

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("fake worker never received the first Invoke")
	}

	_, rerr := r.Invoke(ctx, "add", []byte{}, wire.RequestContext{}, time.Second)
	if rerr == nil || rerr.Kind != router.KindOverloaded {
		t.Fatalf("expected Overloaded, got %+v", rerr)
	}
}
