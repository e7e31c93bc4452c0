package dispatcher_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/zapsplice/zap/dispatcher"
	"github.com/zapsplice/zap/router"
	"github.com/zapsplice/zap/wire"
)

// fakeWorker answers whatever the router forwards to it; used the same
// way router_test.go's fakeWorker stands in for a real workerrt.Worker.
type fakeWorker struct {
	conn *wire.Conn
}

func (f *fakeWorker) serveExportsThenInvoke(t *testing.T, exports []wire.ExportMetadata, invokeResult wire.Message) {
	t.Helper()
	go func() {
		msg, err := f.conn.Recv()
		if err != nil {
			return
		}
		if _, ok := msg.(wire.ListExports); ok {
			_ = f.conn.Send(context.Background(), wire.ListExportsResult{Exports: exports})
		}
		msg, err = f.conn.Recv()
		if err != nil {
			return
		}
		if inv, ok := msg.(wire.Invoke); ok {
			switch m := invokeResult.(type) {
			case wire.InvokeResult:
				m.RequestID = inv.RequestID
				_ = f.conn.Send(context.Background(), m)
			case wire.InvokeError:
				m.RequestID = inv.RequestID
				_ = f.conn.Send(context.Background(), m)
			}
		}
	}()
}

func newDispatcherHarness(t *testing.T, exports []wire.ExportMetadata, invokeResult wire.Message) (*wire.Conn, *dispatcher.Dispatcher) {
	t.Helper()
	routerNC, workerNC := net.Pipe()
	r := router.New(wire.NewConn(routerNC, 0))
	// Registered after r.Close so it runs first: closing the pipes ends the
	// router's read loop, which r.Close waits for.
	t.Cleanup(r.Close)
	t.Cleanup(func() { routerNC.Close(); workerNC.Close() })

	fw := &fakeWorker{conn: wire.NewConn(workerNC, 0)}
	fw.serveExportsThenInvoke(t, exports, invokeResult)

	hostNC, dispNC := net.Pipe()
	t.Cleanup(func() { hostNC.Close(); dispNC.Close() })
	hostConn := wire.NewConn(hostNC, 0)

	// The host side sends its Handshake and reads the HandshakeAck in its
	// own goroutine: Accept's Send of the ack only returns once the host
	// has read it off the pipe.
	type ackResult struct {
		msg wire.Message
		err error
	}
	sendDone := make(chan error, 1)
	ackDone := make(chan ackResult, 1)
	go func() {
		err := hostConn.Send(context.Background(), wire.Handshake{
			ProtocolVersion: dispatcher.ProtocolVersion,
			Role:            wire.RoleHost,
			Capabilities:    wire.CapCancellation,
		})
		sendDone <- err
		if err != nil {
			ackDone <- ackResult{err: err}
			return
		}
		msg, err := hostConn.Recv()
		ackDone <- ackResult{msg: msg, err: err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := dispatcher.Accept(ctx, dispNC, r)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := <-sendDone; err != nil {
		t.Fatalf("host handshake send: %v", err)
	}

	ack := <-ackDone
	if ack.err != nil {
		t.Fatalf("host recv handshake ack: %v", ack.err)
	}
	if _, ok := ack.msg.(wire.HandshakeAck); !ok {
		t.Fatalf("expected HandshakeAck, got %T", ack.msg)
	}

	return hostConn, d
}

func TestDispatcherInvokeSuccess(t *testing.T) {
	hostConn, d := newDispatcherHarness(t, nil, wire.InvokeResult{Result: []byte("ok")})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	if err := hostConn.Send(ctx, wire.Invoke{RequestID: 10, FunctionName: "add", DeadlineMs: 1000}); err != nil {
		t.Fatalf("send invoke: %v", err)
	}

	msg, err := hostConn.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	res, ok := msg.(wire.InvokeResult)
	if !ok || res.RequestID != 10 || string(res.Result) != "ok" {
		t.Fatalf("unexpected reply: %+v", msg)
	}
}

func TestDispatcherListExportsIsCached(t *testing.T) {
	exports := []wire.ExportMetadata{{Name: "add"}}
	hostConn, d := newDispatcherHarness(t, exports, wire.InvokeResult{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	if err := hostConn.Send(ctx, wire.ListExports{}); err != nil {
		t.Fatalf("send list_exports: %v", err)
	}
	msg, err := hostConn.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	res, ok := msg.(wire.ListExportsResult)
	if !ok || len(res.Exports) != 1 || res.Exports[0].Name != "add" {
		t.Fatalf("unexpected export list: %+v", msg)
	}
}
