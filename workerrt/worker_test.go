package workerrt_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/zapsplice/zap/registry"
	"github.com/zapsplice/zap/wire"
	"github.com/zapsplice/zap/workerrt"

	_ "github.com/zapsplice/zap/exports"
)

// fakeSupervisor drives the host side of the handshake and a single
// request/response exchange over a net.Pipe, standing in for the real
// supervisor process the way broker_test.go's mockReadWriter stands in for
// a real USB endpoint.
type fakeSupervisor struct {
	conn *wire.Conn
}

func dialFakeSupervisor(t *testing.T, nc net.Conn) *fakeSupervisor {
	t.Helper()
	return &fakeSupervisor{conn: wire.NewConn(nc, 0)}
}

func (f *fakeSupervisor) handshake(t *testing.T, ctx context.Context) {
	t.Helper()
	msg, err := f.conn.Recv()
	if err != nil {
		t.Fatalf("recv handshake: %v", err)
	}
	hs, ok := msg.(wire.Handshake)
	if !ok {
		t.Fatalf("expected Handshake, got %T", msg)
	}
	if err := f.conn.Send(ctx, wire.HandshakeAck{
		ProtocolVersion: hs.ProtocolVersion,
		Capabilities:    wire.Negotiate(hs.Capabilities, wire.CapCancellation),
		ExportCount:     uint32(registry.Count()),
	}); err != nil {
		t.Fatalf("send handshake ack: %v", err)
	}
}

func TestConnectHandshake(t *testing.T) {
	supNC, workerNC := net.Pipe()
	defer supNC.Close()
	defer workerNC.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sup := dialFakeSupervisor(t, supNC)
	defer sup.conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.handshake(t, ctx)
	}()

	w, err := workerrt.Connect(ctx, workerNC)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Close()
	<-done
}

func TestInvokeAddRoundTrip(t *testing.T) {
	supNC, workerNC := net.Pipe()
	defer supNC.Close()
	defer workerNC.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sup := dialFakeSupervisor(t, supNC)
	defer sup.conn.Close()

	handshakeDone := make(chan struct{})
	go func() {
		defer close(handshakeDone)
		sup.handshake(t, ctx)
	}()

	w, err := workerrt.Connect(ctx, workerNC)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Close()
	<-handshakeDone

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(ctx) }()

	params, err := registry.EncodeParams(map[string]any{"a": int64(2), "b": int64(3)})
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	if err := sup.conn.Send(ctx, wire.Invoke{RequestID: 1, FunctionName: "add", Params: params}); err != nil {
		t.Fatalf("send invoke: %v", err)
	}

	msg, err := sup.conn.Recv()
	if err != nil {
		t.Fatalf("recv invoke result: %v", err)
	}
	res, ok := msg.(wire.InvokeResult)
	if !ok {
		t.Fatalf("expected InvokeResult, got %T", msg)
	}
	if res.RequestID != 1 {
		t.Fatalf("unexpected request id: %d", res.RequestID)
	}
}

func TestInvokeUnknownFunctionIsUserError(t *testing.T) {
	supNC, workerNC := net.Pipe()
	defer supNC.Close()
	defer workerNC.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sup := dialFakeSupervisor(t, supNC)
	defer sup.conn.Close()

	handshakeDone := make(chan struct{})
	go func() {
		defer close(handshakeDone)
		sup.handshake(t, ctx)
	}()

	w, err := workerrt.Connect(ctx, workerNC)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Close()
	<-handshakeDone

	go func() { _ = w.Run(ctx) }()

	if err := sup.conn.Send(ctx, wire.Invoke{RequestID: 2, FunctionName: "does_not_exist"}); err != nil {
		t.Fatalf("send invoke: %v", err)
	}

	msg, err := sup.conn.Recv()
	if err != nil {
		t.Fatalf("recv invoke error: %v", err)
	}
	ierr, ok := msg.(wire.InvokeError)
	if !ok {
		t.Fatalf("expected InvokeError, got %T", msg)
	}
	if ierr.ErrKind != wire.KindUser {
		t.Fatalf("expected User-kind error, got %v", ierr.ErrKind)
	}
}

func TestInvokeSlowFunctionCancellation(t *testing.T) {
	supNC, workerNC := net.Pipe()
	defer supNC.Close()
	defer workerNC.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup := dialFakeSupervisor(t, supNC)
	defer sup.conn.Close()

	handshakeDone := make(chan struct{})
	go func() {
		defer close(handshakeDone)
		sup.handshake(t, ctx)
	}()

	w, err := workerrt.Connect(ctx, workerNC)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Close()
	<-handshakeDone

	go func() { _ = w.Run(ctx) }()

	params, _ := registry.EncodeParams(map[string]any{"delay_ms": int64(5000)})
	if err := sup.conn.Send(ctx, wire.Invoke{RequestID: 3, FunctionName: "slow_function", Params: params}); err != nil {
		t.Fatalf("send invoke: %v", err)
	}
	if err := sup.conn.Send(ctx, wire.Cancel{RequestID: 3}); err != nil {
		t.Fatalf("send cancel: %v", err)
	}

	sawCancelAck := false
	sawInvokeError := false
	for i := 0; i < 2; i++ {
		msg, err := sup.conn.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		switch msg.(type) {
		case wire.CancelAck:
			sawCancelAck = true
		case wire.InvokeError:
			sawInvokeError = true
		}
	}
	if !sawCancelAck || !sawInvokeError {
		t.Fatalf("expected both CancelAck and InvokeError, got ack=%v err=%v", sawCancelAck, sawInvokeError)
	}
}
