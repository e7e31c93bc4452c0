package wire

import (
	"bytes"
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/tinylib/msgp/msgp"
)

func TestRoundTripMessages(t *testing.T) {
	cases := []Message{
		Handshake{ProtocolVersion: 1, Role: RoleWorker, Capabilities: CapCancellation, MaxFrameSize: 1024},
		HandshakeAck{ProtocolVersion: 1, Capabilities: CapCancellation, ServerID: [16]byte{1, 2, 3}, ExportCount: 2},
		ListExports{},
		ListExportsResult{Exports: []ExportMetadata{
			{Name: "add", IsAsync: false, ParamsSchema: "{}", ReturnSchema: "i32"},
		}},
		Invoke{
			RequestID:    42,
			FunctionName: "add",
			Params:       []byte("params"),
			DeadlineMs:   1000,
			Context: RequestContext{
				TraceID: 1, SpanID: 2,
				Headers: []Header{{Name: "x", Value: "y"}},
				Auth:    &AuthInfo{UserID: "u1", Roles: []string{"admin"}},
			},
		},
		InvokeResult{RequestID: 42, Result: []byte("result"), DurationUs: 500},
		InvokeError{RequestID: 42, Code: CodeTimeout, ErrKind: KindSystem, Message: "Request timeout"},
		Cancel{RequestID: 42},
		CancelAck{RequestID: 42},
		Shutdown{},
		ShutdownAck{},
	}

	for _, m := range cases {
		payload, err := Marshal(m)
		if err != nil {
			t.Fatalf("Marshal(%T) = %v", m, err)
		}
		got, err := Unmarshal(payload)
		if err != nil {
			t.Fatalf("Unmarshal(%T) = %v", m, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Errorf("round trip mismatch for %T:\n got:  %+v\n want: %+v", m, got, m)
		}
	}
}

func TestUnmarshalIgnoresUnknownKeys(t *testing.T) {
	// Hand-construct a payload with an extra trailing field a future
	// protocol_version might add, and verify an old decoder still succeeds.
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	_ = w.WriteMapHeader(2)
	_ = w.WriteString("kind")
	_ = w.WriteUint8(uint8(KindListExports))
	_ = w.WriteString("future_field")
	_ = w.WriteString("ignored")
	_ = w.Flush()

	msg, err := Unmarshal(buf.Bytes())
	if err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if _, ok := msg.(ListExports); !ok {
		t.Fatalf("expected ListExports, got %T", msg)
	}
}

func TestFrameTooLarge(t *testing.T) {
	r1, w1 := net.Pipe()
	defer r1.Close()
	defer w1.Close()

	go func() {
		_ = EncodeFrame(w1, InvokeResult{RequestID: 1, Result: make([]byte, 10)})
	}()

	_, err := DecodeFrame(r1, 4) // smaller than the encoded payload
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestConnSendRecvRoundTrip(t *testing.T) {
	serverNC, clientNC := net.Pipe()
	defer serverNC.Close()
	defer clientNC.Close()

	server := NewConn(serverNC, 0)
	client := NewConn(clientNC, 0)
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- server.Send(ctx, InvokeResult{RequestID: 7, Result: []byte("ok")})
	}()

	got, err := client.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}

	res, ok := got.(InvokeResult)
	if !ok || res.RequestID != 7 || string(res.Result) != "ok" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestCapabilitiesNegotiateClearsStreaming(t *testing.T) {
	a := CapStreaming | CapCancellation
	b := CapStreaming | CapCancellation
	got := Negotiate(a, b)
	if got.Has(CapStreaming) {
		t.Fatal("streaming must never be negotiated on (spec.md §9 non-goal)")
	}
	if !got.Has(CapCancellation) {
		t.Fatal("cancellation should survive negotiation when both peers offer it")
	}
}
