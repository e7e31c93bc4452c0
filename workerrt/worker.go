// Package workerrt is the child-process side of the runtime: it owns the
// socket connection to the supervisor, performs the handshake, and turns
// incoming Invoke/Cancel/ListExports/Shutdown frames into calls against the
// registry package (spec.md §4.4).
package workerrt

import (
	"context"
	"log/slog"
	"net"

	"github.com/zapsplice/zap/registry"
	"github.com/zapsplice/zap/wire"
)

const ProtocolVersion uint32 = 1

type options struct {
	logger       *slog.Logger
	capabilities wire.Capabilities
	maxFrameSize uint32
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithCapabilities(c wire.Capabilities) Option {
	return func(o *options) { o.capabilities = c }
}

func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// Worker is one connected, handshaken child-process endpoint.
type Worker struct {
	conn         *wire.Conn
	logger       *slog.Logger
	capabilities wire.Capabilities // negotiated
	serverID     [16]byte

	inflight *inflight
}

// Connect performs the Handshake/HandshakeAck exchange over nc and returns
// a ready-to-run Worker. nc is typically a net.Conn to the Unix-domain
// socket named by the ZAP_SOCKET environment variable (spec.md §6).
func Connect(ctx context.Context, nc net.Conn, opts ...Option) (*Worker, error) {
	o := &options{
		logger:       slog.Default(),
		capabilities: wire.CapCancellation,
		maxFrameSize: wire.DefaultMaxFrameSize,
	}
	for _, fn := range opts {
		fn(o)
	}

	conn := wire.NewConn(nc, o.maxFrameSize)

	if err := conn.Send(ctx, wire.Handshake{
		ProtocolVersion: ProtocolVersion,
		Role:            wire.RoleWorker,
		Capabilities:    o.capabilities,
		MaxFrameSize:    o.maxFrameSize,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	msg, err := conn.Recv()
	if err != nil {
		conn.Close()
		return nil, err
	}
	ack, ok := msg.(wire.HandshakeAck)
	if !ok {
		conn.Close()
		return nil, wire.ErrBeforeHandshake
	}

	return &Worker{
		conn:         conn,
		logger:       o.logger,
		capabilities: wire.Negotiate(o.capabilities, ack.Capabilities),
		serverID:     ack.ServerID,
		inflight:     newInflight(),
	}, nil
}

func (w *Worker) Close() error { return w.conn.Close() }

// Run blocks reading frames until the connection closes, ctx is done, or a
// Shutdown is received and acknowledged. Each Invoke is dispatched in its
// own goroutine so a slow function never blocks other in-flight requests,
// matching the concurrency model spec.md §5 describes for the worker side.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.conn.Recv()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case wire.Invoke:
			go func(inv wire.Invoke) {
				reply := w.invoke(ctx, inv)
				w.logInvokeOutcome(reply)
				if err := w.conn.Send(ctx, reply); err != nil {
					w.logger.Warn("failed to send invoke reply", slog.Any("err", err))
				}
			}(m)

		case wire.Cancel:
			w.inflight.cancel(m.RequestID)
			if err := w.conn.Send(ctx, wire.CancelAck{RequestID: m.RequestID}); err != nil {
				w.logger.Warn("failed to send cancel ack", slog.Any("err", err))
			}

		case wire.ListExports:
			if err := w.conn.Send(ctx, wire.ListExportsResult{Exports: registry.List()}); err != nil {
				w.logger.Warn("failed to send export list", slog.Any("err", err))
			}

		case wire.Shutdown:
			_ = w.conn.Send(ctx, wire.ShutdownAck{})
			return nil

		default:
			w.logger.Warn("unexpected message kind on worker socket", slog.Any("kind", msg.Kind()))
		}
	}
}
