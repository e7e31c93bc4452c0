// Package dispatcher is the host-facing side of the supervisor: it accepts
// a connection from a host process, performs the Handshake, and turns each
// incoming Invoke/ListExports/Cancel into a call against router.Router,
// caching the worker's export list so repeated ListExports calls don't
// round-trip to the worker every time (spec.md §4.7, supplemented
// behavior noted in SPEC_FULL.md).
package dispatcher

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/zapsplice/zap/router"
	"github.com/zapsplice/zap/wire"
)

const ProtocolVersion uint32 = 1

type options struct {
	logger           *slog.Logger
	capabilities     wire.Capabilities
	maxFrameSize     uint32
	exportCacheTTL   time.Duration
	serverID         [16]byte
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithServerID(id [16]byte) Option {
	return func(o *options) { o.serverID = id }
}

func WithExportCacheTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.exportCacheTTL = d
		}
	}
}

// Dispatcher serves one host connection, forwarding Invoke calls to r.
type Dispatcher struct {
	conn *wire.Conn
	r    *router.Router

	logger       *slog.Logger
	capabilities wire.Capabilities

	cacheMu     sync.Mutex
	cachedAt    time.Time
	cacheTTL    time.Duration
	cached      []wire.ExportMetadata

	inflightMu sync.Mutex
	inflight   map[uint64]context.CancelFunc
}

// Accept performs the host-side handshake over nc and returns a Dispatcher
// ready to Run. r is the router for the worker backing this dispatcher;
// one Dispatcher is created per accepted host connection, but typically
// many dispatchers share one Router/worker (spec.md §4.5's supervisor
// fans a single worker out to concurrent host callers).
func Accept(ctx context.Context, nc net.Conn, r *router.Router, opts ...Option) (*Dispatcher, error) {
	o := &options{
		logger:         slog.Default(),
		capabilities:   wire.CapCancellation,
		maxFrameSize:   wire.DefaultMaxFrameSize,
		exportCacheTTL: 30 * time.Second,
	}
	for _, fn := range opts {
		fn(o)
	}

	conn := wire.NewConn(nc, o.maxFrameSize)

	msg, err := conn.Recv()
	if err != nil {
		conn.Close()
		return nil, err
	}
	hs, ok := msg.(wire.Handshake)
	if !ok {
		conn.Close()
		return nil, wire.ErrBeforeHandshake
	}

	exports, rerr := r.ListExports(ctx)
	if rerr != nil {
		o.logger.Warn("failed to fetch export list during handshake", slog.Any("err", rerr))
	}

	if err := conn.Send(ctx, wire.HandshakeAck{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    wire.Negotiate(o.capabilities, hs.Capabilities),
		ServerID:        o.serverID,
		ExportCount:     uint32(len(exports)),
	}); err != nil {
		conn.Close()
		return nil, err
	}

	d := &Dispatcher{
		conn:         conn,
		r:            r,
		logger:       o.logger,
		capabilities: wire.Negotiate(o.capabilities, hs.Capabilities),
		cacheTTL:     o.exportCacheTTL,
		cached:       exports,
		cachedAt:     time.Now(),
		inflight:     map[uint64]context.CancelFunc{},
	}
	return d, nil
}

func (d *Dispatcher) Close() error { return d.conn.Close() }

// Run services host frames until the connection closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.conn.Recv()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case wire.Invoke:
			go d.handleInvoke(ctx, m)

		case wire.Cancel:
			d.cancelInflight(m.RequestID)
			_ = d.conn.Send(ctx, wire.CancelAck{RequestID: m.RequestID})

		case wire.ListExports:
			exports := d.exportsCached(ctx)
			_ = d.conn.Send(ctx, wire.ListExportsResult{Exports: exports})

		case wire.Shutdown:
			_ = d.conn.Send(ctx, wire.ShutdownAck{})
			return nil

		default:
			d.logger.Warn("unexpected message kind on host socket", slog.Any("kind", msg.Kind()))
		}
	}
}

func (d *Dispatcher) handleInvoke(parent context.Context, inv wire.Invoke) {
	ctx, cancel := context.WithCancel(parent)
	d.inflightMu.Lock()
	d.inflight[inv.RequestID] = cancel
	d.inflightMu.Unlock()
	defer func() {
		d.inflightMu.Lock()
		delete(d.inflight, inv.RequestID)
		d.inflightMu.Unlock()
		cancel()
	}()

	deadline := time.Duration(inv.DeadlineMs) * time.Millisecond
	result, rerr := d.r.Invoke(ctx, inv.FunctionName, inv.Params, inv.Context, deadline)

	var reply wire.Message
	if rerr == nil {
		reply = wire.InvokeResult{RequestID: inv.RequestID, Result: result}
	} else {
		reply = wire.InvokeError{
			RequestID: inv.RequestID,
			Code:      rerr.Code,
			ErrKind:   rerr.ErrKind,
			Message:   rerr.Message,
			Details:   rerr.Details,
		}
	}
	if err := d.conn.Send(parent, reply); err != nil {
		d.logger.Warn("failed to send invoke reply to host", slog.Any("err", err))
	}
}

func (d *Dispatcher) cancelInflight(id uint64) {
	d.inflightMu.Lock()
	cancel, ok := d.inflight[id]
	d.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

// exportsCached returns the worker's export list, refreshing it from the
// router if the cached copy has aged past cacheTTL.
func (d *Dispatcher) exportsCached(ctx context.Context) []wire.ExportMetadata {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if time.Since(d.cachedAt) < d.cacheTTL {
		return d.cached
	}
	if exports, rerr := d.r.ListExports(ctx); rerr == nil {
		d.cached = exports
		d.cachedAt = time.Now()
	}
	return d.cached
}
