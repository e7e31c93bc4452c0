// Package router is the supervisor-side component that turns a dispatcher's
// Invoke request into a wire.Invoke sent to one worker connection,
// enforcing admission control and deadlines, and correlating the worker's
// reply back to the right caller (spec.md §4.6).
package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zapsplice/zap/wire"
)

const (
	defaultGlobalCapacity = 256
	defaultPerFuncCapacity = 32

	// Pending-waiter TTL/reap interval, carried over from
	// broker.waiterTTL/waiterReapInterval.
	pendingTTL          = 5 * time.Minute
	pendingReapInterval = 30 * time.Second
)

type options struct {
	logger          *slog.Logger
	globalCapacity  int
	perFuncCapacity int
	defaultDeadline time.Duration
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithGlobalCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.globalCapacity = n
		}
	}
}

func WithPerFunctionCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.perFuncCapacity = n
		}
	}
}

func WithDefaultDeadline(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultDeadline = d
		}
	}
}

// Router owns one worker connection and routes Invoke calls to it.
type Router struct {
	conn   *wire.Conn
	ids    *idAllocator
	pending *pendingMap
	logger *slog.Logger

	globalSem       chan struct{}
	perFuncCapacity int
	perFuncMu       sync.Mutex
	perFuncSem      map[string]chan struct{}

	defaultDeadline time.Duration

	// listWaiters holds one channel per in-flight ListExports call, in
	// send order. ListExportsResult carries no request id to correlate
	// against (spec.md §3), so it cannot share pending's per-request-id
	// map — a reply is handed to the oldest still-registered waiter
	// instead, matching the single-writer-per-direction ordering
	// guarantee (spec.md §5) that a worker answers ListExports calls in
	// the order it received them.
	listWaitersMu sync.Mutex
	listWaiters   []chan wire.ListExportsResult

	ctx          context.Context
	cancel       context.CancelFunc
	readLoopDone chan struct{}
	reaperDone   chan struct{}
}

// New starts the reader and reaper goroutines for conn and returns a ready
// Router. The caller owns conn's lifetime; Close does not close conn, and
// it waits for the read loop, which only exits once conn is closed or
// fails.
func New(conn *wire.Conn, opts ...Option) *Router {
	o := &options{
		logger:          slog.Default(),
		globalCapacity:  defaultGlobalCapacity,
		perFuncCapacity: defaultPerFuncCapacity,
		defaultDeadline: 30 * time.Second,
	}
	for _, fn := range opts {
		fn(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		conn:            conn,
		ids:             newIDAllocator(),
		pending:         newPendingMap(),
		logger:          o.logger,
		globalSem:       make(chan struct{}, o.globalCapacity),
		perFuncCapacity: o.perFuncCapacity,
		defaultDeadline: o.defaultDeadline,
		ctx:             ctx,
		cancel:          cancel,
	}
	r.perFuncSem = map[string]chan struct{}{}

	r.readLoopDone = r.startReadLoop()
	r.reaperDone = r.startReaper()
	return r
}

func (r *Router) funcSem(name string) chan struct{} {
	r.perFuncMu.Lock()
	defer r.perFuncMu.Unlock()
	ch, ok := r.perFuncSem[name]
	if !ok {
		ch = make(chan struct{}, r.perFuncCapacity)
		r.perFuncSem[name] = ch
	}
	return ch
}

// Invoke enforces admission control (global capacity, then per-function
// capacity — spec.md §4.6's order), allocates a request id, sends the
// Invoke frame, and waits for its reply or ctx to expire. On a ctx-driven
// timeout it sends a best-effort Cancel so the worker can stop early.
func (r *Router) Invoke(ctx context.Context, functionName string, params []byte, rc wire.RequestContext, deadline time.Duration) ([]byte, *Error) {
	select {
	case r.globalSem <- struct{}{}:
		defer func() { <-r.globalSem }()
	default:
		return nil, overloaded("global concurrency limit reached")
	}

	funcSem := r.funcSem(functionName)
	select {
	case funcSem <- struct{}{}:
		defer func() { <-funcSem }()
	default:
		return nil, overloaded("per-function concurrency limit reached: " + functionName)
	}

	if deadline <= 0 {
		deadline = r.defaultDeadline
	}
	callCtx, cancelCall := context.WithTimeout(ctx, deadline)
	defer cancelCall()

	id := r.ids.next()
	ch := r.pending.new(id)

	inv := wire.Invoke{
		RequestID:    id,
		FunctionName: functionName,
		Params:       params,
		DeadlineMs:   uint32(deadline.Milliseconds()),
		Context:      rc,
	}
	if err := r.conn.Send(callCtx, inv); err != nil {
		r.pending.delete(id)
		return nil, workerUnavailable("failed to send invoke: " + err.Error())
	}

	select {
	case msg := <-ch:
		switch m := msg.(type) {
		case wire.InvokeResult:
			return m.Result, nil
		case wire.InvokeError:
			return nil, fromInvokeError(m)
		default:
			return nil, workerUnavailable("unexpected reply type")
		}
	case <-callCtx.Done():
		r.pending.delete(id)
		_ = r.conn.Send(context.Background(), wire.Cancel{RequestID: id})
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, timeout("caller cancelled the request")
		}
		return nil, timeout("deadline exceeded waiting for worker reply")
	case <-r.ctx.Done():
		r.pending.delete(id)
		return nil, workerUnavailable("router is shutting down")
	}
}

// ListExports asks the connected worker for its export table.
func (r *Router) ListExports(ctx context.Context) ([]wire.ExportMetadata, *Error) {
	ch := r.enqueueListWaiter()
	if err := r.conn.Send(ctx, wire.ListExports{}); err != nil {
		r.removeListWaiter(ch)
		return nil, workerUnavailable("failed to send list_exports: " + err.Error())
	}
	select {
	case res := <-ch:
		return res.Exports, nil
	case <-ctx.Done():
		r.removeListWaiter(ch)
		return nil, timeout("deadline exceeded waiting for export list")
	case <-r.ctx.Done():
		r.removeListWaiter(ch)
		return nil, workerUnavailable("router is shutting down")
	}
}

// enqueueListWaiter registers a fresh ListExportsResult waiter at the back
// of the queue, before the ListExports request is even sent, so a reply
// that races back ahead of this call returning can never be missed.
func (r *Router) enqueueListWaiter() chan wire.ListExportsResult {
	ch := make(chan wire.ListExportsResult, 1)
	r.listWaitersMu.Lock()
	r.listWaiters = append(r.listWaiters, ch)
	r.listWaitersMu.Unlock()
	return ch
}

// removeListWaiter drops ch from the queue after its caller gave up
// (deadline or shutdown) so a later ListExportsResult isn't handed to an
// abandoned channel ahead of the waiter that actually wants it.
func (r *Router) removeListWaiter(ch chan wire.ListExportsResult) {
	r.listWaitersMu.Lock()
	defer r.listWaitersMu.Unlock()
	for i, w := range r.listWaiters {
		if w == ch {
			r.listWaiters = append(r.listWaiters[:i], r.listWaiters[i+1:]...)
			return
		}
	}
}

func (r *Router) startReadLoop() chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := r.conn.Recv()
			if err != nil {
				r.logger.Warn("router read loop exiting", slog.Any("err", err))
				return
			}
			r.dispatchReply(msg)
		}
	}()
	return done
}

func (r *Router) dispatchReply(msg wire.Message) {
	var id uint64
	switch m := msg.(type) {
	case wire.InvokeResult:
		id = m.RequestID
	case wire.InvokeError:
		id = m.RequestID
	case wire.CancelAck:
		// No caller waits on a CancelAck directly today; Invoke's own
		// callCtx timeout is what actually unblocks the caller. Logged
		// at debug for observability only.
		r.logger.Debug("received cancel ack", slog.Uint64("request_id", m.RequestID))
		return
	case wire.ListExportsResult:
		r.deliverListExports(m)
		return
	default:
		r.logger.Warn("unexpected reply kind from worker", slog.Any("kind", msg.Kind()))
		return
	}

	if ch, ok := r.pending.loadAndDelete(id); ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

// deliverListExports hands m to the oldest registered ListExports waiter,
// keyed entirely by arrival order rather than the per-Invoke pending map —
// see the listWaiters field comment.
func (r *Router) deliverListExports(m wire.ListExportsResult) {
	r.listWaitersMu.Lock()
	var ch chan wire.ListExportsResult
	if len(r.listWaiters) > 0 {
		ch = r.listWaiters[0]
		r.listWaiters = r.listWaiters[1:]
	}
	r.listWaitersMu.Unlock()
	if ch == nil {
		r.logger.Warn("received list_exports result with no registered waiter")
		return
	}
	select {
	case ch <- m:
	default:
	}
}

func (r *Router) startReaper() chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pendingReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.pending.reapStale(pendingTTL); n > 0 {
					r.logger.Debug("reaped stale pending requests", slog.Int("count", n))
				}
			case <-r.ctx.Done():
				return
			}
		}
	}()
	return done
}

// Close stops the reaper, unblocks Invoke and ListExports callers, and
// waits for both background goroutines to exit. It does not close the
// underlying connection, and the read loop only exits once that
// connection is closed or fails, so Close blocks until then.
func (r *Router) Close() {
	r.cancel()
	<-r.readLoopDone
	<-r.reaperDone
}

// PendingCount reports the number of in-flight requests, for tests and
// health introspection.
func (r *Router) PendingCount() int {
	return r.pending.len()
}
