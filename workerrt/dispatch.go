package workerrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zapsplice/zap/registry"
	"github.com/zapsplice/zap/wire"
)

// inflight tracks cancellation tokens for requests currently executing, so
// an incoming wire.Cancel can reach the right goroutine (spec.md §4.4).
type inflight struct {
	mu      sync.Mutex
	tokens  map[uint64]*CancelToken
}

func newInflight() *inflight {
	return &inflight{tokens: map[uint64]*CancelToken{}}
}

func (f *inflight) start(id uint64) *CancelToken {
	t := newCancelToken()
	f.mu.Lock()
	f.tokens[id] = t
	f.mu.Unlock()
	return t
}

func (f *inflight) finish(id uint64) {
	f.mu.Lock()
	delete(f.tokens, id)
	f.mu.Unlock()
}

func (f *inflight) cancel(id uint64) bool {
	f.mu.Lock()
	t, ok := f.tokens[id]
	f.mu.Unlock()
	if ok {
		t.Cancel()
	}
	return ok
}

// invoke runs one Invoke message to completion (or cancellation/timeout)
// and returns the frame to send back: either an InvokeResult or an
// InvokeError, never both, matching spec.md §4.2's one-response-per-request
// invariant.
func (w *Worker) invoke(parent context.Context, inv wire.Invoke) wire.Message {
	start := time.Now()
	token := w.inflight.start(inv.RequestID)
	defer w.inflight.finish(inv.RequestID)

	export, ok := registry.Lookup(inv.FunctionName)
	if !ok {
		return wire.InvokeError{
			RequestID: inv.RequestID,
			Code:      wire.CodeExecutionFailed,
			ErrKind:   wire.KindUser,
			Message:   fmt.Sprintf("unknown function %q", inv.FunctionName),
		}
	}

	ctx := parent
	var cancel context.CancelFunc
	if inv.DeadlineMs > 0 {
		ctx, cancel = context.WithTimeout(parent, time.Duration(inv.DeadlineMs)*time.Millisecond)
		defer cancel()
	} else {
		ctx, cancel = context.WithCancel(parent)
		defer cancel()
	}

	// Race the cancellation token against the adapter's own context so an
	// AsyncCtxFunc selecting on ctx.Done() observes a host-issued Cancel
	// the same way it would observe an expired deadline.
	go func() {
		select {
		case <-token.Cancelled():
			cancel()
		case <-ctx.Done():
		}
	}()

	result := registry.Dispatch(ctx, export, inv.Params, inv.Context, token)

	if !result.Failed {
		return wire.InvokeResult{
			RequestID:  inv.RequestID,
			Result:     result.ResultBytes,
			DurationUs: uint64(time.Since(start).Microseconds()),
		}
	}

	code, kind, message := result.Code, result.ErrKind, result.Message
	switch {
	case token.IsCancelled():
		code, kind, message = wire.CodeCancelled, wire.KindCancelled, "request cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		code, kind, message = wire.CodeTimeout, wire.KindSystem, "deadline exceeded"
	}

	return wire.InvokeError{
		RequestID: inv.RequestID,
		Code:      code,
		ErrKind:   kind,
		Message:   message,
		Details:   result.Details,
	}
}

func (w *Worker) logInvokeOutcome(msg wire.Message) {
	switch m := msg.(type) {
	case wire.InvokeResult:
		w.logger.Debug("invoke ok", slog.Uint64("request_id", m.RequestID), slog.Uint64("duration_us", m.DurationUs))
	case wire.InvokeError:
		w.logger.Debug("invoke failed", slog.Uint64("request_id", m.RequestID), slog.Uint64("code", uint64(m.Code)))
	}
}
