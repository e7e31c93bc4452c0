package registry

import (
	"strings"

	"github.com/zapsplice/zap/wire"
)

// CancelSignal lets a Context poll or select on cancellation without the
// registry package importing workerrt (which imports registry to dispatch
// into exported functions). workerrt's per-request cancellation token
// implements this interface; Context only ever sees it through this narrow
// seam.
type CancelSignal interface {
	IsCancelled() bool
	Cancelled() <-chan struct{}
}

type noopCancelSignal struct{}

func (noopCancelSignal) IsCancelled() bool          { return false }
func (noopCancelSignal) Cancelled() <-chan struct{} { return nil }

// Context is the wrapper user code receives in place of a raw
// wire.RequestContext: trace/span ids, header lookup, auth, and
// cancellation polling (spec.md §4.3, §9).
type Context struct {
	rc     wire.RequestContext
	cancel CancelSignal
}

// NewContext builds a Context from a decoded request context and a
// cancellation signal. cancel may be nil, in which case cancellation
// always reads as false (used by tests that don't exercise cancellation).
func NewContext(rc wire.RequestContext, cancel CancelSignal) *Context {
	if cancel == nil {
		cancel = noopCancelSignal{}
	}
	return &Context{rc: rc, cancel: cancel}
}

func (c *Context) TraceID() uint64 { return c.rc.TraceID }
func (c *Context) SpanID() uint64  { return c.rc.SpanID }

// Header looks up a header by name, case-insensitively, per spec.md §3's
// "ASCII case-insensitive by name" invariant.
func (c *Context) Header(name string) (string, bool) {
	for _, h := range c.rc.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func (c *Context) Headers() []wire.Header {
	return c.rc.Headers
}

func (c *Context) Auth() (*wire.AuthInfo, bool) {
	return c.rc.Auth, c.rc.Auth != nil
}

func (c *Context) UserID() string {
	if c.rc.Auth == nil {
		return ""
	}
	return c.rc.Auth.UserID
}

func (c *Context) HasRole(role string) bool {
	if c.rc.Auth == nil {
		return false
	}
	for _, r := range c.rc.Auth.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsCancelled reports whether the request has already been cancelled; it's
// the polling half of cooperative cancellation (spec.md §4.4, §9) for code
// that can't structure itself as a select.
func (c *Context) IsCancelled() bool {
	return c.cancel.IsCancelled()
}

// Cancelled returns a channel that closes when the request is cancelled,
// for code that wants to race it against other work the way workerrt races
// adapter invocation against the supervisor's deadline-driven Cancel.
func (c *Context) Cancelled() <-chan struct{} {
	return c.cancel.Cancelled()
}
