package registry

import "context"

// Adapter is the uniform shape dispatch code calls regardless of which of
// the four shapes (spec.md §9) a registered function was written in. The
// four constructors below are the only way to build one, so registration
// always goes through exactly one of them.
type Adapter interface {
	Invoke(ctx context.Context, rc *Context, p *Params) (any, error)
}

// SyncFunc is the plainest shape: no Go context, no RequestContext wrapper,
// just parameters in and a result (or *UserError) out. Cancellation can
// still reach it if it chooses to accept a *Context instead — see
// SyncCtxFunc.
type SyncFunc func(p *Params) (any, error)

// SyncCtxFunc additionally receives the RequestContext wrapper, letting the
// function read trace/auth metadata and poll Context.IsCancelled() in a
// loop, without being able to select on native ctx.Done().
type SyncCtxFunc func(rc *Context, p *Params) (any, error)

// AsyncFunc receives Go's own context.Context so it can select against
// ctx.Done() the way any long-running Go operation would; it has no
// RequestContext wrapper.
type AsyncFunc func(ctx context.Context, p *Params) (any, error)

// AsyncCtxFunc is the full shape: native context.Context for select-based
// cancellation plus the RequestContext wrapper for trace/auth metadata.
type AsyncCtxFunc func(ctx context.Context, rc *Context, p *Params) (any, error)

type syncAdapter struct{ fn SyncFunc }

func (a syncAdapter) Invoke(_ context.Context, _ *Context, p *Params) (any, error) {
	return a.fn(p)
}

type syncCtxAdapter struct{ fn SyncCtxFunc }

func (a syncCtxAdapter) Invoke(_ context.Context, rc *Context, p *Params) (any, error) {
	return a.fn(rc, p)
}

type asyncAdapter struct{ fn AsyncFunc }

func (a asyncAdapter) Invoke(ctx context.Context, _ *Context, p *Params) (any, error) {
	return a.fn(ctx, p)
}

type asyncCtxAdapter struct{ fn AsyncCtxFunc }

func (a asyncCtxAdapter) Invoke(ctx context.Context, rc *Context, p *Params) (any, error) {
	return a.fn(ctx, rc, p)
}

func NewSync(fn SyncFunc) Adapter         { return syncAdapter{fn} }
func NewSyncCtx(fn SyncCtxFunc) Adapter   { return syncCtxAdapter{fn} }
func NewAsync(fn AsyncFunc) Adapter       { return asyncAdapter{fn} }
func NewAsyncCtx(fn AsyncCtxFunc) Adapter { return asyncCtxAdapter{fn} }
