// Package exports registers the sample functions used throughout the
// end-to-end scenarios in spec.md §8: add, divide, slow_function, and
// long_sum. Real deployments register their own functions the same way,
// from their own init() functions, in whatever package defines them.
package exports

import (
	"context"
	"time"

	"github.com/zapsplice/zap/registry"
	"github.com/zapsplice/zap/wire"
)

func init() {
	registry.Register(wire.ExportMetadata{
		Name:         "add",
		ParamsSchema: `{"a":"i64","b":"i64"}`,
		ReturnSchema: "i64",
	}, registry.NewSync(add))

	registry.Register(wire.ExportMetadata{
		Name:         "divide",
		ParamsSchema: `{"a":"f64","b":"f64"}`,
		ReturnSchema: "f64",
	}, registry.NewSync(divide))

	registry.Register(wire.ExportMetadata{
		Name:         "slow_function",
		IsAsync:      true,
		ParamsSchema: `{"delay_ms":"u32"}`,
		ReturnSchema: "string",
	}, registry.NewAsync(slowFunction))

	registry.Register(wire.ExportMetadata{
		Name:         "long_sum",
		ParamsSchema: `{"values":"array<i64>"}`,
		ReturnSchema: "i64",
	}, registry.NewSyncCtx(longSum))
}

func add(p *registry.Params) (any, error) {
	a, err := p.GetInt64("a")
	if err != nil {
		return nil, err
	}
	b, err := p.GetInt64("b")
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

// divide returns the fallible Result's Err branch as a *registry.UserError
// rather than a Go error, since "division by zero" is a function-domain
// failure the caller should see as a typed error, not a transport fault
// (spec.md §8 scenario 4).
func divide(p *registry.Params) (any, error) {
	a, err := p.GetFloat64("a")
	if err != nil {
		return nil, err
	}
	b, err := p.GetFloat64("b")
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, &registry.UserError{Value: "division by zero"}
	}
	return a / b, nil
}

// slowFunction sleeps for delay_ms, selecting on ctx so a host-issued
// Cancel (or an expired Invoke.DeadlineMs) interrupts the sleep instead of
// running it to completion (spec.md §8 scenario 3).
func slowFunction(ctx context.Context, p *registry.Params) (any, error) {
	delayMs, err := p.GetInt64("delay_ms")
	if err != nil {
		return nil, err
	}
	select {
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return "done", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// longSum demonstrates a function that reads request metadata: it refuses
// to run for callers without the "bulk" role, the kind of authorization
// check spec.md §4.3's Context wrapper exists to make possible.
func longSum(rc *registry.Context, p *registry.Params) (any, error) {
	if !rc.HasRole("bulk") {
		return nil, &registry.UserError{Value: "missing bulk role"}
	}
	values, err := p.GetSlice("values")
	if err != nil {
		return nil, err
	}
	var sum int64
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return nil, &registry.InvalidParameter{Name: "values", Reason: "element is not an integer"}
		}
		if rc.IsCancelled() {
			return nil, &registry.UserError{Value: "cancelled"}
		}
		sum += n
		_ = i
	}
	return sum, nil
}
