package registry

import (
	"context"
	"fmt"

	"github.com/zapsplice/zap/wire"
)

// DispatchResult is everything workerrt needs to build either an
// InvokeResult or an InvokeError frame, without itself knowing how a
// registered function is shaped.
type DispatchResult struct {
	ResultBytes []byte

	Failed  bool
	ErrKind wire.ErrorKind
	Code    uint32
	Message string
	Details []byte
}

// Dispatch runs export's adapter against rawParams and rc, translating
// every failure mode spec.md §4.3/§7 names into a DispatchResult: malformed
// params, a returned *UserError (the fallible Result's Err branch), any
// other returned error, and a recovered panic all become a User- or
// System-kind failure depending on whether the caller or the function
// itself is at fault.
func Dispatch(ctx context.Context, export *Export, rawParams []byte, rc wire.RequestContext, cancel CancelSignal) (result DispatchResult) {
	params, err := DecodeParams(rawParams)
	if err != nil {
		return failureResult(wire.KindUser, err.Error(), nil)
	}

	defer func() {
		if r := recover(); r != nil {
			result = failureResult(wire.KindSystem, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	rctx := NewContext(rc, cancel)
	value, invokeErr := export.Adapter.Invoke(ctx, rctx, params)
	if invokeErr != nil {
		return dispatchError(invokeErr)
	}

	resultBytes, err := EncodeResult(value)
	if err != nil {
		return failureResult(wire.KindSystem, fmt.Sprintf("encoding result: %v", err), nil)
	}
	return DispatchResult{ResultBytes: resultBytes}
}

func dispatchError(err error) DispatchResult {
	switch e := err.(type) {
	case *UserError:
		details, encErr := EncodeResult(e.Value)
		if encErr != nil {
			return failureResult(wire.KindSystem, fmt.Sprintf("encoding user error: %v", encErr), nil)
		}
		return failureResult(wire.KindUser, wire.TypedErrorPrefix+e.Error(), details)
	case *MissingParameter, *InvalidParameter:
		return failureResult(wire.KindUser, e.Error(), nil)
	default:
		return failureResult(wire.KindSystem, err.Error(), nil)
	}
}

func failureResult(kind wire.ErrorKind, message string, details []byte) DispatchResult {
	return DispatchResult{
		Failed:  true,
		ErrKind: kind,
		Code:    wire.CodeExecutionFailed,
		Message: message,
		Details: details,
	}
}
