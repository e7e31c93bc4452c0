package router

import (
	"fmt"

	"github.com/zapsplice/zap/wire"
)

// RouterKind classifies why Invoke failed, independent of the underlying
// wire.ErrorKind: Overloaded and WorkerUnavailable are router-local
// conditions that never reach the worker at all (spec.md §4.6's admission
// control), Timeout is the router's own deadline firing, and
// ExecutionError wraps whatever the worker itself reported.
type RouterKind uint8

const (
	KindExecutionError RouterKind = iota
	KindOverloaded
	KindTimeout
	KindWorkerUnavailable
)

// Error is what Invoke returns on any non-success path.
type Error struct {
	Kind    RouterKind
	Code    uint32
	ErrKind wire.ErrorKind
	Message string
	Details []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("router: %s", e.Message)
}

func overloaded(msg string) *Error {
	return &Error{Kind: KindOverloaded, Code: wire.CodeOverloaded, ErrKind: wire.KindSystem, Message: msg}
}

func timeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Code: wire.CodeTimeout, ErrKind: wire.KindSystem, Message: msg}
}

func workerUnavailable(msg string) *Error {
	return &Error{Kind: KindWorkerUnavailable, Code: wire.CodeWorkerUnavailable, ErrKind: wire.KindSystem, Message: msg}
}

func fromInvokeError(e wire.InvokeError) *Error {
	return &Error{
		Kind:    KindExecutionError,
		Code:    e.Code,
		ErrKind: e.ErrKind,
		Message: e.Message,
		Details: e.Details,
	}
}
