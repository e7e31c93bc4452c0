// Package wire implements the framing and closed message set carried on the
// supervisor↔worker and host↔supervisor sockets.
package wire

// Role identifies which side of a handshake a peer is acting as.
type Role uint8

const (
	RoleHost Role = iota
	RoleWorker
)

// ErrorKind disambiguates caller-fault errors from runtime-fault errors on
// the InvokeError variant.
type ErrorKind uint8

const (
	KindUser ErrorKind = iota
	KindSystem
	KindCancelled
)

// Stable wire error codes (spec.md §6).
const (
	CodeExecutionFailed  uint32 = 2000
	CodeTimeout          uint32 = 2001
	CodeCancelled        uint32 = 2002
	CodeOverloaded       uint32 = 2003
	CodeWorkerUnavailable uint32 = 2004
)

// TypedErrorPrefix conveys a structured user-error payload inside an
// InvokeError.Message so the code generator's client surface can recover a
// typed error branch instead of a bare string (spec.md §6, §9).
const TypedErrorPrefix = "__TYPED_ERROR__:"

// MessageKind tags the closed set of protocol messages (spec.md §3, §4.2).
type MessageKind uint8

const (
	KindHandshake MessageKind = iota + 1
	KindHandshakeAck
	KindListExports
	KindListExportsResult
	KindInvoke
	KindInvokeResult
	KindInvokeError
	KindCancel
	KindCancelAck
	KindShutdown
	KindShutdownAck
)

// Message is implemented by every variant in the closed protocol set.
type Message interface {
	Kind() MessageKind
}

// AuthInfo is the optional auth payload carried opaquely in RequestContext.
type AuthInfo struct {
	UserID string
	Roles  []string
}

// Header is a single (name, value) pair, ASCII case-insensitive by name.
type Header struct {
	Name  string
	Value string
}

// RequestContext carries per-invocation metadata delivered to user code
// through the registry's Context wrapper (spec.md §3, §4.3).
type RequestContext struct {
	TraceID uint64
	SpanID  uint64
	Headers []Header
	Auth    *AuthInfo // nil if absent
}

// ExportMetadata describes one user function reachable by name. Schemas are
// opaque to every component except the code generator (spec.md §3).
type ExportMetadata struct {
	Name          string
	IsAsync       bool
	IsStreaming   bool
	ParamsSchema  string
	ReturnSchema  string
}

type Handshake struct {
	ProtocolVersion uint32
	Role            Role
	Capabilities    Capabilities
	MaxFrameSize    uint32
}

func (Handshake) Kind() MessageKind { return KindHandshake }

type HandshakeAck struct {
	ProtocolVersion uint32
	Capabilities    Capabilities // intersection
	ServerID        [16]byte
	ExportCount     uint32
}

func (HandshakeAck) Kind() MessageKind { return KindHandshakeAck }

type ListExports struct{}

func (ListExports) Kind() MessageKind { return KindListExports }

type ListExportsResult struct {
	Exports []ExportMetadata
}

func (ListExportsResult) Kind() MessageKind { return KindListExportsResult }

type Invoke struct {
	RequestID    uint64
	FunctionName string
	Params       []byte // opaque, msgpack-encoded map
	DeadlineMs   uint32 // 0 = use default
	Context      RequestContext
}

func (Invoke) Kind() MessageKind { return KindInvoke }

type InvokeResult struct {
	RequestID  uint64
	Result     []byte // opaque, msgpack-encoded
	DurationUs uint64
}

func (InvokeResult) Kind() MessageKind { return KindInvokeResult }

type InvokeError struct {
	RequestID uint64
	Code      uint32
	ErrKind   ErrorKind
	Message   string
	Details   []byte // optional
}

func (InvokeError) Kind() MessageKind { return KindInvokeError }

type Cancel struct {
	RequestID uint64
}

func (Cancel) Kind() MessageKind { return KindCancel }

type CancelAck struct {
	RequestID uint64
}

func (CancelAck) Kind() MessageKind { return KindCancelAck }

type Shutdown struct{}

func (Shutdown) Kind() MessageKind { return KindShutdown }

type ShutdownAck struct{}

func (ShutdownAck) Kind() MessageKind { return KindShutdownAck }
