package codegen

import "github.com/samber/lo"

// Kind enumerates the closed type lattice spec.md §4.8 defines for
// translating a Go type into a client-surface TypeScript type.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindBytes
	KindUnit
	KindOption  // Option<T>: a pointer field type
	KindSlice   // sequence-of-T
	KindMap     // map-from-K-to-V
	KindResult  // fallible-result-of-(T, E)
	KindContext // the context wrapper type, elided from client signatures
	KindNamed   // user-defined named type, passed through by name
)

// Type is one node in the type lattice. Only the fields relevant to its
// Kind are populated; Elem/Key/Value point at nested Type nodes for
// Option/Slice/Map/Result.
type Type struct {
	Kind  Kind
	Name  string // source identifier, for KindNamed and error messages
	Elem  *Type  // Option.T, Slice.T, Result.T
	Err   *Type  // Result.E
	Key   *Type  // Map.K
	Value *Type  // Map.V
}

// Param is one function parameter surfaced to the client (the context
// parameter, if present, is stripped before this list is built).
type Param struct {
	Name string
	Type *Type
}

// Field is one struct field as spec.md §4.8's "per-struct metadata"
// describes it: source name, type, optionality, and any rename override
// pulled from a msgp-style tag.
type Field struct {
	SourceName string
	Type       *Type
	Optional   bool
	Rename     string // client-facing name; equal to SourceName if untagged
}

// ClientName returns Rename if set, else SourceName.
func (f Field) ClientName() string {
	if f.Rename != "" {
		return f.Rename
	}
	return f.SourceName
}

// StructMeta is one //zap:type annotated struct.
type StructMeta struct {
	Name    string
	Doc     string
	Fields  []Field
	SrcFile string
}

// FunctionMeta is one //zap:export annotated function.
type FunctionMeta struct {
	Name      string // Go source name
	Namespace string // from a following //zap:namespace=<name> comment, "" if absent
	Async     bool   // from a sibling //zap:async marker comment
	Params    []Param
	Return    *Type
	Doc       string
	SrcFile   string
}

// ClientName converts a Go snake_case-or-PascalCase export name into the
// camelCase spec.md §4.8 requires for the flat/namespaced client files.
func (f FunctionMeta) ClientName() string {
	return lo.CamelCase(f.Name)
}

// WireName is the identifier used on the wire: the bare function name for
// the flat client, "namespace.name" for the namespaced client.
func (f FunctionMeta) WireName() string {
	if f.Namespace == "" {
		return f.Name
	}
	return f.Namespace + "." + f.Name
}

// Model is the complete result of walking a project source tree.
type Model struct {
	Functions []FunctionMeta
	Structs   []StructMeta
}
