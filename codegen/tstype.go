package codegen

import "fmt"

// tsType renders a Type node as a TypeScript type expression, following
// spec.md §4.8's client-surface mapping table (Option<T> => T | null,
// fallible-result R<T,E> => T | E, integers of any width => number).
func tsType(t *Type) string {
	if t == nil {
		return "unknown"
	}
	switch t.Kind {
	case KindInt, KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindBytes:
		return "Uint8Array"
	case KindUnit:
		return "void"
	case KindOption:
		return tsType(t.Elem) + " | null"
	case KindSlice:
		return tsType(t.Elem) + "[]"
	case KindMap:
		return fmt.Sprintf("Record<%s, %s>", tsType(t.Key), tsType(t.Value))
	case KindResult:
		return tsType(t.Elem) + " | " + tsType(t.Err)
	case KindNamed:
		return tsNamedType(t.Name)
	default:
		return "unknown"
	}
}

// tsNamedType maps Go builtin named types that survive resolveIdent's
// default branch (error, any, unrecognized primitives) plus otherwise
// passes user-defined type names through unchanged (spec.md §4.8:
// "unknown named types pass through as custom names").
func tsNamedType(name string) string {
	switch name {
	case "error":
		return "string"
	case "any":
		return "unknown"
	case "byte":
		return "number"
	default:
		return name
	}
}
