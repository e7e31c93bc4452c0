package registry

import "fmt"

// MissingParameter and InvalidParameter are the two deserialization-failure
// shapes spec.md §4.3 step 2 calls out by name; both surface to the caller
// as a User-kind InvokeError (spec.md §9's resolved Open Question).

type MissingParameter struct {
	Name string
}

func (e *MissingParameter) Error() string {
	return fmt.Sprintf("registry: missing parameter %q", e.Name)
}

type InvalidParameter struct {
	Name   string
	Reason string
}

func (e *InvalidParameter) Error() string {
	return fmt.Sprintf("registry: invalid parameter %q: %s", e.Name, e.Reason)
}

// UserError wraps the Err branch of a user function's fallible Result
// (spec.md §4.3 step 5). Value is serialized the same way a successful
// result is, and Dispatch tags it with wire.TypedErrorPrefix so the
// generated client can recover a typed error instead of a bare string.
type UserError struct {
	Value any
}

func (e *UserError) Error() string {
	return fmt.Sprintf("%v", e.Value)
}

// DuplicateExport is the panic value Register raises for a second
// registration under the same name (spec.md §4.3: "duplicate names are a
// fatal startup error"), mirroring broker.New's own panic("broker: handler
// is required") precedent for configuration mistakes that must not reach
// runtime.
type DuplicateExport struct {
	Name string
}

func (e *DuplicateExport) Error() string {
	return fmt.Sprintf("registry: export %q already registered", e.Name)
}
