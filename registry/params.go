package registry

import (
	"bytes"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Params is the deserialized form of an Invoke.Params blob: a msgpack map
// decoded eagerly into plain Go values, so user functions pull named
// arguments out with ordinary accessors instead of touching msgp.Reader
// directly (spec.md §4.3 step 2).
type Params struct {
	values map[string]any
}

// DecodeParams parses an opaque wire.Invoke.Params payload. A payload that
// isn't a msgpack map, or that can't be parsed at all, is a caller-fault
// deserialization failure (spec.md §7), reported as *InvalidParameter.
func DecodeParams(raw []byte) (*Params, error) {
	if len(raw) == 0 {
		return &Params{values: map[string]any{}}, nil
	}
	r := msgp.NewReader(bytes.NewReader(raw))
	v, err := decodeAny(r)
	if err != nil {
		return nil, &InvalidParameter{Name: "<params>", Reason: err.Error()}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &InvalidParameter{Name: "<params>", Reason: "params payload is not a map"}
	}
	return &Params{values: m}, nil
}

// EncodeParams is the inverse of DecodeParams, used by tests and by worker
// runtime code constructing an Invoke to send.
func EncodeParams(values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := encodeMap(w, values); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeResult serializes a user function's successful return value using
// the same generic codec Params uses, so a bare scalar, a slice, or a
// struct all round-trip through wire.InvokeResult.Result without a
// per-type marshaler.
func EncodeResult(value any) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := encodeAny(w, value); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

func (p *Params) get(name string) (any, error) {
	v, ok := p.values[name]
	if !ok {
		return nil, &MissingParameter{Name: name}
	}
	return v, nil
}

func (p *Params) GetString(name string) (string, error) {
	v, err := p.get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func (p *Params) GetInt64(name string) (int64, error) {
	v, err := p.get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected integer, got %T", v)}
}

func (p *Params) GetUint64(name string) (uint64, error) {
	v, err := p.get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, &InvalidParameter{Name: name, Reason: "expected non-negative integer"}
		}
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	}
	return 0, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected unsigned integer, got %T", v)}
}

func (p *Params) GetFloat64(name string) (float64, error) {
	v, err := p.get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected number, got %T", v)}
}

func (p *Params) GetBool(name string) (bool, error) {
	v, err := p.get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected bool, got %T", v)}
	}
	return b, nil
}

func (p *Params) GetBytes(name string) ([]byte, error) {
	v, err := p.get(name)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected bytes, got %T", v)}
	}
	return b, nil
}

func (p *Params) GetSlice(name string) ([]any, error) {
	v, err := p.get(name)
	if err != nil {
		return nil, err
	}
	s, ok := v.([]any)
	if !ok {
		return nil, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected array, got %T", v)}
	}
	return s, nil
}

func (p *Params) GetMap(name string) (map[string]any, error) {
	v, err := p.get(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &InvalidParameter{Name: name, Reason: fmt.Sprintf("expected map, got %T", v)}
	}
	return m, nil
}
