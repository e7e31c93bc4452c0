package registry

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/tinylib/msgp/msgp"
)

// encodeAny / decodeAny give the registry a small, reflection-based
// MessagePack codec for opaque params/result payloads, in the same style
// as wire's hand-written map codec but generic over arbitrary Go values
// instead of the closed protocol message set. Structs are encoded as
// msgpack maps keyed by field name (or a `msgp:"name"` tag override, the
// same tag convention codegen reads for struct field renames — see
// codegen/model.go), so a user function's return struct round-trips the
// same way an ExportMetadata or RequestContext does in wire.

func encodeAny(w *msgp.Writer, v any) error {
	if v == nil {
		return w.WriteNil()
	}
	switch t := v.(type) {
	case string:
		return w.WriteString(t)
	case []byte:
		return w.WriteBytes(t)
	case bool:
		return w.WriteBool(t)
	case int:
		return w.WriteInt64(int64(t))
	case int32:
		return w.WriteInt64(int64(t))
	case int64:
		return w.WriteInt64(t)
	case uint:
		return w.WriteUint64(uint64(t))
	case uint32:
		return w.WriteUint64(uint64(t))
	case uint64:
		return w.WriteUint64(t)
	case float32:
		return w.WriteFloat64(float64(t))
	case float64:
		return w.WriteFloat64(t)
	case map[string]any:
		return encodeMap(w, t)
	case []any:
		if err := w.WriteArrayHeader(uint32(len(t))); err != nil {
			return err
		}
		for _, elem := range t {
			if err := encodeAny(w, elem); err != nil {
				return err
			}
		}
		return nil
	}
	return encodeReflect(w, reflect.ValueOf(v))
}

func encodeMap(w *msgp.Writer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic wire output
	if err := w.WriteMapHeader(uint32(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.WriteString(k); err != nil {
			return err
		}
		if err := encodeAny(w, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func encodeReflect(w *msgp.Writer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return w.WriteNil()
		}
		return encodeReflect(w, rv.Elem())
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if err := w.WriteArrayHeader(uint32(n)); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := encodeAny(w, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		return encodeStruct(w, rv)
	case reflect.String:
		return w.WriteString(rv.String())
	case reflect.Bool:
		return w.WriteBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return w.WriteInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return w.WriteUint64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return w.WriteFloat64(rv.Float())
	default:
		return fmt.Errorf("registry: cannot encode value of kind %s", rv.Kind())
	}
}

func encodeStruct(w *msgp.Writer, rv reflect.Value) error {
	rt := rv.Type()
	type field struct {
		name string
		val  reflect.Value
	}
	fields := make([]field, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("msgp"); ok && tag != "" && tag != "-" {
			name = tag
		} else if tag == "-" {
			continue
		}
		fields = append(fields, field{name: name, val: rv.Field(i)})
	}
	if err := w.WriteMapHeader(uint32(len(fields))); err != nil {
		return err
	}
	for _, f := range fields {
		if err := w.WriteString(f.name); err != nil {
			return err
		}
		if err := encodeAny(w, f.val.Interface()); err != nil {
			return err
		}
	}
	return nil
}

func decodeAny(r *msgp.Reader) (any, error) {
	t, err := r.NextType()
	if err != nil {
		return nil, err
	}
	switch t {
	case msgp.StrType:
		return r.ReadString()
	case msgp.BinType:
		return r.ReadBytes(nil)
	case msgp.BoolType:
		return r.ReadBool()
	case msgp.IntType:
		return r.ReadInt64()
	case msgp.UintType:
		return r.ReadUint64()
	case msgp.Float32Type:
		v, err := r.ReadFloat32()
		return float64(v), err
	case msgp.Float64Type:
		return r.ReadFloat64()
	case msgp.NilType:
		return nil, r.ReadNil()
	case msgp.ArrayType:
		n, err := r.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := decodeAny(r)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case msgp.MapType:
		n, err := r.ReadMapHeader()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, n)
		for i := uint32(0); i < n; i++ {
			k, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			v, err := decodeAny(r)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("registry: unsupported msgpack type %s", t)
	}
}
