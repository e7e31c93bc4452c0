package wire

import (
	"bytes"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Every Message is written as a single MessagePack map whose first entry is
// always "kind" followed by one entry per field, each keyed by field name.
// A decoder that doesn't recognize a key calls Skip() and moves on, which
// is what makes additive schema evolution safe (spec.md §3, §4.2) without a
// schema registry or generated marshal code.

// Marshal encodes a Message to its wire representation (payload only, not
// yet length-prefixed — see codec.go for framing).
func Marshal(m Message) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)

	var err error
	switch v := m.(type) {
	case Handshake:
		err = encodeHandshake(w, v)
	case HandshakeAck:
		err = encodeHandshakeAck(w, v)
	case ListExports:
		err = writeEnvelope(w, KindListExports, 0, nil)
	case ListExportsResult:
		err = encodeListExportsResult(w, v)
	case Invoke:
		err = encodeInvoke(w, v)
	case InvokeResult:
		err = encodeInvokeResult(w, v)
	case InvokeError:
		err = encodeInvokeError(w, v)
	case Cancel:
		err = encodeRequestIDOnly(w, KindCancel, v.RequestID)
	case CancelAck:
		err = encodeRequestIDOnly(w, KindCancelAck, v.RequestID)
	case Shutdown:
		err = writeEnvelope(w, KindShutdown, 0, nil)
	case ShutdownAck:
		err = writeEnvelope(w, KindShutdownAck, 0, nil)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageKind, m)
	}
	if err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a wire payload into a concrete Message. Unknown map
// keys inside a known variant are skipped rather than rejected.
func Unmarshal(payload []byte) (Message, error) {
	r := msgp.NewReader(bytes.NewReader(payload))

	kind, n, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindHandshake:
		return decodeHandshake(r, n)
	case KindHandshakeAck:
		return decodeHandshakeAck(r, n)
	case KindListExports:
		return ListExports{}, skipFields(r, n)
	case KindListExportsResult:
		return decodeListExportsResult(r, n)
	case KindInvoke:
		return decodeInvoke(r, n)
	case KindInvokeResult:
		return decodeInvokeResult(r, n)
	case KindInvokeError:
		return decodeInvokeError(r, n)
	case KindCancel:
		id, err := decodeRequestIDOnly(r, n)
		return Cancel{RequestID: id}, err
	case KindCancelAck:
		id, err := decodeRequestIDOnly(r, n)
		return CancelAck{RequestID: id}, err
	case KindShutdown:
		return Shutdown{}, skipFields(r, n)
	case KindShutdownAck:
		return ShutdownAck{}, skipFields(r, n)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageKind, kind)
	}
}

// writeEnvelope writes the map header (1 "kind" entry + extra fields) and
// the "kind" entry itself; fn then writes the remaining `extra` fields.
func writeEnvelope(w *msgp.Writer, kind MessageKind, extra uint32, fn func() error) error {
	if err := w.WriteMapHeader(extra + 1); err != nil {
		return err
	}
	if err := w.WriteString("kind"); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(kind)); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	return fn()
}

// readEnvelope reads the map header and the leading "kind" entry, returning
// the kind and the number of remaining (key, value) fields.
func readEnvelope(r *msgp.Reader) (MessageKind, uint32, error) {
	sz, err := r.ReadMapHeader()
	if err != nil {
		return 0, 0, err
	}
	if sz == 0 {
		return 0, 0, ErrMalformedPayload
	}
	key, err := r.ReadString()
	if err != nil {
		return 0, 0, err
	}
	if key != "kind" {
		return 0, 0, ErrMalformedPayload
	}
	v, err := r.ReadUint8()
	if err != nil {
		return 0, 0, err
	}
	return MessageKind(v), sz - 1, nil
}

// skipFields consumes n (key, value) pairs without interpreting them — the
// behavior a forward-compatible decoder exhibits for fields it doesn't
// recognize, and the whole body for variants this implementation treats as
// fieldless (ListExports, Shutdown, ShutdownAck).
func skipFields(r *msgp.Reader, n uint32) error {
	for i := uint32(0); i < n; i++ {
		if _, err := r.ReadString(); err != nil {
			return err
		}
		if err := r.Skip(); err != nil {
			return err
		}
	}
	return nil
}

func writeRequestID(w *msgp.Writer, id uint64) error {
	if err := w.WriteString("request_id"); err != nil {
		return err
	}
	return w.WriteUint64(id)
}

func encodeRequestIDOnly(w *msgp.Writer, kind MessageKind, id uint64) error {
	return writeEnvelope(w, kind, 1, func() error {
		return writeRequestID(w, id)
	})
}

func decodeRequestIDOnly(r *msgp.Reader, n uint32) (uint64, error) {
	var id uint64
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return 0, err
		}
		switch key {
		case "request_id":
			if id, err = r.ReadUint64(); err != nil {
				return 0, err
			}
		default:
			if err := r.Skip(); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}
