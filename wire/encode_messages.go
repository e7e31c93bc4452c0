package wire

import "github.com/tinylib/msgp/msgp"

// ---- Handshake / HandshakeAck ----

func encodeHandshake(w *msgp.Writer, h Handshake) error {
	return writeEnvelope(w, KindHandshake, 4, func() error {
		if err := writeU32(w, "protocol_version", h.ProtocolVersion); err != nil {
			return err
		}
		if err := writeStr(w, "role", roleToString(h.Role)); err != nil {
			return err
		}
		if err := writeU32(w, "capabilities", uint32(h.Capabilities)); err != nil {
			return err
		}
		return writeU32(w, "max_frame_size", h.MaxFrameSize)
	})
}

func decodeHandshake(r *msgp.Reader, n uint32) (Handshake, error) {
	var h Handshake
	err := forEachField(r, n, func(key string) error {
		var err error
		switch key {
		case "protocol_version":
			h.ProtocolVersion, err = r.ReadUint32()
		case "role":
			var s string
			if s, err = r.ReadString(); err == nil {
				h.Role = roleFromString(s)
			}
		case "capabilities":
			var c uint32
			c, err = r.ReadUint32()
			h.Capabilities = Capabilities(c)
		case "max_frame_size":
			h.MaxFrameSize, err = r.ReadUint32()
		default:
			err = r.Skip()
		}
		return err
	})
	return h, err
}

func encodeHandshakeAck(w *msgp.Writer, a HandshakeAck) error {
	return writeEnvelope(w, KindHandshakeAck, 4, func() error {
		if err := writeU32(w, "protocol_version", a.ProtocolVersion); err != nil {
			return err
		}
		if err := writeU32(w, "capabilities", uint32(a.Capabilities)); err != nil {
			return err
		}
		if err := w.WriteString("server_id"); err != nil {
			return err
		}
		if err := w.WriteBytes(a.ServerID[:]); err != nil {
			return err
		}
		return writeU32(w, "export_count", a.ExportCount)
	})
}

func decodeHandshakeAck(r *msgp.Reader, n uint32) (HandshakeAck, error) {
	var a HandshakeAck
	err := forEachField(r, n, func(key string) error {
		var err error
		switch key {
		case "protocol_version":
			a.ProtocolVersion, err = r.ReadUint32()
		case "capabilities":
			var c uint32
			c, err = r.ReadUint32()
			a.Capabilities = Capabilities(c)
		case "server_id":
			var b []byte
			if b, err = r.ReadBytes(nil); err == nil {
				copy(a.ServerID[:], b)
			}
		case "export_count":
			a.ExportCount, err = r.ReadUint32()
		default:
			err = r.Skip()
		}
		return err
	})
	return a, err
}

// ---- ExportMetadata / ListExportsResult ----

func encodeExportMetadata(w *msgp.Writer, e ExportMetadata) error {
	if err := w.WriteMapHeader(5); err != nil {
		return err
	}
	if err := writeStr(w, "name", e.Name); err != nil {
		return err
	}
	if err := writeBool(w, "is_async", e.IsAsync); err != nil {
		return err
	}
	if err := writeBool(w, "is_streaming", e.IsStreaming); err != nil {
		return err
	}
	if err := writeStr(w, "params_schema", e.ParamsSchema); err != nil {
		return err
	}
	return writeStr(w, "return_schema", e.ReturnSchema)
}

func decodeExportMetadata(r *msgp.Reader) (ExportMetadata, error) {
	var e ExportMetadata
	sz, err := r.ReadMapHeader()
	if err != nil {
		return e, err
	}
	err = forEachField(r, sz, func(key string) error {
		var err error
		switch key {
		case "name":
			e.Name, err = r.ReadString()
		case "is_async":
			e.IsAsync, err = r.ReadBool()
		case "is_streaming":
			e.IsStreaming, err = r.ReadBool()
		case "params_schema":
			e.ParamsSchema, err = r.ReadString()
		case "return_schema":
			e.ReturnSchema, err = r.ReadString()
		default:
			err = r.Skip()
		}
		return err
	})
	return e, err
}

func encodeListExportsResult(w *msgp.Writer, l ListExportsResult) error {
	return writeEnvelope(w, KindListExportsResult, 1, func() error {
		if err := w.WriteString("exports"); err != nil {
			return err
		}
		if err := w.WriteArrayHeader(uint32(len(l.Exports))); err != nil {
			return err
		}
		for _, e := range l.Exports {
			if err := encodeExportMetadata(w, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeListExportsResult(r *msgp.Reader, n uint32) (ListExportsResult, error) {
	var l ListExportsResult
	err := forEachField(r, n, func(key string) error {
		if key != "exports" {
			return r.Skip()
		}
		sz, err := r.ReadArrayHeader()
		if err != nil {
			return err
		}
		l.Exports = make([]ExportMetadata, 0, sz)
		for i := uint32(0); i < sz; i++ {
			e, err := decodeExportMetadata(r)
			if err != nil {
				return err
			}
			l.Exports = append(l.Exports, e)
		}
		return nil
	})
	return l, err
}

// ---- RequestContext ----

func encodeRequestContext(w *msgp.Writer, c RequestContext) error {
	if err := w.WriteMapHeader(4); err != nil {
		return err
	}
	if err := writeU64(w, "trace_id", c.TraceID); err != nil {
		return err
	}
	if err := writeU64(w, "span_id", c.SpanID); err != nil {
		return err
	}
	if err := w.WriteString("headers"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(c.Headers))); err != nil {
		return err
	}
	for _, h := range c.Headers {
		if err := w.WriteArrayHeader(2); err != nil {
			return err
		}
		if err := w.WriteString(h.Name); err != nil {
			return err
		}
		if err := w.WriteString(h.Value); err != nil {
			return err
		}
	}
	if err := w.WriteString("auth"); err != nil {
		return err
	}
	if c.Auth == nil {
		return w.WriteNil()
	}
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := writeStr(w, "user_id", c.Auth.UserID); err != nil {
		return err
	}
	if err := w.WriteString("roles"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(c.Auth.Roles))); err != nil {
		return err
	}
	for _, role := range c.Auth.Roles {
		if err := w.WriteString(role); err != nil {
			return err
		}
	}
	return nil
}

func decodeRequestContext(r *msgp.Reader) (RequestContext, error) {
	var c RequestContext
	sz, err := r.ReadMapHeader()
	if err != nil {
		return c, err
	}
	err = forEachField(r, sz, func(key string) error {
		switch key {
		case "trace_id":
			v, err := r.ReadUint64()
			c.TraceID = v
			return err
		case "span_id":
			v, err := r.ReadUint64()
			c.SpanID = v
			return err
		case "headers":
			n, err := r.ReadArrayHeader()
			if err != nil {
				return err
			}
			c.Headers = make([]Header, 0, n)
			for i := uint32(0); i < n; i++ {
				if _, err := r.ReadArrayHeader(); err != nil {
					return err
				}
				name, err := r.ReadString()
				if err != nil {
					return err
				}
				value, err := r.ReadString()
				if err != nil {
					return err
				}
				c.Headers = append(c.Headers, Header{Name: name, Value: value})
			}
			return nil
		case "auth":
			isNil, err := r.IsNil()
			if err != nil {
				return err
			}
			if isNil {
				return r.ReadNil()
			}
			asz, err := r.ReadMapHeader()
			if err != nil {
				return err
			}
			auth := &AuthInfo{}
			if err := forEachField(r, asz, func(k string) error {
				switch k {
				case "user_id":
					v, err := r.ReadString()
					auth.UserID = v
					return err
				case "roles":
					n, err := r.ReadArrayHeader()
					if err != nil {
						return err
					}
					auth.Roles = make([]string, 0, n)
					for i := uint32(0); i < n; i++ {
						role, err := r.ReadString()
						if err != nil {
							return err
						}
						auth.Roles = append(auth.Roles, role)
					}
					return nil
				default:
					return r.Skip()
				}
			}); err != nil {
				return err
			}
			c.Auth = auth
			return nil
		default:
			return r.Skip()
		}
	})
	return c, err
}

// ---- Invoke / InvokeResult / InvokeError ----

func encodeInvoke(w *msgp.Writer, i Invoke) error {
	return writeEnvelope(w, KindInvoke, 5, func() error {
		if err := writeU64(w, "request_id", i.RequestID); err != nil {
			return err
		}
		if err := writeStr(w, "function_name", i.FunctionName); err != nil {
			return err
		}
		if err := w.WriteString("params"); err != nil {
			return err
		}
		if err := w.WriteBytes(i.Params); err != nil {
			return err
		}
		if err := writeU32(w, "deadline_ms", i.DeadlineMs); err != nil {
			return err
		}
		if err := w.WriteString("context"); err != nil {
			return err
		}
		return encodeRequestContext(w, i.Context)
	})
}

func decodeInvoke(r *msgp.Reader, n uint32) (Invoke, error) {
	var i Invoke
	err := forEachField(r, n, func(key string) error {
		var err error
		switch key {
		case "request_id":
			i.RequestID, err = r.ReadUint64()
		case "function_name":
			i.FunctionName, err = r.ReadString()
		case "params":
			i.Params, err = r.ReadBytes(nil)
		case "deadline_ms":
			i.DeadlineMs, err = r.ReadUint32()
		case "context":
			i.Context, err = decodeRequestContext(r)
		default:
			err = r.Skip()
		}
		return err
	})
	return i, err
}

func encodeInvokeResult(w *msgp.Writer, res InvokeResult) error {
	return writeEnvelope(w, KindInvokeResult, 3, func() error {
		if err := writeU64(w, "request_id", res.RequestID); err != nil {
			return err
		}
		if err := w.WriteString("result"); err != nil {
			return err
		}
		if err := w.WriteBytes(res.Result); err != nil {
			return err
		}
		return writeU64(w, "duration_us", res.DurationUs)
	})
}

func decodeInvokeResult(r *msgp.Reader, n uint32) (InvokeResult, error) {
	var res InvokeResult
	err := forEachField(r, n, func(key string) error {
		var err error
		switch key {
		case "request_id":
			res.RequestID, err = r.ReadUint64()
		case "result":
			res.Result, err = r.ReadBytes(nil)
		case "duration_us":
			res.DurationUs, err = r.ReadUint64()
		default:
			err = r.Skip()
		}
		return err
	})
	return res, err
}

func encodeInvokeError(w *msgp.Writer, e InvokeError) error {
	return writeEnvelope(w, KindInvokeError, 6, func() error {
		if err := writeU64(w, "request_id", e.RequestID); err != nil {
			return err
		}
		if err := writeU32(w, "code", e.Code); err != nil {
			return err
		}
		if err := writeU8(w, "kind", uint8(e.ErrKind)); err != nil {
			return err
		}
		if err := writeStr(w, "message", e.Message); err != nil {
			return err
		}
		if err := w.WriteString("has_details"); err != nil {
			return err
		}
		if err := w.WriteBool(e.Details != nil); err != nil {
			return err
		}
		if err := w.WriteString("details"); err != nil {
			return err
		}
		return w.WriteBytes(e.Details)
	})
}

func decodeInvokeError(r *msgp.Reader, n uint32) (InvokeError, error) {
	var e InvokeError
	var hasDetails bool
	err := forEachField(r, n, func(key string) error {
		var err error
		switch key {
		case "request_id":
			e.RequestID, err = r.ReadUint64()
		case "code":
			e.Code, err = r.ReadUint32()
		case "kind":
			var k uint8
			k, err = r.ReadUint8()
			e.ErrKind = ErrorKind(k)
		case "message":
			e.Message, err = r.ReadString()
		case "has_details":
			hasDetails, err = r.ReadBool()
		case "details":
			e.Details, err = r.ReadBytes(nil)
		default:
			err = r.Skip()
		}
		return err
	})
	if !hasDetails {
		e.Details = nil
	}
	return e, err
}

// ---- small helpers ----

func forEachField(r *msgp.Reader, n uint32, fn func(key string) error) error {
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return err
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func writeStr(w *msgp.Writer, key, val string) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteString(val)
}

func writeU32(w *msgp.Writer, key string, val uint32) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteUint32(val)
}

func writeU64(w *msgp.Writer, key string, val uint64) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteUint64(val)
}

func writeU8(w *msgp.Writer, key string, val uint8) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteUint8(val)
}

func writeBool(w *msgp.Writer, key string, val bool) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteBool(val)
}

func roleToString(r Role) string {
	if r == RoleWorker {
		return "worker"
	}
	return "host"
}

func roleFromString(s string) Role {
	if s == "worker" {
		return RoleWorker
	}
	return RoleHost
}
