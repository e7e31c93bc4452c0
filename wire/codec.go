package wire

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// DefaultMaxFrameSize matches spec.md §3's stated default (100 MiB).
const DefaultMaxFrameSize = 100 * 1024 * 1024

// legacyJSONMagic is the leading byte that marks a frame as JSON-encoded on
// the legacy debug IPC channel (spec.md §4.1). The primary supervisor↔worker
// and host↔supervisor codec never emits it.
const legacyJSONMagic = '{'

// EncodeFrame serializes m and writes it as one length-prefixed frame:
// len:u32-be || payload. The caller is responsible for ensuring only one
// goroutine ever calls EncodeFrame on a given io.Writer at a time (spec.md
// §4.1's single-writer rule) — Conn below enforces that for socket use.
func EncodeFrame(w io.Writer, m Message) error {
	payload, err := Marshal(m)
	if err != nil {
		return err
	}
	if len(payload) > DefaultMaxFrameSize {
		return ErrFrameTooLarge
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	_, err = w.Write(frame) // single write_all, atomic from the OS's perspective
	return err
}

// DecodeFrame reads exactly one frame from r and decodes it. maxFrameSize
// of 0 falls back to DefaultMaxFrameSize.
func DecodeFrame(r io.Reader, maxFrameSize uint32) (Message, error) {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedFrame
		}
		return nil, err
	}

	if frameLen > 0 && payload[0] == legacyJSONMagic {
		return decodeLegacyJSON(payload)
	}

	msg, err := Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return msg, nil
}

// legacyEnvelope is the debug JSON fallback shape: a "kind" discriminator
// plus the message itself, used only by the legacy IPC channel mentioned in
// spec.md §4.1 (never produced by this implementation's own Conn).
type legacyEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func decodeLegacyJSON(payload []byte) (Message, error) {
	var env legacyEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(payload), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch env.Kind {
	case "list_exports":
		return ListExports{}, nil
	case "shutdown":
		return Shutdown{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported legacy kind %q", ErrMalformedPayload, env.Kind)
	}
}

// Conn wraps a net.Conn with the framing and single-writer discipline
// spec.md §4.1/§9 require: one writer goroutine drains an internal queue
// and performs the atomic frame write, eliminating interleaving by
// construction the same way broker.writerLoop does for the teacher's USB
// gadget transport.
type Conn struct {
	nc           net.Conn
	maxFrameSize uint32

	sendCh chan sendJob
	done   chan struct{}
}

type sendJob struct {
	msg  Message
	errc chan error
}

// NewConn starts the writer goroutine and returns a ready-to-use Conn.
func NewConn(nc net.Conn, maxFrameSize uint32) *Conn {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	c := &Conn{
		nc:           nc,
		maxFrameSize: maxFrameSize,
		sendCh:       make(chan sendJob, 64),
		done:         make(chan struct{}),
	}
	go c.writerLoop()
	return c
}

func (c *Conn) writerLoop() {
	defer close(c.done)
	for job := range c.sendCh {
		job.errc <- EncodeFrame(c.nc, job.msg)
	}
}

// Send enqueues m for the writer goroutine and waits for it to be written,
// or for ctx to be cancelled first.
func (c *Conn) Send(ctx context.Context, m Message) error {
	errc := make(chan error, 1)
	select {
	case c.sendCh <- sendJob{msg: m, errc: errc}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next frame on the read half. Only one goroutine
// should call Recv at a time (the per-connection reader loop owns it).
func (c *Conn) Recv() (Message, error) {
	return DecodeFrame(c.nc, c.maxFrameSize)
}

// Close closes the writer queue and the underlying connection.
func (c *Conn) Close() error {
	close(c.sendCh)
	<-c.done
	return c.nc.Close()
}
