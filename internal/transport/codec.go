package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/dshills/retroide/internal/protocol"
)

// HeaderSize is the length of the big-endian frame length prefix.
const HeaderSize = 4

// DefaultMaxFrameSize bounds a single frame body.
const DefaultMaxFrameSize = 16 << 20

// Encoder writes length-prefixed frames. It is safe for concurrent use;
// each frame is written with a single Write while holding the write slot.
type Encoder struct {
	slot     chan struct{}
	w        io.Writer
	maxFrame int
}

// deadlineWriter is implemented by writers whose blocked writes can be
// interrupted, such as *os.File pipes.
type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer, maxFrame int) *Encoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Encoder{
		slot:     make(chan struct{}, 1),
		w:        w,
		maxFrame: maxFrame,
	}
}

// Encode validates, marshals and writes msg as one frame.
func (e *Encoder) Encode(msg protocol.Message) error {
	return e.EncodeContext(context.Background(), msg)
}

// EncodeContext is Encode bounded by ctx. Waiting for another frame to
// finish and, when the writer supports write deadlines, the write itself
// stop when ctx is done.
//
// A frame abandoned before any byte was written leaves the stream intact
// and yields ctx's error; a deadline is reported as protocol.ErrTimeout.
// A frame cut off part way yields a *protocol.IOError, since the stream
// can no longer be framed.
func (e *Encoder) EncodeContext(ctx context.Context, msg protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(body) > e.maxFrame {
		return &protocol.ProtocolError{
			Reason: fmt.Sprintf("frame of %d bytes exceeds limit %d", len(body), e.maxFrame),
		}
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(len(body)))
	copy(frame[HeaderSize:], body)

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return interrupted(ctx)
	}
	defer func() { <-e.slot }()

	if err := ctx.Err(); err != nil {
		return interrupted(ctx)
	}

	n, err := e.write(ctx, frame)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if n == 0 {
			return interrupted(ctx)
		}
		return &protocol.IOError{Op: "write", Err: fmt.Errorf("frame cut off after %d of %d bytes: %w", n, len(frame), interrupted(ctx))}
	}
	return &protocol.IOError{Op: "write", Err: err}
}

// write performs the frame write. Must hold the write slot.
func (e *Encoder) write(ctx context.Context, frame []byte) (int, error) {
	dw, ok := e.w.(deadlineWriter)
	if !ok || ctx.Done() == nil {
		if ok {
			_ = dw.SetWriteDeadline(time.Time{})
		}
		return e.w.Write(frame)
	}

	deadline, _ := ctx.Deadline()
	if err := dw.SetWriteDeadline(deadline); err != nil {
		// Not pollable; the write cannot be interrupted.
		return e.w.Write(frame)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = dw.SetWriteDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	return e.w.Write(frame)
}

// interrupted describes why ctx ended a write.
func interrupted(ctx context.Context) error {
	err := ctx.Err()
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("write frame: %w", protocol.ErrTimeout)
	}
	return err
}

// Decoder reads length-prefixed frames. It buffers partial frames across
// reads and never returns a partial message. A Decoder must be used from a
// single goroutine.
type Decoder struct {
	r        *bufio.Reader
	maxFrame int
	header   [HeaderSize]byte
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, maxFrame int) *Decoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Decoder{
		r:        bufio.NewReaderSize(r, 64*1024),
		maxFrame: maxFrame,
	}
}

// Decode reads the next message.
//
// It returns io.EOF when the stream ends on a frame boundary. A stream that
// ends inside a frame, or a frame that cannot be decoded, yields a
// *protocol.ProtocolError. Other read failures yield a *protocol.IOError.
func (d *Decoder) Decode() (protocol.Message, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return protocol.Message{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return protocol.Message{}, &protocol.ProtocolError{Reason: "truncated frame header", Err: err}
		default:
			return protocol.Message{}, &protocol.IOError{Op: "read", Err: err}
		}
	}

	size := binary.BigEndian.Uint32(d.header[:])
	if size == 0 {
		return protocol.Message{}, &protocol.ProtocolError{Reason: "empty frame"}
	}
	if uint64(size) > uint64(d.maxFrame) {
		return protocol.Message{}, &protocol.ProtocolError{
			Reason: fmt.Sprintf("frame of %d bytes exceeds limit %d", size, d.maxFrame),
		}
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.Message{}, &protocol.ProtocolError{Reason: "truncated frame body", Err: io.ErrUnexpectedEOF}
		}
		return protocol.Message{}, &protocol.IOError{Op: "read", Err: err}
	}

	return decodeBody(body)
}

// decodeBody parses and validates a frame body.
func decodeBody(body []byte) (protocol.Message, error) {
	if !utf8.Valid(body) {
		return protocol.Message{}, &protocol.ProtocolError{Reason: "frame body is not valid UTF-8"}
	}

	var msg protocol.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return protocol.Message{}, &protocol.ProtocolError{Reason: "malformed body", Err: err}
	}
	if err := msg.Validate(); err != nil {
		return protocol.Message{}, &protocol.ProtocolError{Reason: "invalid message", Err: err}
	}
	return msg, nil
}
