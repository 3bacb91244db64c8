package transport

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/dshills/retroide/internal/protocol"
)

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("channel closed")

// Channel carries framed messages over an ordered byte stream, typically a
// worker's stdin and stdout.
//
// Send may be called from any goroutine. Receive must only be called by a
// single reader goroutine. A Channel is not reusable: once Receive has
// returned an error the caller builds a new Channel on a new stream.
type Channel struct {
	enc    *Encoder
	dec    *Decoder
	closer io.Closer

	closed atomic.Bool
}

// Option configures a Channel.
type Option func(*options)

type options struct {
	maxFrame int
}

// WithMaxFrameSize bounds the size of a single frame body in both
// directions.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrame = n
		}
	}
}

// New creates a channel reading frames from r and writing frames to w.
// If c is non-nil it is closed by Close.
func New(r io.Reader, w io.Writer, c io.Closer, opts ...Option) *Channel {
	o := options{maxFrame: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}

	return &Channel{
		enc:    NewEncoder(w, o.maxFrame),
		dec:    NewDecoder(r, o.maxFrame),
		closer: c,
	}
}

// Send writes one message. A broken stream yields a *protocol.IOError.
func (c *Channel) Send(msg protocol.Message) error {
	return c.SendContext(context.Background(), msg)
}

// SendContext writes one message, giving up when ctx is done. See
// Encoder.EncodeContext for the errors.
func (c *Channel) SendContext(ctx context.Context, msg protocol.Message) error {
	if c.closed.Load() {
		return &protocol.IOError{Op: "write", Err: ErrClosed}
	}
	return c.enc.EncodeContext(ctx, msg)
}

// Receive returns the next message, or io.EOF when the peer closed the
// stream cleanly. Closing the channel does not stop Receive: the peer may
// still flush frames after its input is closed.
func (c *Channel) Receive() (protocol.Message, error) {
	return c.dec.Decode()
}

// Close marks the channel closed for sending and closes the underlying
// closer, normally the write side. It is safe to call more than once.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	return c.closed.Load()
}
