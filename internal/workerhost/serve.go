package workerhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/transport"
)

// ToolHandler runs tools for the host.
type ToolHandler interface {
	Tools() []toolchain.Tool
	Call(ctx context.Context, name string, args json.RawMessage, progress toolchain.ProgressFunc) (*toolchain.CallToolResult, error)
}

// ServerInfo is the payload of the ready event.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Tools   int    `json:"tools"`
}

// Option configures Serve.
type Option func(*options)

type options struct {
	log      *logging.Logger
	maxFrame int
	name     string
	version  string
}

// WithLogger sets the host's logger. Worker logs belong on stderr.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxFrameSize bounds frames in both directions.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrame = n
	}
}

// WithServerInfo sets the name and version announced in the ready event.
func WithServerInfo(name, version string) Option {
	return func(o *options) {
		o.name = name
		o.version = version
	}
}

// Serve runs the worker protocol on r and w until a shutdown request has
// been answered, r reaches EOF, or ctx is cancelled. Shutdown waits for
// in-flight requests before replying. A clean end returns nil.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h ToolHandler, opts ...Option) error {
	o := options{
		log:      logging.Nop(),
		maxFrame: transport.DefaultMaxFrameSize,
		name:     "retroide",
		version:  "dev",
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &server{
		ch:      transport.New(r, w, nil, transport.WithMaxFrameSize(o.maxFrame)),
		handler: h,
		log:     o.log.WithComponent("workerhost"),
	}
	return s.run(ctx, ServerInfo{Name: o.name, Version: o.version, Tools: len(h.Tools())})
}

type server struct {
	ch      *transport.Channel
	handler ToolHandler
	log     *logging.Logger
	wg      sync.WaitGroup
}

type received struct {
	msg protocol.Message
	err error
}

func (s *server) run(ctx context.Context, info ServerInfo) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready, err := protocol.NewEvent(protocol.EventReady, info)
	if err != nil {
		return err
	}
	if err := s.ch.Send(ready); err != nil {
		return fmt.Errorf("announce ready: %w", err)
	}
	s.log.Info("worker ready", "tools", info.Tools)

	// Receive blocks, so it runs apart from the loop that watches ctx. The
	// goroutine ends when the input does.
	incoming := make(chan received)
	go func() {
		for {
			msg, err := s.ch.Receive()
			select {
			case incoming <- received{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	defer s.wg.Wait()

	for {
		var in received
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in = <-incoming:
		}

		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				s.log.Info("input closed")
				return nil
			}
			return in.err
		}

		msg := in.msg
		if msg.Kind != protocol.KindRequest {
			s.log.Debug("ignoring message", "message", msg.String())
			continue
		}

		if msg.Method == protocol.MethodShutdown {
			s.wg.Wait()
			s.reply(msg.ID, nil)
			s.log.Info("shutdown requested")
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, msg)
		}()
	}
}

// handle answers one request.
func (s *server) handle(ctx context.Context, msg protocol.Message) {
	switch msg.Method {
	case protocol.MethodPing:
		s.reply(msg.ID, map[string]bool{"pong": true})

	case protocol.MethodToolsList:
		s.reply(msg.ID, toolchain.ListToolsResult{Tools: s.handler.Tools()})

	case protocol.MethodToolsCall:
		var params toolchain.CallToolParams
		if err := msg.DecodeParams(&params); err != nil || params.Name == "" {
			s.fail(msg.ID, protocol.CodeInvalidParams, "tools/call requires a tool name")
			return
		}
		result, err := s.handler.Call(ctx, params.Name, params.Arguments, s.progress)
		if err != nil {
			s.log.Warn("tool failed", "tool", params.Name, "error", err)
			s.fail(msg.ID, errorCode(err), err.Error())
			return
		}
		s.reply(msg.ID, result)

	default:
		s.fail(msg.ID, protocol.CodeMethodNotFound, "method not found: "+msg.Method)
	}
}

// progress forwards a tool's progress report as an event.
func (s *server) progress(p toolchain.Progress) {
	ev, err := protocol.NewEvent(toolchain.EventBuildProgress, p)
	if err != nil {
		return
	}
	if err := s.ch.Send(ev); err != nil {
		s.log.Warn("progress event not sent", "error", err)
	}
}

func (s *server) reply(id uint64, result any) {
	resp, err := protocol.NewResponse(id, result)
	if err != nil {
		resp = protocol.NewErrorResponse(id, protocol.CodeInternalError, err.Error())
	}
	if err := s.ch.Send(resp); err != nil {
		s.log.Warn("reply not sent", "id", id, "error", err)
	}
}

func (s *server) fail(id uint64, code int, message string) {
	if err := s.ch.Send(protocol.NewErrorResponse(id, code, message)); err != nil {
		s.log.Warn("error reply not sent", "id", id, "error", err)
	}
}

// errorCode maps a handler error to a wire error code.
func errorCode(err error) int {
	switch {
	case errors.Is(err, toolchain.ErrUnknownTool), errors.Is(err, toolchain.ErrInvalidArguments):
		return protocol.CodeInvalidParams
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.CodeInternalError
	default:
		return protocol.CodeToolFailed
	}
}
