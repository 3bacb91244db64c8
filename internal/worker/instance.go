package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/transport"
)

// instance is one live worker connection: the process, its framed channel
// and the goroutines serving them.
type instance struct {
	proc *Process
	ch   *transport.Channel

	ready     chan struct{}
	readyOnce sync.Once

	readerDone chan struct{}
	stderrDone chan struct{}
	gone       chan struct{}
	exited     chan struct{}

	stopping atomic.Bool
	lastSeen atomic.Int64

	mu    sync.Mutex
	cause error
}

func newInstance(proc *Process, maxFrame int) *instance {
	return &instance{
		proc:       proc,
		ch:         transport.New(proc.stdout, proc.stdin, proc.stdin, transport.WithMaxFrameSize(maxFrame)),
		ready:      make(chan struct{}),
		readerDone: make(chan struct{}),
		stderrDone: make(chan struct{}),
		gone:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

// SendContext implements router.Sender. A broken stdin, or a frame cut off
// because the worker stopped reading, is fatal for the instance.
func (i *instance) SendContext(ctx context.Context, msg protocol.Message) error {
	err := i.ch.SendContext(ctx, msg)
	if err != nil && errors.Is(err, protocol.ErrIO) && !i.stopping.Load() {
		i.fail(err)
	}
	return err
}

// fail records the first fatal error and kills the process so that its
// exit is the only crash signal the supervisor has to handle.
func (i *instance) fail(err error) {
	i.mu.Lock()
	if i.cause == nil {
		i.cause = err
	}
	i.mu.Unlock()
	_ = i.proc.Kill()
}

// exitCause returns the fatal transport error if there was one, otherwise
// the process exit status.
func (i *instance) exitCause() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cause != nil {
		return i.cause
	}
	return i.proc.exitCause()
}

func (i *instance) markReady() {
	i.readyOnce.Do(func() { close(i.ready) })
}

func (i *instance) touch() {
	i.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the last frame arrived.
func (i *instance) LastSeen() time.Time {
	ns := i.lastSeen.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// isGone reports whether the process has exited and the loss was
// announced. Its streams may still be draining.
func (i *instance) isGone() bool {
	select {
	case <-i.gone:
		return true
	default:
		return false
	}
}

// closeStdin closes the worker's input. The reader keeps draining stdout.
func (i *instance) closeStdin() {
	_ = i.ch.Close()
}

// receive reads frames until the stream fails and hands each one to
// handle. EOF during a stop is expected; any other ending is fatal.
func (i *instance) receive(handle func(protocol.Message)) {
	defer close(i.readerDone)

	for {
		msg, err := i.ch.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Usually the process is already gone and its exit status
				// is the better cause.
				if !i.stopping.Load() {
					_ = i.proc.Kill()
				}
				return
			}
			i.fail(err)
			return
		}
		i.touch()
		handle(msg)
	}
}

// scanStderr hands each stderr line to emit.
func (i *instance) scanStderr(emit func(string)) {
	defer close(i.stderrDone)

	sc := bufio.NewScanner(i.proc.stderr)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		emit(sc.Text())
	}
}

// reap waits for the process to exit. Once stdout has been read to the
// end, or after settle if something else still holds it open, gone is
// closed and lost is called. The streams then get up to drain to finish
// before every handle is closed and exited is closed.
func (i *instance) reap(settle, drain time.Duration, lost func()) {
	<-i.proc.Done()

	settleTimer := time.NewTimer(settle)
	select {
	case <-i.readerDone:
	case <-settleTimer.C:
	}
	settleTimer.Stop()
	close(i.gone)
	lost()

	timer := time.NewTimer(drain)
	defer timer.Stop()

	select {
	case <-i.readerDone:
	case <-timer.C:
		// A grandchild may still hold stdout open.
		_ = i.proc.stdout.Close()
		<-i.readerDone
	}
	select {
	case <-i.stderrDone:
	case <-time.After(drain):
		_ = i.proc.stderr.Close()
		<-i.stderrDone
	}

	_ = i.ch.Close()
	closeAll(i.proc.stdout, i.proc.stderr)
	close(i.exited)
}
