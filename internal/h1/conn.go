package h1

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Channel is the narrow async I/O surface a connection owns: writes are
// fire-and-forget and Close tears the transport down. In production it is
// backed by a gnet.Conn; tests substitute an in-memory fake.
type Channel interface {
	AsyncWrite(p []byte) error
	Close() error
}

// Handler is the application delegate, invoked synchronously once per
// parsed request on the connection's event-loop goroutine. It must
// eventually finalize the response, which recycles or closes the
// connection through the writer.
type Handler interface {
	Handle(ctx context.Context, req *Request, w *ResponseWriter) error
}

// ErrConnClosed is returned by operations issued after the connection's
// channel has been closed.
var ErrConnClosed = errors.New("h1: connection closed")

// errCloseRequested signals the event loop that the connection should be
// torn down after the current response; it is control flow, not a fault.
var errCloseRequested = errors.New("h1: connection close requested")

type connState int

const (
	stateInitial connState = iota
	stateParsed
	stateReset
)

func (s connState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateParsed:
		return "parsed"
	case stateReset:
		return "reset"
	}
	return "unknown"
}

// Limits carries the per-connection resource policy.
type Limits struct {
	// KeepAliveTimeout is how long an idle recycled connection may wait
	// for its next request before the reaper closes it.
	KeepAliveTimeout time.Duration
	// MaxRequests is the number of requests a connection may serve before
	// it must close regardless of the client's keep-alive preference.
	MaxRequests int
	// MaxBacklogBytes caps bytes queued while a request is still being
	// handled. Exceeding it closes the connection.
	MaxBacklogBytes int
	// MaxUnparsedBytes caps bytes buffered without a parse milestone.
	// Exceeding it closes the connection.
	MaxUnparsedBytes int
}

// DefaultLimits returns the connection policy used when the caller does
// not override it.
func DefaultLimits() Limits {
	return Limits{
		KeepAliveTimeout: 60 * time.Second,
		MaxRequests:      20,
		MaxBacklogBytes:  1 << 20,
		MaxUnparsedBytes: 1 << 20,
	}
}

// Conn owns one accepted socket end to end: it feeds incoming chunks to
// the parser, dispatches completed requests to the delegate, and decides
// per the keep-alive contract whether the socket is recycled or closed.
// All reads and dispatches for one Conn run on its gnet event-loop
// goroutine; the mutex only guards the few fields the reaper inspects
// from the ticker goroutine.
type Conn struct {
	ch      Channel
	parser  *Parser
	req     Request
	writer  *ResponseWriter
	handler Handler
	logger  *log.Logger
	ctx     context.Context
	limits  Limits

	state           connState
	clientKeepAlive bool

	backlog      [][]byte
	backlogBytes int

	mu             sync.Mutex
	remaining      int
	inProgress     bool
	keepAliveUntil time.Time
	closed         bool
}

// NewConn creates the lifecycle handler for one accepted socket.
func NewConn(ctx context.Context, ch Channel, handler Handler, logger *log.Logger, limits Limits) *Conn {
	if logger == nil {
		logger = log.Default()
	}
	if limits.MaxRequests <= 0 {
		limits.MaxRequests = DefaultLimits().MaxRequests
	}
	if limits.KeepAliveTimeout <= 0 {
		limits.KeepAliveTimeout = DefaultLimits().KeepAliveTimeout
	}
	c := &Conn{
		ch:        ch,
		parser:    NewParser(),
		handler:   handler,
		logger:    logger,
		ctx:       ctx,
		limits:    limits,
		state:     stateInitial,
		remaining: limits.MaxRequests,
	}
	c.writer = NewResponseWriter(c, logger)
	return c
}

// OnData is the read completion callback: it is invoked with each chunk
// the transport delivers, possibly many times per logical request. An
// empty chunk is a no-op. The chunk is copied before processing because
// the event loop reuses its read buffer.
func (c *Conn) OnData(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.inProgress = true
	c.keepAliveUntil = time.Time{}
	c.mu.Unlock()

	data := make([]byte, len(chunk))
	copy(data, chunk)
	err := c.transition(data)

	c.mu.Lock()
	c.inProgress = false
	c.mu.Unlock()
	return err
}

// OnStreamEnd is the terminal callback: the transport finished, with err
// carrying the reason for an abnormal close. No reads or writes follow.
func (c *Conn) OnStreamEnd(err error) {
	if err != nil {
		c.logger.Printf("connection closed abnormally: %v", err)
	}
	_ = c.Close()
}

// transition runs the two-step state dispatch for one chunk. The reset
// branch recycles request and response state and falls through to parsing
// within the same invocation, so a byte arriving on a recycled connection
// is parsed immediately.
func (c *Conn) transition(data []byte) error {
	switch c.state {
	case stateReset:
		c.parser.Reset()
		c.req.Reset()
		c.writer.Reset()
		c.state = stateInitial
		fallthrough
	case stateInitial:
		return c.feed(data)
	case stateParsed:
		return c.enqueueBacklog(data)
	}
	return nil
}

// feed hands a chunk to the parser and maps the phase outcome to handler
// behavior.
func (c *Conn) feed(data []byte) error {
	phase := c.parser.Parse(&c.req, data)
	switch phase {
	case PhaseHeadersComplete, PhaseMessageComplete:
		c.clientKeepAlive = false
		return c.dispatch()
	case PhaseHeadersCompleteKeepAlive, PhaseMessageCompleteKeepAlive:
		c.clientKeepAlive = true
		return c.dispatch()
	case PhaseError, PhaseInitial:
		// No milestone. A malformed or endlessly-accumulating stream makes
		// no forward progress, so cap the unparsed buffer rather than wait
		// for the transport to give up.
		if c.limits.MaxUnparsedBytes > 0 && c.parser.Buffered() > c.limits.MaxUnparsedBytes {
			_ = c.Close()
			return fmt.Errorf("h1: unparsed buffer exceeds %d bytes", c.limits.MaxUnparsedBytes)
		}
		return nil
	case PhaseReset:
		return nil
	}
	return nil
}

// dispatch transitions to parsed and synchronously invokes the delegate.
func (c *Conn) dispatch() error {
	c.state = stateParsed
	if err := c.handler.Handle(c.ctx, &c.req, c.writer); err != nil {
		c.logger.Printf("handler error: %v", err)
		_ = c.writer.WriteError(500, "Internal Server Error")
		return errCloseRequested
	}
	return nil
}

// enqueueBacklog stores bytes that arrived for a subsequent request while
// the current one is still with the delegate. The queue is bounded; a
// client that overruns it loses the connection.
func (c *Conn) enqueueBacklog(data []byte) error {
	c.mu.Lock()
	c.backlogBytes += len(data)
	over := c.limits.MaxBacklogBytes > 0 && c.backlogBytes > c.limits.MaxBacklogBytes
	if !over {
		c.backlog = append(c.backlog, data)
	}
	c.mu.Unlock()
	if over {
		_ = c.Close()
		return fmt.Errorf("h1: pipeline backlog exceeds %d bytes", c.limits.MaxBacklogBytes)
	}
	return nil
}

// KeepAlive recycles the connection for the next request: one unit of the
// request budget is spent, the idle deadline starts ticking, and any
// backlog queued during the previous request is replayed in order within
// the same scheduling turn.
func (c *Conn) KeepAlive() {
	c.mu.Lock()
	c.state = stateReset
	c.remaining--
	c.inProgress = false
	c.keepAliveUntil = time.Now().Add(c.limits.KeepAliveTimeout)
	backlog := c.backlog
	c.backlog = nil
	c.backlogBytes = 0
	c.mu.Unlock()

	for _, data := range backlog {
		if err := c.transition(data); err != nil {
			return
		}
	}
	// Leftover bytes of a pipelined request may already sit inside the
	// parser; pick them up now rather than waiting for the next chunk.
	if c.state == stateReset && c.parser.Buffered() > 0 {
		_ = c.transition(nil)
	}
}

// IsKeepAlive reports whether the connection may be reused after the
// current response: the client asked for it and the request budget is not
// exhausted. The instant either condition fails this returns false and
// the connection must close after the response completes.
func (c *Conn) IsKeepAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientKeepAlive && c.remaining > 0
}

// Drain forwards to the parser's drain: unread body bytes of the current
// request are discarded so the transport can be reused or closed without
// waiting for the client to stop sending. Queued backlog is untouched.
func (c *Conn) Drain() {
	c.parser.Drain()
}

// Write issues an asynchronous write on the channel, fire-and-forget.
// Writes after Close are refused.
func (c *Conn) Write(p []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnClosed
	}
	return c.ch.AsyncWrite(p)
}

// Close tears down the channel. It is idempotent and terminal: the
// instance is discarded afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.ch.Close()
}

// Expired reports whether the connection is idle past its keep-alive
// deadline. The reaper calls this from the engine ticker goroutine and
// never reaps a connection with a request in flight.
func (c *Conn) Expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.inProgress || c.keepAliveUntil.IsZero() {
		return false
	}
	return now.After(c.keepAliveUntil)
}

// RequestsRemaining returns the unspent request budget.
func (c *Conn) RequestsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
