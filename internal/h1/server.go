package h1

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/sablehttp/sable/internal/date"
)

// Config defines the configuration options for the HTTP/1.1 server.
type Config struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	Logger         *log.Logger
	MaxConnections uint32
	Limits         Limits
	// ReapInterval is how often idle connections are scanned for expired
	// keep-alive deadlines.
	ReapInterval time.Duration
}

// Server implements gnet.EventHandler for HTTP/1.1. Each accepted socket
// gets its own Conn stored in the gnet connection context; the engine
// ticker doubles as the idle-connection reaper.
type Server struct {
	gnet.BuiltinEventEngine
	handler        Handler
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *log.Logger
	addr           string
	multicore      bool
	numEventLoop   int
	reusePort      bool
	maxConnections uint32
	limits         Limits
	reapInterval   time.Duration
	activeConns    uint32
	conns          sync.Map // gnet.Conn -> *Conn
	engine         gnet.Engine
	engineStarted  bool
	stopDateTicker func()
}

// NewServer creates a new HTTP/1.1 server.
func NewServer(ctx context.Context, handler Handler, config Config) *Server {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Limits.MaxRequests <= 0 {
		config.Limits = DefaultLimits()
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = time.Second
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		handler:        handler,
		ctx:            serverCtx,
		cancel:         cancel,
		logger:         config.Logger,
		addr:           config.Addr,
		multicore:      config.Multicore,
		numEventLoop:   config.NumEventLoop,
		reusePort:      config.ReusePort,
		maxConnections: config.MaxConnections,
		limits:         config.Limits,
		reapInterval:   config.ReapInterval,
	}
}

// Start starts the event engine. It blocks until the engine stops.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTCPKeepAlive(time.Minute * 5),
		gnet.WithLogger(silentGnetLogger{}),
		gnet.WithTicker(true),
	}
	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}

	s.stopDateTicker = date.StartTicker()
	s.logger.Printf("starting HTTP/1.1 server on %s", s.addr)
	return gnet.Run(s, "tcp://"+s.addr, options...)
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Println("initiating graceful shutdown")
	s.cancel()

	if s.stopDateTicker != nil {
		s.stopDateTicker()
		s.stopDateTicker = nil
	}

	if s.engineStarted {
		stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
		defer stopCancel()
		if err := s.engine.Stop(stopCtx); err != nil {
			s.logger.Printf("error stopping gnet engine: %v", err)
			return err
		}
	}

	s.logger.Println("HTTP/1.1 server shutdown complete")
	return nil
}

// ActiveConnections returns the number of currently open connections.
func (s *Server) ActiveConnections() int {
	return int(atomic.LoadUint32(&s.activeConns))
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.engineStarted = true
	s.logger.Printf("HTTP/1.1 server is listening on %s (multicore: %v)", s.addr, s.multicore)
	return gnet.None
}

// OnShutdown is called when the engine is shutting down.
func (s *Server) OnShutdown(_ gnet.Engine) {
	s.engineStarted = false
}

// OnOpen is called when a new connection is accepted. Over-limit clients
// are turned away with a 503 before the handler ever sees them.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.maxConnections > 0 {
		currentConns := atomic.LoadUint32(&s.activeConns)
		if currentConns >= s.maxConnections {
			s.logger.Printf("connection rejected from %s: too many connections (%d/%d)",
				c.RemoteAddr().String(), currentConns, s.maxConnections)
			response := "HTTP/1.1 503 Service Unavailable\r\n" +
				"Content-Type: text/plain\r\n" +
				"Content-Length: 19\r\n" +
				"Connection: close\r\n" +
				"\r\n" +
				"Service Unavailable"
			_ = c.AsyncWrite([]byte(response), func(_ gnet.Conn, _ error) error {
				_ = c.Close()
				return nil
			})
			return nil, gnet.None
		}
	}
	atomic.AddUint32(&s.activeConns, 1)

	conn := NewConn(s.ctx, &gnetChannel{conn: c}, s.handler, s.logger, s.limits)
	c.SetContext(conn)
	s.conns.Store(c, conn)
	return nil, gnet.None
}

// OnClose is called when a connection is closed by either side. This is
// the terminal read completion: an error here is an abnormal close.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	// Rejected over-limit connections were never registered or counted, so
	// only a registered connection may decrement the counter.
	if _, registered := s.conns.LoadAndDelete(c); registered {
		atomic.AddUint32(&s.activeConns, ^uint32(0))
	}

	if ctx := c.Context(); ctx != nil {
		if conn, ok := ctx.(*Conn); ok {
			conn.OnStreamEnd(err)
		}
	} else if err != nil {
		s.logger.Printf("connection from %s closed with error: %v", c.RemoteAddr().String(), err)
	}
	return gnet.None
}

// OnTraffic is called whenever at least one byte is readable; the chunk is
// delivered to the connection's lifecycle handler as-is.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	ctx := c.Context()
	conn, ok := ctx.(*Conn)
	if !ok {
		s.logger.Printf("connection context missing, closing %s", c.RemoteAddr().String())
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil {
		s.logger.Printf("error reading data: %v", err)
		return gnet.Close
	}
	if len(buf) == 0 {
		return gnet.None
	}

	if err := conn.OnData(buf); err != nil {
		if errors.Is(err, errCloseRequested) || errors.Is(err, ErrConnClosed) {
			return gnet.Close
		}
		s.logger.Printf("error handling data: %v", err)
		return gnet.Close
	}
	return gnet.None
}

// OnTick is the idle reaper: connections past their keep-alive deadline
// and not currently serving a request are closed.
func (s *Server) OnTick() (time.Duration, gnet.Action) {
	now := time.Now()
	s.conns.Range(func(key, value any) bool {
		conn, ok := value.(*Conn)
		if !ok {
			return true
		}
		if conn.Expired(now) {
			_ = conn.Close()
		}
		return true
	})
	return s.reapInterval, gnet.None
}

// gnetChannel adapts a gnet.Conn to the Channel interface. AsyncWrite
// copies the buffer because the caller may reuse it before the event loop
// flushes the write.
type gnetChannel struct {
	conn gnet.Conn
}

func (g *gnetChannel) AsyncWrite(p []byte) error {
	buf := make([]byte, len(p))
	copy(buf, p)
	return g.conn.AsyncWrite(buf, nil)
}

func (g *gnetChannel) Close() error {
	return g.conn.Close()
}

// silentGnetLogger discards all gnet output; the server does its own logging.
type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(_ string, _ ...any) {}
func (silentGnetLogger) Infof(_ string, _ ...any)  {}
func (silentGnetLogger) Warnf(_ string, _ ...any)  {}
func (silentGnetLogger) Errorf(_ string, _ ...any) {}
func (silentGnetLogger) Fatalf(_ string, _ ...any) {}
