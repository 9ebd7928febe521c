package sable

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sablehttp/sable/internal/h1"
)

// Server is a sable server instance.
type Server struct {
	config    Config
	handler   Handler
	transport *h1.Server
	connGauge prometheus.GaugeFunc
}

// New creates a new Server with the provided configuration.
func New(config Config) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}
	return &Server{
		config: config,
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Handler sets the request handler and returns the server for chaining.
func (s *Server) Handler(handler Handler) *Server {
	s.handler = handler
	return s
}

// ListenAndServe sets the handler and starts the server.
func (s *Server) ListenAndServe(handler Handler) error {
	s.handler = handler
	return s.Start()
}

// Start begins accepting connections. It blocks until the server stops.
func (s *Server) Start() error {
	if s.handler == nil {
		return fmt.Errorf("handler not set")
	}

	s.transport = h1.NewServer(context.Background(), &delegateAdapter{handler: s.handler}, h1.Config{
		Addr:           s.config.Addr,
		Multicore:      s.config.Multicore,
		NumEventLoop:   s.config.NumEventLoop,
		ReusePort:      s.config.ReusePort,
		Logger:         s.config.Logger,
		MaxConnections: s.config.MaxConnections,
		ReapInterval:   s.config.ReapInterval,
		Limits: h1.Limits{
			KeepAliveTimeout: s.config.KeepAliveTimeout,
			MaxRequests:      s.config.MaxRequestsPerConn,
			MaxBacklogBytes:  s.config.MaxBacklogBytes,
			MaxUnparsedBytes: s.config.MaxUnparsedBytes,
		},
	})

	s.connGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sable_connections_active",
		Help: "Current number of open HTTP connections",
	}, func() float64 {
		return float64(s.transport.ActiveConnections())
	})
	// Re-registering on restart is fine; ignore the duplicate error.
	_ = prometheus.Register(s.connGauge)

	return s.transport.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.connGauge != nil {
		prometheus.Unregister(s.connGauge)
		s.connGauge = nil
	}
	if s.transport != nil {
		return s.transport.Stop(ctx)
	}
	return nil
}

// delegateAdapter bridges the public Handler to the connection layer's
// delegate contract: build a Context, run the handler chain, then flush
// the buffered response, which recycles or closes the connection.
type delegateAdapter struct {
	handler Handler
}

func (a *delegateAdapter) Handle(ctx context.Context, req *h1.Request, w *h1.ResponseWriter) error {
	c := newContext(ctx, req, w)
	defer c.release()

	if err := a.handler.Serve(c); err != nil {
		return err
	}
	return c.flush()
}
