// Package sable provides an event-driven HTTP/1.1 server with explicit
// connection lifecycle management: per-connection request budgets,
// keep-alive deadlines enforced by an idle reaper, and bounded buffering
// for pipelined clients.
package sable

import (
	"io"
	"log"
	"time"
)

// Config holds the server configuration options.
type Config struct {
	Addr               string        // Server address to bind to
	Multicore          bool          // Enable multicore mode for better performance
	NumEventLoop       int           // Number of event loops (0 for auto-detect)
	ReusePort          bool          // Enable SO_REUSEPORT for load balancing
	KeepAliveTimeout   time.Duration // Idle time a recycled connection may wait for its next request
	MaxRequestsPerConn int           // Requests served before a connection must close
	MaxConnections     uint32        // Maximum concurrent connections (0 for unlimited)
	MaxBacklogBytes    int           // Cap on bytes queued while a request is in flight
	MaxUnparsedBytes   int           // Cap on buffered bytes without a parse milestone
	ReapInterval       time.Duration // How often the idle reaper scans connections
	Logger             *log.Logger   // Logger for server events
}

// newSilentLogger creates a logger that discards all output.
func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		Multicore:          true,
		NumEventLoop:       0, // Auto-detect
		ReusePort:          true,
		KeepAliveTimeout:   60 * time.Second,
		MaxRequestsPerConn: 20,
		MaxConnections:     0,
		MaxBacklogBytes:    1 << 20,
		MaxUnparsedBytes:   1 << 20,
		ReapInterval:       time.Second,
		Logger:             newSilentLogger(),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = 60 * time.Second
	}
	if c.MaxRequestsPerConn <= 0 {
		c.MaxRequestsPerConn = 20
	}
	if c.MaxBacklogBytes <= 0 {
		c.MaxBacklogBytes = 1 << 20
	}
	if c.MaxUnparsedBytes <= 0 {
		c.MaxUnparsedBytes = 1 << 20
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return nil
}
