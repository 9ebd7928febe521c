package sable

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// LoggerConfig holds configuration for the request logging middleware.
type LoggerConfig struct {
	// Output is where log lines are written (default: os.Stdout)
	Output io.Writer
	// SkipPaths lists paths to skip logging (e.g., health checks)
	SkipPaths []string
}

// Logger returns a middleware that logs each request with method, path,
// status and duration.
func Logger() Middleware {
	return LoggerWithConfig(LoggerConfig{})
}

// LoggerWithConfig returns a request logging middleware with custom configuration.
func LoggerWithConfig(config LoggerConfig) Middleware {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			if skipMap[ctx.Path()] {
				return next.Serve(ctx)
			}

			start := time.Now()
			err := next.Serve(ctx)
			duration := time.Since(start)

			_, _ = fmt.Fprintf(config.Output, "[%s] %s %s %d %dms",
				start.Format(time.RFC3339),
				ctx.Method(),
				ctx.Path(),
				ctx.Status(),
				duration.Milliseconds())
			if err != nil {
				_, _ = fmt.Fprintf(config.Output, " error=%q", err.Error())
			}
			_, _ = fmt.Fprintln(config.Output)
			return err
		})
	}
}

// Recovery returns a middleware that recovers from panics during request
// handling and responds with a 500 instead of taking down the event loop.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = ctx.String(500, "Internal Server Error")
				}
			}()
			return next.Serve(ctx)
		})
	}
}

// CompressConfig holds configuration for the Compress middleware.
type CompressConfig struct {
	// Level specifies the compression level (1-9 for gzip, 0-11 for brotli)
	Level int
	// MinSize specifies the minimum response size to compress (default: 1024 bytes)
	MinSize int
	// ExcludedTypes lists content type prefixes to skip compression
	ExcludedTypes []string
}

// DefaultCompressConfig returns a CompressConfig with sensible defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:   6,
		MinSize: 1024,
		ExcludedTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
		},
	}
}

// Compress returns a middleware that compresses response bodies with
// gzip or brotli, preferring brotli when the client accepts both.
func Compress() Middleware {
	return CompressWithConfig(DefaultCompressConfig())
}

// CompressWithConfig returns a compression middleware with custom configuration.
func CompressWithConfig(config CompressConfig) Middleware {
	if config.MinSize == 0 {
		config.MinSize = 1024
	}
	if config.Level == 0 {
		config.Level = 6
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			acceptEncoding := ctx.Header("Accept-Encoding")
			supportsBrotli := strings.Contains(acceptEncoding, "br")
			supportsGzip := strings.Contains(acceptEncoding, "gzip")
			if !supportsBrotli && !supportsGzip {
				return next.Serve(ctx)
			}

			err := next.Serve(ctx)
			body := ctx.responseBody.Bytes()

			shouldCompress := len(body) >= config.MinSize
			contentType := ctx.ResponseHeader("Content-Type")
			for _, excluded := range config.ExcludedTypes {
				if strings.HasPrefix(contentType, excluded) {
					shouldCompress = false
					break
				}
			}
			if !shouldCompress {
				return err
			}

			var compressed bytes.Buffer
			var encoding string
			if supportsBrotli {
				writer := brotli.NewWriterLevel(&compressed, config.Level)
				if _, werr := writer.Write(body); werr != nil {
					_ = writer.Close()
					return err
				}
				_ = writer.Close()
				encoding = "br"
			} else {
				writer, _ := gzip.NewWriterLevel(&compressed, config.Level)
				if _, werr := writer.Write(body); werr != nil {
					_ = writer.Close()
					return err
				}
				_ = writer.Close()
				encoding = "gzip"
			}

			// Only use the compressed form if it is actually smaller.
			if compressed.Len() > 0 && compressed.Len() < len(body) {
				ctx.SetHeader("Content-Encoding", encoding)
				ctx.SetHeader("Vary", "Accept-Encoding")
				ctx.SetHeader("Content-Length", "")
				ctx.responseBody.Reset()
				_, _ = ctx.responseBody.Write(compressed.Bytes())
			}
			return err
		})
	}
}
