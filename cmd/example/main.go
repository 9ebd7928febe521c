// Package main provides a basic example of running a sable server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sablehttp/sable/pkg/sable"
)

func main() {
	config := sable.DefaultConfig()
	if addr := os.Getenv("EXAMPLE_ADDR"); addr != "" {
		config.Addr = addr
	}
	config.Logger = log.New(os.Stdout, "sable: ", log.LstdFlags)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	handler := sable.Chain(
		sable.HandlerFunc(route),
		sable.Recovery(),
		sable.Logger(),
		sable.Tracing(),
		sable.Prometheus(),
		sable.Compress(),
	)

	server := sable.New(config).Handler(handler)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func route(ctx *sable.Context) error {
	switch ctx.Path() {
	case "/":
		return ctx.String(200, "Welcome to sable!")
	case "/json":
		return ctx.JSON(200, map[string]string{"message": "Hello, World!"})
	case "/health":
		return ctx.JSON(200, map[string]string{"status": "healthy"})
	default:
		return ctx.String(404, "Not Found")
	}
}
