package sable

import (
	"testing"
)

func TestTracingMiddleware(t *testing.T) {
	h := Chain(HandlerFunc(func(ctx *Context) error {
		// The span context must be visible to the handler.
		if ctx.Context() == nil {
			t.Error("Expected a request context inside the span")
		}
		return ctx.String(200, "traced")
	}), Tracing())

	c := testContext("GET", "/traced", [][2]string{
		{"traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	})
	defer c.release()

	if err := h.Serve(c); err != nil {
		t.Fatalf("Serve error = %v", err)
	}
	if c.Status() != 200 {
		t.Errorf("Status = %d, want 200", c.Status())
	}
}

func TestTracingSkipPaths(t *testing.T) {
	h := Chain(HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	}), Tracing())

	c := testContext("GET", "/health", nil)
	defer c.release()

	if err := h.Serve(c); err != nil {
		t.Fatalf("Serve error = %v", err)
	}
}

func TestHeaderCarrier(t *testing.T) {
	c := testContext("GET", "/", [][2]string{
		{"Traceparent", "value-a"},
		{"X-Other", "value-b"},
	})
	defer c.release()

	carrier := &headerCarrier{ctx: c}
	if got := carrier.Get("traceparent"); got != "value-a" {
		t.Errorf("Get(traceparent) = %q, want value-a", got)
	}
	keys := carrier.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 entries", keys)
	}
	// Set must not mutate incoming request headers.
	carrier.Set("injected", "x")
	if got := c.Header("injected"); got != "" {
		t.Errorf("Carrier mutated request headers: %q", got)
	}
}
