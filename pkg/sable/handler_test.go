package sable

import (
	"fmt"
	"testing"
)

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(ctx *Context) error {
		called = true
		return nil
	})

	c := testContext("GET", "/", nil)
	defer c.release()

	if err := h.Serve(c); err != nil {
		t.Fatalf("Serve error = %v", err)
	}
	if !called {
		t.Error("Expected the wrapped function to run")
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx *Context) error {
				order = append(order, name+"-before")
				err := next.Serve(ctx)
				order = append(order, name+"-after")
				return err
			})
		}
	}

	h := Chain(HandlerFunc(func(ctx *Context) error {
		order = append(order, "handler")
		return nil
	}), mw("outer"), mw("inner"))

	c := testContext("GET", "/", nil)
	defer c.release()

	if err := h.Serve(c); err != nil {
		t.Fatalf("Serve error = %v", err)
	}

	want := []string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}
	if len(order) != len(want) {
		t.Fatalf("Order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Order = %v, want %v", order, want)
		}
	}
}

func TestChainPropagatesError(t *testing.T) {
	wantErr := fmt.Errorf("handler failed")
	h := Chain(HandlerFunc(func(ctx *Context) error {
		return wantErr
	}), func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			return next.Serve(ctx)
		})
	})

	c := testContext("GET", "/", nil)
	defer c.release()

	if err := h.Serve(c); err != wantErr {
		t.Errorf("Serve error = %v, want %v", err, wantErr)
	}
}
