package sable

import (
	"context"
	"testing"
)

func TestNewNormalizesConfig(t *testing.T) {
	s := New(Config{})
	if s.config.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", s.config.Addr)
	}
	if s.config.Logger == nil {
		t.Error("Expected a logger after New")
	}
}

func TestHandlerChaining(t *testing.T) {
	s := NewWithDefaults()
	h := HandlerFunc(func(ctx *Context) error { return nil })
	if got := s.Handler(h); got != s {
		t.Error("Handler must return the server for chaining")
	}
	if s.handler == nil {
		t.Error("Handler not stored")
	}
}

func TestStartWithoutHandler(t *testing.T) {
	s := NewWithDefaults()
	if err := s.Start(); err == nil {
		t.Error("Expected an error starting without a handler")
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := NewWithDefaults()
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start error = %v", err)
	}
}
