package sable

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", config.Addr)
	}
	if !config.Multicore {
		t.Error("Expected Multicore enabled by default")
	}
	if config.KeepAliveTimeout != 60*time.Second {
		t.Errorf("KeepAliveTimeout = %v, want 60s", config.KeepAliveTimeout)
	}
	if config.MaxRequestsPerConn != 20 {
		t.Errorf("MaxRequestsPerConn = %d, want 20", config.MaxRequestsPerConn)
	}
	if config.MaxBacklogBytes != 1<<20 {
		t.Errorf("MaxBacklogBytes = %d, want %d", config.MaxBacklogBytes, 1<<20)
	}
	if config.MaxUnparsedBytes != 1<<20 {
		t.Errorf("MaxUnparsedBytes = %d, want %d", config.MaxUnparsedBytes, 1<<20)
	}
	if config.ReapInterval != time.Second {
		t.Errorf("ReapInterval = %v, want 1s", config.ReapInterval)
	}
	if config.Logger == nil {
		t.Error("Expected a default logger")
	}
}

func TestConfigValidateNormalizesZeros(t *testing.T) {
	config := Config{}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate error = %v", err)
	}

	if config.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", config.Addr)
	}
	if config.KeepAliveTimeout != 60*time.Second {
		t.Errorf("KeepAliveTimeout = %v, want 60s", config.KeepAliveTimeout)
	}
	if config.MaxRequestsPerConn != 20 {
		t.Errorf("MaxRequestsPerConn = %d, want 20", config.MaxRequestsPerConn)
	}
	if config.MaxBacklogBytes != 1<<20 {
		t.Errorf("MaxBacklogBytes = %d, want %d", config.MaxBacklogBytes, 1<<20)
	}
	if config.ReapInterval != time.Second {
		t.Errorf("ReapInterval = %v, want 1s", config.ReapInterval)
	}
	if config.Logger == nil {
		t.Error("Expected Validate to install a logger")
	}
}

func TestConfigValidateKeepsExplicitValues(t *testing.T) {
	config := Config{
		Addr:               ":9090",
		KeepAliveTimeout:   5 * time.Second,
		MaxRequestsPerConn: 3,
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate error = %v", err)
	}

	if config.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", config.Addr)
	}
	if config.KeepAliveTimeout != 5*time.Second {
		t.Errorf("KeepAliveTimeout = %v, want 5s", config.KeepAliveTimeout)
	}
	if config.MaxRequestsPerConn != 3 {
		t.Errorf("MaxRequestsPerConn = %d, want 3", config.MaxRequestsPerConn)
	}
}
