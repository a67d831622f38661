package mcp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/config"
)

func TestNewClient_StartsInInitState(t *testing.T) {
	cfg := &config.BackendConfig{Name: "fs", Transport: "stdio", Command: "tsp-fs"}
	cl := NewClient(cfg, 1000, 0)

	if cl.State() != StateInit {
		t.Errorf("expected INIT, got %s", cl.State())
	}
	if cl.maxPending != 64 {
		t.Errorf("expected maxPending default 64, got %d", cl.maxPending)
	}
	if cl.timeout != time.Second {
		t.Errorf("expected 1s timeout from clientTimeoutMS, got %s", cl.timeout)
	}
}

func TestNewClient_PerBackendTimeoutOverridesDefault(t *testing.T) {
	cfg := &config.BackendConfig{Name: "fs", Transport: "stdio", Command: "tsp-fs", TimeoutSec: 5}
	cl := NewClient(cfg, 30000, 64)
	if cl.timeout != 5*time.Second {
		t.Errorf("expected per-backend 5s timeout to win, got %s", cl.timeout)
	}
}

func TestClient_Call_NotReadyReturnsServerUnavailable(t *testing.T) {
	cfg := &config.BackendConfig{Name: "fs", Transport: "stdio", Command: "tsp-fs"}
	cl := NewClient(cfg, 1000, 64)

	_, rerr := cl.Call(context.Background(), "read_file", nil)
	if rerr == nil {
		t.Fatal("expected error for a client not in READY state")
	}
	if rerr.Kind != ErrServerUnavailable {
		t.Errorf("expected SERVER_UNAVAILABLE, got %s", rerr.Kind)
	}
}

func TestClient_Call_OverloadedRejectsBeforeDispatch(t *testing.T) {
	cfg := &config.BackendConfig{Name: "fs", Transport: "stdio", Command: "tsp-fs"}
	cl := NewClient(cfg, 1000, 2)
	cl.setState(StateReady)
	atomic.StoreInt64(&cl.pending, 2) // already at the bound

	_, rerr := cl.Call(context.Background(), "read_file", nil)
	if rerr == nil {
		t.Fatal("expected SERVER_OVERLOADED")
	}
	if rerr.Kind != ErrServerOverloaded {
		t.Errorf("expected SERVER_OVERLOADED, got %s", rerr.Kind)
	}
}

func TestClient_Close_SetsClosedState(t *testing.T) {
	cfg := &config.BackendConfig{Name: "fs", Transport: "stdio", Command: "tsp-fs"}
	cl := NewClient(cfg, 1000, 64)

	if err := cl.Close(); err != nil {
		t.Fatalf("unexpected error closing an unconnected client: %v", err)
	}
	if cl.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cl.State())
	}
}

func TestCreateTransportClient_RejectsUnsupportedTransport(t *testing.T) {
	cfg := &config.BackendConfig{Name: "weird", Transport: "carrier-pigeon"}
	if _, err := createTransportClient(cfg); err == nil {
		t.Fatal("expected error for unsupported transport")
	}
}
