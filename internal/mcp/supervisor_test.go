package mcp

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/tsphub/internal/config"
)

func TestNewSupervisor_Defaults(t *testing.T) {
	r := newTestRouter()
	s := NewSupervisor(r, map[string]*config.BackendConfig{})

	if s.healthInterval.Seconds() != 30 {
		t.Errorf("expected 30s health interval, got %s", s.healthInterval)
	}
	if s.initialBackoff.Seconds() != 2 {
		t.Errorf("expected 2s initial backoff, got %s", s.initialBackoff)
	}
	if s.maxBackoff.Seconds() != 60 {
		t.Errorf("expected 60s max backoff, got %s", s.maxBackoff)
	}
	if s.maxAttempts != 10 {
		t.Errorf("expected 10 max attempts, got %d", s.maxAttempts)
	}
}

func TestSupervisor_CheckAll_IgnoresNonReadyClients(t *testing.T) {
	r := newTestRouter()
	r.clients["fs"] = &Client{name: "fs", state: StateFailed}

	s := NewSupervisor(r, map[string]*config.BackendConfig{})
	s.checkAll(context.Background())

	if r.clients["fs"].State() != StateFailed {
		t.Error("expected checkAll to leave a non-READY client untouched")
	}
}
