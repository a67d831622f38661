package mcp

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/config"
)

// Supervisor is the optional surrounding reconnect layer spec §4.3
// explicitly invites ("no automatic reconnection in the core ... can be
// added as a surrounding supervisor"). It periodically pings every
// Client and, on failure, retries with bounded exponential backoff; on a
// successful reconnect it calls Router.Rediscover so the Category Map
// picks up whatever tool set the restarted back-end now offers. It never
// touches CallTool dispatch — a FAILED Client stays FAILED for callers
// until the Supervisor (or an explicit Rediscover) brings it back.
type Supervisor struct {
	router   *Router
	backends map[string]*config.BackendConfig

	healthInterval time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int

	mu       sync.Mutex
	attempts map[string]int
}

// NewSupervisor builds a Supervisor over an already-populated Router.
func NewSupervisor(router *Router, backends map[string]*config.BackendConfig) *Supervisor {
	return &Supervisor{
		router:         router,
		backends:       backends,
		healthInterval: 30 * time.Second,
		initialBackoff: 2 * time.Second,
		maxBackoff:     60 * time.Second,
		maxAttempts:    10,
		attempts:       make(map[string]int),
	}
}

// Run blocks, health-checking every Client until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Supervisor) checkAll(ctx context.Context) {
	s.router.mu.RLock()
	clients := make(map[string]*Client, len(s.router.clients))
	for name, cl := range s.router.clients {
		clients[name] = cl
	}
	s.router.mu.RUnlock()

	for name, cl := range clients {
		if cl.State() != StateReady {
			continue
		}
		if err := cl.Ping(ctx); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "method not found") {
				continue // back-end has no ping method; treat as healthy
			}
			slog.Warn("mcp.supervisor.health_failed", "server", name, "error", err)
			cl.setState(StateFailed)
			go s.reconnect(ctx, name)
		} else {
			s.mu.Lock()
			s.attempts[name] = 0
			s.mu.Unlock()
		}
	}
}

func (s *Supervisor) reconnect(ctx context.Context, name string) {
	cfg, ok := s.backends[name]
	if !ok {
		return
	}

	for {
		s.mu.Lock()
		attempt := s.attempts[name] + 1
		if attempt > s.maxAttempts {
			s.mu.Unlock()
			slog.Error("mcp.supervisor.reconnect_exhausted", "server", name)
			return
		}
		s.attempts[name] = attempt
		s.mu.Unlock()

		backoff := s.initialBackoff * time.Duration(1<<uint(attempt-1))
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err := s.router.Rediscover(ctx, name, cfg); err != nil {
			slog.Warn("mcp.supervisor.reconnect_failed", "server", name, "attempt", attempt, "error", err)
			continue
		}
		slog.Info("mcp.supervisor.reconnected", "server", name, "attempt", attempt)
		s.mu.Lock()
		s.attempts[name] = 0
		s.mu.Unlock()
		return
	}
}
