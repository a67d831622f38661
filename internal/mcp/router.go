// Package mcp implements the Router & Client Supervisor (spec §4.3): one
// long-lived Client per configured back-end TSP server, discovery of
// each Client's tool catalog into the shared Category Map, and dispatch
// of CallTool invocations to the Client that owns the requested tool.
package mcp

import (
	"context"
	"log/slog"
	"sync"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/config"
	"github.com/nextlevelbuilder/tsphub/internal/tools"
)

// Router aggregates every configured back-end Client and dispatches
// CallTool by tool ID — the union catalog's single owner lookup.
type Router struct {
	catalog *catalog.Map

	mu          sync.RWMutex
	clients     map[string]*Client // keyed by server name (owning_server_id)
	shuttingDown bool

	clientTimeoutMS int
	maxPending      int
}

// NewRouter builds an empty Router over the given Category Map.
func NewRouter(cat *catalog.Map, clientTimeoutMS, maxPendingPerClient int) *Router {
	return &Router{
		catalog:         cat,
		clients:         make(map[string]*Client),
		clientTimeoutMS: clientTimeoutMS,
		maxPending:      maxPendingPerClient,
	}
}

// ConnectAll connects every enabled configured backend — spec §4.3
// Client lifecycle start. A single backend's connect failure is logged
// and that Client is left FAILED; it does not prevent the others from
// connecting (the hub degrades gracefully, never refuses to start over
// one bad backend — fatal-startup is reserved for "no backend reachable
// at all", handled by the caller inspecting ReadyCount).
func (r *Router) ConnectAll(ctx context.Context, backends map[string]*config.BackendConfig) {
	for name, cfg := range backends {
		if !cfg.IsEnabled() {
			slog.Info("mcp.client.disabled", "server", name)
			continue
		}
		if err := r.connect(ctx, name, cfg); err != nil {
			slog.Warn("mcp.client.connect_failed", "server", name, "error", err)
		}
	}
}

func (r *Router) connect(ctx context.Context, name string, cfg *config.BackendConfig) error {
	cl := NewClient(cfg, r.clientTimeoutMS, r.maxPending)
	r.mu.Lock()
	r.clients[name] = cl
	r.mu.Unlock()

	discovered, err := cl.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	r.registerDiscovered(name, cfg.ToolPrefix, discovered)
	slog.Info("mcp.client.connected", "server", name, "transport", cfg.Transport, "tools", len(discovered))
	return nil
}

func (r *Router) registerDiscovered(server, toolPrefix string, discovered []mcpgo.Tool) {
	r.catalog.UnregisterServer(server)
	for _, t := range discovered {
		// Classify against the back-end's real tool name — hint lookups
		// and CallTool dispatch both key off LocalName, which must match
		// what the back-end itself understands over the wire.
		schema := schemaToMap(t.InputSchema)
		td := r.catalog.Classify(server, t.Name, t.Description, schema)
		if toolPrefix != "" {
			// tool_prefix only disambiguates the exposed catalog.ToolID
			// (e.g. two back-ends both serving "read_file"); it must
			// never leak into the wire-level name sent back to a Client.
			td.ID = catalog.BuildToolID(server, toolPrefix+t.Name)
		}
		r.catalog.Register(td)
	}
}

func schemaToMap(s mcpgo.ToolInputSchema) map[string]any {
	out := map[string]any{"type": s.Type}
	if len(s.Properties) > 0 {
		out["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// Rediscover re-runs discovery against an already-connected Client,
// replacing its tool set in the Category Map — spec §4.3 "A Client may
// be re-discovered explicitly; no automatic reconnection in the core."
func (r *Router) Rediscover(ctx context.Context, name string, cfg *config.BackendConfig) error {
	r.mu.RLock()
	cl, ok := r.clients[name]
	r.mu.RUnlock()
	if !ok {
		return r.connect(ctx, name, cfg)
	}
	discovered, err := cl.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	r.registerDiscovered(name, cfg.ToolPrefix, discovered)
	return nil
}

// CallTool dispatches one tool invocation by its full catalog.ToolID —
// spec §4.3 "Look up id in the union catalog. If absent -> UNKNOWN_TOOL.
// Resolve owning Client. If not READY -> SERVER_UNAVAILABLE."
func (r *Router) CallTool(ctx context.Context, id catalog.ToolID, args map[string]any) (*tools.Result, *RouterError) {
	r.mu.RLock()
	shuttingDown := r.shuttingDown
	r.mu.RUnlock()
	if shuttingDown {
		return nil, newRouterError(ErrShuttingDown, "hub is shutting down")
	}

	td, ok := r.catalog.Get(id)
	if !ok {
		return nil, newRouterError(ErrUnknownTool, "unknown tool %q", id)
	}

	r.mu.RLock()
	cl, ok := r.clients[td.OwningServerID]
	r.mu.RUnlock()
	if !ok {
		// Core tools with no owning Client (synthetic entries) are
		// rejected here rather than executed internally — spec §4.4
		// "routed internally or rejected by CallTool"; the hub never
		// re-implements back-end tools (explicit Non-goal).
		return nil, newRouterError(ErrServerUnavailable, "tool %q has no owning client", id)
	}

	return cl.Call(ctx, td.LocalName, args)
}

// ServerStatus reports every Client's current lifecycle state, for the
// Front Door's `hub_status` admin operation.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	State     string `json:"state"`
	ToolCount int    `json:"tool_count"`
}

// Status snapshots every Client.
func (r *Router) Status() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerStatus, 0, len(r.clients))
	for name, cl := range r.clients {
		out = append(out, ServerStatus{
			Name:      name,
			Transport: cl.transport,
			State:     string(cl.State()),
			ToolCount: len(cl.localNames),
		})
	}
	return out
}

// ReadyCount returns how many configured Clients reached READY — used at
// startup to decide exit code 1 ("no back-end reachable and fallback
// disabled") per spec §6.
func (r *Router) ReadyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, cl := range r.clients {
		if cl.State() == StateReady {
			n++
		}
	}
	return n
}

// Shutdown terminates every Client and fails any subsequent CallTool
// with SHUTTING_DOWN — spec §4.3 "wake and fail all pending waiters with
// SHUTTING_DOWN."
func (r *Router) Shutdown() {
	r.mu.Lock()
	r.shuttingDown = true
	clients := make([]*Client, 0, len(r.clients))
	for _, cl := range r.clients {
		clients = append(clients, cl)
	}
	r.mu.Unlock()

	for _, cl := range clients {
		if err := cl.Close(); err != nil {
			slog.Warn("mcp.client.close_error", "server", cl.name, "error", err)
		}
	}
}
