package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/tsphub/internal/config"
	"github.com/nextlevelbuilder/tsphub/internal/tools"
)

// hubClientName is sent as the client name in the TSP `initialize`
// handshake — spec §6.
const hubClientName = "tsphub"

// Client is one back-end connection — spec §4.3's per-server Client: a
// single-writer, single-reader pair over the transport, multiplexing
// concurrent logical calls by request ID (handled internally by the
// `mark3labs/mcp-go` client). The core never auto-reconnects a Client;
// see Supervisor for the optional surrounding reconnect layer.
type Client struct {
	name       string
	transport  string
	timeout    time.Duration
	maxPending int

	mu     sync.RWMutex
	state  ClientState
	client *mcpclient.Client
	pending int64

	localNames []string // tool local names discovered on this Client
}

// NewClient builds a Client in the INIT state. Call Connect to dial and
// run the handshake.
func NewClient(cfg *config.BackendConfig, clientTimeoutMS int, maxPending int) *Client {
	timeout := time.Duration(clientTimeoutMS) * time.Millisecond
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	if maxPending <= 0 {
		maxPending = 64
	}
	return &Client{
		name:       cfg.Name,
		transport:  cfg.Transport,
		timeout:    timeout,
		maxPending: maxPending,
		state:      StateInit,
	}
}

// Name returns the back-end server's configured name — the owning_server_id
// tag used throughout the Category Map.
func (c *Client) Name() string { return c.name }

// State returns the Client's current lifecycle state.
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the transport, performs the TSP `initialize` handshake,
// and discovers the server's tools — spec §4.3 "perform the TSP
// initialize handshake ... then issue tools/list; store returned
// descriptors." Returns the raw discovered tools for the caller (the
// Router) to classify into the Category Map.
func (c *Client) Connect(ctx context.Context, cfg *config.BackendConfig) ([]mcpgo.Tool, error) {
	c.setState(StateConnecting)

	cl, err := createTransportClient(cfg)
	if err != nil {
		c.setState(StateFailed)
		return nil, newRouterError(ErrProtocolError, "create client: %v", err)
	}

	if cfg.Transport != "stdio" {
		if err := cl.Start(ctx); err != nil {
			_ = cl.Close()
			c.setState(StateFailed)
			return nil, newRouterError(ErrProtocolError, "start transport: %v", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.Capabilities = mcpgo.ClientCapabilities{}
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: hubClientName, Version: "1.0.0"}

	if _, err := cl.Initialize(ctx, initReq); err != nil {
		_ = cl.Close()
		c.setState(StateFailed)
		return nil, newRouterError(ErrProtocolError, "initialize: %v", err)
	}

	listResult, err := cl.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = cl.Close()
		c.setState(StateFailed)
		return nil, newRouterError(ErrProtocolError, "list tools: %v", err)
	}

	names := make([]string, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		names = append(names, t.Name)
	}

	c.mu.Lock()
	c.client = cl
	c.localNames = names
	c.mu.Unlock()
	c.setState(StateReady)

	return listResult.Tools, nil
}

func createTransportClient(cfg *config.BackendConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		envSlice := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			envSlice = append(envSlice, k+"="+v)
		}
		return mcpclient.NewStdioMCPClient(cfg.Command, envSlice, cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// Call dispatches one `tools/call` to this Client's back-end — spec
// §4.3 "Send a TSP tools/call request ... Wait, up to the configured
// per-server timeout, for the matching reply. On timeout -> TIMEOUT
// (the request ID is retired so a late reply is discarded)."
//
// The per-call deadline and ID retirement on timeout are delegated to
// `mark3labs/mcp-go`'s own request/response correlation: a context
// cancellation aborts the waiter, and the underlying transport discards
// the eventual late reply against an ID nothing is listening for anymore.
func (c *Client) Call(ctx context.Context, localName string, args map[string]any) (*tools.Result, *RouterError) {
	c.mu.RLock()
	state := c.state
	cl := c.client
	c.mu.RUnlock()

	if state != StateReady {
		return nil, newRouterError(ErrServerUnavailable, "client %q is %s", c.name, state)
	}

	if atomic.AddInt64(&c.pending, 1) > int64(c.maxPending) {
		atomic.AddInt64(&c.pending, -1)
		return nil, newRouterError(ErrServerOverloaded, "client %q: pending-request bound (%d) exceeded", c.name, c.maxPending)
	}
	defer atomic.AddInt64(&c.pending, -1)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = localName
	req.Params.Arguments = args

	result, err := cl.CallTool(callCtx, req)
	if err != nil {
		if c.State() == StateClosed {
			return nil, newRouterError(ErrShuttingDown, "client %q closed during call to %q", c.name, localName)
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, newRouterError(ErrTimeout, "client %q: call to %q timed out after %s", c.name, localName, c.timeout)
		}
		c.setState(StateFailed)
		return nil, newRouterError(ErrProtocolError, "client %q: call to %q failed: %v", c.name, localName, err)
	}

	return convertResult(result), nil
}

// convertResult maps an mcp-go CallToolResult onto the hub's own content
// envelope, forwarding content and isError verbatim per spec §7.
func convertResult(r *mcpgo.CallToolResult) *tools.Result {
	out := &tools.Result{IsError: r.IsError}
	for _, block := range r.Content {
		switch b := block.(type) {
		case mcpgo.TextContent:
			out.Content = append(out.Content, tools.ContentBlock{Type: "text", Text: b.Text})
		default:
			raw, _ := json.Marshal(block)
			out.Content = append(out.Content, tools.ContentBlock{Type: "text", Text: string(raw)})
		}
	}
	return out
}

// Ping checks liveness without mutating state — used only by the
// optional Supervisor's health loop, never by the core dispatch path.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	cl := c.client
	c.mu.RUnlock()
	if cl == nil {
		return fmt.Errorf("client %q not connected", c.name)
	}
	return cl.Ping(ctx)
}

// Close tears down the transport — spec §4.3 "Terminate child process
// (stdio) or close the stream (sse)."
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
