package mcp

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

func newTestRouter() *Router {
	return NewRouter(catalog.NewMap(&catalog.Hints{}), 1000, 64)
}

func TestRouter_CallTool_UnknownToolID(t *testing.T) {
	r := newTestRouter()
	_, rerr := r.CallTool(context.Background(), catalog.ToolID("fs__does_not_exist"), nil)
	if rerr == nil {
		t.Fatal("expected an error for an unregistered tool ID")
	}
	if rerr.Kind != ErrUnknownTool {
		t.Errorf("expected UNKNOWN_TOOL, got %s", rerr.Kind)
	}
}

func TestRouter_CallTool_NoOwningClientIsServerUnavailable(t *testing.T) {
	r := newTestRouter()
	td := r.catalog.Classify("fs", "read_file", "read a file", nil)
	r.catalog.Register(td)

	_, rerr := r.CallTool(context.Background(), td.ID, nil)
	if rerr == nil {
		t.Fatal("expected an error when no Client owns the server")
	}
	if rerr.Kind != ErrServerUnavailable {
		t.Errorf("expected SERVER_UNAVAILABLE, got %s", rerr.Kind)
	}
}

func TestRouter_CallTool_RejectsDuringShutdown(t *testing.T) {
	r := newTestRouter()
	r.Shutdown()

	_, rerr := r.CallTool(context.Background(), catalog.ToolID("fs__read_file"), nil)
	if rerr == nil {
		t.Fatal("expected an error after Shutdown")
	}
	if rerr.Kind != ErrShuttingDown {
		t.Errorf("expected SHUTTING_DOWN, got %s", rerr.Kind)
	}
}

func TestRouter_Status_ReflectsRegisteredClients(t *testing.T) {
	r := newTestRouter()
	r.clients["fs"] = &Client{name: "fs", transport: "stdio", state: StateReady, localNames: []string{"read_file", "write_file"}}

	statuses := r.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status entry, got %d", len(statuses))
	}
	if statuses[0].Name != "fs" || statuses[0].State != "READY" || statuses[0].ToolCount != 2 {
		t.Errorf("unexpected status: %+v", statuses[0])
	}
}

func TestRouter_ReadyCount_OnlyCountsReadyClients(t *testing.T) {
	r := newTestRouter()
	r.clients["fs"] = &Client{name: "fs", state: StateReady}
	r.clients["shell"] = &Client{name: "shell", state: StateFailed}

	if got := r.ReadyCount(); got != 1 {
		t.Errorf("expected 1 ready client, got %d", got)
	}
}

func TestRouterError_ErrorStringIncludesKind(t *testing.T) {
	err := newRouterError(ErrTimeout, "call to %q timed out", "read_file")
	want := "TIMEOUT: call to \"read_file\" timed out"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
