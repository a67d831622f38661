package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Enabled || !cfg.Filtering || !cfg.Fallback {
		t.Fatalf("expected enabled/filtering/fallback true by default, got %+v", cfg)
	}
	if cfg.MaxTools != 25 {
		t.Errorf("expected max_tools 25, got %d", cfg.MaxTools)
	}
	if cfg.Gateway.Port != 8765 {
		t.Errorf("expected gateway port 8765, got %d", cfg.Gateway.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json5"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.MaxTools != 25 {
		t.Errorf("expected defaults preserved, got %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.json5")
	body := `{
		max_tools: 10,
		filtering: false,
		backend_servers: {
			fs: { name: "fs", transport: "stdio", command: "tsp-fs" },
		},
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxTools != 10 {
		t.Errorf("expected max_tools 10 from file, got %d", cfg.MaxTools)
	}
	if cfg.Filtering {
		t.Error("expected filtering false from file")
	}
	b, ok := cfg.BackendServers["fs"]
	if !ok {
		t.Fatal("expected backend fs present")
	}
	if b.Command != "tsp-fs" {
		t.Errorf("expected command tsp-fs, got %q", b.Command)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.json5")
	if err := os.WriteFile(path, []byte(`{ max_tools: 10 }`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HUB_MAX_TOOLS", "40")
	t.Setenv("HUB_FILTERING", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxTools != 40 {
		t.Errorf("expected env override to win, got max_tools=%d", cfg.MaxTools)
	}
	if cfg.Filtering {
		t.Error("expected HUB_FILTERING=false to disable filtering")
	}
}

func TestValidate_RejectsNonPositiveMaxTools(t *testing.T) {
	cfg := Default()
	cfg.MaxTools = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_tools=0")
	}
}

func TestValidate_RejectsBackendMissingCommand(t *testing.T) {
	cfg := Default()
	cfg.BackendServers["broken"] = &BackendConfig{Name: "broken", Transport: "stdio"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for stdio backend without command")
	}
}

func TestValidate_RejectsUnsupportedTransport(t *testing.T) {
	cfg := Default()
	cfg.BackendServers["weird"] = &BackendConfig{Name: "weird", Transport: "carrier-pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported transport")
	}
}

func TestBackendConfig_IsEnabled(t *testing.T) {
	b := &BackendConfig{}
	if !b.IsEnabled() {
		t.Error("nil Enabled should default to true")
	}
	f := false
	b.Enabled = &f
	if b.IsEnabled() {
		t.Error("explicit false should disable")
	}
}

func TestFlexibleStringSlice_AcceptsMixedJSON(t *testing.T) {
	var f FlexibleStringSlice
	if err := f.UnmarshalJSON([]byte(`["a", 1, "b"]`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "1", "b"}
	if len(f) != len(want) {
		t.Fatalf("expected %v, got %v", want, f)
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], f[i])
		}
	}
}
