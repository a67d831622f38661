// Package config loads the hub's configuration: HUB_* environment
// variables overlaid on an optional JSON5 file, per spec §6
// "Configuration (env-first, overridable by file)".
package config

import (
	"encoding/json"
	"fmt"
)

// BackendConfig is one configured back-end TSP server — spec §4.3
// "ClientConfig{name, transport, command|url, enabled, timeout}".
type BackendConfig struct {
	Name       string            `json:"name"`
	Transport  string            `json:"transport"` // "stdio", "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ToolPrefix string            `json:"tool_prefix,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"` // nil = true
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// IsEnabled reports whether the backend should be connected at startup.
func (b *BackendConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, converting
// numbers to their string form. BackendConfig.Args is a plain []string
// and does not use this type, so a numeric arg there must be quoted.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		result = append(result, fmt.Sprintf("%v", v))
	}
	*f = result
	return nil
}

// GatewayConfig configures the optional admin/status HTTP surface
// (internal/adminapi): /health and a /ws feed of the hub_status snapshot.
// execute_command is not served over it.
type GatewayConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"-"` // from env HUB_GATEWAY_TOKEN only
}

// Config is the hub's root configuration — spec §6's HUB_* surface plus
// the backend-server list and admin gateway binding.
type Config struct {
	Enabled  bool `json:"enabled"`  // HUB_ENABLED
	Filtering bool `json:"filtering"` // HUB_FILTERING — bypass planner when false
	MaxTools int  `json:"max_tools"` // HUB_MAX_TOOLS
	Fallback bool `json:"fallback"` // HUB_FALLBACK — safe-default on filter error

	DetectionTimeoutMS int `json:"detection_timeout_ms"` // HUB_DETECTION_TIMEOUT_MS (detector budget, default 50)
	ListToolsTimeoutMS int `json:"list_tools_timeout_ms"` // overall ListTools budget, default 5000
	ClientTimeoutMS    int `json:"client_timeout_ms"`    // HUB_CLIENT_TIMEOUT_MS, default 30000

	Cache                bool `json:"cache"`                   // HUB_CACHE
	DetectionCacheTTLSec int  `json:"detection_cache_ttl_sec"` // HUB_CACHE_TTL_SEC (detection), default 300
	DecisionCacheTTLSec  int  `json:"decision_cache_ttl_sec"`  // default 3600

	CategoryMapPath string `json:"category_map_path"` // JSON5 Category Map hints file

	PostgresDSN string `json:"-"` // HUB_POSTGRES_DSN only — managed-mode store, secret, never in file

	Gateway GatewayConfig `json:"gateway"`

	BackendServers map[string]*BackendConfig `json:"backend_servers"`
}

// Default returns a Config with the spec §6 defaults.
func Default() *Config {
	return &Config{
		Enabled:              true,
		Filtering:            true,
		MaxTools:             25,
		Fallback:             true,
		DetectionTimeoutMS:   50,
		ListToolsTimeoutMS:   5000,
		ClientTimeoutMS:      30000,
		Cache:                true,
		DetectionCacheTTLSec: 300,
		DecisionCacheTTLSec:  3600,
		CategoryMapPath:      "category_map.json5",
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		BackendServers: map[string]*BackendConfig{},
	}
}
