package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays HUB_* env vars.
// A missing file is not an error — the hub runs on defaults+env alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays HUB_* env vars onto the config — spec §6
// "env-first, overridable by file": env wins over whatever the file set.
func (c *Config) applyEnvOverrides() {
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envBool("HUB_ENABLED", &c.Enabled)
	envBool("HUB_FILTERING", &c.Filtering)
	envInt("HUB_MAX_TOOLS", &c.MaxTools)
	envBool("HUB_FALLBACK", &c.Fallback)
	envInt("HUB_DETECTION_TIMEOUT_MS", &c.DetectionTimeoutMS)
	envInt("HUB_LIST_TOOLS_TIMEOUT_MS", &c.ListToolsTimeoutMS)
	envInt("HUB_CLIENT_TIMEOUT_MS", &c.ClientTimeoutMS)
	envBool("HUB_CACHE", &c.Cache)
	envInt("HUB_CACHE_TTL_SEC", &c.DetectionCacheTTLSec)
	envStr("HUB_CATEGORY_MAP", &c.CategoryMapPath)
	envStr("HUB_POSTGRES_DSN", &c.PostgresDSN)
	envStr("HUB_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("HUB_GATEWAY_HOST", &c.Gateway.Host)
	envInt("HUB_GATEWAY_PORT", &c.Gateway.Port)
}

// Validate reports a CONFIG_INVALID condition — spec §7: fatal at
// startup, never raised at steady state.
func (c *Config) Validate() error {
	if c.MaxTools <= 0 {
		return fmt.Errorf("max_tools must be positive, got %d", c.MaxTools)
	}
	if c.DetectionTimeoutMS <= 0 {
		return fmt.Errorf("detection_timeout_ms must be positive, got %d", c.DetectionTimeoutMS)
	}
	if c.ListToolsTimeoutMS <= 0 {
		return fmt.Errorf("list_tools_timeout_ms must be positive, got %d", c.ListToolsTimeoutMS)
	}
	if c.ClientTimeoutMS <= 0 {
		return fmt.Errorf("client_timeout_ms must be positive, got %d", c.ClientTimeoutMS)
	}
	for name, b := range c.BackendServers {
		switch b.Transport {
		case "stdio":
			if b.Command == "" {
				return fmt.Errorf("backend %q: stdio transport requires command", name)
			}
		case "sse", "streamable-http":
			if b.URL == "" {
				return fmt.Errorf("backend %q: %s transport requires url", name, b.Transport)
			}
		default:
			return fmt.Errorf("backend %q: unsupported transport %q", name, b.Transport)
		}
	}
	return nil
}
