package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Hints is the static, hand-authored portion of the Category Map: per
// tool-name category/priority/essential overrides, keyed by local tool
// name. Discovered tools that have no hint entry default to
// CategoryExternal at T3 with priority 0 — conservative, since an unknown
// tool should not masquerade as a trusted core/git tool.
//
// This mirrors original_source/hub/config/tool_mappings.py's
// TOOL_CATEGORY_MAPPINGS / TOOL_PRIORITIES / CORE_TOOLS tables, simplified
// to spec.md's 9-category closed set and <server>__<local_name> IDs.
type Hints struct {
	Core       []string                  `json:"core_tools"`
	Categories map[string]Category       `json:"categories"`
	Priority   map[string]int            `json:"priority"`
	TokenCost  map[string]int            `json:"token_cost"`
	DependsOn  map[string][]string       `json:"depends_on"`
}

// LoadHints reads hint data from a JSON5 file. A missing file yields empty
// (but non-nil) hints — the hub still runs, treating every discovered tool
// conservatively.
func LoadHints(path string) (*Hints, error) {
	h := &Hints{
		Categories: map[string]Category{},
		Priority:   map[string]int{},
		TokenCost:  map[string]int{},
		DependsOn:  map[string][]string{},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, fmt.Errorf("read category map: %w", err)
	}
	if err := json5.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("parse category map: %w", err)
	}
	return h, nil
}

// Map is the aggregated, mutable-at-discovery-time-only table of all tool
// descriptors known to the hub, plus the static hints used to classify
// newly discovered tools. Safe for concurrent use: reads take a shared
// lock and return copies, writes (discovery / rediscovery) are exclusive.
type Map struct {
	mu    sync.RWMutex
	tools map[ToolID]ToolDescriptor
	hints *Hints
}

// NewMap creates an empty Category Map with the given static hints.
func NewMap(hints *Hints) *Map {
	if hints == nil {
		hints = &Hints{}
	}
	return &Map{tools: make(map[ToolID]ToolDescriptor), hints: hints}
}

// Classify derives a ToolDescriptor's category/tier/priority/token-cost/
// essential fields for a freshly discovered tool, applying the static
// hints table. Unhinted tools default to CategoryExternal (T3), priority
// 0 — spec §3's invariant that only a known core-tools subset is always
// exposed means an unclassified tool must never default to "core".
func (m *Map) Classify(server, localName, description string, inputSchema map[string]any) ToolDescriptor {
	m.mu.RLock()
	h := m.hints
	m.mu.RUnlock()

	id := BuildToolID(server, localName)
	cat, ok := h.Categories[localName]
	if !ok || !IsKnown(cat) {
		cat = CategoryExternal
	}

	essential := false
	for _, c := range h.Core {
		if c == localName {
			essential = true
			break
		}
	}

	var deps []ToolID
	for _, d := range h.DependsOn[localName] {
		deps = append(deps, ToolID(d))
	}

	return ToolDescriptor{
		ID:             id,
		LocalName:      localName,
		Description:    description,
		OwningServerID: server,
		InputSchema:    inputSchema,
		Category:       cat,
		Tier:           TierOf(cat),
		TokenCost:      h.TokenCost[localName],
		Priority:       h.Priority[localName],
		Essential:      essential,
		Dependencies:   deps,
	}
}

// Register inserts or replaces a tool descriptor (discovery / rediscovery).
func (m *Map) Register(td ToolDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[td.ID] = td
}

// UnregisterServer removes all descriptors owned by the given server
// (called on Client teardown / rediscovery).
func (m *Map) UnregisterServer(server string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, td := range m.tools {
		if td.OwningServerID == server {
			delete(m.tools, id)
		}
	}
}

// Get returns a tool descriptor by ID.
func (m *Map) Get(id ToolID) (ToolDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, ok := m.tools[id]
	return td, ok
}

// All returns a snapshot of every registered tool descriptor.
func (m *Map) All() []ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(m.tools))
	for _, td := range m.tools {
		out = append(out, td)
	}
	return out
}

// ByCategory returns every registered tool in the given category.
func (m *Map) ByCategory(c Category) []ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ToolDescriptor
	for _, td := range m.tools {
		if td.Category == c {
			out = append(out, td)
		}
	}
	return out
}

// CoreTools returns the essential subset of T1 tools — always exposed.
func (m *Map) CoreTools() []ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ToolDescriptor
	for _, td := range m.tools {
		if td.Essential {
			out = append(out, td)
		}
	}
	return out
}

// TotalTokenCost sums token_cost over every registered descriptor — the
// tokens_baseline figure used by EndSession's reduction metric.
func (m *Map) TotalTokenCost() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := 0
	for _, td := range m.tools {
		sum += td.TokenCost
	}
	return sum
}

// ReplaceHints swaps in a newly loaded hints value. Existing descriptors
// keep their already-classified fields; only tools discovered after the
// swap are classified against the new hints. This matches spec §9's
// "configuration as value" note: a reload produces a new immutable value
// that is swapped in, never mutated in place.
func (m *Map) ReplaceHints(hints *Hints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hints = hints
}

// WatchHints starts an fsnotify watch on path and calls LoadHints +
// ReplaceHints whenever it changes. Returns a stop function. A missing
// path is watched on its parent directory (the watch activates once the
// file is created), matching operator workflows where the category map is
// dropped in after the hub starts.
func (m *Map) WatchHints(path string) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		// Fall back to watching the directory so a later create is seen.
		if derr := watcher.Add(dirOf(path)); derr != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch category map: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				h, err := LoadHints(path)
				if err != nil {
					slog.Warn("catalog.hints.reload_failed", "error", err)
					continue
				}
				m.ReplaceHints(h)
				slog.Info("catalog.hints.reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("catalog.hints.watch_error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// MarshalSnapshot is a convenience for admin/status surfaces.
func (m *Map) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(m.All())
}
