package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/planner"
)

// Manager owns every live Session, keyed by session ID — spec §3
// Lifecycles: "Sessions created on first ListTools for a given session
// ID; retired after an idle TTL or on explicit close; history is GC-ed
// with the session." No storage path is accepted: cross-restart session
// persistence is an explicit Non-goal, so a process restart always
// starts from an empty Manager.
type Manager struct {
	mu      sync.Mutex
	byID    map[string]*Session
	idleTTL time.Duration

	// tokensBaseline returns the current sum of every registered tool
	// descriptor's TokenCost — spec §4.4 EndSession's tokens_baseline.
	// Read once per session at creation, not re-read per turn, so a
	// mid-session catalog change doesn't retroactively change a
	// session's token-reduction denominator.
	tokensBaseline func() int
}

// NewManager builds an empty Manager. idleTTL <= 0 disables idle
// eviction (sessions then live until EndSession or process exit).
func NewManager(idleTTL time.Duration, tokensBaseline func() int) *Manager {
	if tokensBaseline == nil {
		tokensBaseline = func() int { return 0 }
	}
	return &Manager{
		byID:           make(map[string]*Session),
		idleTTL:        idleTTL,
		tokensBaseline: tokensBaseline,
	}
}

// GetOrCreate finds an existing session or creates one — spec §3
// "Sessions created on first ListTools for a given session ID".
func (m *Manager) GetOrCreate(sessionID, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byID[sessionID]; ok {
		return s
	}
	s := newSession(userID, m.tokensBaseline())
	s.ID = sessionID
	m.byID[sessionID] = s
	return s
}

// Get looks up a session without creating one.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	return s, ok
}

// End retires a session explicitly — spec §4.4 EndSession "compute
// token-reduction metric ... emit summary, drop state." Returns the
// retired Session (for the caller to compute/log the summary) and
// whether it existed.
func (m *Manager) End(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return nil, false
	}
	delete(m.byID, sessionID)
	return s, true
}

// GC evicts every session idle past idleTTL, returning how many were
// dropped — spec §3 "retired after an idle TTL".
func (m *Manager) GC(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.byID {
		if s.IdleFor(now) > m.idleTTL {
			delete(m.byID, id)
			n++
		}
	}
	return n
}

// RunGC blocks, evicting idle sessions every interval until ctx is
// cancelled — mirrors the mcp.Supervisor's ticker-loop idiom.
func (m *Manager) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.GC(time.Now()); n > 0 {
				slog.Info("sessions.gc_evicted", "count", n)
			}
		}
	}
}

// Count returns the number of live sessions, for the hub_status admin op.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// RecordTurn locks the session, appends a history entry, and updates
// token/detection metrics in one critical section — the caller (the
// Front Door's ListTools) calls this once per turn after planning.
func (s *Session) RecordTurn(query string, det map[catalog.Category]bool, decision *planner.LoadDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	cats := make([]catalog.Category, 0, len(det))
	for c, on := range det {
		if on {
			cats = append(cats, c)
		}
	}
	tools := make([]catalog.ToolID, 0, len(decision.Tools))
	for id := range decision.Tools {
		tools = append(tools, id)
	}
	s.recordTurn(query, cats, tools)

	s.Metrics.Detections++
	s.Metrics.TokensLoaded = decision.EstimatedTokens
	if decision.FallbackReason != "" {
		s.Metrics.Fallbacks++
	}
}

// RecordCall updates functions_used/error_count after a CallTool
// dispatch — spec §4.4 CallTool "on success mark functions_used[name]
// += 1; on failure increment error_count."
func (s *Session) RecordCall(toolName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err != nil {
		s.Metrics.Errors++
		return
	}
	s.Metrics.FunctionsUsed[toolName]++
}

// ExecuteCommand parses spec §4.4's small command grammar
// (/load-<cat>, /unload-<cat>, /strategy <name>) and mutates the
// session's sticky overrides in place — spec §9's design note that
// commands are sugar over the same Overrides struct ListTools consumes,
// not a separate code path.
func (s *Session) ExecuteCommand(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	cmd = strings.TrimSpace(cmd)
	switch {
	case strings.HasPrefix(cmd, "/load-"):
		cat := catalog.Category(strings.TrimPrefix(cmd, "/load-"))
		if !catalog.IsKnown(cat) {
			return fmt.Errorf("unknown category %q", cat)
		}
		s.Overrides.ForceCategories = appendUnique(s.Overrides.ForceCategories, cat)
		s.Overrides.DisableCategories = removeCategory(s.Overrides.DisableCategories, cat)
		return nil

	case strings.HasPrefix(cmd, "/unload-"):
		cat := catalog.Category(strings.TrimPrefix(cmd, "/unload-"))
		if !catalog.IsKnown(cat) {
			return fmt.Errorf("unknown category %q", cat)
		}
		s.Overrides.DisableCategories = appendUnique(s.Overrides.DisableCategories, cat)
		s.Overrides.ForceCategories = removeCategory(s.Overrides.ForceCategories, cat)
		return nil

	case strings.HasPrefix(cmd, "/strategy "):
		name := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(cmd, "/strategy ")))
		st := planner.Strategy(name)
		switch st {
		case planner.StrategyConservative, planner.StrategyBalanced, planner.StrategyAggressive, planner.StrategyUserControlled:
			s.Strategy = st
			s.Overrides.Strategy = st
			return nil
		default:
			return fmt.Errorf("unknown strategy %q", name)
		}

	default:
		return fmt.Errorf("unrecognized command %q", cmd)
	}
}

func appendUnique(cats []catalog.Category, c catalog.Category) []catalog.Category {
	for _, existing := range cats {
		if existing == c {
			return cats
		}
	}
	return append(cats, c)
}

func removeCategory(cats []catalog.Category, c catalog.Category) []catalog.Category {
	out := cats[:0:0]
	for _, existing := range cats {
		if existing != c {
			out = append(out, existing)
		}
	}
	return out
}
