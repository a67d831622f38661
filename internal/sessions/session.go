// Package sessions implements the Session Manager half of spec §4.4: a
// per-logical-conversation record of strategy, sticky overrides, bounded
// query history, and usage metrics, created on first ListTools and
// retired on idle TTL or explicit EndSession.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/planner"
)

// HistoryEntry records one past turn's query and the categories it
// resolved to — spec §3 "history (bounded ring buffer of the last k
// queries with their categories and tools-used)".
type HistoryEntry struct {
	Query      string
	Categories []catalog.Category
	Tools      []catalog.ToolID
	At         time.Time
}

// Metrics is the counters block from spec §3's Session.metrics.
type Metrics struct {
	Detections   int
	Fallbacks    int
	Errors       int
	TokensLoaded int // estimated_tokens of the most recent ListTools decision
	TokensBaseline int // set once, at session creation, from the full catalog
	FunctionsUsed  map[string]int
}

// Session is one logical agent conversation — spec §3's Session record.
// Its methods serialize on the per-session lock mu, so one session's
// turns, calls and commands never interleave; direct reads of the
// exported fields are not locked.
type Session struct {
	ID        string
	UserID    string
	Strategy  planner.Strategy
	Overrides planner.Overrides

	CreatedAt    time.Time
	LastActiveAt time.Time

	history    []HistoryEntry
	historyCap int

	Metrics Metrics

	mu sync.Mutex
}

const defaultHistoryCap = 20

func newSession(userID string, tokensBaseline int) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Strategy:     planner.StrategyConservative,
		CreatedAt:    now,
		LastActiveAt: now,
		historyCap:   defaultHistoryCap,
		Metrics: Metrics{
			TokensBaseline: tokensBaseline,
			FunctionsUsed:  make(map[string]int),
		},
	}
}

// touch refreshes the idle-TTL clock — called on every session operation.
func (s *Session) touch() {
	s.LastActiveAt = time.Now()
}

// recordTurn appends one entry to the bounded history ring, evicting the
// oldest entry once historyCap is exceeded — spec §3 "bounded ring buffer
// of the last k queries".
func (s *Session) recordTurn(query string, categories []catalog.Category, tools []catalog.ToolID) {
	entry := HistoryEntry{Query: query, Categories: categories, Tools: tools, At: time.Now()}
	s.history = append(s.history, entry)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
}

// History returns a copy of the session's turn history, oldest first.
// Locked: recordTurn reassigns and reslices s.history under s.mu, so an
// unlocked read here would race against it.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Snapshot returns the session's current strategy and overrides under
// lock, for callers (the Front Door) that need a consistent read before
// invoking the planner.
func (s *Session) Snapshot() (planner.Strategy, planner.Overrides) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Strategy, s.Overrides
}

// IdleFor reports how long the session has been inactive.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActiveAt)
}

// TokenReduction computes spec §4.4's EndSession metric:
// 1 − tokens_loaded/tokens_baseline. Returns 0 if no baseline is known,
// rather than dividing by zero.
func (s *Session) TokenReduction() float64 {
	if s.Metrics.TokensBaseline <= 0 {
		return 0
	}
	return 1 - float64(s.Metrics.TokensLoaded)/float64(s.Metrics.TokensBaseline)
}
