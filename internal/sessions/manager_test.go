package sessions

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/planner"
)

func TestManager_GetOrCreate_IsIdempotent(t *testing.T) {
	m := NewManager(0, func() int { return 1000 })

	s1 := m.GetOrCreate("sess-1", "user-a")
	s2 := m.GetOrCreate("sess-1", "user-a")
	if s1 != s2 {
		t.Fatal("expected same session returned for the same ID")
	}
	if s1.Metrics.TokensBaseline != 1000 {
		t.Errorf("expected tokens baseline 1000, got %d", s1.Metrics.TokensBaseline)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 live session, got %d", m.Count())
	}
}

func TestManager_End_RemovesSession(t *testing.T) {
	m := NewManager(0, nil)
	m.GetOrCreate("sess-1", "user-a")

	s, ok := m.End("sess-1")
	if !ok || s == nil {
		t.Fatal("expected End to find the session")
	}
	if _, ok := m.Get("sess-1"); ok {
		t.Error("expected session gone after End")
	}
	if _, ok := m.End("sess-1"); ok {
		t.Error("expected second End to report not-found")
	}
}

func TestManager_GC_EvictsIdleSessions(t *testing.T) {
	m := NewManager(10*time.Millisecond, nil)
	m.GetOrCreate("stale", "user-a")

	time.Sleep(20 * time.Millisecond)
	m.GetOrCreate("fresh", "user-b")

	n := m.GC(time.Now())
	if n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := m.Get("stale"); ok {
		t.Error("expected stale session evicted")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Error("expected fresh session to survive GC")
	}
}

func TestManager_GC_DisabledWhenTTLNonPositive(t *testing.T) {
	m := NewManager(0, nil)
	m.GetOrCreate("sess-1", "user-a")
	time.Sleep(5 * time.Millisecond)
	if n := m.GC(time.Now()); n != 0 {
		t.Errorf("expected GC disabled with idleTTL<=0, evicted %d", n)
	}
}

func TestSession_RecordTurn_BoundsHistory(t *testing.T) {
	s := newSession("user-a", 0)
	s.historyCap = 2

	decision := &planner.LoadDecision{Tools: map[catalog.ToolID]bool{}, EstimatedTokens: 50}
	s.RecordTurn("q1", map[catalog.Category]bool{catalog.CategoryCore: true}, decision)
	s.RecordTurn("q2", map[catalog.Category]bool{catalog.CategoryGit: true}, decision)
	s.RecordTurn("q3", map[catalog.Category]bool{catalog.CategoryDebug: true}, decision)

	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hist))
	}
	if hist[0].Query != "q2" || hist[1].Query != "q3" {
		t.Errorf("expected oldest entry evicted, got %+v", hist)
	}
	if s.Metrics.Detections != 3 {
		t.Errorf("expected 3 detections recorded, got %d", s.Metrics.Detections)
	}
}

func TestSession_RecordTurn_CountsFallbacks(t *testing.T) {
	s := newSession("user-a", 0)
	decision := &planner.LoadDecision{Tools: map[catalog.ToolID]bool{}, FallbackReason: "safe_default"}
	s.RecordTurn("q1", nil, decision)
	if s.Metrics.Fallbacks != 1 {
		t.Errorf("expected 1 fallback counted, got %d", s.Metrics.Fallbacks)
	}
}

func TestSession_RecordCall_TracksSuccessAndError(t *testing.T) {
	s := newSession("user-a", 0)
	s.RecordCall("fs__read_file", nil)
	s.RecordCall("fs__read_file", nil)
	s.RecordCall("fs__write_file", errFake)

	if s.Metrics.FunctionsUsed["fs__read_file"] != 2 {
		t.Errorf("expected read_file used twice, got %d", s.Metrics.FunctionsUsed["fs__read_file"])
	}
	if s.Metrics.Errors != 1 {
		t.Errorf("expected 1 error, got %d", s.Metrics.Errors)
	}
	if _, ok := s.Metrics.FunctionsUsed["fs__write_file"]; ok {
		t.Error("a failed call should not increment functions_used")
	}
}

func TestSession_TokenReduction(t *testing.T) {
	s := newSession("user-a", 1000)
	s.Metrics.TokensLoaded = 250
	if got := s.TokenReduction(); got != 0.75 {
		t.Errorf("expected 0.75 reduction, got %v", got)
	}

	s2 := newSession("user-a", 0)
	if got := s2.TokenReduction(); got != 0 {
		t.Errorf("expected 0 with no baseline, got %v", got)
	}
}

func TestSession_ExecuteCommand_LoadUnloadStrategy(t *testing.T) {
	s := newSession("user-a", 0)

	if err := s.ExecuteCommand("/load-git"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Overrides.ForceCategories) != 1 || s.Overrides.ForceCategories[0] != catalog.CategoryGit {
		t.Errorf("expected git forced on, got %+v", s.Overrides.ForceCategories)
	}

	if err := s.ExecuteCommand("/unload-git"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Overrides.ForceCategories) != 0 {
		t.Errorf("expected git removed from force list, got %+v", s.Overrides.ForceCategories)
	}
	if len(s.Overrides.DisableCategories) != 1 || s.Overrides.DisableCategories[0] != catalog.CategoryGit {
		t.Errorf("expected git disabled, got %+v", s.Overrides.DisableCategories)
	}

	if err := s.ExecuteCommand("/strategy aggressive"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Strategy != planner.StrategyAggressive {
		t.Errorf("expected strategy aggressive, got %s", s.Strategy)
	}
}

func TestSession_ExecuteCommand_RejectsUnknown(t *testing.T) {
	s := newSession("user-a", 0)
	if err := s.ExecuteCommand("/load-not-a-category"); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if err := s.ExecuteCommand("/strategy not-a-strategy"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if err := s.ExecuteCommand("/bogus"); err == nil {
		t.Fatal("expected error for unrecognized command")
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errFake = fakeErr("boom")
