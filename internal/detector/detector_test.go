package detector

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

func newTestDetector() *Detector {
	return New(DefaultConfig(), 0, 0)
}

// Scenario 1: "help me commit my changes and push to remote", empty
// context — all core T1, all git T1, no T2/T3.
func TestDetect_GitCommitPush(t *testing.T) {
	d := newTestDetector()
	res := d.Detect(context.Background(), "help me commit my changes and push to remote", Context{}, nil)

	if !res.Categories[catalog.CategoryCore] {
		t.Fatal("expected core always on")
	}
	if !res.Categories[catalog.CategoryGit] {
		t.Fatalf("expected git on, got %+v", res.Categories)
	}
	for _, c := range t2Categories() {
		if res.Categories[c] {
			t.Errorf("expected T2 category %s off, got on", c)
		}
	}
	for _, c := range t3Categories() {
		if res.Categories[c] {
			t.Errorf("expected T3 category %s off, got on", c)
		}
	}
	if res.FallbackTag != FallbackNone && res.FallbackTag != FallbackMediumConfidenceExpand {
		t.Errorf("expected none or medium_confidence_expansion, got %s", res.FallbackTag)
	}
}

// Scenario 2: "debug the failing authentication tests",
// {has_tests=true, file_extensions:['.py']} — debug on, test on, others off.
func TestDetect_DebugFailingTests(t *testing.T) {
	d := newTestDetector()
	qctx := Context{HasTests: true, FileExtensions: []string{".py"}}
	res := d.Detect(context.Background(), "debug the failing authentication tests", qctx, nil)

	if !res.Categories[catalog.CategoryDebug] {
		t.Fatalf("expected debug on, got %+v", res.Categories)
	}
	if res.FallbackTag != FallbackNone && res.FallbackTag != FallbackMediumConfidenceExpand {
		t.Errorf("expected none or medium_confidence_expansion, got %s", res.FallbackTag)
	}
}

// Scenario 3: "perform security audit on the payment module",
// {has_security_files=true} — security on, T2 limited to 1 category,
// T3 off.
func TestDetect_SecurityAudit(t *testing.T) {
	d := newTestDetector()
	qctx := Context{HasSecurityFiles: true}
	res := d.Detect(context.Background(), "perform security audit on the payment module", qctx, nil)

	if !res.Categories[catalog.CategorySecurity] {
		t.Fatalf("expected security on, got %+v", res.Categories)
	}
	for _, c := range t3Categories() {
		if res.Categories[c] {
			t.Errorf("expected T3 category %s off under CONSERVATIVE, got on", c)
		}
	}
}

// Scenario 4: empty query -> safe_default, core+git+analysis.
func TestDetect_EmptyQuery(t *testing.T) {
	d := newTestDetector()
	res := d.Detect(context.Background(), "", Context{}, nil)

	if res.FallbackTag != FallbackSafeDefault {
		t.Fatalf("expected safe_default, got %s", res.FallbackTag)
	}
	for _, c := range []catalog.Category{catalog.CategoryCore, catalog.CategoryGit, catalog.CategoryAnalysis} {
		if !res.Categories[c] {
			t.Errorf("expected %s on in safe default, got %+v", c, res.Categories)
		}
	}
}

// Scenario 5: session similarity boost from history enables analysis
// with elevated confidence.
func TestDetect_SessionSimilarityBoost(t *testing.T) {
	d := newTestDetector()
	history := []HistoryEntry{
		{Query: "explain the architecture", Categories: []catalog.Category{catalog.CategoryAnalysis}},
	}
	res := d.Detect(context.Background(), "help me understand this codebase architecture", Context{}, history)

	if !res.Categories[catalog.CategoryAnalysis] {
		t.Fatalf("expected analysis on via session boost, got %+v", res.Categories)
	}
	if res.Signals[SignalSession][catalog.CategoryAnalysis] <= 0 {
		t.Errorf("expected positive session signal for analysis, got %v", res.Signals[SignalSession])
	}
}

// Boundary: all-zero signal scores degrade to safe_default.
func TestDetect_AllZeroSignals(t *testing.T) {
	d := newTestDetector()
	res := d.Detect(context.Background(), "zzz qqq xyzzy plugh", Context{}, nil)
	if res.FallbackTag != FallbackSafeDefault {
		t.Fatalf("expected safe_default, got %s", res.FallbackTag)
	}
}

// Determinism: identical inputs yield identical outputs.
func TestDetect_Deterministic(t *testing.T) {
	d := newTestDetector()
	qctx := Context{HasTests: true, FileExtensions: []string{".go"}}
	a := d.Detect(context.Background(), "debug the failing tests", qctx, nil)
	b := d.Detect(context.Background(), "debug the failing tests", qctx, nil)

	if a.FallbackTag != b.FallbackTag {
		t.Fatalf("non-deterministic fallback tag: %s vs %s", a.FallbackTag, b.FallbackTag)
	}
	for c := range a.Categories {
		if a.Categories[c] != b.Categories[c] {
			t.Errorf("non-deterministic category %s: %v vs %v", c, a.Categories[c], b.Categories[c])
		}
	}
}

// Cache hit returns identical result without recomputation (observed via
// identical DetectionMS on the second call being a cache hit, which
// cannot regress below the first measured value in a way that would
// indicate a fresh computation happened — tested indirectly through
// CacheKey stability instead, to avoid timing flakiness).
func TestDetect_CacheKeyStable(t *testing.T) {
	qctx := Context{HasTests: true}
	k1 := CacheKey("same query", qctx)
	k2 := CacheKey("Same Query", qctx)
	if k1 != k2 {
		t.Error("expected case/whitespace-insensitive cache key for identical normalized query")
	}

	d := New(DefaultConfig(), time.Minute, 16)
	first := d.Detect(context.Background(), "analyze this architecture", Context{}, nil)
	second := d.Detect(context.Background(), "analyze this architecture", Context{}, nil)
	if first.FallbackTag != second.FallbackTag {
		t.Errorf("cached result diverged: %s vs %s", first.FallbackTag, second.FallbackTag)
	}
}

// An exhausted detection budget must not crash detection: the result
// still carries the always-on core category.
func TestDetect_SurvivesBudgetExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectionBudgetMS = 0
	d := New(cfg, 0, 0)

	res := d.Detect(context.Background(), "commit and push", Context{}, nil)
	if res.FallbackTag != FallbackTimeout && res.FallbackTag != FallbackSafeDefault {
		t.Logf("got fallback tag %s under zero budget (acceptable: race between analyzers and deadline)", res.FallbackTag)
	}
	if !res.Categories[catalog.CategoryCore] {
		t.Error("expected core always on even under timeout")
	}
}

func TestEstimateComplexity(t *testing.T) {
	simple := EstimateComplexity("commit my changes")
	complex := EstimateComplexity("analyze and understand the various complex interactions, but also investigate multiple edge cases")
	if complex <= simple {
		t.Errorf("expected complex query to score higher: simple=%v complex=%v", simple, complex)
	}
	if complex > 1.0 {
		t.Errorf("expected complexity clamped to 1.0, got %v", complex)
	}
}
