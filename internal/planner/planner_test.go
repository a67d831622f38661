package planner

import (
	"testing"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/detector"
)

func testCatalog() *catalog.Map {
	m := catalog.NewMap(nil)
	reg := func(id catalog.ToolID, server, local string, cat catalog.Category, tier catalog.Tier, cost, prio int, essential bool, deps ...catalog.ToolID) {
		m.Register(catalog.ToolDescriptor{
			ID: id, LocalName: local, OwningServerID: server,
			Category: cat, Tier: tier, TokenCost: cost, Priority: prio,
			Essential: essential, Dependencies: deps,
		})
	}

	reg("core__ping", "core", "ping", catalog.CategoryCore, catalog.TierT1, 10, 100, true)
	reg("git__status", "git", "status", catalog.CategoryGit, catalog.TierT1, 20, 90, false)
	reg("git__commit", "git", "commit", catalog.CategoryGit, catalog.TierT1, 20, 80, false)
	reg("debug__trace", "debug", "trace", catalog.CategoryDebug, catalog.TierT2, 40, 50, false)
	reg("test__run", "test", "run", catalog.CategoryTest, catalog.TierT2, 40, 40, false)
	reg("analysis__scan", "analysis", "scan", catalog.CategoryAnalysis, catalog.TierT2, 30, 60, false)
	reg("security__audit", "security", "audit", catalog.CategorySecurity, catalog.TierT2, 50, 70, false)
	reg("external__search", "external", "search", catalog.CategoryExternal, catalog.TierT3, 60, 20, false)
	reg("infra__deploy", "infra", "deploy", catalog.CategoryInfrastructure, catalog.TierT3, 70, 10, false)
	return m
}

func TestPlan_CoreAlwaysPresent(t *testing.T) {
	p := New(DefaultConfig(), testCatalog())
	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{}}
	d := p.Plan("hello", det, StrategyConservative, Overrides{})

	if !d.Tools["core__ping"] {
		t.Fatal("expected core tool always present")
	}
}

func TestPlan_GitThreshold(t *testing.T) {
	p := New(DefaultConfig(), testCatalog())

	below := detector.DetectionResult{Confidence: map[catalog.Category]float64{catalog.CategoryGit: 0.2}}
	d := p.Plan("q", below, StrategyConservative, Overrides{})
	if d.Tools["git__status"] {
		t.Error("expected git tools absent below threshold")
	}

	above := detector.DetectionResult{Confidence: map[catalog.Category]float64{catalog.CategoryGit: 0.5}}
	d = p.Plan("q2", above, StrategyConservative, Overrides{})
	if !d.Tools["git__status"] || !d.Tools["git__commit"] {
		t.Error("expected git tools present above threshold")
	}
}

func TestPlan_T2CappedByMaxCategories(t *testing.T) {
	p := New(DefaultConfig(), testCatalog())
	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{
		catalog.CategoryAnalysis: 0.9,
		catalog.CategorySecurity: 0.8,
		catalog.CategoryDebug:    0.7,
	}}
	d := p.Plan("q3", det, StrategyConservative, Overrides{})

	on := 0
	for _, c := range []catalog.Category{catalog.CategoryAnalysis, catalog.CategorySecurity, catalog.CategoryDebug} {
		if hasCategory(d, p, c) {
			on++
		}
	}
	if on != 1 {
		t.Errorf("expected exactly 1 T2 category under CONSERVATIVE cap, got %d", on)
	}
	// highest score (analysis=0.9) should win
	if !d.Tools["analysis__scan"] {
		t.Errorf("expected highest-priority T2 category (analysis) selected, tools=%v", d.Tools)
	}
}

func hasCategory(d *LoadDecision, p *Planner, c catalog.Category) bool {
	for _, td := range p.catalog.ByCategory(c) {
		if d.Tools[td.ID] {
			return true
		}
	}
	return false
}

func TestPlan_ForceOverrideBypassesThreshold(t *testing.T) {
	p := New(DefaultConfig(), testCatalog())
	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{}}
	d := p.Plan("q4", det, StrategyConservative, Overrides{ForceCategories: []catalog.Category{catalog.CategorySecurity}})

	if !d.Tools["security__audit"] {
		t.Errorf("expected forced category's tools present, got %v", d.Tools)
	}
	found := false
	for _, a := range d.OverridesApplied {
		if a == "force:security" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected overrides_applied to record force:security, got %v", d.OverridesApplied)
	}
}

func TestPlan_DisableOverrideRemovesCategory(t *testing.T) {
	p := New(DefaultConfig(), testCatalog())
	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{catalog.CategoryGit: 0.9}}
	d := p.Plan("q5", det, StrategyConservative, Overrides{DisableCategories: []catalog.Category{catalog.CategoryGit}})

	if d.Tools["git__status"] {
		t.Error("expected disabled category's tools absent")
	}
}

func TestPlan_DependencyClosure(t *testing.T) {
	m := catalog.NewMap(nil)
	m.Register(catalog.ToolDescriptor{ID: "core__ping", Category: catalog.CategoryCore, Tier: catalog.TierT1, Essential: true})
	m.Register(catalog.ToolDescriptor{ID: "test__run", Category: catalog.CategoryTest, Tier: catalog.TierT2, TokenCost: 10, Dependencies: []catalog.ToolID{"test__setup"}})
	m.Register(catalog.ToolDescriptor{ID: "test__setup", Category: catalog.CategoryQuality, Tier: catalog.TierT2, TokenCost: 5})

	p := New(DefaultConfig(), m)
	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{catalog.CategoryTest: 0.9}}
	d := p.Plan("q6", det, StrategyConservative, Overrides{})

	if !d.Tools["test__run"] || !d.Tools["test__setup"] {
		t.Errorf("expected dependency closure to include test__setup, got %v", d.Tools)
	}
}

func TestPlan_CapEnforcedCoreExempt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTools = 2
	m := testCatalog()
	p := New(cfg, m)

	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{
		catalog.CategoryGit:      0.9,
		catalog.CategoryAnalysis: 0.9,
	}}
	d := p.Plan("q7", det, StrategyConservative, Overrides{})

	if len(d.Tools) > cfg.MaxTools && len(d.Tools) != len(p.catalog.CoreTools()) {
		t.Errorf("expected cap enforced or core-only overflow, got %d tools", len(d.Tools))
	}
	if !d.Tools["core__ping"] {
		t.Error("expected core tool exempt from cap")
	}
}

func TestPlan_DecisionCacheHit(t *testing.T) {
	p := New(DefaultConfig(), testCatalog())
	det := detector.DetectionResult{Confidence: map[catalog.Category]float64{catalog.CategoryGit: 0.9}}

	first := p.Plan("same query", det, StrategyConservative, Overrides{})
	second := p.Plan("same query", det, StrategyConservative, Overrides{})

	if len(first.Tools) != len(second.Tools) {
		t.Errorf("expected cached decision to match: %v vs %v", first.Tools, second.Tools)
	}
}
