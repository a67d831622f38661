package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/detector"
)

// Config bundles the planner's thresholds as plain configuration —
// spec §9 "configuration as value" — mirroring the detector's Config.
type Config struct {
	// Base thresholds before strategy multipliers, matching spec §8's
	// test fixture (T2_thr=0.25, T3_thr=0.55).
	BaseT2Threshold float64
	BaseT3Threshold float64
	GitThreshold    float64 // fixed at 0.3 per spec §4.2, not strategy-modulated

	MaxTools int // HUB_MAX_TOOLS, default 25

	DecisionCacheTTL  time.Duration
	DecisionCacheSize int
}

func DefaultConfig() *Config {
	return &Config{
		BaseT2Threshold:   0.25,
		BaseT3Threshold:   0.55,
		GitThreshold:      0.3,
		MaxTools:          25,
		DecisionCacheTTL:  time.Hour,
		DecisionCacheSize: 4096,
	}
}

// Planner turns a DetectionResult + strategy + overrides into a
// LoadDecision.
type Planner struct {
	cfg     *Config
	catalog *catalog.Map
	cache   *decisionCache
}

func New(cfg *Config, cat *catalog.Map) *Planner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Planner{cfg: cfg, catalog: cat}
	if cfg.DecisionCacheTTL > 0 {
		size := cfg.DecisionCacheSize
		if size <= 0 {
			size = 4096
		}
		p.cache = newDecisionCache(cfg.DecisionCacheTTL, size)
	}
	return p
}

// Plan computes a LoadDecision for one query. A cache hit bypasses
// selection entirely; detection has already run in the caller (the Front
// Door calls Detect before Plan), so a hit does not skip it.
func (p *Planner) Plan(query string, det detector.DetectionResult, strategy Strategy, overrides Overrides) (decision *LoadDecision) {
	if strategy == "" {
		strategy = StrategyConservative
	}

	if p.cache != nil {
		key := DecisionCacheKey(query, strategy, overrides)
		if cached, ok := p.cache.get(key); ok {
			return cached
		}
		defer func() {
			if decision != nil && decision.FallbackReason == "" {
				p.cache.put(key, decision)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			decision = p.fallbackDecision(fmt.Sprintf("%v", r))
		}
	}()

	decision = p.plan(det, strategy, overrides)
	return decision
}

func (p *Planner) plan(det detector.DetectionResult, strategy Strategy, overrides Overrides) *LoadDecision {
	resolved := resolveOverrides(overrides)
	if resolved.strategy != "" {
		strategy = resolved.strategy
	}
	params := paramsFor(strategy)
	scores := resolved.apply(det.Confidence)

	d := newDecision(strategy)
	d.OverridesApplied = resolved.applied

	// Step 1: T1 core, always included.
	for _, td := range p.catalog.CoreTools() {
		d.add(td)
	}

	// Step 2: T1 git, iff git confidence >= GitThreshold (fixed, not
	// strategy-modulated per spec §4.2).
	if scores[catalog.CategoryGit] >= p.cfg.GitThreshold || resolved.force[catalog.CategoryGit] {
		for _, td := range p.catalog.ByCategory(catalog.CategoryGit) {
			if td.Tier == catalog.TierT1 {
				d.add(td)
			}
		}
	}

	// Step 3: T2, ranked by priority score, capped at MaxT2Categories.
	t2Threshold := p.cfg.BaseT2Threshold * params.T2ThresholdMult
	chosenT2 := p.rankT2(scores, resolved, t2Threshold, params.MaxT2Categories)
	for _, c := range chosenT2 {
		for _, td := range p.catalog.ByCategory(c) {
			if td.Tier == catalog.TierT2 {
				d.add(td)
			}
		}
	}

	// Step 4: T3, ranked by confidence, capped at MaxT3Categories.
	t3Threshold := p.cfg.BaseT3Threshold * params.T3ThresholdMult
	chosenT3 := p.rankT3(scores, t3Threshold, params.MaxT3Categories)
	for _, c := range chosenT3 {
		for _, td := range p.catalog.ByCategory(c) {
			if td.Tier == catalog.TierT3 {
				d.add(td)
			}
		}
	}

	// Step 5: dependency closure.
	p.resolveDependencies(d)

	// Cap enforcement: priority-ranked truncation, core exempt — spec §8
	// invariant "Cap", refined per SPEC_FULL.md §4.2 over the original's
	// arbitrary-order truncation.
	p.enforceCap(d)

	// Step 6: estimated tokens + confidence mean.
	p.finalize(d, scores, chosenT2, chosenT3)

	return d
}

// rankT2 selects up to maxCount T2 categories whose score clears
// threshold, ranked by priority score = confidence + 0.5 (has ≥1 T2 tool
// registered) or +1.0 (forced on by override).
func (p *Planner) rankT2(scores map[catalog.Category]float64, resolved resolvedOverrides, threshold float64, maxCount int) []catalog.Category {
	type candidate struct {
		cat      catalog.Category
		priority float64
	}
	var candidates []candidate
	for _, c := range t2Categories() {
		score, ok := scores[c]
		if !ok || score < threshold {
			continue
		}
		priority := score
		if resolved.force[c] {
			priority += 1.0
		} else if len(t2ToolsIn(p.catalog, c)) > 0 {
			priority += 0.5
		}
		candidates = append(candidates, candidate{c, priority})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	out := make([]catalog.Category, len(candidates))
	for i, c := range candidates {
		out[i] = c.cat
	}
	return out
}

func (p *Planner) rankT3(scores map[catalog.Category]float64, threshold float64, maxCount int) []catalog.Category {
	type candidate struct {
		cat   catalog.Category
		score float64
	}
	var candidates []candidate
	for _, c := range t3Categories() {
		if score, ok := scores[c]; ok && score >= threshold {
			candidates = append(candidates, candidate{c, score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	out := make([]catalog.Category, len(candidates))
	for i, c := range candidates {
		out[i] = c.cat
	}
	return out
}

func t2ToolsIn(cat *catalog.Map, c catalog.Category) []catalog.ToolDescriptor {
	var out []catalog.ToolDescriptor
	for _, td := range cat.ByCategory(c) {
		if td.Tier == catalog.TierT2 {
			out = append(out, td)
		}
	}
	return out
}

// resolveDependencies adds the transitive closure of every included
// tool's declared Dependencies.
func (p *Planner) resolveDependencies(d *LoadDecision) {
	queue := make([]catalog.ToolID, 0, len(d.Tools))
	for id := range d.Tools {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		td, ok := p.catalog.Get(id)
		if !ok {
			continue
		}
		for _, dep := range td.Dependencies {
			if d.Tools[dep] {
				continue
			}
			depTD, ok := p.catalog.Get(dep)
			if !ok {
				continue
			}
			d.add(depTD)
			queue = append(queue, dep)
		}
	}
}

// enforceCap truncates to MaxTools by ascending priority, core tools
// exempt — spec §8 invariant "Cap: |D.tools| ≤ HUB_MAX_TOOLS unless
// core_tools alone exceeds the cap, in which case D.tools = core_tools."
func (p *Planner) enforceCap(d *LoadDecision) {
	if p.cfg.MaxTools <= 0 || len(d.Tools) <= p.cfg.MaxTools {
		return
	}

	var core, rest []catalog.ToolDescriptor
	for id := range d.Tools {
		td, ok := p.catalog.Get(id)
		if !ok {
			continue
		}
		if td.Essential {
			core = append(core, td)
		} else {
			rest = append(rest, td)
		}
	}

	if len(core) >= p.cfg.MaxTools {
		*d = *newDecision(d.Strategy)
		for _, td := range core {
			d.add(td)
		}
		d.FallbackReason = ""
		return
	}

	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Priority > rest[j].Priority })
	budget := p.cfg.MaxTools - len(core)
	if budget > len(rest) {
		budget = len(rest)
	}

	kept := append([]catalog.ToolDescriptor(nil), core...)
	kept = append(kept, rest[:budget]...)

	*d = *newDecision(d.Strategy)
	for _, td := range kept {
		d.add(td)
	}
}

func (p *Planner) finalize(d *LoadDecision, scores map[catalog.Category]float64, chosenT2, chosenT3 []catalog.Category) {
	total := 0
	for id := range d.Tools {
		if td, ok := p.catalog.Get(id); ok {
			total += td.TokenCost
		}
	}
	d.EstimatedTokens = total

	observed := append(append([]catalog.Category{}, chosenT2...), chosenT3...)
	if scores[catalog.CategoryGit] > 0 {
		observed = append(observed, catalog.CategoryGit)
	}
	if len(observed) == 0 {
		d.ConfidenceMean = 1.0 // only core present; treat as fully confident
		return
	}
	sum := 0.0
	for _, c := range observed {
		sum += scores[c]
	}
	d.ConfidenceMean = sum / float64(len(observed))
}

// fallbackDecision is returned when any planning step panics — spec
// §4.2 "Planner failure. If any step throws, the planner returns a
// fallback decision: all T1 plus the analysis and debug T2 categories."
func (p *Planner) fallbackDecision(cause string) *LoadDecision {
	d := newDecision(StrategyConservative)
	for _, td := range p.catalog.All() {
		if td.Tier == catalog.TierT1 || td.Essential {
			d.add(td)
		}
	}
	for _, c := range []catalog.Category{catalog.CategoryAnalysis, catalog.CategoryDebug} {
		for _, td := range p.catalog.ByCategory(c) {
			if td.Tier == catalog.TierT2 {
				d.add(td)
			}
		}
	}
	d.FallbackReason = cause
	d.ConfidenceMean = 0.5

	total := 0
	for id := range d.Tools {
		if td, ok := p.catalog.Get(id); ok {
			total += td.TokenCost
		}
	}
	d.EstimatedTokens = total
	return d
}

func t2Categories() []catalog.Category {
	return []catalog.Category{
		catalog.CategoryAnalysis, catalog.CategoryQuality, catalog.CategoryDebug,
		catalog.CategoryTest, catalog.CategorySecurity,
	}
}

func t3Categories() []catalog.Category {
	return []catalog.Category{catalog.CategoryExternal, catalog.CategoryInfrastructure}
}
