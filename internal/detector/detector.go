package detector

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// Detector computes a DetectionResult from (query, context, history).
// Deterministic for fixed inputs, per spec §4.1.
type Detector struct {
	cfg *Config

	keyword     *KeywordAnalyzer
	contextA    *ContextAnalyzer
	environment *EnvironmentAnalyzer
	session     *SessionAnalyzer
	scorer      *Scorer
	calibrator  *Calibrator

	cache *resultCache
}

// New builds a Detector from the given configuration. cacheTTL <= 0
// disables caching.
func New(cfg *Config, cacheTTL time.Duration, cacheSize int) *Detector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	d := &Detector{
		cfg:         cfg,
		keyword:     NewKeywordAnalyzer(cfg.Keywords),
		contextA:    NewContextAnalyzer(),
		environment: NewEnvironmentAnalyzer(),
		session:     NewSessionAnalyzer(),
		scorer:      NewScorer(cfg.SignalWeights),
		calibrator:  NewCalibrator(cfg.Calibration, cfg),
	}
	if cacheTTL > 0 {
		if cacheSize <= 0 {
			cacheSize = 4096
		}
		d.cache = newResultCache(cacheTTL, cacheSize)
	}
	return d
}

// Detect runs the four analyzers in parallel (joined with the configured
// detection-budget deadline), scores, calibrates, and applies the
// decision/fallback chain. Never returns an error: all internal failures
// degrade to a safe-default result, per spec §7 "DETECTION_FAILED ...
// Recovered locally ... never raised."
func (d *Detector) Detect(ctx context.Context, query string, qctx Context, history []HistoryEntry) DetectionResult {
	start := time.Now()

	if d.cache != nil {
		if cached, ok := d.cache.get(CacheKey(query, qctx)); ok {
			return cached
		}
	}

	result := d.detectSafely(ctx, query, qctx, history)
	result.DetectionMS = float64(time.Since(start).Microseconds()) / 1000.0

	if d.cache != nil && result.FallbackTag != FallbackTimeout && result.FallbackTag != FallbackError {
		d.cache.put(CacheKey(query, qctx), result)
	}
	return result
}

func (d *Detector) detectSafely(ctx context.Context, query string, qctx Context, history []HistoryEntry) (result DetectionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("detector.panic_recovered", "panic", r)
			result = d.safeDefault(qctx, FallbackError)
		}
	}()

	budget := time.Duration(d.cfg.DetectionBudgetMS) * time.Millisecond
	dctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	signals, timedOut := d.fanOutSignals(dctx, query, qctx, history)
	if timedOut {
		return d.safeDefault(qctx, FallbackTimeout)
	}

	complexity := EstimateComplexity(query)
	raw := d.scorer.Combine(signals)
	calibrated := d.calibrator.Calibrate(raw, complexity)

	res := d.decide(calibrated, qctx, complexity)
	res.Signals = signals
	res.QueryComplexity = complexity
	return res
}

// fanOutSignals runs the four analyzers concurrently, each isolated from
// the others' errors (spec §9 "on any analyzer error, drop its
// contribution and continue — do not fail the detector because of one bad
// signal"), joined with the detection-budget deadline.
func (d *Detector) fanOutSignals(ctx context.Context, query string, qctx Context, history []HistoryEntry) (map[SignalKind]map[catalog.Category]float64, bool) {
	signals := map[SignalKind]map[catalog.Category]float64{}
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)

	run := func(kind SignalKind, fn func() map[catalog.Category]float64) {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("detector.analyzer_panic", "signal", kind, "panic", r)
				}
			}()
			out := fn()
			mu.Lock()
			signals[kind] = out
			mu.Unlock()
			return nil
		})
	}

	run(SignalKeyword, func() map[catalog.Category]float64 { return d.keyword.Analyze(query) })
	run(SignalContext, func() map[catalog.Category]float64 { return d.contextA.Analyze(query, qctx) })
	run(SignalEnvironment, func() map[catalog.Category]float64 { return d.environment.Analyze(qctx) })
	run(SignalSession, func() map[catalog.Category]float64 { return d.session.Analyze(query, history) })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case <-done:
		return signals, false
	case <-ctx.Done():
		// Budget exceeded: return whatever signals landed so far is
		// discarded in favor of the safe default per spec §4.1
		// "On exceeded budget surface timeout tag with safe default."
		return signals, true
	}
}

// decide implements spec §4.1's tier decision + fallback chain.
func (d *Detector) decide(scores map[catalog.Category]float64, qctx Context, complexity float64) DetectionResult {
	// T1 categories (core, git) are always enabled, full stop — the
	// separate 0.3-confidence git gate belongs to the planner's tool
	// selection, not the detector's category output.
	categories := map[catalog.Category]bool{catalog.CategoryCore: true, catalog.CategoryGit: true}
	confidence := map[catalog.Category]float64{catalog.CategoryCore: 1.0}
	for c, v := range scores {
		confidence[c] = v
	}

	t2Threshold := d.cfg.T2Threshold * d.biasMultiplier(qctx, complexity)
	biasApplied := false
	for _, c := range t2Categories() {
		if scores[c] >= t2Threshold {
			categories[c] = true
			if t2Threshold < d.cfg.T2Threshold {
				biasApplied = true
			}
		}
	}

	for _, c := range t3Categories() {
		if scores[c] >= d.cfg.T3Threshold {
			categories[c] = true
		}
	}

	maxScore, top1, top2 := topTwo(scores)

	switch {
	case maxScore >= d.cfg.HighConfidence:
		return DetectionResult{Categories: categories, Confidence: confidence, FallbackTag: FallbackNone}

	case maxScore >= d.cfg.MediumConfidence:
		expandMediumConfidence(categories, scores, confidence)
		return DetectionResult{Categories: categories, Confidence: confidence, FallbackTag: FallbackMediumConfidenceExpand}

	case biasApplied:
		return DetectionResult{Categories: categories, Confidence: confidence, FallbackTag: FallbackConservativeBias}

	case maxScore < d.cfg.MediumConfidence || (top1-top2) < d.cfg.AmbiguousDiff:
		return d.safeDefault(qctx, FallbackSafeDefault)

	default:
		return d.safeDefault(qctx, FallbackSafeDefault)
	}
}

// biasMultiplier shrinks the T2 threshold for new users or complex
// queries, per spec §4.1 "conservative bias (new-user or complex-query
// shrinks the threshold by a configured multiplier)".
func (d *Detector) biasMultiplier(qctx Context, complexity float64) float64 {
	mult := 1.0
	if qctx.IsNewUser {
		mult *= d.cfg.Bias.NewUserMultiplier
	}
	if complexity > d.cfg.ComplexityHighThreshold {
		mult *= d.cfg.Bias.ComplexQueryMultiplier
	}
	return mult
}

// expandMediumConfidence enables up to the top 2 T2 categories with
// score >= 0.3, per spec §4.1 fallback-chain step 2.
func expandMediumConfidence(categories map[catalog.Category]bool, scores map[catalog.Category]float64, confidence map[catalog.Category]float64) {
	type scored struct {
		cat   catalog.Category
		score float64
	}
	var candidates []scored
	for _, c := range t2Categories() {
		if s := scores[c]; s >= 0.3 {
			candidates = append(candidates, scored{c, s})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	for i, c := range candidates {
		if i >= 2 {
			break
		}
		categories[c.cat] = true
		confidence[c.cat] = c.score
	}
}

// safeDefault returns the spec §4.1 step-4/5 safe-default set: core, git,
// analysis on, others off, plus contextual bumps.
func (d *Detector) safeDefault(qctx Context, tag FallbackTag) DetectionResult {
	categories := map[catalog.Category]bool{
		catalog.CategoryCore:     true,
		catalog.CategoryGit:      true,
		catalog.CategoryAnalysis: true,
	}
	confidence := map[catalog.Category]float64{
		catalog.CategoryCore:     1.0,
		catalog.CategoryGit:      0.5,
		catalog.CategoryAnalysis: 0.5,
	}

	if qctx.ProjectType == "security" {
		categories[catalog.CategorySecurity] = true
		confidence[catalog.CategorySecurity] = 0.5
	}
	if qctx.HasTests {
		categories[catalog.CategoryTest] = true
		confidence[catalog.CategoryTest] = 0.5
	}
	for _, ext := range qctx.FileExtensions {
		if isCodeExtension(ext) {
			categories[catalog.CategoryQuality] = true
			confidence[catalog.CategoryQuality] = 0.5
			break
		}
	}

	return DetectionResult{
		Categories:  categories,
		Confidence:  confidence,
		FallbackTag: tag,
	}
}

func isCodeExtension(ext string) bool {
	switch ext {
	case ".go", ".py", ".ts", ".js", ".java", ".rb", ".rs", ".c", ".cpp":
		return true
	default:
		return false
	}
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

// topTwo returns the max score and the top two distinct values (second
// is 0 if there's only one scored category), used for the ambiguity
// check (top two within 0.2 of each other).
func topTwo(scores map[catalog.Category]float64) (max, top1, top2 float64) {
	vals := make([]float64, 0, len(scores))
	for _, v := range scores {
		vals = append(vals, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	if len(vals) > 0 {
		top1 = vals[0]
		max = vals[0]
	}
	if len(vals) > 1 {
		top2 = vals[1]
	}
	return max, top1, top2
}
