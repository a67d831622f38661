package detector

import "github.com/nextlevelbuilder/tsphub/internal/catalog"

// KeywordSet holds the three keyword tiers for one category plus its base
// confidence, ported from original_source/hub/task_detection.py's
// KeywordAnalyzer keyword tables.
type KeywordSet struct {
	BaseConfidence float64
	Direct         []string
	Contextual     []string
	Action         []string
}

// CalibrationCurve is a monotonic non-decreasing piecewise-linear curve,
// anchor points sorted by X ascending (e.g. {0.3:0.8, 0.5:0.9, 0.7:0.95,
// 1.0:1.0} for git). Ported from task_detection_config.py CalibrationConfig.
type CalibrationCurve struct {
	Anchors []Anchor
}

// Anchor is one (score, calibrated) point on a CalibrationCurve.
type Anchor struct {
	X, Y float64
}

// Config bundles every piece of detector configuration as a plain value —
// spec §9 "configuration as value": the core accepts this as input and is
// pure over it.
type Config struct {
	Keywords     map[catalog.Category]KeywordSet
	Calibration  map[catalog.Category]CalibrationCurve

	SignalWeights SignalWeights
	Bias          BiasConfig

	T2Threshold float64
	T3Threshold float64

	HighConfidence     float64 // fallback-chain step 1: "max score >= 0.8"
	MediumConfidence   float64 // fallback-chain step 2: "max score >= 0.4"
	AmbiguousDiff      float64 // top-two-within-0.2 ambiguity band

	ComplexityHighThreshold float64 // >0.8 -> modifier 0.8
	ComplexityLowThreshold  float64 // <0.3 -> modifier 1.1
	ComplexityHighModifier  float64
	ComplexityLowModifier   float64

	DetectionBudgetMS int
}

// SignalWeights are the four global per-signal weights from spec §4.1's
// scorer ("kw=1.0, ctx=0.7, env=0.6, sess=0.8 by default"). This is the
// corrected, intended 4-weight model spec.md documents — see
// DESIGN.md Open Question #1 for why the original Python's
// signal_weights dict (keyed by direct/contextual/action/etc.) is NOT
// what's implemented here: its keys don't match the signal_type strings
// its own extractors emit, so following it verbatim would silently zero
// out every signal's weight.
type SignalWeights struct {
	Keyword     float64
	Context     float64
	Environment float64
	Session     float64
}

// BiasConfig holds the conservative-bias multipliers applied to T2
// thresholds for new users / complex queries, ported from
// task_detection_config.py's BiasConfig dataclass defaults (not the
// differing hardcoded 0.7/0.8 in FunctionLoader.apply_conservative_bias —
// see DESIGN.md Open Question #2).
type BiasConfig struct {
	NewUserMultiplier      float64
	ComplexQueryMultiplier float64
	MultiDomainMultiplier  float64
	ErrorContextBoost      float64
}

// DefaultConfig returns the CONSERVATIVE-preset configuration matching
// spec §8's test fixture (T2_thr=0.25, T3_thr=0.55).
func DefaultConfig() *Config {
	return &Config{
		Keywords:    defaultKeywords(),
		Calibration: defaultCalibration(),
		SignalWeights: SignalWeights{
			Keyword: 1.0, Context: 0.7, Environment: 0.6, Session: 0.8,
		},
		Bias: BiasConfig{
			NewUserMultiplier:      0.6,
			ComplexQueryMultiplier: 0.7,
			MultiDomainMultiplier:  0.6,
			ErrorContextBoost:      0.2,
		},
		T2Threshold:             0.25,
		T3Threshold:             0.55,
		HighConfidence:          0.8,
		MediumConfidence:        0.4,
		AmbiguousDiff:           0.2,
		ComplexityHighThreshold: 0.8,
		ComplexityLowThreshold:  0.3,
		ComplexityHighModifier:  0.8,
		ComplexityLowModifier:   1.1,
		DetectionBudgetMS:       50,
	}
}

func defaultKeywords() map[catalog.Category]KeywordSet {
	return map[catalog.Category]KeywordSet{
		catalog.CategoryGit: {
			BaseConfidence: 0.9,
			Direct:         []string{"commit", "push", "pull", "merge", "branch", "rebase", "checkout"},
			Contextual:     []string{"git", "repository", "remote", "origin"},
			Action:         []string{"clone", "fetch", "stash", "tag"},
		},
		catalog.CategoryDebug: {
			BaseConfidence: 0.85,
			Direct:         []string{"debug", "breakpoint", "stack trace", "crash"},
			Contextual:     []string{"error", "exception", "bug", "fix"},
			Action:         []string{"investigate", "trace", "diagnose"},
		},
		catalog.CategoryTest: {
			BaseConfidence: 0.8,
			Direct:         []string{"test", "unit test", "integration test", "coverage"},
			Contextual:     []string{"assert", "mock", "fixture"},
			Action:         []string{"verify", "validate"},
		},
		catalog.CategorySecurity: {
			BaseConfidence: 0.85,
			Direct:         []string{"security", "vulnerability", "audit", "exploit"},
			Contextual:     []string{"auth", "permission", "credential", "secret"},
			Action:         []string{"scan", "pentest"},
		},
		catalog.CategoryAnalysis: {
			BaseConfidence: 0.75,
			Direct:         []string{"analyze", "architecture", "understand", "explain"},
			Contextual:     []string{"codebase", "structure", "design"},
			Action:         []string{"review", "inspect"},
		},
		catalog.CategoryQuality: {
			BaseConfidence: 0.8,
			Direct:         []string{"lint", "format", "refactor", "style"},
			Contextual:     []string{"quality", "convention", "clean"},
			Action:         []string{"improve", "optimize code"},
		},
	}
}

func defaultCalibration() map[catalog.Category]CalibrationCurve {
	curve := func(pts ...float64) CalibrationCurve {
		var c CalibrationCurve
		for i := 0; i < len(pts); i += 2 {
			c.Anchors = append(c.Anchors, Anchor{X: pts[i], Y: pts[i+1]})
		}
		return c
	}
	return map[catalog.Category]CalibrationCurve{
		catalog.CategoryGit:      curve(0.3, 0.8, 0.5, 0.9, 0.7, 0.95, 1.0, 1.0),
		catalog.CategoryDebug:    curve(0.3, 0.7, 0.5, 0.8, 0.7, 0.9, 1.0, 0.95),
		catalog.CategoryTest:     curve(0.3, 0.6, 0.5, 0.75, 0.7, 0.85, 1.0, 0.9),
		catalog.CategorySecurity: curve(0.3, 0.7, 0.5, 0.8, 0.7, 0.9, 1.0, 0.95),
		catalog.CategoryAnalysis: curve(0.3, 0.5, 0.5, 0.65, 0.7, 0.8, 1.0, 0.9),
		catalog.CategoryQuality:  curve(0.3, 0.6, 0.5, 0.7, 0.7, 0.85, 1.0, 0.9),
	}
}

// complexityIndicatorWords is the exact word list from
// _estimate_query_complexity in original_source/hub/task_detection.py.
var complexityIndicatorWords = []string{
	"and", "or", "but", "also", "multiple", "various", "complex",
	"analyze", "understand", "investigate",
}
