// Package detector implements the Task Detector: four parallel signal
// analyzers, a weighted scorer, a piecewise-linear calibrator, and the
// fallback-chain decision logic described in spec.md §4.1.
//
// Keyword lists, calibration curves, and thresholds are accepted as
// configuration (Config), not hardcoded — spec §9 "configuration as
// value" — which keeps this package unit-testable without a filesystem.
package detector

import "github.com/nextlevelbuilder/tsphub/internal/catalog"

// SignalKind names one of the four independent analyzers.
type SignalKind string

const (
	SignalKeyword     SignalKind = "keyword"
	SignalContext     SignalKind = "context"
	SignalEnvironment SignalKind = "environment"
	SignalSession     SignalKind = "session"
)

// FallbackTag records why the detector ended up with the result it did.
type FallbackTag string

const (
	FallbackNone                     FallbackTag = "none"
	FallbackMediumConfidenceExpand   FallbackTag = "medium_confidence_expansion"
	FallbackConservativeBias         FallbackTag = "conservative_bias"
	FallbackSafeDefault              FallbackTag = "safe_default"
	FallbackFullLoad                 FallbackTag = "full_load_fallback"
	FallbackError                    FallbackTag = "error_fallback"
	FallbackTimeout                  FallbackTag = "timeout"
)

// Context is the ambient information accompanying a query, read by the
// context/environment/session analyzers. All fields are optional;
// analyzers degrade gracefully on a zero Context.
type Context struct {
	FileExtensions []string

	HasUncommittedChanges bool
	HasMergeConflicts     bool
	RecentCommits         int
	HasTestDirectories    bool
	HasSecurityFiles      bool
	HasCIFiles            bool
	HasDocs               bool

	ProjectType string // e.g. "security" — used by the safe-default contextual bump
	HasTests    bool

	// IsNewUser feeds the conservative-bias branch (spec §4.1 "new-user
	// or complex-query shrinks the threshold").
	IsNewUser bool
}

// HistoryEntry is one past query in a session, as seen by the session
// analyzer. Owned and supplied by the caller (Planner/Front Door) — the
// detector never reaches into session state itself, avoiding the cyclic
// ownership spec §9 warns against.
type HistoryEntry struct {
	Query      string
	Categories []catalog.Category
}

// DetectionResult is the detector's output for one query.
type DetectionResult struct {
	Categories       map[catalog.Category]bool
	Confidence       map[catalog.Category]float64
	Signals          map[SignalKind]map[catalog.Category]float64
	FallbackTag      FallbackTag
	DetectionMS      float64
	QueryComplexity  float64
}
