// Package planner implements the Loading Planner: turns a detector
// DetectionResult plus a session strategy and optional overrides into a
// concrete LoadDecision — the set of tools actually exposed to a caller.
package planner

import (
	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// Strategy names one of the four loading strategies, each modulating the
// T2/T3 thresholds and the max-categories-per-tier caps.
type Strategy string

const (
	StrategyConservative    Strategy = "CONSERVATIVE"
	StrategyBalanced        Strategy = "BALANCED"
	StrategyAggressive      Strategy = "AGGRESSIVE"
	StrategyUserControlled  Strategy = "USER_CONTROLLED"
)

// StrategyParams is one row of spec §4.2's strategy table.
type StrategyParams struct {
	T2ThresholdMult float64
	T3ThresholdMult float64
	MaxT2Categories int
	MaxT3Categories int
}

// strategyTable is config-as-value, not hardcoded inline in the planner's
// selection logic — spec §9 "configuration as value".
var strategyTable = map[Strategy]StrategyParams{
	StrategyConservative:   {T2ThresholdMult: 0.9, T3ThresholdMult: 0.9, MaxT2Categories: 1, MaxT3Categories: 1},
	StrategyBalanced:       {T2ThresholdMult: 1.0, T3ThresholdMult: 1.0, MaxT2Categories: 1, MaxT3Categories: 1},
	StrategyAggressive:     {T2ThresholdMult: 1.05, T3ThresholdMult: 1.05, MaxT2Categories: 1, MaxT3Categories: 1},
	// USER_CONTROLLED behaves as CONSERVATIVE for threshold/cap purposes;
	// its overrides go through the same pre-selection step as every other
	// strategy's (see Overrides).
	StrategyUserControlled: {T2ThresholdMult: 0.9, T3ThresholdMult: 0.9, MaxT2Categories: 1, MaxT3Categories: 1},
}

// paramsFor returns the strategy row, clamping AGGRESSIVE's multipliers to
// 0.99 per spec's "(≤0.99)" annotation — a multiplier ≥1.0 would raise the
// effective threshold above the base, which AGGRESSIVE must never do.
func paramsFor(s Strategy) StrategyParams {
	p, ok := strategyTable[s]
	if !ok {
		p = strategyTable[StrategyConservative]
	}
	if s == StrategyAggressive {
		if p.T2ThresholdMult > 0.99 {
			p.T2ThresholdMult = 0.99
		}
		if p.T3ThresholdMult > 0.99 {
			p.T3ThresholdMult = 0.99
		}
	}
	return p
}

// Overrides is the session overrides block from spec §4.2: force/disable
// category sets and an optional strategy swap. Plan applies force/disable
// to the confidence map before selection for every strategy,
// USER_CONTROLLED included; there is no separate after-selection pass, so
// forced T2 categories still compete for the strategy's MaxT2Categories.
type Overrides struct {
	ForceCategories   []catalog.Category
	DisableCategories []catalog.Category
	Strategy          Strategy // empty = no override
}

// LoadDecision is the planner's output: the concrete tool set exposed to a
// caller for one ListTools call.
type LoadDecision struct {
	Tools            map[catalog.ToolID]bool
	TierBreakdown    map[catalog.Tier]map[catalog.ToolID]bool
	EstimatedTokens  int
	ConfidenceMean   float64
	Strategy         Strategy
	FallbackReason   string
	OverridesApplied []string
}

func newDecision(strategy Strategy) *LoadDecision {
	return &LoadDecision{
		Tools: map[catalog.ToolID]bool{},
		TierBreakdown: map[catalog.Tier]map[catalog.ToolID]bool{
			catalog.TierT1: {},
			catalog.TierT2: {},
			catalog.TierT3: {},
		},
		Strategy: strategy,
	}
}

func (d *LoadDecision) add(td catalog.ToolDescriptor) {
	d.Tools[td.ID] = true
	d.TierBreakdown[td.Tier][td.ID] = true
}
