package detector

import "github.com/nextlevelbuilder/tsphub/internal/catalog"

// Scorer combines the four analyzers' signal maps into a single
// per-category score, applying global signal weights and scaling the
// whole vector back under 1.0 if any category would exceed it — spec
// §4.1 "If max over categories > 1.0, scale all proportionally back to
// ≤1.0."
type Scorer struct {
	weights SignalWeights
}

func NewScorer(weights SignalWeights) *Scorer {
	return &Scorer{weights: weights}
}

// Combine produces the final per-category score from the four signal
// maps (any of which may be nil if its analyzer failed or was dropped —
// spec §9 "on any analyzer error, drop its contribution and continue").
func (s *Scorer) Combine(signals map[SignalKind]map[catalog.Category]float64) map[catalog.Category]float64 {
	out := map[catalog.Category]float64{}

	add := func(kind SignalKind, weight float64) {
		for cat, v := range signals[kind] {
			out[cat] += v * weight
		}
	}
	add(SignalKeyword, s.weights.Keyword)
	add(SignalContext, s.weights.Context)
	add(SignalEnvironment, s.weights.Environment)
	add(SignalSession, s.weights.Session)

	max := 0.0
	for _, v := range out {
		if v > max {
			max = v
		}
	}
	if max > 1.0 {
		for cat, v := range out {
			out[cat] = v / max
		}
	}
	return out
}
