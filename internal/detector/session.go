package detector

import (
	"strings"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// SessionAnalyzer walks the last k=10 history entries, scoring each touched
// category relative to the session's most-used category
// (count/max_usage*0.6, capped at 0.6), then boosts all touched categories
// by +0.3 (capped 0.8) if the current query's token set has Jaccard
// similarity > 0.7 with any of the previous 4 queries — the
// "query-evolution" signal from original_source/hub/task_detection.py.
type SessionAnalyzer struct{}

func NewSessionAnalyzer() *SessionAnalyzer { return &SessionAnalyzer{} }

const (
	sessionHistoryWindow   = 10
	sessionSimilarityLook  = 4
	sessionUsageCap        = 0.6
	sessionSimilarityBoost = 0.3
	sessionBoostedCap      = 0.8
	jaccardThreshold       = 0.7
)

func (s *SessionAnalyzer) Analyze(query string, history []HistoryEntry) map[catalog.Category]float64 {
	out := map[catalog.Category]float64{}
	if len(history) == 0 {
		return out
	}

	recent := history
	if len(recent) > sessionHistoryWindow {
		recent = recent[len(recent)-sessionHistoryWindow:]
	}

	counts := map[catalog.Category]int{}
	maxUsage := 1
	for _, h := range recent {
		for _, c := range h.Categories {
			counts[c]++
			if counts[c] > maxUsage {
				maxUsage = counts[c]
			}
		}
	}
	for c, n := range counts {
		score := float64(n) / float64(maxUsage) * sessionUsageCap
		if score > sessionUsageCap {
			score = sessionUsageCap
		}
		out[c] = score
	}

	queryTokens := tokenSet(query)
	lookback := recent
	if len(lookback) > sessionSimilarityLook {
		lookback = lookback[len(lookback)-sessionSimilarityLook:]
	}

	boosted := false
	for _, h := range lookback {
		if jaccard(queryTokens, tokenSet(h.Query)) > jaccardThreshold {
			boosted = true
			break
		}
	}
	if boosted {
		for c, v := range out {
			v += sessionSimilarityBoost
			if v > sessionBoostedCap {
				v = sessionBoostedCap
			}
			out[c] = v
		}
	}
	return out
}

func tokenSet(s string) map[string]bool {
	toks := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

// jaccard computes |A ∩ B| / |A ∪ B| over two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
