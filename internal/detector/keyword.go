package detector

import (
	"strings"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// KeywordAnalyzer is a pure function of the query string — cacheable,
// per spec §4.1.
type KeywordAnalyzer struct {
	sets map[catalog.Category]KeywordSet
}

func NewKeywordAnalyzer(sets map[catalog.Category]KeywordSet) *KeywordAnalyzer {
	return &KeywordAnalyzer{sets: sets}
}

// Analyze scores each category by summing base_conf*weight for every
// matching keyword tier, clamped to [0,1] per category. Matching is
// case-insensitive substring against a lowercased query.
func (k *KeywordAnalyzer) Analyze(query string) map[catalog.Category]float64 {
	q := strings.ToLower(query)
	out := make(map[catalog.Category]float64, len(k.sets))

	for cat, set := range k.sets {
		score := 0.0
		score += matchScore(q, set.Direct, set.BaseConfidence*1.0)
		score += matchScore(q, set.Contextual, set.BaseConfidence*0.7)
		score += matchScore(q, set.Action, set.BaseConfidence*0.5)
		if score > 1.0 {
			score = 1.0
		}
		if score > 0 {
			out[cat] = score
		}
	}
	return out
}

func matchScore(query string, terms []string, credit float64) float64 {
	sum := 0.0
	for _, t := range terms {
		if strings.Contains(query, t) {
			sum += credit
		}
	}
	return sum
}
