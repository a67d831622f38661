package detector

import (
	"strings"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// errorIndicators and performanceIndicators are ported from
// original_source/hub/task_detection.py's ContextAnalyzer tables.
var errorIndicators = []string{
	"traceback", "exception", "failed", "error:", "warning:", "timeout",
	"500 ", "502 ", "503 ", "404 ",
}

var performanceIndicators = []string{
	"slow", "memory", "performance", "optimization", "bottleneck",
}

// testFileExtensions classifies file_extensions context for the test
// credit; any other extension earns the quality credit instead.
var testFileExtensions = map[string]bool{"_test.go": true, ".spec.ts": true, ".test.js": true}

// ContextAnalyzer examines query text plus context.file_extensions for
// error/performance/file-type signals.
type ContextAnalyzer struct{}

func NewContextAnalyzer() *ContextAnalyzer { return &ContextAnalyzer{} }

func (c *ContextAnalyzer) Analyze(query string, ctx Context) map[catalog.Category]float64 {
	q := strings.ToLower(query)
	out := map[catalog.Category]float64{}

	for _, ind := range errorIndicators {
		if strings.Contains(q, ind) {
			out[catalog.CategoryDebug] += 0.6
			break // one credit per signal family, not per keyword
		}
	}
	for _, ind := range performanceIndicators {
		if strings.Contains(q, ind) {
			out[catalog.CategoryAnalysis] += 0.5
			out[catalog.CategoryQuality] += 0.3
			break
		}
	}

	for _, ext := range ctx.FileExtensions {
		ext = strings.ToLower(ext)
		if testFileExtensions[ext] || strings.Contains(ext, "test") {
			out[catalog.CategoryTest] += 0.3
		} else {
			out[catalog.CategoryQuality] += 0.3
		}
	}

	for cat, v := range out {
		if v > 1.0 {
			out[cat] = 1.0
		}
	}
	return out
}
