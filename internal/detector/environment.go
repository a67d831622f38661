package detector

import "github.com/nextlevelbuilder/tsphub/internal/catalog"

// EnvironmentAnalyzer examines booleans/ints in Context (git state,
// project structure) and contributes fixed increments to specific
// categories, ported from original_source/hub/task_detection.py's
// EnvironmentAnalyzer.
type EnvironmentAnalyzer struct{}

func NewEnvironmentAnalyzer() *EnvironmentAnalyzer { return &EnvironmentAnalyzer{} }

func (e *EnvironmentAnalyzer) Analyze(ctx Context) map[catalog.Category]float64 {
	out := map[catalog.Category]float64{}

	if ctx.HasUncommittedChanges {
		out[catalog.CategoryGit] += 0.3
	}
	if ctx.HasMergeConflicts {
		out[catalog.CategoryGit] += 0.4
	}
	if ctx.RecentCommits > 0 {
		out[catalog.CategoryGit] += 0.2
	}
	if ctx.HasTestDirectories {
		out[catalog.CategoryTest] += 0.3
	}
	if ctx.HasSecurityFiles {
		out[catalog.CategorySecurity] += 0.3
	}
	if ctx.HasCIFiles {
		out[catalog.CategoryInfrastructure] += 0.2
	}
	if ctx.HasDocs {
		out[catalog.CategoryAnalysis] += 0.1
	}

	for cat, v := range out {
		if v > 1.0 {
			out[cat] = 1.0
		}
	}
	return out
}
