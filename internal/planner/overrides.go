package planner

import "github.com/nextlevelbuilder/tsphub/internal/catalog"

// resolvedOverrides is the set-form of an Overrides block, computed once
// per Plan call, following the teacher's set-operation idiom
// (internal/tools/policy.go's subtractSet/unionWithSpec) adapted from
// tool-name sets to category sets.
type resolvedOverrides struct {
	force    map[catalog.Category]bool
	disable  map[catalog.Category]bool
	strategy Strategy // empty if no strategy override
	applied  []string
}

func resolveOverrides(o Overrides) resolvedOverrides {
	r := resolvedOverrides{
		force:   make(map[catalog.Category]bool, len(o.ForceCategories)),
		disable: make(map[catalog.Category]bool, len(o.DisableCategories)),
	}
	for _, c := range o.ForceCategories {
		r.force[c] = true
		r.applied = append(r.applied, "force:"+string(c))
	}
	for _, c := range o.DisableCategories {
		r.disable[c] = true
		r.applied = append(r.applied, "disable:"+string(c))
	}
	if o.Strategy != "" {
		r.strategy = o.Strategy
		r.applied = append(r.applied, "strategy:"+string(o.Strategy))
	}
	return r
}

// apply forces confidence=1.0 / enabled=true for forced categories and
// drops disabled categories from the working score map, prior to
// selection — spec §4.2 "Force sets category=true with confidence=1.0
// prior to selection; disable sets it false."
func (r resolvedOverrides) apply(scores map[catalog.Category]float64) map[catalog.Category]float64 {
	out := make(map[catalog.Category]float64, len(scores))
	for c, v := range scores {
		out[c] = v
	}
	for c := range r.force {
		out[c] = 1.0
	}
	for c := range r.disable {
		delete(out, c)
	}
	return out
}
