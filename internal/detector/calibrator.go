package detector

import (
	"strings"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
)

// Calibrator applies per-category piecewise-linear calibration curves and
// a query-complexity modifier, per spec §4.1.
type Calibrator struct {
	curves map[catalog.Category]CalibrationCurve
	cfg    *Config
}

func NewCalibrator(curves map[catalog.Category]CalibrationCurve, cfg *Config) *Calibrator {
	return &Calibrator{curves: curves, cfg: cfg}
}

// Calibrate interpolates each category's raw score along its curve (or
// leaves it unchanged if no curve is configured — core/external/
// infrastructure have no calibration curve of their own, per SPEC_FULL.md
// §4.1), then applies the complexity modifier uniformly.
func (c *Calibrator) Calibrate(scores map[catalog.Category]float64, complexity float64) map[catalog.Category]float64 {
	modifier := 1.0
	if complexity > c.cfg.ComplexityHighThreshold {
		modifier = c.cfg.ComplexityHighModifier
	} else if complexity < c.cfg.ComplexityLowThreshold {
		modifier = c.cfg.ComplexityLowModifier
	}

	out := make(map[catalog.Category]float64, len(scores))
	for cat, raw := range scores {
		calibrated := raw
		if curve, ok := c.curves[cat]; ok {
			calibrated = applyCurve(curve, raw)
		}
		out[cat] = clamp01(calibrated * modifier)
	}
	return out
}

// applyCurve linearly interpolates between anchor points; outside the
// anchor range it extrapolates using the nearest segment's slope.
func applyCurve(curve CalibrationCurve, x float64) float64 {
	anchors := curve.Anchors
	if len(anchors) == 0 {
		return x
	}
	if x <= anchors[0].X {
		if len(anchors) == 1 {
			return anchors[0].Y
		}
		return extrapolate(anchors[0], anchors[1], x)
	}
	for i := 0; i < len(anchors)-1; i++ {
		a, b := anchors[i], anchors[i+1]
		if x >= a.X && x <= b.X {
			return interpolate(a, b, x)
		}
	}
	last := anchors[len(anchors)-1]
	prev := anchors[len(anchors)-2]
	return extrapolate(prev, last, x)
}

func interpolate(a, b Anchor, x float64) float64 {
	if b.X == a.X {
		return a.Y
	}
	t := (x - a.X) / (b.X - a.X)
	return a.Y + t*(b.Y-a.Y)
}

func extrapolate(a, b Anchor, x float64) float64 {
	if b.X == a.X {
		return a.Y
	}
	slope := (b.Y - a.Y) / (b.X - a.X)
	return a.Y + slope*(x-a.X)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EstimateComplexity ports _estimate_query_complexity verbatim:
// min(1.0, word_count/20.0 + min(0.3, indicator_count*0.1)).
func EstimateComplexity(query string) float64 {
	words := strings.Fields(query)
	wordCount := len(words)

	q := strings.ToLower(query)
	indicatorCount := 0
	for _, w := range complexityIndicatorWords {
		if strings.Contains(q, w) {
			indicatorCount++
		}
	}

	indicatorTerm := float64(indicatorCount) * 0.1
	if indicatorTerm > 0.3 {
		indicatorTerm = 0.3
	}
	complexity := float64(wordCount)/20.0 + indicatorTerm
	if complexity > 1.0 {
		complexity = 1.0
	}
	return complexity
}
