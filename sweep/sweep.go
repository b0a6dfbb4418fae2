// Package sweep plans the external field values visited by a collection run
// and fits them into the range a device accepts.
package sweep

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/domino14/spintable/solver"
)

// MinStep is the smallest step that still separates planned values.
const MinStep = 1e-4

// Round4 rounds to 4 decimal places, the precision of a planned value.
func Round4(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		// no negative zero; it would be written as -0.00000
		return 0
	}
	return r
}

// Plan returns the values from -hRange to +hRange inclusive, stepping by
// hStep. Each value is rounded so step drift cannot push the last point past
// the bound or produce near-duplicates at the boundary.
func Plan(hRange, hStep float64) ([]float64, error) {
	if hStep < MinStep {
		return nil, fmt.Errorf("h step must be at least %v, got %v", MinStep, hStep)
	}
	if hRange < 0 {
		return nil, fmt.Errorf("h range must not be negative, got %v", hRange)
	}
	var values []float64
	for h := -hRange; Round4(h) <= hRange; h += hStep {
		v := Round4(h)
		if len(values) > 0 && values[len(values)-1] == v {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

// ScalingFactor is the largest factor <= 1 that brings every value inside r.
func ScalingFactor(values []float64, r solver.DeviceRange) float64 {
	factor := 1.0
	for _, h := range values {
		if h == 0 {
			continue
		}
		if h < r.Lower {
			factor = math.Min(factor, r.Lower/h)
		}
		if h > r.Upper {
			factor = math.Min(factor, r.Upper/h)
		}
	}
	return factor
}

// Rescale multiplies every value by factor, preserving relative spacing.
func Rescale(values []float64, factor float64) []float64 {
	return lo.Map(values, func(h float64, _ int) float64 {
		return h * factor
	})
}

// boundTolerance is how close, relative to a bound, a rescaled value must
// be to count as sitting on it.
const boundTolerance = 1e-12

// Fit compresses values into r when any of them falls outside it, and
// reports the factor it used. The value that set the factor lands exactly
// on its bound and nothing ends up outside r.
func Fit(values []float64, r solver.DeviceRange) ([]float64, float64) {
	factor := ScalingFactor(values, r)
	if factor >= 1.0 {
		return values, 1.0
	}
	// h * (bound/h) can miss the bound by an ulp either way.
	fitted := lo.Map(Rescale(values, factor), func(h float64, _ int) float64 {
		return pin(h, r)
	})
	return fitted, factor
}

func pin(h float64, r solver.DeviceRange) float64 {
	for _, b := range []float64{r.Lower, r.Upper} {
		if math.Abs(h-b) <= boundTolerance*math.Abs(b) {
			return b
		}
	}
	return min(max(h, r.Lower), r.Upper)
}
