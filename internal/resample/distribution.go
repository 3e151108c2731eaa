package resample

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"landbalancer/internal/inventory"
	"landbalancer/internal/inventory/core"
)

// ErrInvalidUncertainty is returned for unknown types or unusable parameters.
var ErrInvalidUncertainty = errors.New("resample: invalid uncertainty")

// Draw fills dst with independent draws of an exchange amount.
// Exchanges without uncertainty repeat amount.
func Draw(rng *rand.Rand, amount float64, u inventory.Uncertainty, dst []float64) error {
	switch u.Type {
	case core.UncertaintyUndefined, core.UncertaintyNone:
		for i := range dst {
			dst[i] = amount
		}
	case core.UncertaintyLognormal:
		if u.Scale <= 0 {
			return fmt.Errorf("%w: lognormal scale %g", ErrInvalidUncertainty, u.Scale)
		}
		var loc float64
		switch {
		case u.Loc != nil:
			loc = *u.Loc
		case amount != 0:
			loc = math.Log(math.Abs(amount))
		}
		sign := 1.0
		if u.Negative || (u.Loc == nil && amount < 0) {
			sign = -1
		}
		for i := range dst {
			dst[i] = sign * math.Exp(loc+u.Scale*rng.NormFloat64())
		}
	case core.UncertaintyNormal:
		if u.Scale <= 0 {
			return fmt.Errorf("%w: normal scale %g", ErrInvalidUncertainty, u.Scale)
		}
		loc := amount
		if u.Loc != nil {
			loc = *u.Loc
		}
		for i := range dst {
			dst[i] = loc + u.Scale*rng.NormFloat64()
		}
	case core.UncertaintyUniform:
		if !(u.Max > u.Min) {
			return fmt.Errorf("%w: uniform bounds [%g, %g]", ErrInvalidUncertainty, u.Min, u.Max)
		}
		for i := range dst {
			dst[i] = u.Min + (u.Max-u.Min)*rng.Float64()
		}
	case core.UncertaintyTriangular:
		mode := amount
		if u.Loc != nil {
			mode = *u.Loc
		}
		if !(u.Max > u.Min) || mode < u.Min || mode > u.Max {
			return fmt.Errorf("%w: triangular (%g, %g, %g)", ErrInvalidUncertainty, u.Min, mode, u.Max)
		}
		for i := range dst {
			dst[i] = triangular(rng.Float64(), u.Min, mode, u.Max)
		}
	default:
		return fmt.Errorf("%w: unsupported type %d", ErrInvalidUncertainty, u.Type)
	}
	return nil
}

// triangular maps a uniform draw p through the inverse CDF.
func triangular(p, lo, mode, hi float64) float64 {
	span := hi - lo
	cut := (mode - lo) / span
	if p < cut {
		return lo + math.Sqrt(p*span*(mode-lo))
	}
	return hi - math.Sqrt((1-p)*span*(hi-mode))
}
