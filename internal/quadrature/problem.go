package quadrature

import (
	"math"

	"github.com/copyleftdev/integra/internal/errors"
)

// Problem is a set of caller-supplied inputs to check before estimating. The
// rules themselves assume these preconditions and never re-check them.
type Problem struct {
	Lower      float64
	Upper      float64
	Rectangles int
}

// Validate rejects non-finite bounds and rectangle counts below one.
func (p Problem) Validate() error {
	if !isFinite(p.Lower) || !isFinite(p.Upper) {
		return errors.Errorf(errors.KindInvalidInput,
			"bounds must be finite, got [%v, %v]; improper integrals are not supported", p.Lower, p.Upper).
			WithOp("quadrature.Validate")
	}
	if p.Rectangles < 1 {
		return errors.Errorf(errors.KindInvalidInput,
			"rectangles must be a positive integer, got %d", p.Rectangles).
			WithOp("quadrature.Validate")
	}
	return nil
}

// ValidateTolerance rejects tolerances that are not finite and positive.
func ValidateTolerance(epsilon float64) error {
	if !isFinite(epsilon) || epsilon <= 0 {
		return errors.Errorf(errors.KindInvalidInput,
			"tolerance must be a positive real number, got %v", epsilon).
			WithOp("quadrature.ValidateTolerance")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
