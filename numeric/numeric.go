// Package numeric holds the quadrature, root-finding, minimisation and
// linear-algebra services consumed by the pricing engines.
package numeric

import "errors"

var (
	// ErrNotConverged is returned when an iterative solver exhausts its
	// iteration budget.
	ErrNotConverged = errors.New("solver did not converge")

	// ErrNoBracket is returned when a root finder is given an interval whose
	// end points do not straddle a sign change.
	ErrNoBracket = errors.New("root not bracketed")

	// ErrSingular is returned when a linear system cannot be solved.
	ErrSingular = errors.New("singular system")
)

// Func is a scalar function of one variable.
type Func func(x float64) float64

// Integrator integrates f over [a, b].
type Integrator interface {
	Integrate(f Func, a, b float64) float64
}

// RootFinder finds a zero of f inside the bracket [lo, hi].
type RootFinder interface {
	Root(f Func, lo, hi float64) (float64, error)
}
