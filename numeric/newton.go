package numeric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const maxHalvings = 30

// VectorFunc maps R^n to R^n.
type VectorFunc func(x []float64) []float64

// Newton solves f(x) = 0 for a vector function with a forward-difference
// Jacobian and damped steps.
type Newton struct {
	// Tolerance is the max-norm of f accepted as a root.
	Tolerance float64
	// MaxIter bounds the number of Newton steps.
	MaxIter int
	// Step is the relative finite-difference step of the Jacobian.
	Step float64
}

// NewNewton returns a solver with the given tolerance and iteration budget.
func NewNewton(tol float64, maxIter int) Newton {
	return Newton{Tolerance: tol, MaxIter: maxIter, Step: 1e-7}
}

// Solve starts from x0. The domain check, when non-nil, rejects trial points
// outside the function's domain; rejected steps are halved.
func (s Newton) Solve(f VectorFunc, x0 []float64, inDomain func(x []float64) bool) ([]float64, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	fx := f(x)
	if len(fx) != n {
		return nil, fmt.Errorf("Newton.Solve: function returns %d values for %d unknowns", len(fx), n)
	}

	jac := mat.NewDense(n, n, nil)
	var dx mat.VecDense
	for iter := 0; iter < s.MaxIter; iter++ {
		if maxAbs(fx) < s.Tolerance {
			return x, nil
		}

		for j := 0; j < n; j++ {
			h := s.Step * math.Max(1, math.Abs(x[j]))
			xh := append([]float64(nil), x...)
			xh[j] += h
			fh := f(xh)
			for i := 0; i < n; i++ {
				jac.Set(i, j, (fh[i]-fx[i])/h)
			}
		}
		if err := dx.SolveVec(jac, mat.NewVecDense(n, append([]float64(nil), fx...))); err != nil {
			return x, fmt.Errorf("Newton.Solve: iteration %d: %v: %w", iter, err, ErrSingular)
		}

		// damped update: halve until inside the domain and the residual drops
		lambda := 1.0
		accepted := false
		for k := 0; k < maxHalvings && !accepted; k++ {
			trial := make([]float64, n)
			for i := range trial {
				trial[i] = x[i] - lambda*dx.AtVec(i)
			}
			if inDomain == nil || inDomain(trial) {
				if ft := f(trial); maxAbs(ft) < maxAbs(fx) {
					x, fx = trial, ft
					accepted = true
				}
			}
			lambda /= 2
		}
		if !accepted {
			return x, fmt.Errorf("Newton.Solve: no admissible step at iteration %d: %w", iter, ErrNotConverged)
		}
	}
	if maxAbs(fx) < s.Tolerance {
		return x, nil
	}
	return x, fmt.Errorf("Newton.Solve: residual %g after %d iterations: %w", maxAbs(fx), s.MaxIter, ErrNotConverged)
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if math.IsNaN(x) {
			return math.Inf(1)
		}
		m = math.Max(m, math.Abs(x))
	}
	return m
}
