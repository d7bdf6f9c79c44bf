package numeric

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// AdaptiveLegendre integrates by recursive bisection, comparing a
// fixed-order Gauss-Legendre panel with the sum of its two halves.
type AdaptiveLegendre struct {
	// Order is the number of Legendre nodes per panel.
	Order int
	// Tolerance is the accepted panel error relative to max(1, |integral|).
	Tolerance float64
	// MaxDepth bounds the bisection depth.
	MaxDepth int
}

// NewAdaptiveLegendre returns a 16-point adaptive integrator.
func NewAdaptiveLegendre(tolerance float64, maxDepth int) AdaptiveLegendre {
	return AdaptiveLegendre{Order: 16, Tolerance: tolerance, MaxDepth: maxDepth}
}

func (g AdaptiveLegendre) Integrate(f Func, a, b float64) float64 {
	if a == b {
		return 0
	}
	if a > b {
		return -g.Integrate(f, b, a)
	}
	whole := g.panel(f, a, b)
	return g.adapt(f, a, b, whole, 0)
}

func (g AdaptiveLegendre) adapt(f Func, a, b, whole float64, depth int) float64 {
	m := 0.5 * (a + b)
	left := g.panel(f, a, m)
	right := g.panel(f, m, b)
	sum := left + right
	if math.IsNaN(sum) || depth >= g.MaxDepth || math.Abs(sum-whole) <= g.Tolerance*math.Max(1, math.Abs(sum)) {
		return sum
	}
	return g.adapt(f, a, m, left, depth+1) + g.adapt(f, m, b, right, depth+1)
}

func (g AdaptiveLegendre) panel(f Func, a, b float64) float64 {
	n := g.Order
	if n <= 0 {
		n = 16
	}
	return quad.Fixed(f, a, b, n, quad.Legendre{}, 0)
}
