package numeric

import (
	"fmt"
	"math"
)

const (
	brentMaxIter = 200
	machineEps   = 2.220446049250313e-16
)

// Brent is the Brent-Dekker bracketing root finder.
type Brent struct {
	// Tolerance is the absolute tolerance on the root.
	Tolerance float64
}

// NewBrent returns a root finder with absolute tolerance tol.
func NewBrent(tol float64) Brent {
	return Brent{Tolerance: tol}
}

func (s Brent) Root(f Func, lo, hi float64) (float64, error) {
	a, b := lo, hi
	fa, fb := f(a), f(b)
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if (fa > 0) == (fb > 0) {
		return 0, fmt.Errorf("Brent.Root: f(%g)=%g, f(%g)=%g: %w", lo, fa, hi, fb, ErrNoBracket)
	}

	c, fc := b, fb
	var d, e float64
	for iter := 0; iter < brentMaxIter; iter++ {
		if (fb > 0) == (fc > 0) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}
		tol1 := 2*machineEps*math.Abs(b) + 0.5*s.Tolerance
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol1 || fb == 0 {
			return b, nil
		}
		if math.Abs(e) >= tol1 && math.Abs(fa) > math.Abs(fb) {
			// inverse quadratic interpolation, or secant when a == c
			sr := fb / fa
			var p, q float64
			if a == c {
				p = 2 * xm * sr
				q = 1 - sr
			} else {
				q = fa / fc
				r := fb / fc
				p = sr * (2*xm*q*(q-r) - (b-a)*(r-1))
				q = (q - 1) * (r - 1) * (sr - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)
			if 2*p < math.Min(3*xm*q-math.Abs(tol1*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}
		a, fa = b, fb
		if math.Abs(d) > tol1 {
			b += d
		} else {
			b += math.Copysign(tol1, xm)
		}
		fb = f(b)
	}
	return b, fmt.Errorf("Brent.Root: %d iterations: %w", brentMaxIter, ErrNotConverged)
}

// ExpandBracket widens [lo, hi] geometrically until f changes sign, keeping
// lo above floor. It gives up after maxSteps expansions.
func ExpandBracket(f Func, lo, hi, floor float64, maxSteps int) (float64, float64, error) {
	flo, fhi := f(lo), f(hi)
	for i := 0; i < maxSteps; i++ {
		if (flo > 0) != (fhi > 0) || flo == 0 || fhi == 0 {
			return lo, hi, nil
		}
		width := hi - lo
		if math.Abs(flo) < math.Abs(fhi) {
			lo = math.Max(floor, lo-width)
			flo = f(lo)
		} else {
			hi += width
			fhi = f(hi)
		}
	}
	return lo, hi, fmt.Errorf("ExpandBracket: no sign change in [%g, %g]: %w", lo, hi, ErrNoBracket)
}
