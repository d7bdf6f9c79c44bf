// Package pde holds the one-dimensional finite-difference machinery shared
// by the forward and backward variance engines.
package pde

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Mesh is a strictly increasing set of grid nodes.
type Mesh []float64

// Uniform returns n evenly spaced nodes on [lo, hi].
func Uniform(lo, hi float64, n int) Mesh {
	if n < 2 {
		return Mesh{lo, hi}
	}
	return Mesh(floats.Span(make([]float64, n), lo, hi))
}

// Exponential returns n+1 nodes on [lo, hi] concentrated near lo:
// x_i = lo + (hi−lo)(e^{λi/n} − 1)/(e^λ − 1). λ → 0 gives a uniform mesh.
func Exponential(lo, hi float64, n int, lambda float64) Mesh {
	if n < 1 {
		n = 1
	}
	if math.Abs(lambda) < 1e-12 {
		return Uniform(lo, hi, n+1)
	}
	m := make(Mesh, n+1)
	den := math.Expm1(lambda)
	for i := range m {
		m[i] = lo + (hi-lo)*math.Expm1(lambda*float64(i)/float64(n))/den
	}
	m[n] = hi
	return m
}

// Hyperbolic returns n nodes on [lo, hi] concentrated around centre through
// an asinh map with width bunching·(hi−lo). The node nearest centre is moved
// onto it, so centre is always an exact node.
func Hyperbolic(lo, hi, centre, bunching float64, n int) Mesh {
	if n < 3 {
		n = 3
	}
	a := bunching * (hi - lo)
	c1 := math.Asinh((lo - centre) / a)
	c2 := math.Asinh((hi - centre) / a)
	m := make(Mesh, n)
	for i := range m {
		m[i] = centre + a*math.Sinh(c1+(c2-c1)*float64(i)/float64(n-1))
	}
	m[0], m[n-1] = lo, hi
	if centre > lo && centre < hi {
		m[m.Nearest(centre)] = centre
	}
	return m
}

// TimeMesh covers [0, end] with one exponential sub-mesh per interval
// between consecutive breakpoints. The steps are shared out in proportion
// to interval length with at least minSteps per interval. Breakpoints
// outside (0, end) are ignored; those inside are exact nodes.
func TimeMesh(end float64, breaks []float64, steps, minSteps int, lambda float64) (Mesh, error) {
	if !(end > 0) {
		return nil, fmt.Errorf("TimeMesh: end %g must be positive", end)
	}
	knots := []float64{0}
	for _, b := range breaks {
		if b > knots[len(knots)-1] && b < end {
			knots = append(knots, b)
		}
	}
	knots = append(knots, end)

	m := Mesh{0}
	for i := 1; i < len(knots); i++ {
		lo, hi := knots[i-1], knots[i]
		n := int(math.Round(float64(steps) * (hi - lo) / end))
		if n < minSteps {
			n = minSteps
		}
		sub := Exponential(lo, hi, n, lambda)
		m = append(m, sub[1:]...)
	}
	return m, nil
}

// Exp maps a log-moneyness mesh to moneyness nodes eʸ.
func (m Mesh) Exp() Mesh {
	out := make(Mesh, len(m))
	for i, y := range m {
		out[i] = math.Exp(y)
	}
	return out
}

// Len is the number of nodes.
func (m Mesh) Len() int { return len(m) }

// Nearest is the index of the node closest to v.
func (m Mesh) Nearest(v float64) int {
	i := sort.SearchFloat64s(m, v)
	switch {
	case i == 0:
		return 0
	case i == len(m):
		return len(m) - 1
	case v-m[i-1] < m[i]-v:
		return i - 1
	default:
		return i
	}
}

// Index returns the position of an exact node, or −1.
func (m Mesh) Index(v float64) int {
	i := sort.SearchFloat64s(m, v)
	if i < len(m) && m[i] == v {
		return i
	}
	return -1
}

// Interpolate evaluates the piecewise-linear interpolant of values on the
// mesh at v, clamping outside the mesh.
func (m Mesh) Interpolate(values []float64, v float64) float64 {
	n := len(m)
	if v <= m[0] {
		return values[0]
	}
	if v >= m[n-1] {
		return values[n-1]
	}
	i := sort.SearchFloat64s(m, v)
	if m[i] == v {
		return values[i]
	}
	w := (v - m[i-1]) / (m[i] - m[i-1])
	return values[i-1] + w*(values[i]-values[i-1])
}
