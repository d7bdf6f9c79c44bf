package pde

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNonFinite is returned when a solve produces NaN or Inf values, which
// happens when a coefficient surface fails to evaluate.
var ErrNonFinite = errors.New("non-finite PDE solution")

// Problem is the convection-diffusion equation
//
//	∂u/∂t = a(t,x) ∂²u/∂x² + b(t,x) ∂u/∂x
//
// on Grid with a condition at each end. Coefficients returns (a, b).
type Problem struct {
	Grid         Mesh
	Coefficients func(t, x float64) (diffusion, convection float64)
	Lower        Boundary
	Upper        Boundary
}

// Diffusion adapts a pure diffusion coefficient a(t,x) with b = 0.
func Diffusion(a func(t, x float64) float64) func(t, x float64) (float64, float64) {
	return func(t, x float64) (float64, float64) { return a(t, x), 0 }
}

// ThetaSolver steps a Problem with the theta method. The first
// DampingSteps steps of each solve are fully implicit to smooth
// non-differentiable initial data.
type ThetaSolver struct {
	Theta        float64
	DampingSteps int
}

// Solve evolves initial along times, which must be increasing, and returns
// the solution at the last time.
func (s ThetaSolver) Solve(p Problem, initial []float64, times Mesh) ([]float64, error) {
	n := len(p.Grid)
	if n < 3 || len(initial) != n {
		return nil, fmt.Errorf("ThetaSolver.Solve: grid has %d nodes, initial data %d", n, len(initial))
	}
	if len(times) < 2 {
		return append([]float64(nil), initial...), nil
	}

	st := newStencil(p.Grid)
	u := append([]float64(nil), initial...)
	rhs := make([]float64, n)
	lo, di, up := make([]float64, n), make([]float64, n), make([]float64, n)

	// row i holds sub[i-1], diag[i], sup[i]
	sub, diag, sup := make([]float64, n-1), make([]float64, n), make([]float64, n-1)
	system := mat.NewTridiag(n, sub, diag, sup)
	uv, rv := mat.NewVecDense(n, u), mat.NewVecDense(n, rhs)

	p.operator(st, times[0], lo, di, up)
	for step := 1; step < len(times); step++ {
		t0, t1 := times[step-1], times[step]
		dt := t1 - t0
		if !(dt > 0) {
			return nil, fmt.Errorf("ThetaSolver.Solve: times not increasing at %g", t1)
		}
		theta := s.Theta
		if step <= s.DampingSteps {
			theta = 1
		}

		for i := 1; i < n-1; i++ {
			rhs[i] = u[i] + (1-theta)*dt*(lo[i]*u[i-1]+di[i]*u[i]+up[i]*u[i+1])
		}

		p.operator(st, t1, lo, di, up)
		for i := 1; i < n-1; i++ {
			sub[i-1] = -theta * dt * lo[i]
			diag[i] = 1 - theta*dt*di[i]
			sup[i] = -theta * dt * up[i]
		}
		diag[0], sup[0], rhs[0] = p.Lower.row(t1, p.Grid[0]-p.Grid[1])
		diag[n-1], sub[n-2], rhs[n-1] = p.Upper.row(t1, p.Grid[n-1]-p.Grid[n-2])

		if err := system.SolveVecTo(uv, false, rv); err != nil {
			return nil, fmt.Errorf("ThetaSolver.Solve: step to t=%g: %w", t1, err)
		}
	}

	for i, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("ThetaSolver.Solve: node %d (x=%g): %w", i, p.Grid[i], ErrNonFinite)
		}
	}
	return u, nil
}

// operator fills the interior rows of the discretised right-hand side at t.
func (p Problem) operator(st stencil, t float64, lo, di, up []float64) {
	for i := 1; i < len(p.Grid)-1; i++ {
		a, b := p.Coefficients(t, p.Grid[i])
		lo[i] = a*st.xxL[i] + b*st.xL[i]
		di[i] = a*st.xxC[i] + b*st.xC[i]
		up[i] = a*st.xxR[i] + b*st.xR[i]
	}
}

// stencil holds three-point weights of the first and second derivative on
// a non-uniform grid.
type stencil struct {
	xL, xC, xR    []float64
	xxL, xxC, xxR []float64
}

func newStencil(m Mesh) stencil {
	n := len(m)
	st := stencil{
		xL: make([]float64, n), xC: make([]float64, n), xR: make([]float64, n),
		xxL: make([]float64, n), xxC: make([]float64, n), xxR: make([]float64, n),
	}
	for i := 1; i < n-1; i++ {
		hm := m[i] - m[i-1]
		hp := m[i+1] - m[i]
		st.xL[i] = -hp / (hm * (hm + hp))
		st.xC[i] = (hp - hm) / (hm * hp)
		st.xR[i] = hm / (hp * (hm + hp))
		st.xxL[i] = 2 / (hm * (hm + hp))
		st.xxC[i] = -2 / (hm * hp)
		st.xxR[i] = 2 / (hp * (hm + hp))
	}
	return st
}
