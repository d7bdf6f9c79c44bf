package pde

// Boundary is a condition imposed at one end of the space grid.
type Boundary interface {
	// row returns the equation coefficients at the boundary node: own is
	// the coefficient of the boundary value, inner that of its neighbour.
	row(t, h float64) (own, inner, rhs float64)
}

// Dirichlet fixes the value at the boundary.
type Dirichlet struct {
	Value func(t float64) float64
}

func (b Dirichlet) row(t, _ float64) (float64, float64, float64) {
	return 1, 0, b.Value(t)
}

// Neumann fixes the outward derivative ∂u/∂x at the boundary.
type Neumann struct {
	Slope func(t float64) float64
}

// one-sided difference across the boundary cell of width h; the sign of h
// orients the difference
func (b Neumann) row(t, h float64) (float64, float64, float64) {
	return 1, -1, b.Slope(t) * h
}

// ConstantValue is a Dirichlet condition with a fixed value.
func ConstantValue(v float64) Dirichlet {
	return Dirichlet{Value: func(float64) float64 { return v }}
}

// ConstantSlope is a Neumann condition with a fixed slope.
func ConstantSlope(s float64) Neumann {
	return Neumann{Slope: func(float64) float64 { return s }}
}
