package dividend

import (
	"errors"
	"fmt"
	"sort"

	"github.com/meenmo/eqvar/curve"
)

// ErrInvalidSpot is returned when the spot is not positive.
var ErrInvalidSpot = errors.New("spot must be positive")

// Curves holds the growth factor R(t), forward F(t) and discounted future
// cash dividends D(t) implied by a spot, a discount curve and a schedule.
// The cumulative sums are computed once at construction.
type Curves struct {
	spot   float64
	dc     curve.DiscountCurve
	divs   Schedule
	taus   []float64
	growth []float64 // G(τ_i), including dividend i
	cash   []float64 // Σ_{j≤i} α_j/R(τ_j)
	total  float64   // Σ_j α_j/R(τ_j)
}

// NewCurves builds the bundle. spot must be positive.
func NewCurves(spot float64, dc curve.DiscountCurve, divs Schedule) (*Curves, error) {
	if !(spot > 0) {
		return nil, fmt.Errorf("NewCurves: spot %g: %w", spot, ErrInvalidSpot)
	}
	if dc == nil {
		return nil, fmt.Errorf("NewCurves: discount curve is required")
	}

	n := divs.Len()
	c := &Curves{
		spot:   spot,
		dc:     dc,
		divs:   divs,
		taus:   make([]float64, n),
		growth: make([]float64, n),
		cash:   make([]float64, n),
	}
	g := 1.0
	sum := 0.0
	for i := 0; i < n; i++ {
		d := divs.At(i)
		g *= 1 - d.Beta
		c.taus[i] = d.Tau
		c.growth[i] = g
		sum += d.Alpha * dc.DiscountFactor(d.Tau) / g
		c.cash[i] = sum
	}
	c.total = sum
	return c, nil
}

// count returns the number of dividends with τ_i ≤ t.
func (c *Curves) count(t float64) int {
	return sort.Search(len(c.taus), func(i int) bool { return c.taus[i] > t })
}

// cumulative returns G(t) and Σ_{τ_i≤t} α_i/R(τ_i).
func (c *Curves) cumulative(t float64) (g, paid float64, n int) {
	n = c.count(t)
	if n == 0 {
		return 1, 0, 0
	}
	return c.growth[n-1], c.cash[n-1], n
}

// GrowthFactor returns R(t) = G(t)/P(t).
func (c *Curves) GrowthFactor(t float64) float64 {
	g, _, _ := c.cumulative(t)
	return g / c.dc.DiscountFactor(t)
}

// Forward returns F(t) = R(t)(S₀ − Σ_{τ_i≤t} α_i/R(τ_i)).
func (c *Curves) Forward(t float64) float64 {
	g, paid, _ := c.cumulative(t)
	return g * (c.spot - paid) / c.dc.DiscountFactor(t)
}

// DiscountedDividends returns D(t) = R(t) Σ_{τ_i>t} α_i/R(τ_i).
func (c *Curves) DiscountedDividends(t float64) float64 {
	g, paid, n := c.cumulative(t)
	if n == len(c.taus) {
		return 0
	}
	return g * (c.total - paid) / c.dc.DiscountFactor(t)
}

// ToSpot maps pure moneyness x at time t to the stock level (F−D)x + D.
func (c *Curves) ToSpot(t, x float64) float64 {
	f, d := c.Forward(t), c.DiscountedDividends(t)
	return (f-d)*x + d
}

// ToPure maps a stock level at time t to pure moneyness (s−D)/(F−D).
func (c *Curves) ToPure(t, s float64) float64 {
	f, d := c.Forward(t), c.DiscountedDividends(t)
	return (s - d) / (f - d)
}

// Spot returns the stock level at time 0.
func (c *Curves) Spot() float64 { return c.spot }

// DiscountCurve returns the curve used for discounting and growth.
func (c *Curves) DiscountCurve() curve.DiscountCurve { return c.dc }

// Schedule returns the dividends the curves were built from.
func (c *Curves) Schedule() Schedule { return c.divs }
