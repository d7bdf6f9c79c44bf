package volatility

import (
	"fmt"
	"math"

	"github.com/meenmo/eqvar/numeric"
)

// PureImpliedVol is the Black volatility of options on the pure process at
// time t and pure strike x (forward 1).
type PureImpliedVol func(t, x float64) float64

// PureLocalVol is the local volatility of the pure process.
type PureLocalVol func(t, x float64) float64

// LocalVol is the local volatility of the stock at time t and level s.
type LocalVol func(t, s float64) float64

// FlooredShift adds amount to a surface and floors the result at zero.
func FlooredShift[S ~func(float64, float64) float64](s S, amount float64) S {
	return func(t, x float64) float64 {
		return math.Max(0, s(t, x)+amount)
	}
}

// Axis names the coordinate a Black surface is parameterised by.
type Axis int

const (
	// Strike is the absolute strike k.
	Strike Axis = iota
	// Delta is the forward call delta N(d1).
	Delta
	// Moneyness is k/F.
	Moneyness
	// LogMoneyness is log(k/F).
	LogMoneyness
)

func (a Axis) String() string {
	switch a {
	case Strike:
		return "strike"
	case Delta:
		return "delta"
	case Moneyness:
		return "moneyness"
	case LogMoneyness:
		return "log-moneyness"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// BlackSurface is a Black implied volatility surface together with the
// meaning of its second coordinate.
type BlackSurface struct {
	Axis Axis
	Vol  func(t, v float64) float64

	// RootFinder inverts delta surfaces for a strike. Nil uses Brent at
	// deltaTolerance.
	RootFinder numeric.RootFinder
}

const deltaTolerance = 1e-12

// NewStrikeSurface tags vol as a function of absolute strike.
func NewStrikeSurface(vol func(t, k float64) float64) BlackSurface {
	return BlackSurface{Axis: Strike, Vol: vol}
}

// Shift returns the surface shifted by amount and floored at zero.
func (s BlackSurface) Shift(amount float64) BlackSurface {
	return BlackSurface{Axis: s.Axis, Vol: FlooredShift(s.Vol, amount), RootFinder: s.RootFinder}
}

// VolAtStrike evaluates the surface at absolute strike k for a forward f.
// Delta surfaces solve for the delta whose strike is k.
func (s BlackSurface) VolAtStrike(t, k, f float64) (float64, error) {
	switch s.Axis {
	case Strike:
		return s.Vol(t, k), nil
	case Moneyness:
		return s.Vol(t, k/f), nil
	case LogMoneyness:
		return s.Vol(t, math.Log(k/f)), nil
	case Delta:
		if t <= 0 {
			return s.Vol(t, 0.5), nil
		}
		g := func(delta float64) float64 {
			kd, err := StrikeForDelta(f, delta, t, s.Vol(t, delta), true)
			if err != nil {
				return math.NaN()
			}
			return math.Log(kd / k)
		}
		solver := s.RootFinder
		if solver == nil {
			solver = numeric.NewBrent(deltaTolerance)
		}
		delta, err := solver.Root(g, deltaTolerance, 1-deltaTolerance)
		if err != nil {
			return 0, fmt.Errorf("BlackSurface.VolAtStrike: strike %g at t=%g: %w", k, t, err)
		}
		return s.Vol(t, delta), nil
	default:
		return 0, fmt.Errorf("BlackSurface.VolAtStrike: unsupported axis %v", s.Axis)
	}
}
