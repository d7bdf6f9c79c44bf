package volatility

import "math"

// LocalVolCalculator derives a pure local vol surface from a pure implied
// vol surface.
type LocalVolCalculator interface {
	PureLocalVol(implied PureImpliedVol) PureLocalVol
}

// Dupire applies Dupire's formula in total implied variance w(t, y),
// y = log x, with finite-difference derivatives of the implied surface.
// With forward 1 there is no drift term.
type Dupire struct {
	TimeStep  float64
	SpaceStep float64
}

// NewDupire returns a calculator with 1e-4 difference steps.
func NewDupire() Dupire {
	return Dupire{TimeStep: 1e-4, SpaceStep: 1e-4}
}

func (d Dupire) PureLocalVol(implied PureImpliedVol) PureLocalVol {
	dt, h := d.TimeStep, d.SpaceStep
	w := func(t, y float64) float64 {
		v := implied(t, math.Exp(y))
		return v * v * t
	}

	return func(t, x float64) float64 {
		t = math.Max(t, dt)
		y := math.Log(math.Max(x, 1e-8))

		var dwdt float64
		if t > dt {
			dwdt = (w(t+dt, y) - w(t-dt, y)) / (2 * dt)
		} else {
			dwdt = (w(t+dt, y) - w(t, y)) / dt
		}
		w0 := w(t, y)
		wp := w(t, y+h)
		wm := w(t, y-h)
		if w0 <= 0 {
			return math.Sqrt(math.Max(dwdt, 0))
		}
		dw := (wp - wm) / (2 * h)
		d2w := (wp - 2*w0 + wm) / (h * h)

		den := 1 - y/w0*dw + 0.25*(-0.25-1/w0+y*y/(w0*w0))*dw*dw + 0.5*d2w
		if den <= 0 || dwdt < 0 {
			// calendar or butterfly arbitrage in the fit; fall back to implied
			return implied(t, x)
		}
		return math.Sqrt(dwdt / den)
	}
}
