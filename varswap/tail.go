package varswap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/eqvar/numeric"
	"github.com/meenmo/eqvar/volatility"
)

var normal = distuv.UnitNormal

func normalCDF(x float64) float64      { return normal.CDF(x) }
func normalPDF(x float64) float64      { return normal.Prob(x) }
func normalQuantile(p float64) float64 { return normal.Quantile(p) }

// tail is the contribution of strikes below the cutoff. An inactive tail
// leaves the put leg to the regular integral.
type tail struct {
	active   bool
	strike   float64
	residual float64
}

// cutoffPoints maps a cutoff in axis units to two absolute strikes and
// their vols, the lower being the cutoff strike.
func cutoffPoints(t, f float64, s volatility.BlackSurface, c Cutoff) (ks, vols [2]float64, err error) {
	if !(c.Spread > 0) {
		return ks, vols, fmt.Errorf("cutoff spread %g must be positive", c.Spread)
	}
	switch s.Axis {
	case volatility.Strike:
		if !(c.Level > 0) {
			return ks, vols, fmt.Errorf("strike cutoff %g must be positive", c.Level)
		}
		ks = [2]float64{c.Level, c.Level + c.Spread}
		vols = [2]float64{s.Vol(t, ks[0]), s.Vol(t, ks[1])}
	case volatility.Moneyness:
		if !(c.Level > 0) {
			return ks, vols, fmt.Errorf("moneyness cutoff %g must be positive", c.Level)
		}
		ks = [2]float64{f * c.Level, f * (c.Level + c.Spread)}
		vols = [2]float64{s.Vol(t, c.Level), s.Vol(t, c.Level+c.Spread)}
	case volatility.LogMoneyness:
		ks = [2]float64{f * math.Exp(c.Level), f * math.Exp(c.Level+c.Spread)}
		vols = [2]float64{s.Vol(t, c.Level), s.Vol(t, c.Level+c.Spread)}
	case volatility.Delta:
		if !(c.Level > 0 && c.Level < 1) || c.Spread >= c.Level {
			return ks, vols, fmt.Errorf("delta cutoff %g with spread %g must satisfy 0 < spread < cutoff < 1", c.Level, c.Spread)
		}
		deltas := [2]float64{c.Level, c.Level - c.Spread}
		for i, d := range deltas {
			vols[i] = s.Vol(t, d)
			if ks[i], err = volatility.StrikeForDelta(f, d, t, vols[i], true); err != nil {
				return ks, vols, err
			}
		}
	default:
		return ks, vols, fmt.Errorf("unsupported surface axis %v", s.Axis)
	}
	if !(ks[0] < ks[1]) {
		return ks, vols, fmt.Errorf("cutoff strike %g not below second strike %g", ks[0], ks[1])
	}
	return ks, vols, nil
}

// fitTail fits a shifted log-normal to the two cutoff points and integrates
// its put prices over k⁻² below the cutoff. Near zero strike the integrand
// is held at its minimum, where p(k)/k² turns to blow up.
func (v Valuer) fitTail(t, f float64, s volatility.BlackSurface, c Cutoff) (tail, error) {
	ks, vols, err := cutoffPoints(t, f, s, c)
	if err != nil {
		return tail{}, err
	}
	tl := tail{active: true, strike: ks[0]}
	if volatility.BlackPrice(f, ks[0], t, vols[0], ks[0] > f) < 1e-14*f {
		return tl, nil
	}

	model, err := volatility.FitShiftedLognormal(f, t, ks[0], vols[0], ks[1], vols[1])
	if err != nil {
		return tail{}, err
	}
	integrand := func(k float64) float64 {
		return model.OTMPrice(k) / (k * k)
	}
	kMin, fMin := numeric.Minimize(integrand, tailFloor, ks[0], tailFloor)
	tl.residual = fMin*kMin + v.integrator().Integrate(integrand, kMin, ks[0])
	return tl, nil
}
