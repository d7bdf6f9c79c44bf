package equity

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/volatility"
)

// ---------------------------------------------------------------------------
// Spot
// ---------------------------------------------------------------------------

// DeltaWithStickyStrike is the sensitivity of the price to a relative spot
// move, S·∂P/∂S, with the market implied vols held fixed.
func (p *Pricer) DeltaWithStickyStrike(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	eps := p.cfg.Bumps.SpotBump
	v, err := p.evaluate(
		func() (float64, error) { return p.PriceFromImpliedVols(swap, spot*(1+eps), dc, divs, vols) },
		func() (float64, error) { return p.PriceFromImpliedVols(swap, spot*(1-eps), dc, divs, vols) },
	)
	if err != nil {
		return 0, fmt.Errorf("Pricer.DeltaWithStickyStrike: %w", err)
	}
	return (v[0] - v[1]) / 2 / eps, nil
}

// GammaWithStickyStrike is S²·∂²P/∂S² with the market implied vols held fixed.
func (p *Pricer) GammaWithStickyStrike(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	eps := p.cfg.Bumps.SpotBump
	v, err := p.evaluate(
		func() (float64, error) { return p.PriceFromImpliedVols(swap, spot*(1+eps), dc, divs, vols) },
		func() (float64, error) { return p.PriceFromImpliedVols(swap, spot, dc, divs, vols) },
		func() (float64, error) { return p.PriceFromImpliedVols(swap, spot*(1-eps), dc, divs, vols) },
	)
	if err != nil {
		return 0, fmt.Errorf("Pricer.GammaWithStickyStrike: %w", err)
	}
	return (v[0] + v[2] - 2*v[1]) / eps / eps, nil
}

// DeltaWithStickyPureStrike is the spot delta with the pure implied surface
// fitted at today's spot held fixed.
func (p *Pricer) DeltaWithStickyPureStrike(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	v, t, err := p.pureSpotScenarios(swap, spot, dc, divs, vols, false)
	if err != nil {
		return 0, fmt.Errorf("Pricer.DeltaWithStickyPureStrike: %w", err)
	}
	return (v[0] - v[1]) / 2 / p.cfg.Bumps.SpotBump / t, nil
}

// GammaWithStickyPureStrike is the spot gamma with the pure implied surface
// held fixed.
func (p *Pricer) GammaWithStickyPureStrike(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	v, t, err := p.pureSpotScenarios(swap, spot, dc, divs, vols, true)
	if err != nil {
		return 0, fmt.Errorf("Pricer.GammaWithStickyPureStrike: %w", err)
	}
	eps := p.cfg.Bumps.SpotBump
	return (v[0] + v[1] - 2*v[2]) / eps / eps / t, nil
}

// pureSpotScenarios returns the raw expected variance at spot·(1±eps), and
// at spot when mid is set, on the pure surface fitted at spot.
func (p *Pricer) pureSpotScenarios(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols, mid bool) ([]float64, float64, error) {
	t, err := swap.horizon()
	if err != nil {
		return nil, 0, err
	}
	piv, err := p.PureImpliedVolSurface(spot, dc, divs, vols)
	if err != nil {
		return nil, 0, err
	}
	eps := p.cfg.Bumps.SpotBump
	at := func(s float64) scenario {
		return func() (float64, error) { return p.raw(swap, s, dc, divs, t, piv) }
	}
	scenarios := []scenario{at(spot * (1 + eps)), at(spot * (1 - eps))}
	if mid {
		scenarios = append(scenarios, at(spot))
	}
	v, err := p.evaluate(scenarios...)
	return v, t, err
}

// DeltaWithStickyLocalVol is the spot delta with the stock local vol
// surface σ(t, s) held fixed. The bumped pure local surfaces are rebuilt
// from it with the bumped dividend curves.
func (p *Pricer) DeltaWithStickyLocalVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	v, t, err := p.localSpotScenarios(swap, spot, dc, divs, vols, false)
	if err != nil {
		return 0, fmt.Errorf("Pricer.DeltaWithStickyLocalVol: %w", err)
	}
	return (v[0] - v[1]) / 2 / p.cfg.Bumps.SpotBump / t, nil
}

// GammaWithStickyLocalVol is the spot gamma with the stock local vol held fixed.
func (p *Pricer) GammaWithStickyLocalVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	v, t, err := p.localSpotScenarios(swap, spot, dc, divs, vols, true)
	if err != nil {
		return 0, fmt.Errorf("Pricer.GammaWithStickyLocalVol: %w", err)
	}
	eps := p.cfg.Bumps.SpotBump
	return (v[0] + v[1] - 2*v[2]) / eps / eps / t, nil
}

func (p *Pricer) localSpotScenarios(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols, mid bool) ([]float64, float64, error) {
	t, err := swap.horizon()
	if err != nil {
		return nil, 0, err
	}
	plv, err := p.PureLocalVolSurface(spot, dc, divs, vols)
	if err != nil {
		return nil, 0, err
	}
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return nil, 0, err
	}
	lv := volatility.LocalFromPureLocal(plv, c)

	eps := p.cfg.Bumps.SpotBump
	at := func(s float64) scenario {
		return func() (float64, error) {
			cs, err := dividend.NewCurves(s, dc, divs)
			if err != nil {
				return 0, err
			}
			return p.rawLocal(swap, s, dc, divs, t, volatility.PureLocalFromLocal(lv, cs))
		}
	}
	scenarios := []scenario{at(spot * (1 + eps)), at(spot * (1 - eps))}
	if mid {
		scenarios = append(scenarios, func() (float64, error) { return p.rawLocal(swap, spot, dc, divs, t, plv) })
	}
	v, err := p.evaluate(scenarios...)
	return v, t, err
}

// ---------------------------------------------------------------------------
// Vol
// ---------------------------------------------------------------------------

// The vegas are sensitivities of √(EV/t), the square root of the annualised
// expected variance, to a floored parallel shift of one surface.

// VegaImpliedVol shifts the stock Black surface implied by the fitted pure
// surface.
func (p *Pricer) VegaImpliedVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	t, piv, c, err := p.base(swap, spot, dc, divs, vols)
	if err != nil {
		return 0, fmt.Errorf("Pricer.VegaImpliedVol: %w", err)
	}
	black := volatility.BlackFromPureImplied(piv, c)
	shifted := func(amount float64) scenario {
		return func() (float64, error) {
			ev, err := p.raw(swap, spot, dc, divs, t, volatility.PureImpliedFromBlack(black.Shift(amount), c))
			return rootAnnualised(ev, t), err
		}
	}
	return p.vega("Pricer.VegaImpliedVol", shifted)
}

// VegaPureImpliedVol shifts the pure implied surface.
func (p *Pricer) VegaPureImpliedVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	t, piv, _, err := p.base(swap, spot, dc, divs, vols)
	if err != nil {
		return 0, fmt.Errorf("Pricer.VegaPureImpliedVol: %w", err)
	}
	shifted := func(amount float64) scenario {
		return func() (float64, error) {
			ev, err := p.raw(swap, spot, dc, divs, t, volatility.FlooredShift(piv, amount))
			return rootAnnualised(ev, t), err
		}
	}
	return p.vega("Pricer.VegaPureImpliedVol", shifted)
}

// VegaLocalVol shifts the stock local vol surface.
func (p *Pricer) VegaLocalVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	t, piv, c, err := p.base(swap, spot, dc, divs, vols)
	if err != nil {
		return 0, fmt.Errorf("Pricer.VegaLocalVol: %w", err)
	}
	lv := volatility.LocalFromPureLocal(p.cfg.LocalVol.PureLocalVol(piv), c)
	shifted := func(amount float64) scenario {
		return func() (float64, error) {
			plv := volatility.PureLocalFromLocal(volatility.FlooredShift(lv, amount), c)
			ev, err := p.rawLocal(swap, spot, dc, divs, t, plv)
			return rootAnnualised(ev, t), err
		}
	}
	return p.vega("Pricer.VegaLocalVol", shifted)
}

// VegaPureLocalVol shifts the pure local vol surface.
func (p *Pricer) VegaPureLocalVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	t, piv, _, err := p.base(swap, spot, dc, divs, vols)
	if err != nil {
		return 0, fmt.Errorf("Pricer.VegaPureLocalVol: %w", err)
	}
	plv := p.cfg.LocalVol.PureLocalVol(piv)
	shifted := func(amount float64) scenario {
		return func() (float64, error) {
			ev, err := p.rawLocal(swap, spot, dc, divs, t, volatility.FlooredShift(plv, amount))
			return rootAnnualised(ev, t), err
		}
	}
	return p.vega("Pricer.VegaPureLocalVol", shifted)
}

// BucketedVega is the sensitivity of √P to each market quote in turn.
// Entry [i][j] belongs to strike j of expiry i.
func (p *Pricer) BucketedVega(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) ([][]float64, error) {
	if err := vols.Validate(); err != nil {
		return nil, fmt.Errorf("Pricer.BucketedVega: %w", err)
	}
	eps := p.cfg.Bumps.VolBump
	bumped := func(i, j int, amount float64) scenario {
		return func() (float64, error) {
			m, err := vols.WithBumpedPoint(i, j, amount)
			if err != nil {
				return 0, err
			}
			price, err := p.PriceFromImpliedVols(swap, spot, dc, divs, m)
			if err != nil {
				return 0, err
			}
			return math.Sqrt(math.Max(price, 0)), nil
		}
	}
	scenarios := make([]scenario, 0, 2*vols.Quotes())
	for i, strip := range vols.Vols {
		for j := range strip {
			scenarios = append(scenarios, bumped(i, j, eps), bumped(i, j, -eps))
		}
	}
	v, err := p.evaluate(scenarios...)
	if err != nil {
		return nil, fmt.Errorf("Pricer.BucketedVega: %w", err)
	}

	res := make([][]float64, len(vols.Vols))
	n := 0
	for i, strip := range vols.Vols {
		res[i] = make([]float64, len(strip))
		for j := range strip {
			res[i][j] = (v[n] - v[n+1]) / 2 / eps
			n += 2
		}
	}
	return res, nil
}

// base fits the pure implied surface and the dividend curves at spot.
func (p *Pricer) base(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, volatility.PureImpliedVol, *dividend.Curves, error) {
	t, err := swap.horizon()
	if err != nil {
		return 0, nil, nil, err
	}
	piv, err := p.PureImpliedVolSurface(spot, dc, divs, vols)
	if err != nil {
		return 0, nil, nil, err
	}
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return 0, nil, nil, err
	}
	return t, piv, c, nil
}

func (p *Pricer) vega(name string, shifted func(amount float64) scenario) (float64, error) {
	eps := p.cfg.Bumps.VolBump
	v, err := p.evaluate(shifted(eps), shifted(-eps))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return (v[0] - v[1]) / 2 / eps, nil
}

// ---------------------------------------------------------------------------
// Dividends
// ---------------------------------------------------------------------------

// DividendSensitivity holds the sensitivities of the raw expected variance
// to one dividend. Alpha is scaled by spot.
type DividendSensitivity struct {
	Alpha float64
	Beta  float64
}

// DividendSensitivityWithStickyPureVol bumps each α and β in turn with the
// pure implied surface fitted to the unbumped dividends held fixed.
func (p *Pricer) DividendSensitivityWithStickyPureVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) ([]DividendSensitivity, error) {
	t, err := swap.horizon()
	if err != nil {
		return nil, fmt.Errorf("Pricer.DividendSensitivityWithStickyPureVol: %w", err)
	}
	piv, err := p.PureImpliedVolSurface(spot, dc, divs, vols)
	if err != nil {
		return nil, fmt.Errorf("Pricer.DividendSensitivityWithStickyPureVol: %w", err)
	}
	res, err := p.dividendSensitivity(spot, divs, func(d dividend.Schedule) (float64, error) {
		return p.raw(swap, spot, dc, d, t, piv)
	})
	if err != nil {
		return nil, fmt.Errorf("Pricer.DividendSensitivityWithStickyPureVol: %w", err)
	}
	return res, nil
}

// DividendSensitivityWithStickyImpliedVol bumps each α and β in turn and
// refits the pure surface to the unchanged market vols.
func (p *Pricer) DividendSensitivityWithStickyImpliedVol(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) ([]DividendSensitivity, error) {
	t, err := swap.horizon()
	if err != nil {
		return nil, fmt.Errorf("Pricer.DividendSensitivityWithStickyImpliedVol: %w", err)
	}
	res, err := p.dividendSensitivity(spot, divs, func(d dividend.Schedule) (float64, error) {
		piv, err := p.PureImpliedVolSurface(spot, dc, d, vols)
		if err != nil {
			return 0, err
		}
		return p.raw(swap, spot, dc, d, t, piv)
	})
	if err != nil {
		return nil, fmt.Errorf("Pricer.DividendSensitivityWithStickyImpliedVol: %w", err)
	}
	return res, nil
}

// dividendBump records the scenarios of one bump. Without a down scenario
// the difference is taken forward from the base.
type dividendBump struct {
	up, down int
	central  bool
}

// dividendSensitivity differences value over bumped schedules. α is bumped
// by ε(1+α) both ways, β by ε; values at or near zero use a forward bump.
func (p *Pricer) dividendSensitivity(spot float64, divs dividend.Schedule, value func(dividend.Schedule) (float64, error)) ([]DividendSensitivity, error) {
	eps := p.cfg.Bumps.DividendBump
	n := divs.Len()
	scheds := []dividend.Schedule{divs}
	push := func(s dividend.Schedule) int {
		scheds = append(scheds, s)
		return len(scheds) - 1
	}

	alphas := make([]dividendBump, n)
	betas := make([]dividendBump, n)
	for i := 0; i < n; i++ {
		a, b := divs.Alpha(i), divs.Beta(i)
		if a > eps/(1-eps) {
			up, err := divs.WithAlpha(i, a*(1+eps)+eps)
			if err != nil {
				return nil, err
			}
			down, err := divs.WithAlpha(i, a*(1-eps)-eps)
			if err != nil {
				return nil, err
			}
			alphas[i] = dividendBump{up: push(up), down: push(down), central: true}
		} else {
			up, err := divs.WithAlpha(i, a+eps)
			if err != nil {
				return nil, err
			}
			alphas[i] = dividendBump{up: push(up)}
		}

		up, err := divs.WithBeta(i, b+eps)
		if err != nil {
			return nil, err
		}
		if b > eps {
			down, err := divs.WithBeta(i, b-eps)
			if err != nil {
				return nil, err
			}
			betas[i] = dividendBump{up: push(up), down: push(down), central: true}
		} else {
			betas[i] = dividendBump{up: push(up)}
		}
	}

	scenarios := make([]scenario, len(scheds))
	for k, s := range scheds {
		scenarios[k] = func() (float64, error) { return value(s) }
	}
	v, err := p.evaluate(scenarios...)
	if err != nil {
		return nil, err
	}

	res := make([]DividendSensitivity, n)
	for i := range res {
		if a := alphas[i]; a.central {
			res[i].Alpha = spot * (v[a.up] - v[a.down]) / 2 / eps / (1 + divs.Alpha(i))
		} else {
			res[i].Alpha = spot * (v[a.up] - v[0]) / eps
		}
		if b := betas[i]; b.central {
			res[i].Beta = (v[b.up] - v[b.down]) / 2 / eps
		} else {
			res[i].Beta = (v[b.up] - v[0]) / eps
		}
	}
	p.logger.Debug("dividend sensitivities computed", zap.Int("dividends", n), zap.Int("scenarios", len(scheds)))
	return res, nil
}
