package volatility

import (
	"fmt"
	"math"

	"github.com/meenmo/eqvar/dividend"
)

// VolToPureVol converts the market Black vol at strike k (forward f,
// discounted future cash dividends d, expiry t) to the implied vol of the
// equivalent option on the pure process.
func VolToPureVol(k, f, d, t, vol float64) (float64, error) {
	if d == 0 {
		return vol, nil
	}
	x := (k - d) / (f - d)
	if x < 0 {
		return 0, fmt.Errorf("VolToPureVol: strike %g at expiry %g below discounted dividends %g: %w", k, t, d, ErrNegativeMoneyness)
	}
	isCall := k >= f
	p := BlackPrice(f, k, t, vol, isCall)
	pp := p / (f - d)
	return ImpliedVolatility(pp, 1, x, t, isCall, vol)
}

// PureVolToVol is the inverse of VolToPureVol. Strikes below the discounted
// dividends have no pure counterpart and map to zero vol.
func PureVolToVol(k, f, d, t, pureVol float64) (float64, error) {
	if d == 0 {
		return pureVol, nil
	}
	x := (k - d) / (f - d)
	if x <= 0 {
		return 0, nil
	}
	isCall := x >= 1
	pp := BlackPrice(1, x, t, pureVol, isCall)
	return ImpliedVolatility(pp*(f-d), f, k, t, isCall, pureVol)
}

// PriceToPureVol converts a discounted out-of-the-money market price to a
// pure implied vol. Negative prices from noise are floored to zero.
func PriceToPureVol(df, k, f, d, t, otmPrice float64) (float64, error) {
	x := (k - d) / (f - d)
	if x < 0 {
		return 0, fmt.Errorf("PriceToPureVol: strike %g at expiry %g below discounted dividends %g: %w", k, t, d, ErrNegativeMoneyness)
	}
	pp := math.Max(otmPrice, 0) / df / (f - d)
	return ImpliedVolatility(pp, 1, x, t, x >= 1, 0.3)
}

// PureImpliedFromBlack converts a Black surface on any axis to a pure
// implied surface. Points that fail to invert evaluate to NaN, which the
// engines report as a non-finite result.
func PureImpliedFromBlack(surface BlackSurface, curves *dividend.Curves) PureImpliedVol {
	return func(t, x float64) float64 {
		f, d := curves.Forward(t), curves.DiscountedDividends(t)
		k := (f-d)*x + d
		vol, err := surface.VolAtStrike(t, k, f)
		if err != nil {
			return math.NaN()
		}
		pv, err := VolToPureVol(k, f, d, t, vol)
		if err != nil {
			return math.NaN()
		}
		return pv
	}
}

// BlackFromPureImplied converts a pure implied surface to a Black surface
// in absolute strike.
func BlackFromPureImplied(pure PureImpliedVol, curves *dividend.Curves) BlackSurface {
	return NewStrikeSurface(func(t, k float64) float64 {
		f, d := curves.Forward(t), curves.DiscountedDividends(t)
		x := (k - d) / (f - d)
		if x <= 0 {
			return 0
		}
		v, err := PureVolToVol(k, f, d, t, pure(t, x))
		if err != nil {
			return math.NaN()
		}
		return v
	})
}

// PureLocalFromLocal maps a stock local vol to the pure process:
// σ_pure(t,x) = σ(t,s)·s/(s−D), s = (F−D)x + D.
func PureLocalFromLocal(local LocalVol, curves *dividend.Curves) PureLocalVol {
	return func(t, x float64) float64 {
		if x <= 0 {
			return 0
		}
		f, d := curves.Forward(t), curves.DiscountedDividends(t)
		s := (f-d)*x + d
		return local(t, s) * s / (s - d)
	}
}

// LocalFromPureLocal maps a pure local vol to the stock:
// σ(t,s) = σ_pure(t,x)·(s−D)/s. Levels at or below D have zero vol.
func LocalFromPureLocal(pure PureLocalVol, curves *dividend.Curves) LocalVol {
	return func(t, s float64) float64 {
		f, d := curves.Forward(t), curves.DiscountedDividends(t)
		if s <= d {
			return 0
		}
		x := (s - d) / (f - d)
		return pure(t, x) * (s - d) / s
	}
}
