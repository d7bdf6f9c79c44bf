// Package volatility holds the Black formula, the volatility surface types
// consumed by the pricers and their conversions to and from the pure
// (dividend-free) process.
package volatility

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/eqvar/numeric"
)

var (
	// ErrNotConverged is returned when implied volatility or a model fit
	// fails from both the primary and the fallback starting point.
	ErrNotConverged = errors.New("volatility solver did not converge")

	// ErrPriceOutOfRange is returned for a price outside the no-arbitrage
	// bounds of the Black formula.
	ErrPriceOutOfRange = errors.New("option price outside arbitrage bounds")

	// ErrNegativeMoneyness is returned for a strike below the discounted
	// future cash dividends.
	ErrNegativeMoneyness = errors.New("strike below discounted future dividends")
)

var normal = distuv.UnitNormal

// ---------------------------------------------------------------------------
// Black formula (undiscounted)
// ---------------------------------------------------------------------------

// BlackPrice is the undiscounted Black price of a call or put.
func BlackPrice(forward, strike, t, vol float64, isCall bool) float64 {
	sign := 1.0
	if !isCall {
		sign = -1
	}
	sigmaRootT := vol * math.Sqrt(t)
	if sigmaRootT < 1e-14 || strike <= 0 {
		return math.Max(sign*(forward-strike), 0)
	}
	d1 := math.Log(forward/strike)/sigmaRootT + 0.5*sigmaRootT
	d2 := d1 - sigmaRootT
	res := sign * (forward*normal.CDF(sign*d1) - strike*normal.CDF(sign*d2))
	return math.Max(res, 0)
}

// BlackVega is ∂price/∂vol.
func BlackVega(forward, strike, t, vol float64) float64 {
	rootT := math.Sqrt(t)
	sigmaRootT := vol * rootT
	if sigmaRootT < 1e-14 || strike <= 0 {
		return 0
	}
	d1 := math.Log(forward/strike)/sigmaRootT + 0.5*sigmaRootT
	return forward * rootT * normal.Prob(d1)
}

// BlackDelta is the forward delta N(d1) of a call, or N(d1) − 1 of a put.
func BlackDelta(forward, strike, t, vol float64, isCall bool) float64 {
	sigmaRootT := vol * math.Sqrt(t)
	var d1 float64
	switch {
	case strike <= 0:
		d1 = math.Inf(1)
	case sigmaRootT < 1e-14:
		d1 = math.Copysign(math.Inf(1), forward-strike)
	default:
		d1 = math.Log(forward/strike)/sigmaRootT + 0.5*sigmaRootT
	}
	if isCall {
		return normal.CDF(d1)
	}
	return normal.CDF(d1) - 1
}

// StrikeForDelta inverts BlackDelta for a given vol. Call deltas lie in
// (0, 1), put deltas in (−1, 0).
func StrikeForDelta(forward, delta, t, vol float64, isCall bool) (float64, error) {
	if (isCall && (delta <= 0 || delta >= 1)) || (!isCall && (delta <= -1 || delta >= 0)) {
		return 0, fmt.Errorf("StrikeForDelta: delta %g out of range", delta)
	}
	sign := 1.0
	if !isCall {
		sign = -1
	}
	d1 := sign * normal.Quantile(sign*delta)
	sigmaSqT := vol * vol * t
	return forward * math.Exp(-d1*math.Sqrt(sigmaSqT)+0.5*sigmaSqT), nil
}

// ---------------------------------------------------------------------------
// Implied volatility
// ---------------------------------------------------------------------------

const (
	impliedVolTolerance = 1e-12
	impliedVolMaxIter   = 100
	impliedVolMaxChange = 0.5

	// the vol bracket starts at [0, impliedVolBracket] and may double
	// impliedVolExpansions times
	impliedVolBracket    = 10.0
	impliedVolExpansions = 4
)

// ImpliedVolatility inverts BlackPrice. A price at or below intrinsic value
// returns zero vol. The solve is a bracketed Newton iteration from guess;
// if that fails it is retried once from a Brenner-Subrahmanyam estimate.
func ImpliedVolatility(price, forward, strike, t float64, isCall bool, guess float64) (float64, error) {
	if t <= 0 || forward <= 0 || strike < 0 {
		return 0, fmt.Errorf("ImpliedVolatility: forward=%g strike=%g t=%g: %w", forward, strike, t, ErrPriceOutOfRange)
	}
	intrinsic := math.Max(forward-strike, 0)
	upper := forward
	if !isCall {
		intrinsic = math.Max(strike-forward, 0)
		upper = strike
	}
	if price <= intrinsic {
		return 0, nil
	}
	if price >= upper {
		return 0, fmt.Errorf("ImpliedVolatility: price %g at or above bound %g: %w", price, upper, ErrPriceOutOfRange)
	}

	vol, err := solveImpliedVol(price, forward, strike, t, isCall, guess)
	if err == nil {
		return vol, nil
	}
	fallback := math.Sqrt(2*math.Pi/t) * (price - intrinsic) / forward
	vol, err = solveImpliedVol(price, forward, strike, t, isCall, fallback)
	if err != nil {
		return 0, fmt.Errorf("ImpliedVolatility: price=%g forward=%g strike=%g t=%g: %w", price, forward, strike, t, err)
	}
	return vol, nil
}

func solveImpliedVol(price, forward, strike, t float64, isCall bool, guess float64) (float64, error) {
	excess := func(sigma float64) float64 { return BlackPrice(forward, strike, t, sigma, isCall) - price }
	lo, hi, err := numeric.ExpandBracket(excess, 0, impliedVolBracket, 0, impliedVolExpansions)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotConverged, err)
	}
	if !(guess > 0) || guess >= hi {
		guess = 0.3
	}

	sigma := guess
	for iter := 0; iter < impliedVolMaxIter; iter++ {
		diff := excess(sigma)
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}
		v := BlackVega(forward, strike, t, sigma)

		var next float64
		if v > 0 && !math.IsNaN(v) {
			change := -diff / v
			change = math.Max(-impliedVolMaxChange, math.Min(impliedVolMaxChange, change))
			next = sigma + change
		}
		// bisect when Newton leaves the bracket
		if !(next > lo && next < hi) {
			next = 0.5 * (lo + hi)
		}
		if math.Abs(next-sigma) < impliedVolTolerance || hi-lo < impliedVolTolerance {
			return next, nil
		}
		sigma = next
	}
	return sigma, ErrNotConverged
}
