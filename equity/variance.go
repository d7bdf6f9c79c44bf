// Package equity prices equity variance swaps on a stock paying discrete
// affine dividends. The stock is written S = (F−D)X + D in terms of the
// unit-forward pure process X, and the expected variance is assembled from
// expectations of functions of X computed by one of three engines.
package equity

import (
	"errors"
	"fmt"
	"math"

	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/pde"
)

var (
	// ErrInvalidExpiry is returned for a non-positive expiry.
	ErrInvalidExpiry = errors.New("expiry must be positive")

	// ErrNonFinite is returned when a volatility surface fails to evaluate
	// somewhere inside the integration or grid range.
	ErrNonFinite = errors.New("non-finite expected variance")
)

// ExpectedVariance is the raw (not annualised) expected variance of the log
// returns up to expiry. Corrected excludes the dividend-date jumps,
// Uncorrected includes them.
type ExpectedVariance struct {
	Corrected   float64
	Uncorrected float64
}

// Annualised divides both measures by t.
func (ev ExpectedVariance) Annualised(t float64) ExpectedVariance {
	return ExpectedVariance{Corrected: ev.Corrected / t, Uncorrected: ev.Uncorrected / t}
}

// minATMVol floors the ATM vol that sizes grids and integration ranges.
const minATMVol = 0.01

func atmVol(vol func(t, x float64) float64, t float64) float64 {
	s := vol(t, 1)
	if !(s > minATMVol) {
		return minATMVol
	}
	return s
}

// ---------------------------------------------------------------------------
// Payoffs of the pure process
// ---------------------------------------------------------------------------

// payoff is a smooth function of pure moneyness with its derivatives.
type payoff interface {
	value(x float64) float64
	first(x float64) float64
	second(x float64) float64
}

// logPayoff is log S = log(Ax + D).
type logPayoff struct{ a, d float64 }

func (p logPayoff) value(x float64) float64 { return math.Log(p.a*x + p.d) }
func (p logPayoff) first(x float64) float64 { return p.a / (p.a*x + p.d) }
func (p logPayoff) second(x float64) float64 {
	s := p.a*x + p.d
	return -p.a * p.a / (s * s)
}

// jumpPayoff is the dividend-date log return h = log(s(1−β)/(s+α)) with s
// the post-dividend spot Ax + D. With squared set it is h + h²/2, whose
// doubled expectation adds the squared jump to the variance.
type jumpPayoff struct {
	a, d, alpha, beta float64
	squared           bool
}

func newJumpPayoff(c *dividend.Curves, div dividend.Dividend, squared bool) jumpPayoff {
	f, d := c.Forward(div.Tau), c.DiscountedDividends(div.Tau)
	return jumpPayoff{a: f - d, d: d, alpha: div.Alpha, beta: div.Beta, squared: squared}
}

func (p jumpPayoff) h(x float64) float64 {
	s := p.a*x + p.d
	return math.Log(s * (1 - p.beta) / (s + p.alpha))
}

func (p jumpPayoff) h1(x float64) float64 {
	s := p.a*x + p.d
	return p.a/s - p.a/(s+p.alpha)
}

func (p jumpPayoff) h2(x float64) float64 {
	s := p.a*x + p.d
	sa := s + p.alpha
	return -p.a*p.a/(s*s) + p.a*p.a/(sa*sa)
}

func (p jumpPayoff) value(x float64) float64 {
	h := p.h(x)
	if p.squared {
		return h + 0.5*h*h
	}
	return h
}

func (p jumpPayoff) first(x float64) float64 {
	if p.squared {
		return p.h1(x) * (1 + p.h(x))
	}
	return p.h1(x)
}

func (p jumpPayoff) second(x float64) float64 {
	if p.squared {
		h1 := p.h1(x)
		return p.h2(x)*(1+p.h(x)) + h1*h1
	}
	return p.h2(x)
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// expectations carries what an engine computed: E[log S_T] and, per
// dividend up to expiry, E[h] and E[h + h²/2].
type expectations struct {
	logSpot   float64
	jumps     []float64
	jumpsSqrd []float64
}

func assemble(dc curve.DiscountCurve, spot, expiry float64, e expectations) (ExpectedVariance, error) {
	base := -2 * (e.logSpot - math.Log(spot/dc.DiscountFactor(expiry)))
	ev := ExpectedVariance{Corrected: base, Uncorrected: base}
	for i := range e.jumps {
		ev.Corrected += 2 * e.jumps[i]
		ev.Uncorrected += 2 * e.jumpsSqrd[i]
	}
	if !finite(ev.Corrected) || !finite(ev.Uncorrected) {
		return ExpectedVariance{}, fmt.Errorf("expected variance to %g: corrected=%g uncorrected=%g: %w", expiry, ev.Corrected, ev.Uncorrected, ErrNonFinite)
	}
	return ev, nil
}

// nonFinite tags a PDE blow-up with ErrNonFinite.
func nonFinite(err error) error {
	if errors.Is(err, pde.ErrNonFinite) {
		return fmt.Errorf("%w: %w", ErrNonFinite, err)
	}
	return err
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// setup validates the common engine inputs and returns the curves together
// with the dividends that fall on or before expiry.
func setup(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, expiry float64) (*dividend.Curves, []dividend.Dividend, error) {
	if !(expiry > 0) {
		return nil, nil, fmt.Errorf("expiry %g: %w", expiry, ErrInvalidExpiry)
	}
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return nil, nil, err
	}
	return c, divs.Until(expiry).Dividends(), nil
}

func logPayoffAt(c *dividend.Curves, t float64) logPayoff {
	f, d := c.Forward(t), c.DiscountedDividends(t)
	return logPayoff{a: f - d, d: d}
}
