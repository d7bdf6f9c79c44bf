package equity

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/logging"
	"github.com/meenmo/eqvar/numeric"
	"github.com/meenmo/eqvar/volatility"
)

// StaticReplication values each expectation as a strip of pure options,
//
//	E[g(X_t)] = g(1) + ∫₀¹ g''(x) P(t,x) dx + ∫₁^∞ g''(x) C(t,x) dx,
//
// with Black prices at unit forward from the pure implied vol surface. The
// legs are integrated in log-moneyness.
type StaticReplication struct {
	Integrator numeric.Integrator
	Config     config.ReplicationConfig
	Logger     *zap.Logger
}

// NewStaticReplication returns an engine with an adaptive Gauss-Legendre
// integrator configured from cfg.
func NewStaticReplication(cfg config.ReplicationConfig, logger *zap.Logger) StaticReplication {
	return StaticReplication{
		Integrator: numeric.NewAdaptiveLegendre(cfg.Tolerance, cfg.MaxDepth),
		Config:     cfg,
		Logger:     logging.OrNop(logger),
	}
}

// ExpectedVariance prices the corrected and uncorrected variance to expiry
// from a strip of pure-implied-vol options on each dividend interval.
func (e StaticReplication) ExpectedVariance(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, expiry float64, vol volatility.PureImpliedVol) (ExpectedVariance, error) {
	start := time.Now()
	c, jumps, err := setup(spot, dc, divs, expiry)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("StaticReplication.ExpectedVariance: %w", err)
	}
	atm := atmVol(vol, expiry)

	ex := expectations{
		logSpot:   e.expectation(vol, expiry, atm, logPayoffAt(c, expiry)),
		jumps:     make([]float64, len(jumps)),
		jumpsSqrd: make([]float64, len(jumps)),
	}
	for i, d := range jumps {
		ex.jumps[i] = e.expectation(vol, d.Tau, atm, newJumpPayoff(c, d, false))
		ex.jumpsSqrd[i] = e.expectation(vol, d.Tau, atm, newJumpPayoff(c, d, true))
	}

	ev, err := assemble(dc, spot, expiry, ex)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("StaticReplication.ExpectedVariance: %w", err)
	}
	logging.OrNop(e.Logger).Debug("static replication priced",
		zap.Int("dividends", len(jumps)),
		zap.Duration("elapsed", time.Since(start)))
	return ev, nil
}

// ExpectedVarianceFromStrikeSurface converts a market Black surface (on any
// axis) to the pure process before replicating.
func (e StaticReplication) ExpectedVarianceFromStrikeSurface(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, expiry float64, surface volatility.BlackSurface) (ExpectedVariance, error) {
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("StaticReplication.ExpectedVarianceFromStrikeSurface: %w", err)
	}
	return e.ExpectedVariance(spot, dc, divs, expiry, volatility.PureImpliedFromBlack(surface, c))
}

// ExpectedVarianceFromMoneyness is the dividend-free replication
// −2E[log(S_T/F)] against the weight −1/m² in moneyness m = k/F.
func (e StaticReplication) ExpectedVarianceFromMoneyness(expiry, forward float64, surface volatility.BlackSurface) (float64, error) {
	if !(expiry > 0) {
		return 0, fmt.Errorf("StaticReplication.ExpectedVarianceFromMoneyness: expiry %g: %w", expiry, ErrInvalidExpiry)
	}
	var failed error
	vol := func(t, m float64) float64 {
		v, err := surface.VolAtStrike(t, m*forward, forward)
		if err != nil {
			failed = err
			return math.NaN()
		}
		return v
	}
	ev := -2 * e.expectation(vol, expiry, atmVol(vol, expiry), logPayoff{a: 1})
	if failed != nil {
		return 0, fmt.Errorf("StaticReplication.ExpectedVarianceFromMoneyness: %w", failed)
	}
	if !finite(ev) {
		return 0, fmt.Errorf("StaticReplication.ExpectedVarianceFromMoneyness: expiry %g: %w", expiry, ErrNonFinite)
	}
	return ev, nil
}

func (e StaticReplication) expectation(vol func(t, x float64) float64, t, atm float64, g payoff) float64 {
	if t <= 0 {
		return g.value(1)
	}
	width := e.Config.StdDevs * atm * math.Sqrt(t)
	leg := func(isCall bool) numeric.Func {
		return func(u float64) float64 {
			x := math.Exp(u)
			p := volatility.BlackPrice(1, x, t, vol(t, x), isCall)
			if p == 0 {
				return 0
			}
			return g.second(x) * p * x
		}
	}
	integ := e.Integrator
	if integ == nil {
		integ = numeric.NewAdaptiveLegendre(e.Config.Tolerance, e.Config.MaxDepth)
	}
	return g.value(1) + integ.Integrate(leg(false), -width, 0) + integ.Integrate(leg(true), 0, width)
}
