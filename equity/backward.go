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
	"github.com/meenmo/eqvar/pde"
	"github.com/meenmo/eqvar/volatility"
)

// BackwardPDE computes each expectation E[g(X_T)] by solving the backward
// Kolmogorov equation in y = log x and time to maturity τ,
//
//	∂f/∂τ = ½σ²(T−τ, eʸ)(∂²f/∂y² − ∂f/∂y),  f(0,y) = g(eʸ),
//
// once for the log contract and once per dividend and measure.
type BackwardPDE struct {
	Config config.PDEConfig
	Logger *zap.Logger
}

// NewBackwardPDE returns an engine with the given grid configuration.
func NewBackwardPDE(cfg config.PDEConfig, logger *zap.Logger) BackwardPDE {
	return BackwardPDE{Config: cfg, Logger: logging.OrNop(logger)}
}

// ExpectedVariance prices the corrected and uncorrected variance to expiry
// by rolling both payoffs back from expiry under the pure local vol surface.
func (e BackwardPDE) ExpectedVariance(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, expiry float64, vol volatility.PureLocalVol) (ExpectedVariance, error) {
	start := time.Now()
	c, jumps, err := setup(spot, dc, divs, expiry)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("BackwardPDE.ExpectedVariance: %w", err)
	}
	atm := atmVol(vol, expiry)
	breaks := make([]float64, len(jumps))
	for i, d := range jumps {
		breaks[i] = d.Tau
	}

	ex := expectations{
		jumps:     make([]float64, len(jumps)),
		jumpsSqrd: make([]float64, len(jumps)),
	}
	ex.logSpot, err = e.expectation(vol, expiry, atm, breaks, logPayoffAt(c, expiry))
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("BackwardPDE.ExpectedVariance: log contract to %g: %w", expiry, err)
	}
	for i, d := range jumps {
		if ex.jumps[i], err = e.expectation(vol, d.Tau, atm, breaks, newJumpPayoff(c, d, false)); err != nil {
			return ExpectedVariance{}, fmt.Errorf("BackwardPDE.ExpectedVariance: dividend %d at %g: %w", i, d.Tau, err)
		}
		if ex.jumpsSqrd[i], err = e.expectation(vol, d.Tau, atm, breaks, newJumpPayoff(c, d, true)); err != nil {
			return ExpectedVariance{}, fmt.Errorf("BackwardPDE.ExpectedVariance: dividend %d at %g: %w", i, d.Tau, err)
		}
	}

	ev, err := assemble(dc, spot, expiry, ex)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("BackwardPDE.ExpectedVariance: %w", err)
	}
	logging.OrNop(e.Logger).Debug("backward pde solved",
		zap.Int("space_nodes", e.Config.BackwardSpaceNodes),
		zap.Int("solves", 1+2*len(jumps)),
		zap.Duration("elapsed", time.Since(start)))
	return ev, nil
}

// expectation solves for E[g(X_horizon)] seen from X_0 = 1. The window is
// sized from the expiry ATM vol and the horizon of this solve.
func (e BackwardPDE) expectation(vol volatility.PureLocalVol, horizon, atm float64, breaks []float64, g payoff) (float64, error) {
	if horizon <= 0 {
		return g.value(1), nil
	}
	cfg := e.Config
	width := cfg.BackwardStdDevs * atm * math.Sqrt(horizon)
	grid := pde.Hyperbolic(-width, width, 0, cfg.BackwardMeshBunching, cfg.BackwardSpaceNodes)

	terminal := make([]float64, grid.Len())
	for i, y := range grid {
		terminal[i] = g.value(math.Exp(y))
	}
	slope := func(y float64) pde.Neumann {
		x := math.Exp(y)
		return pde.ConstantSlope(x * g.first(x))
	}

	// dividend dates in time to maturity, ascending
	var mapped []float64
	for i := len(breaks) - 1; i >= 0; i-- {
		if breaks[i] < horizon {
			mapped = append(mapped, horizon-breaks[i])
		}
	}
	times, err := pde.TimeMesh(horizon, mapped, cfg.TimeSteps, cfg.MinIntervalSteps, cfg.TimeMeshLambda)
	if err != nil {
		return 0, err
	}

	problem := pde.Problem{
		Grid: grid,
		Coefficients: func(tau, y float64) (float64, float64) {
			s := vol(horizon-tau, math.Exp(y))
			a := 0.5 * s * s
			return a, -a
		},
		Lower: slope(grid[0]),
		Upper: slope(grid[grid.Len()-1]),
	}
	solver := pde.ThetaSolver{Theta: cfg.Theta, DampingSteps: cfg.DampingSteps}
	f, err := solver.Solve(problem, terminal, times)
	if err != nil {
		return 0, nonFinite(err)
	}
	return grid.Interpolate(f, 0), nil
}
