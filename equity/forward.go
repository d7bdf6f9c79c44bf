package equity

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/integrate"

	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/logging"
	"github.com/meenmo/eqvar/pde"
	"github.com/meenmo/eqvar/volatility"
)

// ForwardPDE solves the Dupire equation for pure call prices
//
//	∂C/∂t = ½σ²(t,x) x² ∂²C/∂x²,  C(0,x) = (1−x)⁺
//
// and reads every expectation off the price slices at the dividend dates
// and at expiry. The nodes are spaced in log-moneyness, x = eʸ, while the
// operator stays in x so that put-call parity holds on the grid.
type ForwardPDE struct {
	Config config.PDEConfig
	Logger *zap.Logger
}

// NewForwardPDE returns an engine with the given grid configuration.
func NewForwardPDE(cfg config.PDEConfig, logger *zap.Logger) ForwardPDE {
	return ForwardPDE{Config: cfg, Logger: logging.OrNop(logger)}
}

// ExpectedVariance prices the corrected and uncorrected variance to expiry
// under the pure local vol surface.
func (e ForwardPDE) ExpectedVariance(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, expiry float64, vol volatility.PureLocalVol) (ExpectedVariance, error) {
	start := time.Now()
	c, jumps, err := setup(spot, dc, divs, expiry)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("ForwardPDE.ExpectedVariance: %w", err)
	}
	cfg := e.Config

	width := cfg.ForwardStdDevs * atmVol(vol, expiry) * math.Sqrt(expiry)
	logGrid := pde.Hyperbolic(-width, width, 0, cfg.ForwardMeshBunching, cfg.ForwardSpaceNodes)
	grid := logGrid.Exp()
	breaks := make([]float64, len(jumps))
	for i, d := range jumps {
		breaks[i] = d.Tau
	}
	times, err := pde.TimeMesh(expiry, breaks, cfg.TimeSteps, cfg.MinIntervalSteps, cfg.TimeMeshLambda)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("ForwardPDE.ExpectedVariance: %w", err)
	}

	problem := pde.Problem{
		Grid: grid,
		Coefficients: pde.Diffusion(func(t, x float64) float64 {
			s := vol(t, x)
			return 0.5 * s * s * x * x
		}),
		Lower: pde.ConstantValue(1 - grid[0]),
		Upper: pde.ConstantSlope(0),
	}
	solver := pde.ThetaSolver{Theta: cfg.Theta, DampingSteps: cfg.DampingSteps}

	calls := make([]float64, grid.Len())
	for i, x := range grid {
		calls[i] = math.Max(1-x, 0)
	}

	ex := expectations{
		jumps:     make([]float64, len(jumps)),
		jumpsSqrd: make([]float64, len(jumps)),
	}
	from := 0
	advance := func(t float64) error {
		to := times.Index(t)
		if to < 0 {
			to = times.Nearest(t)
		}
		if to <= from {
			return nil
		}
		next, err := solver.Solve(problem, calls, times[from:to+1])
		if err != nil {
			return nonFinite(err)
		}
		calls, from = next, to
		// the slice carried over a dividend date is already smooth
		solver.DampingSteps = 0
		return nil
	}

	for i, d := range jumps {
		if err := advance(d.Tau); err != nil {
			return ExpectedVariance{}, fmt.Errorf("ForwardPDE.ExpectedVariance: dividend %d at %g: %w", i, d.Tau, err)
		}
		ex.jumps[i] = sliceExpectation(logGrid, calls, newJumpPayoff(c, d, false))
		ex.jumpsSqrd[i] = sliceExpectation(logGrid, calls, newJumpPayoff(c, d, true))
	}
	if err := advance(expiry); err != nil {
		return ExpectedVariance{}, fmt.Errorf("ForwardPDE.ExpectedVariance: expiry %g: %w", expiry, err)
	}
	ex.logSpot = sliceExpectation(logGrid, calls, logPayoffAt(c, expiry))

	ev, err := assemble(dc, spot, expiry, ex)
	if err != nil {
		return ExpectedVariance{}, fmt.Errorf("ForwardPDE.ExpectedVariance: %w", err)
	}
	e.logger().Debug("forward pde solved",
		zap.Int("space_nodes", grid.Len()),
		zap.Int("time_nodes", times.Len()),
		zap.Float64("log_width", width),
		zap.Int("dividends", len(jumps)),
		zap.Duration("elapsed", time.Since(start)))
	return ev, nil
}

func (e ForwardPDE) logger() *zap.Logger { return logging.OrNop(e.Logger) }

// sliceExpectation integrates g'' against the out-of-the-money pure option
// prices of a slice in log-moneyness,
//
//	E[g(X)] = g(1) + ∫ g''(eʸ)·OTM(eʸ)·eʸ dy.
//
// Puts come from parity at unit forward.
func sliceExpectation(logGrid pde.Mesh, calls []float64, g payoff) float64 {
	ys := make([]float64, logGrid.Len())
	for i, y := range logGrid {
		x := math.Exp(y)
		otm := calls[i]
		if x < 1 {
			otm = calls[i] - 1 + x
		}
		if otm != 0 {
			ys[i] = g.second(x) * otm * x
		}
	}
	return g.value(1) + integrate.Trapezoidal(logGrid, ys)
}
