// Package montecarlo simulates the stock under a local volatility surface
// with scheduled affine dividends and measures the realised variance of
// each path. It is the reference against which the PDE and replication
// engines are checked.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/logging"
	"github.com/meenmo/eqvar/volatility"
)

// ErrInvalidSimulation is returned for unusable simulation inputs.
var ErrInvalidSimulation = errors.New("invalid simulation inputs")

// Simulator holds everything a run needs. Its fields are set explicitly by
// the constructors and never changed by Run.
type Simulator struct {
	spot   float64
	dc     curve.DiscountCurve
	divs   dividend.Schedule
	local  volatility.LocalVol
	cfg    config.MonteCarloConfig
	logger *zap.Logger
}

// New builds a simulator on a stock local vol surface σ(t, s).
func New(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, local volatility.LocalVol, cfg config.MonteCarloConfig, logger *zap.Logger) (*Simulator, error) {
	switch {
	case !(spot > 0):
		return nil, fmt.Errorf("montecarlo.New: spot %g: %w", spot, ErrInvalidSimulation)
	case dc == nil || local == nil:
		return nil, fmt.Errorf("montecarlo.New: missing curve or vol surface: %w", ErrInvalidSimulation)
	case cfg.Pairs < 2 || cfg.StepsPerYear < 2:
		return nil, fmt.Errorf("montecarlo.New: %d pairs, %d steps per year: %w", cfg.Pairs, cfg.StepsPerYear, ErrInvalidSimulation)
	}
	return &Simulator{spot: spot, dc: dc, divs: divs, local: local, cfg: cfg, logger: logging.OrNop(logger)}, nil
}

// NewFromPureLocal builds a simulator on a pure local vol surface, mapped to
// the stock as σ(t,s) = σ_pure(t,x)·(s−D)/s.
func NewFromPureLocal(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, pure volatility.PureLocalVol, cfg config.MonteCarloConfig, logger *zap.Logger) (*Simulator, error) {
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return nil, fmt.Errorf("montecarlo.NewFromPureLocal: %w", err)
	}
	return New(spot, dc, divs, volatility.LocalFromPureLocal(pure, c), cfg, logger)
}

// Estimate is a sample mean with its variance and standard error.
type Estimate struct {
	Mean     float64
	Variance float64
	StdErr   float64
}

// Result holds the estimates of a run. Corrected and Uncorrected are
// annualised realised variances, without and with the dividend-date
// returns.
type Result struct {
	TerminalSpot Estimate
	Corrected    Estimate
	Uncorrected  Estimate
	Pairs        int
	Steps        int
}

// samples of one antithetic pair, averaged over the two paths
type pairSample struct {
	spot, shadow, corrected, uncorrected float64
}

// grid is the daily step structure shared by every path.
type grid struct {
	n        int
	dt       float64
	drift    []float64
	dividend []int // index into divs of the dividend paid at the end of step j, or −1
	initial  []int // dividends paid at time zero
}

func (s *Simulator) grid(expiry float64) grid {
	n := int(math.Round(float64(s.cfg.StepsPerYear) * expiry))
	if n < 2 {
		n = 2
	}
	g := grid{n: n, dt: expiry / float64(n), drift: make([]float64, n), dividend: make([]int, n)}
	for j := range g.dividend {
		g.dividend[j] = -1
		t0, t1 := float64(j)*g.dt, float64(j+1)*g.dt
		g.drift[j] = (math.Log(s.dc.DiscountFactor(t0)) - math.Log(s.dc.DiscountFactor(t1))) / g.dt
	}
	for i := 0; i < s.divs.Len(); i++ {
		tau := s.divs.Tau(i)
		if tau > expiry {
			break
		}
		k := int(math.Round(tau / g.dt))
		if k == 0 {
			g.initial = append(g.initial, i)
			continue
		}
		// paid at the close of day k
		g.dividend[min(k, n)-1] = i
	}
	return g
}

// Run simulates Config.Pairs antithetic pairs to expiry. Pairs are split
// into fixed blocks, each with its own seeded stream, so results do not
// depend on scheduling.
func (s *Simulator) Run(ctx context.Context, expiry float64) (Result, error) {
	if !(expiry > 0) {
		return Result{}, fmt.Errorf("Simulator.Run: expiry %g: %w", expiry, ErrInvalidSimulation)
	}
	start := time.Now()
	g := s.grid(expiry)
	samples := make([]pairSample, s.cfg.Pairs)

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	blocks := workers
	if blocks > s.cfg.Pairs {
		blocks = s.cfg.Pairs
	}
	per := (s.cfg.Pairs + blocks - 1) / blocks

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for b := 0; b < blocks; b++ {
		lo, hi := b*per, min((b+1)*per, s.cfg.Pairs)
		seed := s.cfg.Seed + uint64(b)*0x9E3779B97F4A7C15
		eg.Go(func() error {
			z := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
			normals := make([]float64, g.n)
			for p := lo; p < hi; p++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for j := range normals {
					normals[j] = z.Rand()
				}
				up := s.path(g, normals, 1)
				down := s.path(g, normals, -1)
				samples[p] = pairSample{
					spot:        0.5 * (up.spot + down.spot),
					shadow:      0.5 * (up.shadow + down.shadow),
					corrected:   0.5 * (up.corrected + down.corrected),
					uncorrected: 0.5 * (up.uncorrected + down.uncorrected),
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, fmt.Errorf("Simulator.Run: %w", err)
	}

	res := s.collect(samples, expiry)
	res.Steps = g.n
	s.logger.Debug("monte carlo finished",
		zap.Int("pairs", res.Pairs),
		zap.Int("steps", g.n),
		zap.Int("blocks", blocks),
		zap.Float64("corrected", res.Corrected.Mean),
		zap.Float64("uncorrected", res.Uncorrected.Mean),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// path runs one path on the given normals, mirrored by sign. Both sums are
// mean-adjusted realised variances scaled by StepsPerYear/(N−1). The
// uncorrected sum subtracts (log S_T/S_0)²/N. The corrected sum keeps only
// the pre-drop diffusion returns and subtracts (Σ r)²/N over those same
// returns, which differs from (log S_T/S_0)²/N by the dividend drops.
func (s *Simulator) path(g grid, normals []float64, sign float64) pairSample {
	spot, shadow := s.spot, s.spot
	var corrected, uncorrected, sumPre, sumAll float64
	for _, i := range g.initial {
		after := s.pay(spot, i)
		r := math.Log(after / spot)
		uncorrected += r * r
		sumAll += r
		spot = after
	}

	rootDt := math.Sqrt(g.dt)
	for j := 0; j < g.n; j++ {
		sigma := s.local(float64(j)*g.dt, spot)
		growth := math.Exp((g.drift[j]-0.5*sigma*sigma)*g.dt + sigma*rootDt*sign*normals[j])
		next := spot * growth
		r := math.Log(growth)
		corrected += r * r
		sumPre += r
		shadow *= growth

		if i := g.dividend[j]; i >= 0 {
			next = s.pay(next, i)
			r = math.Log(next / spot)
		}
		uncorrected += r * r
		sumAll += r
		spot = next
	}

	n := float64(g.n)
	scale := float64(s.cfg.StepsPerYear) / (n - 1)
	return pairSample{
		spot:        spot,
		shadow:      shadow,
		corrected:   (corrected - sumPre*sumPre/n) * scale,
		uncorrected: (uncorrected - sumAll*sumAll/n) * scale,
	}
}

// pay applies dividend i to the close s, keeping the level positive.
func (s *Simulator) pay(spot float64, i int) float64 {
	after := spot*(1-s.divs.Beta(i)) - s.divs.Alpha(i)
	return math.Max(after, 1e-12*s.spot)
}

func (s *Simulator) collect(samples []pairSample, expiry float64) Result {
	m := len(samples)
	spots := make([]float64, m)
	shadows := make([]float64, m)
	corr := make([]float64, m)
	unc := make([]float64, m)
	for i, p := range samples {
		spots[i], shadows[i], corr[i], unc[i] = p.spot, p.shadow, p.corrected, p.uncorrected
	}

	// total-return shadow as control variate: E[Y_T] = S₀/P(T) exactly
	shadowMean := s.spot / s.dc.DiscountFactor(expiry)
	if v := stat.Variance(shadows, nil); v > 0 {
		b := stat.Covariance(spots, shadows, nil) / v
		for i := range spots {
			spots[i] -= b * (shadows[i] - shadowMean)
		}
	}

	return Result{
		TerminalSpot: estimate(spots),
		Corrected:    estimate(corr),
		Uncorrected:  estimate(unc),
		Pairs:        m,
	}
}

func estimate(x []float64) Estimate {
	mean, variance := stat.MeanVariance(x, nil)
	return Estimate{Mean: mean, Variance: variance, StdErr: math.Sqrt(variance / float64(len(x)))}
}
