package equity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/logging"
	"github.com/meenmo/eqvar/numeric"
	"github.com/meenmo/eqvar/varswap"
	"github.com/meenmo/eqvar/volatility"
)

// ErrInvalidPricer is returned by NewPricer for an unusable configuration.
var ErrInvalidPricer = errors.New("invalid pricer configuration")

// Method selects the engine prices are computed with.
type Method int

const (
	// MethodReplication prices from a static strip of pure options.
	MethodReplication Method = iota
	// MethodForwardPDE solves the forward equation for pure call prices.
	MethodForwardPDE
	// MethodBackwardPDE rolls the variance payoffs back from expiry.
	MethodBackwardPDE
)

func (m Method) String() string {
	switch m {
	case MethodReplication:
		return "replication"
	case MethodForwardPDE:
		return "forward-pde"
	case MethodBackwardPDE:
		return "backward-pde"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// PricerConfig is everything a Pricer is built from. It is copied into the
// pricer and never changed afterwards.
type PricerConfig struct {
	// Surface fits the pure implied surface to the converted quotes. It
	// carries the smile interpolator, the time interpolation and the
	// log-time, integrated-variance and log-value flags.
	Surface volatility.SurfaceInterpolator

	// LocalVol derives pure local vol from pure implied vol. It is used by
	// the PDE methods and by the local vol Greeks.
	LocalVol volatility.LocalVolCalculator

	Method      Method
	Replication StaticReplication
	Forward     ForwardPDE
	Backward    BackwardPDE

	// Valuer blends realised history into present values.
	Valuer varswap.Valuer

	Bumps  config.PricerConfig
	Logger *zap.Logger
}

// DefaultPricerConfig wires every collaborator from cfg. The method is
// static replication.
func DefaultPricerConfig(cfg config.Config, logger *zap.Logger) PricerConfig {
	integ := numeric.NewAdaptiveLegendre(cfg.Replication.Tolerance, cfg.Replication.MaxDepth)
	return PricerConfig{
		Surface:     volatility.DefaultSurfaceInterpolator(),
		LocalVol:    volatility.NewDupire(),
		Method:      MethodReplication,
		Replication: NewStaticReplication(cfg.Replication, logger),
		Forward:     NewForwardPDE(cfg.PDE, logger),
		Backward:    NewBackwardPDE(cfg.PDE, logger),
		Valuer:      varswap.NewValuer(cfg.Valuer, integ, logger),
		Bumps:       cfg.Pricer,
		Logger:      logger,
	}
}

// Pricer prices variance swaps on a dividend-paying stock from market
// option quotes and computes their sensitivities by bump and reprice.
// Prices are annualised expected variances; the sensitivities follow the
// conventions documented on each method.
type Pricer struct {
	cfg    PricerConfig
	logger *zap.Logger
}

// NewPricer validates cfg and returns a pricer over its engines.
func NewPricer(cfg PricerConfig) (*Pricer, error) {
	switch {
	case cfg.Surface.Smile == nil:
		return nil, fmt.Errorf("NewPricer: no smile interpolator: %w", ErrInvalidPricer)
	case cfg.LocalVol == nil:
		return nil, fmt.Errorf("NewPricer: no local vol calculator: %w", ErrInvalidPricer)
	case cfg.Method < MethodReplication || cfg.Method > MethodBackwardPDE:
		return nil, fmt.Errorf("NewPricer: unknown method %v: %w", cfg.Method, ErrInvalidPricer)
	case !(cfg.Bumps.SpotBump > 0 && cfg.Bumps.SpotBump < 1):
		return nil, fmt.Errorf("NewPricer: spot bump %g: %w", cfg.Bumps.SpotBump, ErrInvalidPricer)
	case !(cfg.Bumps.VolBump > 0) || !(cfg.Bumps.DividendBump > 0 && cfg.Bumps.DividendBump < 1):
		return nil, fmt.Errorf("NewPricer: vol bump %g, dividend bump %g: %w", cfg.Bumps.VolBump, cfg.Bumps.DividendBump, ErrInvalidPricer)
	}
	if cfg.Bumps.Workers < 1 {
		cfg.Bumps.Workers = 1
	}
	return &Pricer{cfg: cfg, logger: logging.OrNop(cfg.Logger)}, nil
}

// Config returns a copy of the configuration the pricer was built with.
func (p *Pricer) Config() PricerConfig { return p.cfg }

// ---------------------------------------------------------------------------
// Surfaces
// ---------------------------------------------------------------------------

// PureImpliedVolSurface converts each market quote to the implied vol of
// the matching pure option and fits a surface to the result.
func (p *Pricer) PureImpliedVolSurface(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (volatility.PureImpliedVol, error) {
	if err := vols.Validate(); err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurface: %w", err)
	}
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurface: %w", err)
	}
	x, pure, err := convertStrips(c, vols.Expiries, vols.Strikes, vols.Vols, func(k, f, d, t, vol float64) (float64, error) {
		return volatility.VolToPureVol(k, f, d, t, vol)
	})
	if err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurface: %w", err)
	}
	surf, err := p.cfg.Surface.PureImpliedSurface(vols.Expiries, x, pure)
	if err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurface: %w", err)
	}
	return surf, nil
}

// PureImpliedVolSurfaceFromPrices is PureImpliedVolSurface for discounted
// out-of-the-money prices.
func (p *Pricer) PureImpliedVolSurfaceFromPrices(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, prices MarketPrices) (volatility.PureImpliedVol, error) {
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurfaceFromPrices: %w", err)
	}
	c, err := dividend.NewCurves(spot, dc, divs)
	if err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurfaceFromPrices: %w", err)
	}
	x, pure, err := convertStrips(c, prices.Expiries, prices.Strikes, prices.Prices, func(k, f, d, t, price float64) (float64, error) {
		return volatility.PriceToPureVol(dc.DiscountFactor(t), k, f, d, t, price)
	})
	if err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurfaceFromPrices: %w", err)
	}
	surf, err := p.cfg.Surface.PureImpliedSurface(prices.Expiries, x, pure)
	if err != nil {
		return nil, fmt.Errorf("Pricer.PureImpliedVolSurfaceFromPrices: %w", err)
	}
	return surf, nil
}

// PureLocalVolSurface is the local vol of the fitted pure implied surface.
func (p *Pricer) PureLocalVolSurface(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (volatility.PureLocalVol, error) {
	piv, err := p.PureImpliedVolSurface(spot, dc, divs, vols)
	if err != nil {
		return nil, err
	}
	return p.cfg.LocalVol.PureLocalVol(piv), nil
}

// convertStrips maps every (strike, value) quote to (pure strike, pure vol).
func convertStrips(c *dividend.Curves, expiries []float64, strikes, values [][]float64, toPure func(k, f, d, t, v float64) (float64, error)) (x, pure [][]float64, err error) {
	x = make([][]float64, len(expiries))
	pure = make([][]float64, len(expiries))
	for i, t := range expiries {
		f, d := c.Forward(t), c.DiscountedDividends(t)
		x[i] = make([]float64, len(strikes[i]))
		pure[i] = make([]float64, len(strikes[i]))
		for j, k := range strikes[i] {
			if k < d {
				return nil, nil, fmt.Errorf("strike %g at expiry %g is below the discounted future dividends %g: %w", k, t, d, volatility.ErrNegativeMoneyness)
			}
			x[i][j] = (k - d) / (f - d)
			if pure[i][j], err = toPure(k, f, d, t, values[i][j]); err != nil {
				return nil, nil, err
			}
		}
	}
	return x, pure, nil
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// expectedVariance runs the configured engine on a pure implied surface.
func (p *Pricer) expectedVariance(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, t float64, piv volatility.PureImpliedVol) (ExpectedVariance, error) {
	switch p.cfg.Method {
	case MethodForwardPDE:
		return p.cfg.Forward.ExpectedVariance(spot, dc, divs, t, p.cfg.LocalVol.PureLocalVol(piv))
	case MethodBackwardPDE:
		return p.cfg.Backward.ExpectedVariance(spot, dc, divs, t, p.cfg.LocalVol.PureLocalVol(piv))
	default:
		return p.cfg.Replication.ExpectedVariance(spot, dc, divs, t, piv)
	}
}

// expectedVarianceLocal prices on a pure local surface. Replication has no
// local vol form, so it falls back to the forward PDE.
func (p *Pricer) expectedVarianceLocal(spot float64, dc curve.DiscountCurve, divs dividend.Schedule, t float64, plv volatility.PureLocalVol) (ExpectedVariance, error) {
	if p.cfg.Method == MethodBackwardPDE {
		return p.cfg.Backward.ExpectedVariance(spot, dc, divs, t, plv)
	}
	return p.cfg.Forward.ExpectedVariance(spot, dc, divs, t, plv)
}

// PriceFromImpliedVols is the annualised expected variance of the swap to
// settlement, from market implied vols.
func (p *Pricer) PriceFromImpliedVols(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	t, err := swap.horizon()
	if err != nil {
		return 0, fmt.Errorf("Pricer.PriceFromImpliedVols: %w", err)
	}
	piv, err := p.PureImpliedVolSurface(spot, dc, divs, vols)
	if err != nil {
		return 0, fmt.Errorf("Pricer.PriceFromImpliedVols: %w", err)
	}
	ev, err := p.raw(swap, spot, dc, divs, t, piv)
	if err != nil {
		return 0, fmt.Errorf("Pricer.PriceFromImpliedVols: %w", err)
	}
	return ev / t, nil
}

// PriceFromOTMPrices is PriceFromImpliedVols for discounted out-of-the-money
// option prices.
func (p *Pricer) PriceFromOTMPrices(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, prices MarketPrices) (float64, error) {
	t, err := swap.horizon()
	if err != nil {
		return 0, fmt.Errorf("Pricer.PriceFromOTMPrices: %w", err)
	}
	piv, err := p.PureImpliedVolSurfaceFromPrices(spot, dc, divs, prices)
	if err != nil {
		return 0, fmt.Errorf("Pricer.PriceFromOTMPrices: %w", err)
	}
	ev, err := p.raw(swap, spot, dc, divs, t, piv)
	if err != nil {
		return 0, fmt.Errorf("Pricer.PriceFromOTMPrices: %w", err)
	}
	return ev / t, nil
}

// raw is the selected component of the expected variance to t.
func (p *Pricer) raw(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, t float64, piv volatility.PureImpliedVol) (float64, error) {
	start := time.Now()
	ev, err := p.expectedVariance(spot, dc, divs, t, piv)
	if err != nil {
		return 0, err
	}
	p.logger.Debug("variance swap priced",
		zap.Stringer("method", p.cfg.Method),
		zap.Float64("spot", spot),
		zap.Float64("expiry", t),
		zap.Float64("corrected", ev.Corrected),
		zap.Float64("uncorrected", ev.Uncorrected),
		zap.Duration("elapsed", time.Since(start)))
	return swap.pick(ev), nil
}

func (p *Pricer) rawLocal(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, t float64, plv volatility.PureLocalVol) (float64, error) {
	ev, err := p.expectedVarianceLocal(spot, dc, divs, t, plv)
	if err != nil {
		return 0, err
	}
	return swap.pick(ev), nil
}

// ---------------------------------------------------------------------------
// Present value
// ---------------------------------------------------------------------------

// Valuation blends the swap's realised history with the model variance of
// the remaining observation period. A start more than a few weeks ahead is
// priced as forward variance from the two expected variances.
func (p *Pricer) Valuation(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (varswap.Valuation, error) {
	tStart, tEnd := swap.TimeToObsStart, swap.TimeToObsEnd
	if swap.TimeToSettlement < 0 {
		return p.cfg.Valuer.ValuationFromImpliedVariance(swap.Swap, 0, dc)
	}
	if !(tStart+p.cfg.Valuer.Config.AFewWeeks < tEnd) {
		return varswap.Valuation{}, fmt.Errorf("Pricer.Valuation: observation from %g to %g: %w", tStart, tEnd, varswap.ErrObservationPeriod)
	}

	var implied float64
	if tEnd > 0 {
		piv, err := p.PureImpliedVolSurface(spot, dc, divs, vols)
		if err != nil {
			return varswap.Valuation{}, fmt.Errorf("Pricer.Valuation: %w", err)
		}
		end, err := p.raw(swap, spot, dc, divs, tEnd, piv)
		if err != nil {
			return varswap.Valuation{}, fmt.Errorf("Pricer.Valuation: %w", err)
		}
		implied = end / tEnd
		if tStart > p.cfg.Valuer.Config.AFewWeeks {
			begin, err := p.raw(swap, spot, dc, divs, tStart, piv)
			if err != nil {
				return varswap.Valuation{}, fmt.Errorf("Pricer.Valuation: %w", err)
			}
			implied = (end - begin) / (tEnd - tStart)
		}
	}
	return p.cfg.Valuer.ValuationFromImpliedVariance(swap.Swap, implied, dc)
}

// PresentValue is the discounted value of the swap to the variance receiver.
func (p *Pricer) PresentValue(swap VarianceSwap, spot float64, dc curve.DiscountCurve, divs dividend.Schedule, vols MarketVols) (float64, error) {
	val, err := p.Valuation(swap, spot, dc, divs, vols)
	if err != nil {
		return 0, err
	}
	return val.PresentValue, nil
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

type scenario func() (float64, error)

// evaluate prices independent scenarios on a bounded group. Results are
// stored by index.
func (p *Pricer) evaluate(scenarios ...scenario) ([]float64, error) {
	out := make([]float64, len(scenarios))
	var eg errgroup.Group
	eg.SetLimit(p.cfg.Bumps.Workers)
	for i, run := range scenarios {
		eg.Go(func() error {
			v, err := run()
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// rootAnnualised is √(EV/t), with noise below zero floored.
func rootAnnualised(ev, t float64) float64 {
	return math.Sqrt(math.Max(ev, 0) / t)
}
