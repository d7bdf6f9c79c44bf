package varswap

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/logging"
	"github.com/meenmo/eqvar/numeric"
	"github.com/meenmo/eqvar/volatility"
)

const (
	// below this expiry only the ATM vol contributes
	shortExpiry = 1e-4
	// delta limits of the delta-axis integral without a cutoff
	deltaTolerance = 1e-7
	// lower end of the search for the tail minimiser
	tailFloor = 1e-12
	// difference step of dσ/dδ on delta surfaces
	deltaStep = 1e-5
)

// Market is what the valuer needs: discounting, the forward of the
// underlying and its Black surface.
type Market struct {
	DiscountCurve curve.DiscountCurve
	Forward       func(t float64) float64
	Surface       volatility.BlackSurface
}

// Cutoff sets a low-strike cutoff in the units of the surface axis. Below
// it the put leg is replaced by the tail of a shifted log-normal fitted to
// the cutoff and to Level+Spread (Level−Spread for call deltas).
type Cutoff struct {
	Level  float64
	Spread float64
}

// Valuer prices variance swaps from a market Black surface.
type Valuer struct {
	Integrator numeric.Integrator
	Config     config.ValuerConfig
	Cutoff     *Cutoff
	Logger     *zap.Logger
}

// NewValuer returns a valuer with the cutoff taken from cfg when enabled.
func NewValuer(cfg config.ValuerConfig, integ numeric.Integrator, logger *zap.Logger) Valuer {
	v := Valuer{Integrator: integ, Config: cfg, Logger: logging.OrNop(logger)}
	if cfg.Cutoff {
		v.Cutoff = &Cutoff{Level: cfg.CutoffLevel, Spread: cfg.CutoffSpread}
	}
	return v
}

// Valuation breaks a present value into its parts.
type Valuation struct {
	Realized  float64
	Implied   float64
	Total     float64
	ObsActual int
	// Payment is the undiscounted cash settlement, rounded to cents.
	Payment      decimal.Decimal
	PresentValue float64
}

// PresentValue is df·N·(total − K) with total the realised and implied
// variance weighted by the number of observations each covers.
func (v Valuer) PresentValue(s Swap, m Market) (float64, error) {
	val, err := v.Valuation(s, m)
	if err != nil {
		return 0, err
	}
	return val.PresentValue, nil
}

// Valuation returns the settlement payment and its present value, blending
// realised returns with the market's expected variance of the rest.
func (v Valuer) Valuation(s Swap, m Market) (Valuation, error) {
	if s.TimeToSettlement < 0 {
		return Valuation{Payment: decimal.Zero}, nil
	}
	if err := s.Validate(); err != nil {
		return Valuation{}, fmt.Errorf("Valuer.Valuation: %w", err)
	}
	implied, err := v.ImpliedVariance(s, m)
	if err != nil {
		return Valuation{}, fmt.Errorf("Valuer.Valuation: %w", err)
	}
	return v.ValuationFromImpliedVariance(s, implied, m.DiscountCurve)
}

// ValuationFromImpliedVariance blends the realised history with an
// annualised implied variance computed elsewhere, for instance by a model
// that carries the dividend jumps.
func (v Valuer) ValuationFromImpliedVariance(s Swap, implied float64, dc curve.DiscountCurve) (Valuation, error) {
	if s.TimeToSettlement < 0 {
		return Valuation{Payment: decimal.Zero}, nil
	}
	if err := s.Validate(); err != nil {
		return Valuation{}, fmt.Errorf("Valuer.ValuationFromImpliedVariance: %w", err)
	}
	realized, err := RealizedVariance(s)
	if err != nil {
		return Valuation{}, fmt.Errorf("Valuer.ValuationFromImpliedVariance: %w", err)
	}

	nExp := float64(s.ObsExpected)
	var nAct int
	if s.TimeToObsStart <= 0 {
		if len(s.Observations) == 0 {
			return Valuation{}, fmt.Errorf("Valuer.ValuationFromImpliedVariance: observation started %g years ago but no observations given: %w", -s.TimeToObsStart, ErrInvalidSwap)
		}
		nAct = len(s.Observations) - 1
	}
	total := realized*float64(nAct)/nExp + implied*(nExp-float64(nAct)-float64(s.ObsDisrupted))/nExp
	payment := s.VarNotional * (total - s.VarStrike)
	df := dc.DiscountFactor(s.TimeToSettlement)

	logging.OrNop(v.Logger).Debug("variance swap valued",
		zap.Float64("realized", realized),
		zap.Float64("implied", implied),
		zap.Int("obs_actual", nAct),
		zap.Int("obs_expected", s.ObsExpected))
	return Valuation{
		Realized:     realized,
		Implied:      implied,
		Total:        total,
		ObsActual:    nAct,
		Payment:      decimal.NewFromFloat(payment).Round(2),
		PresentValue: df * payment,
	}, nil
}

// ImpliedVariance is the annualised variance of the remaining observation
// period. A start more than a few weeks ahead makes it forward variance,
// (V_end·T_end − V_start·T_start)/(T_end − T_start).
func (v Valuer) ImpliedVariance(s Swap, m Market) (float64, error) {
	tStart, tEnd := s.TimeToObsStart, s.TimeToObsEnd
	if !(tStart+v.Config.AFewWeeks < tEnd) {
		return 0, fmt.Errorf("Valuer.ImpliedVariance: observation from %g to %g shorter than %g: %w", tStart, tEnd, v.Config.AFewWeeks, ErrObservationPeriod)
	}
	if tEnd <= 0 {
		return 0, nil
	}
	end, err := v.ImpliedVarianceFromSpot(tEnd, m)
	if err != nil {
		return 0, err
	}
	if tStart <= v.Config.AFewWeeks {
		return end, nil
	}
	start, err := v.ImpliedVarianceFromSpot(tStart, m)
	if err != nil {
		return 0, err
	}
	return (end*tEnd - start*tStart) / (tEnd - tStart), nil
}

// ImpliedVolatility is √ImpliedVariance.
func (v Valuer) ImpliedVolatility(s Swap, m Market) (float64, error) {
	variance, err := v.ImpliedVariance(s, m)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(variance), nil
}

// ImpliedVarianceFromSpot replicates the annualised variance from now to t,
// 2/t·∫ OTM(k)/k² dk, in the coordinates of the surface axis.
func (v Valuer) ImpliedVarianceFromSpot(t float64, m Market) (float64, error) {
	f := m.Forward(t)
	var tl tail
	if v.Cutoff != nil {
		var err error
		if tl, err = v.fitTail(t, f, m.Surface, *v.Cutoff); err != nil {
			return 0, fmt.Errorf("Valuer.ImpliedVarianceFromSpot: cutoff at t=%g: %w", t, err)
		}
	}

	var (
		variance float64
		err      error
	)
	switch m.Surface.Axis {
	case volatility.Strike:
		variance, err = v.strikeVariance(t, f, m.Surface, tl)
	case volatility.Delta:
		variance, err = v.deltaVariance(t, f, m.Surface, tl)
	case volatility.Moneyness:
		logSurface := volatility.BlackSurface{
			Axis: volatility.LogMoneyness,
			Vol:  func(t, y float64) float64 { return m.Surface.Vol(t, math.Exp(y)) },
		}
		variance, err = v.logMoneynessVariance(t, f, logSurface, tl)
	case volatility.LogMoneyness:
		variance, err = v.logMoneynessVariance(t, f, m.Surface, tl)
	default:
		err = fmt.Errorf("unsupported surface axis %v", m.Surface.Axis)
	}
	if err != nil {
		return 0, fmt.Errorf("Valuer.ImpliedVarianceFromSpot: t=%g: %w", t, err)
	}
	return variance, nil
}

func (v Valuer) integrator() numeric.Integrator {
	if v.Integrator == nil {
		return numeric.NewAdaptiveLegendre(1e-10, 20)
	}
	return v.Integrator
}

func (v Valuer) width(t, atm float64) float64 {
	return v.Config.StdDevs * math.Max(atm, 0.01) * math.Sqrt(t)
}

func (v Valuer) strikeVariance(t, f float64, s volatility.BlackSurface, tl tail) (float64, error) {
	atm := s.Vol(t, f)
	if t < shortExpiry {
		return atm * atm, nil
	}
	integrand := func(k float64) float64 {
		if k <= 0 {
			return 0
		}
		vol := s.Vol(t, k)
		return volatility.BlackPrice(f, k, t, vol, k >= f) / (k * k)
	}
	w := v.width(t, atm)
	lower := f * math.Exp(-w)
	if tl.active {
		lower = tl.strike
	}
	integ := v.integrator()
	res := integ.Integrate(integrand, lower, f) + integ.Integrate(integrand, f, f*math.Exp(w)) + tl.residual
	return 2 * res / t, nil
}

func (v Valuer) logMoneynessVariance(t, f float64, s volatility.BlackSurface, tl tail) (float64, error) {
	atm := s.Vol(t, 0)
	if t < shortExpiry {
		return atm * atm, nil
	}
	rootT := math.Sqrt(t)
	integrand := func(y float64) float64 {
		sign := 1.0
		if y < 0 {
			sign = -1
		}
		sigmaRootT := s.Vol(t, y) * rootT
		if y == 0 {
			return 2*normalCDF(0.5*sigmaRootT) - 1
		}
		if sigmaRootT < 1e-12 {
			return 0
		}
		d1 := -y/sigmaRootT + 0.5*sigmaRootT
		d2 := d1 - sigmaRootT
		return sign * (math.Exp(-y)*normalCDF(sign*d1) - normalCDF(sign*d2))
	}
	w := v.width(t, atm)
	lower := -w
	if tl.active {
		lower = math.Log(tl.strike / f)
	}
	integ := v.integrator()
	res := integ.Integrate(integrand, lower, 0) + integ.Integrate(integrand, 0, w) + tl.residual
	return 2 * res / t, nil
}

func (v Valuer) deltaVariance(t, f float64, s volatility.BlackSurface, tl tail) (float64, error) {
	if t < shortExpiry {
		dns := s.Vol(t, 0.5)
		return dns * dns, nil
	}
	rootT := math.Sqrt(t)
	var failed error
	integrand := func(delta float64) float64 {
		vol := s.Vol(t, delta)
		strike, err := volatility.StrikeForDelta(f, delta, t, vol, true)
		if err != nil {
			failed = err
			return 0
		}
		var dVol float64
		switch {
		case delta < deltaStep:
			dVol = (s.Vol(t, delta+deltaStep) - vol) / deltaStep
		case delta > 1-deltaStep:
			dVol = (vol - s.Vol(t, delta-deltaStep)) / deltaStep
		default:
			dVol = (s.Vol(t, delta+deltaStep) - s.Vol(t, delta-deltaStep)) / (2 * deltaStep)
		}
		d1 := normalQuantile(delta)
		d2 := d1 - vol*rootT
		weight := (vol*rootT/normalPDF(d1) + dVol*(d1*rootT-vol*t)) / strike
		if strike >= f {
			return weight * (f*delta - strike*normalCDF(d2))
		}
		return weight * (strike*normalCDF(-d2) - f*(1-delta))
	}

	atmfVol, err := s.VolAtStrike(t, f, f)
	if err != nil {
		return 0, err
	}
	atmfDelta := volatility.BlackDelta(f, f, t, atmfVol, true)
	upper := 1 - deltaTolerance
	if tl.active {
		limitVol, err := s.VolAtStrike(t, tl.strike, f)
		if err != nil {
			return 0, err
		}
		upper = math.Min(upper, volatility.BlackDelta(f, tl.strike, t, limitVol, true))
	}
	integ := v.integrator()
	res := integ.Integrate(integrand, deltaTolerance, atmfDelta) + integ.Integrate(integrand, atmfDelta, upper) + tl.residual
	if failed != nil {
		return 0, failed
	}
	return 2 * res / t, nil
}
