package volatility

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// ErrInvalidQuotes is returned for unusable smile data.
var ErrInvalidQuotes = errors.New("invalid volatility quotes")

// Smile is the volatility of one expiry as a function of strike.
type Smile func(k float64) float64

// SmileInterpolator fits a smile to the quotes of one expiry.
type SmileInterpolator interface {
	Smile(forward, expiry float64, strikes, vols []float64) (Smile, error)
}

// SplineKind selects the gonum interpolant of a SplineSmile.
type SplineKind int

const (
	NaturalCubic SplineKind = iota
	Akima
	FritschButland
	Linear
)

// SplineSmile interpolates vol in log(k/F) and extrapolates flat beyond the
// outermost quotes.
type SplineSmile struct {
	Kind SplineKind
}

func (s SplineSmile) Smile(forward, expiry float64, strikes, vols []float64) (Smile, error) {
	n := len(strikes)
	if n == 0 || n != len(vols) {
		return nil, fmt.Errorf("SplineSmile: expiry %g has %d strikes and %d vols: %w", expiry, n, len(vols), ErrInvalidQuotes)
	}
	ys := make([]float64, n)
	for i, k := range strikes {
		if !(k > 0) {
			return nil, fmt.Errorf("SplineSmile: expiry %g strike %g not positive: %w", expiry, k, ErrInvalidQuotes)
		}
		ys[i] = math.Log(k / forward)
		if i > 0 && ys[i] <= ys[i-1] {
			return nil, fmt.Errorf("SplineSmile: expiry %g strikes not increasing at %g: %w", expiry, k, ErrInvalidQuotes)
		}
	}
	if n == 1 {
		v := vols[0]
		return func(float64) float64 { return v }, nil
	}

	pred := s.predictor(n)
	if err := pred.Fit(ys, vols); err != nil {
		return nil, fmt.Errorf("SplineSmile: expiry %g: %v: %w", expiry, err, ErrInvalidQuotes)
	}
	lo, hi := ys[0], ys[n-1]
	return func(k float64) float64 {
		if k <= 0 {
			return pred.Predict(lo)
		}
		y := math.Min(math.Max(math.Log(k/forward), lo), hi)
		return pred.Predict(y)
	}, nil
}

func (s SplineSmile) predictor(n int) interp.FittablePredictor {
	if n < 3 {
		return &interp.PiecewiseLinear{}
	}
	switch s.Kind {
	case Akima:
		if n >= 5 {
			return &interp.AkimaSpline{}
		}
		return &interp.FritschButland{}
	case FritschButland:
		return &interp.FritschButland{}
	case Linear:
		return &interp.PiecewiseLinear{}
	default:
		return &interp.NaturalCubic{}
	}
}

// TimeInterpolation selects the interpolant across expiries.
type TimeInterpolation int

const (
	TimeLinear TimeInterpolation = iota
	TimeNaturalCubic
)

// SurfaceInterpolator joins per-expiry smiles into a surface. Across
// expiries it interpolates at constant moneyness, optionally in log time,
// in integrated variance σ²t, or in the log of the interpolated value.
type SurfaceInterpolator struct {
	Smile              SmileInterpolator
	Time               TimeInterpolation
	LogTime            bool
	IntegratedVariance bool
	LogValue           bool
}

// DefaultSurfaceInterpolator uses natural cubic smiles and linear
// interpolation of integrated variance.
func DefaultSurfaceInterpolator() SurfaceInterpolator {
	return SurfaceInterpolator{
		Smile:              SplineSmile{Kind: NaturalCubic},
		Time:               TimeLinear,
		IntegratedVariance: true,
	}
}

// PureImpliedSurface fits the pure implied surface (forward 1) to pure
// strikes x and pure vols per expiry.
func (si SurfaceInterpolator) PureImpliedSurface(expiries []float64, x, vols [][]float64) (PureImpliedVol, error) {
	surf, err := si.Surface(func(float64) float64 { return 1 }, expiries, x, vols)
	if err != nil {
		return nil, err
	}
	return PureImpliedVol(surf), nil
}

// Surface fits a strike surface to quotes. The forward curve sets the
// moneyness along which expiries are joined.
func (si SurfaceInterpolator) Surface(forward func(t float64) float64, expiries []float64, strikes, vols [][]float64) (func(t, k float64) float64, error) {
	n := len(expiries)
	if n == 0 || len(strikes) != n || len(vols) != n {
		return nil, fmt.Errorf("SurfaceInterpolator: %d expiries, %d strike strips, %d vol strips: %w", n, len(strikes), len(vols), ErrInvalidQuotes)
	}
	if !sort.Float64sAreSorted(expiries) || expiries[0] <= 0 {
		return nil, fmt.Errorf("SurfaceInterpolator: expiries must be positive and increasing: %w", ErrInvalidQuotes)
	}
	smiler := si.Smile
	if smiler == nil {
		smiler = SplineSmile{}
	}

	smiles := make([]Smile, n)
	fwds := make([]float64, n)
	times := make([]float64, n)
	for i, t := range expiries {
		if i > 0 && t <= expiries[i-1] {
			return nil, fmt.Errorf("SurfaceInterpolator: repeated expiry %g: %w", t, ErrInvalidQuotes)
		}
		fwds[i] = forward(t)
		s, err := smiler.Smile(fwds[i], t, strikes[i], vols[i])
		if err != nil {
			return nil, fmt.Errorf("SurfaceInterpolator: %w", err)
		}
		smiles[i] = s
		times[i] = t
		if si.LogTime {
			times[i] = math.Log(t)
		}
	}

	return func(t, k float64) float64 {
		m := k / forward(t)
		if n == 1 || t <= expiries[0] {
			return smiles[0](m * fwds[0])
		}
		if t >= expiries[n-1] {
			return smiles[n-1](m * fwds[n-1])
		}
		vals := make([]float64, n)
		for i := range smiles {
			vals[i] = si.encode(smiles[i](m*fwds[i]), expiries[i])
		}
		tt := t
		if si.LogTime {
			tt = math.Log(t)
		}
		return si.decode(si.interpolate(times, vals, tt), t)
	}, nil
}

func (si SurfaceInterpolator) encode(vol, t float64) float64 {
	v := vol
	if si.IntegratedVariance {
		v = vol * vol * t
	}
	if si.LogValue {
		v = math.Log(math.Max(v, 1e-300))
	}
	return v
}

func (si SurfaceInterpolator) decode(v, t float64) float64 {
	if si.LogValue {
		v = math.Exp(v)
	}
	if si.IntegratedVariance {
		return math.Sqrt(math.Max(v, 0) / t)
	}
	return v
}

func (si SurfaceInterpolator) interpolate(xs, ys []float64, x float64) float64 {
	if si.Time == TimeNaturalCubic && len(xs) >= 3 {
		var nc interp.NaturalCubic
		if err := nc.Fit(xs, ys); err == nil {
			return nc.Predict(x)
		}
	}
	i := sort.SearchFloat64s(xs, x)
	if i <= 0 {
		return ys[0]
	}
	if i >= len(xs) {
		return ys[len(xs)-1]
	}
	w := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + w*(ys[i]-ys[i-1])
}
