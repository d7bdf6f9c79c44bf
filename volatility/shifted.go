package volatility

import (
	"fmt"
	"math"

	"github.com/meenmo/eqvar/numeric"
)

// ShiftedLognormal models S + Shift as log-normal with volatility Vol and
// forward Forward + Shift.
type ShiftedLognormal struct {
	Forward float64
	Expiry  float64
	Shift   float64
	Vol     float64
}

// Price is the undiscounted price of a call or put struck at k.
func (m ShiftedLognormal) Price(k float64, isCall bool) float64 {
	return BlackPrice(m.Forward+m.Shift, math.Max(k+m.Shift, 0), m.Expiry, m.Vol, isCall)
}

// OTMPrice is the price of the out-of-the-money option struck at k.
func (m ShiftedLognormal) OTMPrice(k float64) float64 {
	return m.Price(k, k >= m.Forward)
}

const (
	shiftedFitTolerance = 1e-10
	shiftedFitMaxIter   = 50
)

// FitShiftedLognormal matches the Black prices at strikes k1 < k2. The fit
// starts from no shift; if that fails it is retried once from a shift of
// half the forward. A second failure returns ErrNotConverged.
func FitShiftedLognormal(forward, expiry, k1, vol1, k2, vol2 float64) (ShiftedLognormal, error) {
	if !(k1 > 0 && k2 > k1) || forward <= 0 || expiry <= 0 {
		return ShiftedLognormal{}, fmt.Errorf("FitShiftedLognormal: need 0 < k1 < k2, forward>0, expiry>0 (k1=%g k2=%g): %w", k1, k2, ErrInvalidQuotes)
	}
	strikes := []float64{k1, k2}
	targets := make([]float64, 2)
	vegas := make([]float64, 2)
	for i, v := range []float64{vol1, vol2} {
		isCall := strikes[i] >= forward
		targets[i] = BlackPrice(forward, strikes[i], expiry, v, isCall)
		vegas[i] = math.Max(BlackVega(forward, strikes[i], expiry, v), 1e-12*forward)
	}

	residual := func(z []float64) []float64 {
		m := ShiftedLognormal{Forward: forward, Expiry: expiry, Shift: z[0], Vol: z[1]}
		out := make([]float64, 2)
		for i, k := range strikes {
			out[i] = (m.OTMPrice(k) - targets[i]) / vegas[i]
		}
		return out
	}
	inDomain := func(z []float64) bool {
		return z[1] > 0 && forward+z[0] > 0 && k1+z[0] > 0
	}

	solver := numeric.NewNewton(shiftedFitTolerance, shiftedFitMaxIter)
	starts := [][]float64{
		{0, vol1},
		{0.5 * forward, vol1 * forward / (1.5 * forward)},
	}
	var lastErr error
	for _, z0 := range starts {
		z, err := solver.Solve(residual, z0, inDomain)
		if err == nil {
			return ShiftedLognormal{Forward: forward, Expiry: expiry, Shift: z[0], Vol: z[1]}, nil
		}
		lastErr = err
	}
	return ShiftedLognormal{}, fmt.Errorf("FitShiftedLognormal: k1=%g vol1=%g k2=%g vol2=%g: %v: %w", k1, vol1, k2, vol2, lastErr, ErrNotConverged)
}
