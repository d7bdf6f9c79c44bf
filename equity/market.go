package equity

import (
	"errors"
	"fmt"

	"github.com/meenmo/eqvar/varswap"
)

// ErrInvalidMarketData is returned for malformed option quote strips.
var ErrInvalidMarketData = errors.New("invalid market data")

// MarketVols holds Black implied vols quoted by expiry and strike. Strikes[i]
// and Vols[i] are the strip of expiry i.
type MarketVols struct {
	Expiries []float64
	Strikes  [][]float64
	Vols     [][]float64
}

// Validate checks that expiries increase and that every strip has matching
// lengths with increasing strikes.
func (m MarketVols) Validate() error {
	return validateStrips("MarketVols", m.Expiries, m.Strikes, m.Vols)
}

// Quotes is the number of (expiry, strike) points.
func (m MarketVols) Quotes() int {
	n := 0
	for _, k := range m.Strikes {
		n += len(k)
	}
	return n
}

// WithBumpedPoint returns a copy with the vol at (i, j) moved by amount.
func (m MarketVols) WithBumpedPoint(i, j int, amount float64) (MarketVols, error) {
	if i < 0 || i >= len(m.Vols) || j < 0 || j >= len(m.Vols[i]) {
		return MarketVols{}, fmt.Errorf("MarketVols.WithBumpedPoint: point (%d, %d) out of range: %w", i, j, ErrInvalidMarketData)
	}
	vols := make([][]float64, len(m.Vols))
	for r, strip := range m.Vols {
		vols[r] = append([]float64(nil), strip...)
	}
	vols[i][j] += amount
	return MarketVols{Expiries: m.Expiries, Strikes: m.Strikes, Vols: vols}, nil
}

// MarketPrices holds discounted out-of-the-money option prices: puts below
// the forward, calls at and above it.
type MarketPrices struct {
	Expiries []float64
	Strikes  [][]float64
	Prices   [][]float64
}

// Validate applies the same checks as MarketVols.Validate.
func (m MarketPrices) Validate() error {
	return validateStrips("MarketPrices", m.Expiries, m.Strikes, m.Prices)
}

func validateStrips(name string, expiries []float64, strikes, values [][]float64) error {
	n := len(expiries)
	if n == 0 {
		return fmt.Errorf("%s.Validate: no expiries: %w", name, ErrInvalidMarketData)
	}
	if len(strikes) != n || len(values) != n {
		return fmt.Errorf("%s.Validate: %d expiries, %d strike strips, %d value strips: %w", name, n, len(strikes), len(values), ErrInvalidMarketData)
	}
	for i, t := range expiries {
		if !(t > 0) || (i > 0 && t <= expiries[i-1]) {
			return fmt.Errorf("%s.Validate: expiry %d is %g: %w", name, i, t, ErrInvalidMarketData)
		}
		if len(strikes[i]) == 0 || len(strikes[i]) != len(values[i]) {
			return fmt.Errorf("%s.Validate: expiry %g has %d strikes and %d values: %w", name, t, len(strikes[i]), len(values[i]), ErrInvalidMarketData)
		}
		for j, k := range strikes[i] {
			if !(k > 0) || (j > 0 && k <= strikes[i][j-1]) {
				return fmt.Errorf("%s.Validate: strike %d at expiry %g is %g: %w", name, j, t, k, ErrInvalidMarketData)
			}
		}
	}
	return nil
}

// VarianceSwap is a variance swap on a dividend-paying stock. With
// CorrectForDividends set the dividend-date returns are excluded from the
// realised variance.
type VarianceSwap struct {
	varswap.Swap
	CorrectForDividends bool
}

// horizon is the time the expected variance is computed to and annualised by.
func (s VarianceSwap) horizon() (float64, error) {
	t := s.TimeToSettlement
	if !(t > 0) {
		return 0, fmt.Errorf("time to settlement %g: %w", t, ErrInvalidExpiry)
	}
	return t, nil
}

func (s VarianceSwap) pick(ev ExpectedVariance) float64 {
	if s.CorrectForDividends {
		return ev.Corrected
	}
	return ev.Uncorrected
}
