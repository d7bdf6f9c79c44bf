package varswap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// RealizedVariance is the annualised weighted mean of the squared log
// returns observed so far. Fewer than two observations realise nothing.
func RealizedVariance(s Swap) (float64, error) {
	n := len(s.Observations)
	if n < 2 {
		return 0, nil
	}
	if err := s.Validate(); err != nil {
		return 0, fmt.Errorf("RealizedVariance: %w", err)
	}
	sq := make([]float64, n-1)
	for i := 1; i < n; i++ {
		r := math.Log(s.Observations[i] / s.Observations[i-1])
		sq[i-1] = r * r
	}
	return stat.Mean(sq, s.Weights) * s.AnnualizationFactor, nil
}
