// Package curve provides the discounting capability consumed by the pricers.
// Curve construction (bootstrapping) is left to callers; this package only
// interpolates discount factors they already have.
package curve

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/meenmo/eqvar/utils"
)

// DiscountCurve is any curve that can discount to time t (in years).
type DiscountCurve interface {
	// DiscountFactor returns P(t), with P(0) = 1.
	DiscountFactor(t float64) float64
	// ZeroRate returns the continuously compounded zero rate to t.
	ZeroRate(t float64) float64
}

var (
	// ErrInvalidCurve is returned when curve nodes are unusable.
	ErrInvalidCurve = errors.New("invalid discount curve")
)

// Flat is a constant continuously compounded rate.
type Flat struct {
	Rate float64
}

// NewFlat returns a flat curve at rate.
func NewFlat(rate float64) Flat {
	return Flat{Rate: rate}
}

func (c Flat) DiscountFactor(t float64) float64 {
	return math.Exp(-c.Rate * t)
}

func (c Flat) ZeroRate(float64) float64 {
	return c.Rate
}

// Interpolated interpolates log discount factors linearly between nodes
// (piecewise flat forwards). Beyond the last node the last forward is
// extended.
type Interpolated struct {
	times []float64
	dfs   []float64
}

// NewInterpolated builds a curve from strictly increasing positive node times
// and their discount factors. The node (0, 1) is implied.
func NewInterpolated(times, dfs []float64) (*Interpolated, error) {
	if len(times) == 0 || len(times) != len(dfs) {
		return nil, fmt.Errorf("NewInterpolated: need matching non-empty times and dfs (got %d, %d): %w", len(times), len(dfs), ErrInvalidCurve)
	}
	c := &Interpolated{
		times: make([]float64, 0, len(times)+1),
		dfs:   make([]float64, 0, len(times)+1),
	}
	c.times = append(c.times, 0)
	c.dfs = append(c.dfs, 1)
	for i, t := range times {
		if t <= c.times[len(c.times)-1] {
			return nil, fmt.Errorf("NewInterpolated: node %d time %g not increasing: %w", i, t, ErrInvalidCurve)
		}
		if dfs[i] <= 0 || math.IsNaN(dfs[i]) {
			return nil, fmt.Errorf("NewInterpolated: node %d discount factor %g not positive: %w", i, dfs[i], ErrInvalidCurve)
		}
		c.times = append(c.times, t)
		c.dfs = append(c.dfs, dfs[i])
	}
	return c, nil
}

// NewFromZeroRates builds the curve from continuously compounded zero rates.
func NewFromZeroRates(times, zeros []float64) (*Interpolated, error) {
	if len(times) != len(zeros) {
		return nil, fmt.Errorf("NewFromZeroRates: %d times but %d rates: %w", len(times), len(zeros), ErrInvalidCurve)
	}
	dfs := make([]float64, len(times))
	for i, t := range times {
		dfs[i] = math.Exp(-zeros[i] * t)
	}
	return NewInterpolated(times, dfs)
}

// NewFromDates builds the curve from dated discount factors, measuring time
// from valuation with the given day count.
func NewFromDates(valuation time.Time, dfs map[time.Time]float64, dayCount string) (*Interpolated, error) {
	dates := make([]time.Time, 0, len(dfs))
	for d := range dfs {
		if d.After(valuation) {
			dates = append(dates, d)
		}
	}
	utils.SortDates(dates)

	times := utils.YearFractions(valuation, dates, dayCount)
	values := make([]float64, len(dates))
	for i, d := range dates {
		values[i] = dfs[d]
	}
	return NewInterpolated(times, values)
}

func (c *Interpolated) DiscountFactor(t float64) float64 {
	if t <= 0 {
		return 1
	}
	i1, i2 := findBracketOrBoundary(c.times, t)
	t1, t2 := c.times[i1], c.times[i2]
	df1, df2 := c.dfs[i1], c.dfs[i2]
	if t2 == t1 {
		return df1
	}
	forwardRate := math.Log(df1/df2) / (t2 - t1)
	return df1 * math.Exp(-forwardRate*(t-t1))
}

func (c *Interpolated) ZeroRate(t float64) float64 {
	if t <= 0 {
		// instantaneous short rate of the first segment
		return math.Log(c.dfs[0]/c.dfs[1]) / (c.times[1] - c.times[0])
	}
	return -math.Log(c.DiscountFactor(t)) / t
}

// Nodes returns copies of the node times and discount factors, excluding the
// implied origin.
func (c *Interpolated) Nodes() (times, dfs []float64) {
	times = append([]float64(nil), c.times[1:]...)
	dfs = append([]float64(nil), c.dfs[1:]...)
	return times, dfs
}
