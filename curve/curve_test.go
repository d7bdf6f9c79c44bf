package curve_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/meenmo/eqvar/curve"
)

func TestFlat(t *testing.T) {
	t.Parallel()

	c := curve.NewFlat(0.02)
	if got := c.DiscountFactor(1.5); math.Abs(got-math.Exp(-0.03)) > 1e-15 {
		t.Fatalf("DiscountFactor = %.15f", got)
	}
	if c.DiscountFactor(0) != 1 {
		t.Fatalf("DiscountFactor(0) must be 1")
	}
	if c.ZeroRate(3) != 0.02 {
		t.Fatalf("ZeroRate = %g", c.ZeroRate(3))
	}
}

func TestInterpolatedLogLinear(t *testing.T) {
	t.Parallel()

	c, err := curve.NewFromZeroRates([]float64{1, 2}, []float64{0.01, 0.02})
	if err != nil {
		t.Fatalf("NewFromZeroRates error: %v", err)
	}

	// nodes reproduce exactly
	if got := c.DiscountFactor(2); math.Abs(got-math.Exp(-0.04)) > 1e-15 {
		t.Fatalf("DF(2) = %.15f", got)
	}
	// mid point of the second segment: log-linear between nodes
	want := math.Exp(-(0.01 + 0.04) / 2)
	if got := c.DiscountFactor(1.5); math.Abs(got-want) > 1e-14 {
		t.Fatalf("DF(1.5) = %.15f, want %.15f", got, want)
	}
	// extrapolation carries the last forward (3%)
	want = math.Exp(-0.04 - 0.03)
	if got := c.DiscountFactor(3); math.Abs(got-want) > 1e-14 {
		t.Fatalf("DF(3) = %.15f, want %.15f", got, want)
	}
	if got := c.ZeroRate(0); math.Abs(got-0.01) > 1e-14 {
		t.Fatalf("ZeroRate(0) = %g", got)
	}
}

func TestInterpolatedValidation(t *testing.T) {
	t.Parallel()

	if _, err := curve.NewInterpolated([]float64{1, 1}, []float64{0.99, 0.98}); !errors.Is(err, curve.ErrInvalidCurve) {
		t.Fatalf("expected ErrInvalidCurve for repeated node, got %v", err)
	}
	if _, err := curve.NewInterpolated([]float64{1}, []float64{-1}); !errors.Is(err, curve.ErrInvalidCurve) {
		t.Fatalf("expected ErrInvalidCurve for negative df, got %v", err)
	}
}

func TestNewFromDates(t *testing.T) {
	t.Parallel()

	val := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	one := val.AddDate(0, 0, 365)
	c, err := curve.NewFromDates(val, map[time.Time]float64{
		val.AddDate(0, 0, -10): 1.0, // ignored: before valuation
		one:                    0.98,
	}, "ACT/365F")
	if err != nil {
		t.Fatalf("NewFromDates error: %v", err)
	}
	times, dfs := c.Nodes()
	if len(times) != 1 || times[0] != 1 || dfs[0] != 0.98 {
		t.Fatalf("Nodes = %v %v", times, dfs)
	}
}
