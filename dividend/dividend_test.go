package dividend_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
)

func TestNewScheduleValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		divs []dividend.Dividend
	}{
		{"negative tau", []dividend.Dividend{{Tau: -0.1, Alpha: 1}}},
		{"repeated tau", []dividend.Dividend{{Tau: 0.5, Alpha: 1}, {Tau: 0.5, Alpha: 1}}},
		{"decreasing tau", []dividend.Dividend{{Tau: 0.5, Alpha: 1}, {Tau: 0.25, Alpha: 1}}},
		{"negative alpha", []dividend.Dividend{{Tau: 0.5, Alpha: -1}}},
		{"beta one", []dividend.Dividend{{Tau: 0.5, Beta: 1}}},
		{"negative beta", []dividend.Dividend{{Tau: 0.5, Beta: -0.01}}},
		{"nan tau", []dividend.Dividend{{Tau: math.NaN(), Alpha: 1}}},
		{"infinite tau", []dividend.Dividend{{Tau: math.Inf(1), Alpha: 1}}},
		{"nan alpha", []dividend.Dividend{{Tau: 0.5, Alpha: math.NaN()}}},
		{"infinite alpha", []dividend.Dividend{{Tau: 0.5, Alpha: math.Inf(1)}}},
		{"nan beta", []dividend.Dividend{{Tau: 0.5, Beta: math.NaN()}}},
	}
	for _, tc := range cases {
		if _, err := dividend.NewSchedule(tc.divs...); !errors.Is(err, dividend.ErrInvalidSchedule) {
			t.Fatalf("%s: expected ErrInvalidSchedule, got %v", tc.name, err)
		}
	}

	empty, err := dividend.NewSchedule()
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty schedule: len=%d err=%v", empty.Len(), err)
	}
	if _, err := dividend.NewScheduleFromSlices([]float64{1}, nil, nil); !errors.Is(err, dividend.ErrInvalidSchedule) {
		t.Fatalf("expected error for mismatched slices, got %v", err)
	}
}

func TestScheduleWithIsImmutable(t *testing.T) {
	t.Parallel()

	s, err := dividend.NewSchedule(
		dividend.Dividend{Tau: 0.25, Alpha: 1, Beta: 0.01},
		dividend.Dividend{Tau: 0.75, Alpha: 1.5, Beta: 0.02},
	)
	if err != nil {
		t.Fatalf("NewSchedule error: %v", err)
	}

	a, err := s.WithAlpha(0, 3)
	if err != nil {
		t.Fatalf("WithAlpha error: %v", err)
	}
	b, err := s.WithBeta(1, 0.1)
	if err != nil {
		t.Fatalf("WithBeta error: %v", err)
	}
	c, err := s.WithTau(0, 0.5)
	if err != nil {
		t.Fatalf("WithTau error: %v", err)
	}
	if a.Alpha(0) != 3 || b.Beta(1) != 0.1 || c.Tau(0) != 0.5 {
		t.Fatalf("updates not applied: %v %v %v", a.At(0), b.At(1), c.At(0))
	}
	if s.Alpha(0) != 1 || s.Beta(1) != 0.02 || s.Tau(0) != 0.25 {
		t.Fatalf("original schedule mutated: %v", s.Dividends())
	}

	if _, err := s.WithAlpha(0, -1); !errors.Is(err, dividend.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for α<0, got %v", err)
	}
	if _, err := s.WithBeta(0, 1); !errors.Is(err, dividend.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for β=1, got %v", err)
	}
	if _, err := s.WithAlpha(0, math.NaN()); !errors.Is(err, dividend.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for α=NaN, got %v", err)
	}
	if _, err := s.WithTau(0, 0.8); !errors.Is(err, dividend.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for reordering τ, got %v", err)
	}
	if _, err := s.WithAlpha(2, 1); !errors.Is(err, dividend.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}

	// mutating the returned copy must not leak into the schedule
	d := s.Dividends()
	d[0].Alpha = 99
	if s.Alpha(0) != 1 {
		t.Fatalf("Dividends returned shared storage")
	}
}

func TestScheduleUntilAndDates(t *testing.T) {
	t.Parallel()

	s, _ := dividend.NewScheduleFromSlices([]float64{0.25, 0.75, 1.25}, []float64{1, 1.5, 2}, []float64{0, 0, 0})
	if got := s.Until(1.0).Len(); got != 2 {
		t.Fatalf("Until(1) len = %d, want 2", got)
	}
	if got := s.Until(0.75).Len(); got != 2 {
		t.Fatalf("Until(0.75) len = %d, want 2 (inclusive)", got)
	}

	val := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	dated, err := dividend.NewScheduleFromDates(val, []dividend.DatedDividend{
		{ExDate: val.AddDate(0, 0, 365), Alpha: 2},
		{ExDate: val.AddDate(0, 0, -5), Alpha: 1},
		{ExDate: val.AddDate(0, 0, 73), Alpha: 1},
	}, "ACT/365F")
	if err != nil {
		t.Fatalf("NewScheduleFromDates error: %v", err)
	}
	if dated.Len() != 2 || math.Abs(dated.Tau(0)-0.2) > 1e-15 || dated.Tau(1) != 1 {
		t.Fatalf("dated schedule = %v", dated.Dividends())
	}
}

func TestCurvesNoDividends(t *testing.T) {
	t.Parallel()

	dc := curve.NewFlat(0.03)
	c, err := dividend.NewCurves(100, dc, dividend.NoDividends())
	if err != nil {
		t.Fatalf("NewCurves error: %v", err)
	}
	for _, tm := range []float64{0, 0.3, 1, 5} {
		p := dc.DiscountFactor(tm)
		if c.GrowthFactor(tm) != 1/p {
			t.Fatalf("R(%g) = %g, want %g", tm, c.GrowthFactor(tm), 1/p)
		}
		if c.Forward(tm) != 100/p {
			t.Fatalf("F(%g) = %g, want %g", tm, c.Forward(tm), 100/p)
		}
		if c.DiscountedDividends(tm) != 0 {
			t.Fatalf("D(%g) = %g, want 0", tm, c.DiscountedDividends(tm))
		}
	}
}

func TestCurvesAffineDividends(t *testing.T) {
	t.Parallel()

	const r = 0.02
	dc := curve.NewFlat(r)
	s, _ := dividend.NewSchedule(
		dividend.Dividend{Tau: 0.5, Alpha: 2, Beta: 0.01},
		dividend.Dividend{Tau: 1.5, Alpha: 1, Beta: 0},
	)
	c, err := dividend.NewCurves(100, dc, s)
	if err != nil {
		t.Fatalf("NewCurves error: %v", err)
	}

	// F jumps by F(τ⁻)(1−β) − α across each dividend
	before := c.Forward(0.5 - 1e-12)
	after := c.Forward(0.5)
	if math.Abs(after-(before*0.99-2)) > 1e-8 {
		t.Fatalf("forward jump: before %.10f after %.10f", before, after)
	}

	// spot = F(0) = D(0) + (F−D)·1 and D(0) is the PV of the cash amounts
	r05 := 0.99 / dc.DiscountFactor(0.5)
	r15 := 0.99 / dc.DiscountFactor(1.5)
	wantD := 2/r05 + 1/r15
	if math.Abs(c.DiscountedDividends(0)-wantD) > 1e-12 {
		t.Fatalf("D(0) = %.12f, want %.12f", c.DiscountedDividends(0), wantD)
	}
	if math.Abs(c.Forward(0)-100) > 1e-12 {
		t.Fatalf("F(0) = %g, want spot", c.Forward(0))
	}
	if c.DiscountedDividends(1.5) != 0 || c.DiscountedDividends(3) != 0 {
		t.Fatalf("D after last dividend must be zero")
	}

	// the pure maps invert each other
	x := c.ToPure(0.8, c.ToSpot(0.8, 1.1))
	if math.Abs(x-1.1) > 1e-12 {
		t.Fatalf("ToPure(ToSpot(1.1)) = %g", x)
	}

	if _, err := dividend.NewCurves(0, dc, s); !errors.Is(err, dividend.ErrInvalidSpot) {
		t.Fatalf("expected ErrInvalidSpot, got %v", err)
	}
}
