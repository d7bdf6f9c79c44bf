package numeric_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/meenmo/eqvar/numeric"
)

func TestAdaptiveLegendre(t *testing.T) {
	t.Parallel()

	g := numeric.NewAdaptiveLegendre(1e-12, 20)
	cases := []struct {
		name string
		f    numeric.Func
		a, b float64
		want float64
	}{
		{"exp", math.Exp, 0, 1, math.E - 1},
		{"reversed", math.Exp, 1, 0, 1 - math.E},
		{"kink", func(x float64) float64 { return math.Abs(x - 0.3) }, 0, 1, (0.09 + 0.49) / 2},
		{"peak", func(x float64) float64 { return 1 / (1e-4 + x*x) }, -1, 1, 2 * math.Atan(100) * 100},
	}
	for _, tc := range cases {
		got := g.Integrate(tc.f, tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9*math.Max(1, math.Abs(tc.want)) {
			t.Fatalf("%s: got %.12f, want %.12f", tc.name, got, tc.want)
		}
	}
	if g.Integrate(math.Exp, 2, 2) != 0 {
		t.Fatalf("empty interval must integrate to zero")
	}
}

func TestBrentRoot(t *testing.T) {
	t.Parallel()

	s := numeric.NewBrent(1e-14)
	root, err := s.Root(func(x float64) float64 { return x*x*x - 2*x - 5 }, 2, 3)
	if err != nil {
		t.Fatalf("Root error: %v", err)
	}
	if math.Abs(root-2.0945514815423265) > 1e-12 {
		t.Fatalf("root = %.16f", root)
	}

	_, err = s.Root(func(x float64) float64 { return x*x + 1 }, -1, 1)
	if !errors.Is(err, numeric.ErrNoBracket) {
		t.Fatalf("expected ErrNoBracket, got %v", err)
	}
}

func TestExpandBracket(t *testing.T) {
	t.Parallel()

	f := func(x float64) float64 { return x - 10 }
	lo, hi, err := numeric.ExpandBracket(f, 0.5, 1, 0, 20)
	if err != nil {
		t.Fatalf("ExpandBracket error: %v", err)
	}
	if f(lo) > 0 || f(hi) < 0 {
		t.Fatalf("bracket [%g, %g] does not contain 10", lo, hi)
	}
}

func TestMinimize(t *testing.T) {
	t.Parallel()

	x, fx := numeric.Minimize(func(x float64) float64 { return (x-1.3)*(x-1.3) + 0.5 }, 0, 4, 1e-10)
	if math.Abs(x-1.3) > 1e-7 || math.Abs(fx-0.5) > 1e-12 {
		t.Fatalf("Minimize = (%g, %g)", x, fx)
	}
	// minimum at the boundary
	x, _ = numeric.Minimize(func(x float64) float64 { return x }, 1, 2, 1e-10)
	if math.Abs(x-1) > 1e-6 {
		t.Fatalf("boundary minimum at %g", x)
	}
}

func TestNewton(t *testing.T) {
	t.Parallel()

	// intersection of the unit circle and the line y = x
	f := func(x []float64) []float64 {
		return []float64{x[0]*x[0] + x[1]*x[1] - 1, x[0] - x[1]}
	}
	got, err := numeric.NewNewton(1e-12, 50).Solve(f, []float64{1, 0.2}, nil)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	want := []float64{math.Sqrt2 / 2, math.Sqrt2 / 2}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("Solve mismatch (-want +got):\n%s", diff)
	}

	_, err = numeric.NewNewton(1e-12, 50).Solve(func(x []float64) []float64 {
		return []float64{x[0]*x[0] + 1}
	}, []float64{1}, nil)
	if err == nil {
		t.Fatalf("expected failure for a function without roots")
	}
}
