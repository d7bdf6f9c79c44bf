package volatility_test

import (
	"errors"
	"math"
	"testing"

	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/numeric"
	"github.com/meenmo/eqvar/volatility"
)

func testCurves(t *testing.T) *dividend.Curves {
	t.Helper()
	divs, err := dividend.NewSchedule(dividend.Dividend{Tau: 0.5, Alpha: 2})
	if err != nil {
		t.Fatalf("NewSchedule error: %v", err)
	}
	c, err := dividend.NewCurves(100, curve.NewFlat(0.02), divs)
	if err != nil {
		t.Fatalf("NewCurves error: %v", err)
	}
	return c
}

func TestBlackImpliedRoundTrip(t *testing.T) {
	t.Parallel()

	const f, tt, vol = 100.0, 1.0, 0.25
	for _, k := range []float64{60, 80, 100, 120, 160} {
		call := volatility.BlackPrice(f, k, tt, vol, true)
		put := volatility.BlackPrice(f, k, tt, vol, false)
		if math.Abs(call-put-(f-k)) > 1e-10 {
			t.Fatalf("k=%g: put-call parity broken: C-P=%g", k, call-put)
		}
		for _, isCall := range []bool{true, false} {
			p := volatility.BlackPrice(f, k, tt, vol, isCall)
			got, err := volatility.ImpliedVolatility(p, f, k, tt, isCall, 0.4)
			if err != nil {
				t.Fatalf("k=%g call=%v: %v", k, isCall, err)
			}
			if math.Abs(got-vol) > 1e-8 {
				t.Fatalf("k=%g call=%v: implied %g, want %g", k, isCall, got, vol)
			}
		}
	}
}

func TestImpliedVolatilityBounds(t *testing.T) {
	t.Parallel()

	if v, err := volatility.ImpliedVolatility(10, 100, 90, 1, true, 0.2); err != nil || v != 0 {
		t.Fatalf("price at intrinsic: vol=%g err=%v", v, err)
	}
	if _, err := volatility.ImpliedVolatility(100, 100, 90, 1, true, 0.2); !errors.Is(err, volatility.ErrPriceOutOfRange) {
		t.Fatalf("expected ErrPriceOutOfRange, got %v", err)
	}

	// above the initial vol bracket
	p := volatility.BlackPrice(100, 100, 0.01, 15, true)
	if v, err := volatility.ImpliedVolatility(p, 100, 100, 0.01, true, 0.2); err != nil || math.Abs(v-15) > 1e-8 {
		t.Fatalf("vol 15 at t=0.01: implied %g, err %v", v, err)
	}
}

func TestStrikeForDelta(t *testing.T) {
	t.Parallel()

	const f, tt, vol = 100.0, 0.5, 0.3
	for _, tc := range []struct {
		delta  float64
		isCall bool
	}{
		{0.25, true}, {0.5, true}, {0.9, true}, {-0.25, false}, {-0.75, false},
	} {
		k, err := volatility.StrikeForDelta(f, tc.delta, tt, vol, tc.isCall)
		if err != nil {
			t.Fatalf("delta %g: %v", tc.delta, err)
		}
		if got := volatility.BlackDelta(f, k, tt, vol, tc.isCall); math.Abs(got-tc.delta) > 1e-10 {
			t.Fatalf("delta %g: strike %g gives delta %g", tc.delta, k, got)
		}
	}
	if _, err := volatility.StrikeForDelta(f, 1.2, tt, vol, true); err == nil {
		t.Fatalf("expected error for call delta above one")
	}
}

func TestPureVolConversion(t *testing.T) {
	t.Parallel()

	c := testCurves(t)

	// no dividends ahead of t=1 leaves vols untouched
	if v, err := volatility.VolToPureVol(110, c.Forward(1), c.DiscountedDividends(1), 1, 0.2); err != nil || v != 0.2 {
		t.Fatalf("zero dividends: vol=%g err=%v", v, err)
	}

	const tt = 0.25
	f, d := c.Forward(tt), c.DiscountedDividends(tt)
	if d <= 0 {
		t.Fatalf("expected positive discounted dividends, got %g", d)
	}
	for _, k := range []float64{80, 95, f, 105, 130} {
		pv, err := volatility.VolToPureVol(k, f, d, tt, 0.2)
		if err != nil {
			t.Fatalf("k=%g: %v", k, err)
		}
		if !(pv > 0.2) {
			t.Fatalf("k=%g: pure vol %g should exceed stock vol with cash dividends", k, pv)
		}
		back, err := volatility.PureVolToVol(k, f, d, tt, pv)
		if err != nil {
			t.Fatalf("k=%g: inverse: %v", k, err)
		}
		if math.Abs(back-0.2) > 1e-8 {
			t.Fatalf("k=%g: round trip %g", k, back)
		}
	}

	if _, err := volatility.VolToPureVol(0.5, f, d, tt, 0.2); !errors.Is(err, volatility.ErrNegativeMoneyness) {
		t.Fatalf("expected ErrNegativeMoneyness, got %v", err)
	}
	if v, err := volatility.PureVolToVol(0.5, f, d, tt, 0.2); err != nil || v != 0 {
		t.Fatalf("strike below dividends: vol=%g err=%v", v, err)
	}
}

func TestPriceToPureVol(t *testing.T) {
	t.Parallel()

	c := testCurves(t)
	const tt, k = 0.25, 90.0
	f, d := c.Forward(tt), c.DiscountedDividends(tt)
	df := c.DiscountCurve().DiscountFactor(tt)

	price := df * volatility.BlackPrice(f, k, tt, 0.22, false)
	got, err := volatility.PriceToPureVol(df, k, f, d, tt, price)
	if err != nil {
		t.Fatalf("PriceToPureVol error: %v", err)
	}
	want, err := volatility.VolToPureVol(k, f, d, tt, 0.22)
	if err != nil {
		t.Fatalf("VolToPureVol error: %v", err)
	}
	if math.Abs(got-want) > 1e-8 {
		t.Fatalf("got %g, want %g", got, want)
	}
}

func TestSurfaceConversionsRoundTrip(t *testing.T) {
	t.Parallel()

	c := testCurves(t)
	strikeVol := func(_, k float64) float64 { return 0.2 - 0.001*(k-100) }
	pure := volatility.PureImpliedFromBlack(volatility.NewStrikeSurface(strikeVol), c)
	back := volatility.BlackFromPureImplied(pure, c)
	for _, pt := range [][2]float64{{0.25, 85}, {0.25, 115}, {0.75, 100}} {
		got, err := back.VolAtStrike(pt[0], pt[1], c.Forward(pt[0]))
		if err != nil {
			t.Fatalf("VolAtStrike error: %v", err)
		}
		if want := strikeVol(pt[0], pt[1]); math.Abs(got-want) > 1e-8 {
			t.Fatalf("t=%g k=%g: got %g, want %g", pt[0], pt[1], got, want)
		}
	}

	pureLocal := volatility.PureLocalVol(func(_, x float64) float64 { return 0.2 + 0.05*(1-x) })
	local := volatility.LocalFromPureLocal(pureLocal, c)
	again := volatility.PureLocalFromLocal(local, c)
	for _, x := range []float64{0.7, 1, 1.4} {
		if got, want := again(0.25, x), pureLocal(0.25, x); math.Abs(got-want) > 1e-12 {
			t.Fatalf("x=%g: got %g, want %g", x, got, want)
		}
	}
	if local(0.25, c.DiscountedDividends(0.25)/2) != 0 {
		t.Fatalf("levels below discounted dividends must have zero vol")
	}
}

func TestFlooredShift(t *testing.T) {
	t.Parallel()

	s := volatility.PureImpliedVol(func(_, x float64) float64 { return 0.1 * x })
	if got := volatility.FlooredShift(s, 0.05)(1, 1); math.Abs(got-0.15) > 1e-15 {
		t.Fatalf("up shift: %g", got)
	}
	if got := volatility.FlooredShift(s, -0.2)(1, 1); got != 0 {
		t.Fatalf("down shift must floor at zero, got %g", got)
	}
}

func TestVolAtStrikeAxes(t *testing.T) {
	t.Parallel()

	const f, tt, k = 100.0, 1.0, 110.0
	cases := []struct {
		surf volatility.BlackSurface
		want float64
	}{
		{volatility.NewStrikeSurface(func(_, k float64) float64 { return k / 500 }), 0.22},
		{volatility.BlackSurface{Axis: volatility.Moneyness, Vol: func(_, m float64) float64 { return 0.2 * m }}, 0.22},
		{volatility.BlackSurface{Axis: volatility.LogMoneyness, Vol: func(_, y float64) float64 { return 0.2 + y }}, 0.2 + math.Log(1.1)},
	}
	for _, tc := range cases {
		got, err := tc.surf.VolAtStrike(tt, k, f)
		if err != nil {
			t.Fatalf("%v: %v", tc.surf.Axis, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("%v: got %g, want %g", tc.surf.Axis, got, tc.want)
		}
	}

	deltaVol := func(_, d float64) float64 { return 0.2 + 0.1*(d-0.5) }
	surf := volatility.BlackSurface{Axis: volatility.Delta, Vol: deltaVol}
	vol, err := surf.VolAtStrike(tt, k, f)
	if err != nil {
		t.Fatalf("delta axis: %v", err)
	}
	d := volatility.BlackDelta(f, k, tt, vol, true)
	if math.Abs(deltaVol(tt, d)-vol) > 1e-8 {
		t.Fatalf("delta axis: vol %g inconsistent with its own delta %g", vol, d)
	}
}

// countingRoots is a Brent solver that counts its solves.
type countingRoots struct {
	numeric.Brent
	calls *int
}

func (c countingRoots) Root(f numeric.Func, lo, hi float64) (float64, error) {
	*c.calls++
	return c.Brent.Root(f, lo, hi)
}

func TestVolAtStrikeUsesInjectedRootFinder(t *testing.T) {
	t.Parallel()

	const f, tt, k = 100.0, 1.0, 110.0
	deltaVol := func(_, d float64) float64 { return 0.2 + 0.1*(d-0.5) }
	want, err := volatility.BlackSurface{Axis: volatility.Delta, Vol: deltaVol}.VolAtStrike(tt, k, f)
	if err != nil {
		t.Fatalf("default solver: %v", err)
	}

	var calls int
	surf := volatility.BlackSurface{
		Axis:       volatility.Delta,
		Vol:        deltaVol,
		RootFinder: countingRoots{Brent: numeric.NewBrent(1e-12), calls: &calls},
	}
	got, err := surf.VolAtStrike(tt, k, f)
	if err != nil {
		t.Fatalf("injected solver: %v", err)
	}
	if calls != 1 || math.Abs(got-want) > 1e-12 {
		t.Fatalf("injected solver: %d calls, vol %g, want 1 call and %g", calls, got, want)
	}
	if _, err := surf.Shift(0.01).VolAtStrike(tt, k, f); err != nil || calls != 2 {
		t.Fatalf("shifted surface must keep the solver: %d calls, err %v", calls, err)
	}
}

func TestSplineSmile(t *testing.T) {
	t.Parallel()

	strikes := []float64{80, 90, 100, 110, 120}
	vols := []float64{0.28, 0.24, 0.21, 0.2, 0.205}
	for _, kind := range []volatility.SplineKind{volatility.NaturalCubic, volatility.Akima, volatility.FritschButland, volatility.Linear} {
		smile, err := volatility.SplineSmile{Kind: kind}.Smile(100, 1, strikes, vols)
		if err != nil {
			t.Fatalf("kind %d: %v", kind, err)
		}
		for i, k := range strikes {
			if math.Abs(smile(k)-vols[i]) > 1e-12 {
				t.Fatalf("kind %d: node %g gives %g, want %g", kind, k, smile(k), vols[i])
			}
		}
		if smile(50) != smile(80) || smile(200) != smile(120) {
			t.Fatalf("kind %d: extrapolation must be flat", kind)
		}
	}

	if _, err := (volatility.SplineSmile{}).Smile(100, 1, []float64{100, 90}, []float64{0.2, 0.2}); !errors.Is(err, volatility.ErrInvalidQuotes) {
		t.Fatalf("expected ErrInvalidQuotes for unsorted strikes, got %v", err)
	}
	one, err := volatility.SplineSmile{}.Smile(100, 1, []float64{100}, []float64{0.3})
	if err != nil || one(70) != 0.3 {
		t.Fatalf("single quote smile: %v", err)
	}
}

func TestSurfaceInterpolatorVariance(t *testing.T) {
	t.Parallel()

	x := []float64{0.8, 0.9, 1, 1.1, 1.2}
	flat := func(v float64) []float64 { return []float64{v, v, v, v, v} }
	si := volatility.DefaultSurfaceInterpolator()
	surf, err := si.PureImpliedSurface([]float64{0.5, 1}, [][]float64{x, x}, [][]float64{flat(0.2), flat(0.3)})
	if err != nil {
		t.Fatalf("PureImpliedSurface error: %v", err)
	}

	want := math.Sqrt((0.02 + 0.5*(0.09-0.02)) / 0.75)
	if got := surf(0.75, 1.05); math.Abs(got-want) > 1e-12 {
		t.Fatalf("interpolated vol %g, want %g", got, want)
	}
	if math.Abs(surf(0.1, 1)-0.2) > 1e-12 || math.Abs(surf(3, 1)-0.3) > 1e-12 {
		t.Fatalf("time extrapolation must be flat in vol")
	}

	si.IntegratedVariance = false
	si.LogTime = true
	surf, err = si.PureImpliedSurface([]float64{0.5, 1}, [][]float64{x, x}, [][]float64{flat(0.2), flat(0.3)})
	if err != nil {
		t.Fatalf("PureImpliedSurface error: %v", err)
	}
	w := math.Log(0.75/0.5) / math.Log(2)
	if got := surf(0.75, 1); math.Abs(got-(0.2+0.1*w)) > 1e-12 {
		t.Fatalf("log-time vol interpolation: got %g", got)
	}
}

func TestDupireFlatAndTermStructure(t *testing.T) {
	t.Parallel()

	dupire := volatility.NewDupire()
	flat := dupire.PureLocalVol(func(float64, float64) float64 { return 0.2 })
	for _, pt := range [][2]float64{{0.1, 0.8}, {0.5, 1}, {2, 1.5}} {
		if got := flat(pt[0], pt[1]); math.Abs(got-0.2) > 1e-6 {
			t.Fatalf("flat surface at %v: local vol %g", pt, got)
		}
	}

	// w(t) = 0.04t + 0.01t² has forward variance 0.04 + 0.02t
	term := dupire.PureLocalVol(func(t, _ float64) float64 { return math.Sqrt(0.04 + 0.01*t) })
	if got, want := term(0.5, 1.1), math.Sqrt(0.05); math.Abs(got-want) > 1e-6 {
		t.Fatalf("term structure: got %g, want %g", got, want)
	}
}

func TestFitShiftedLognormal(t *testing.T) {
	t.Parallel()

	const f, tt = 100.0, 1.0
	model := volatility.ShiftedLognormal{Forward: f, Expiry: tt, Shift: 20, Vol: 0.15}
	impl := func(k float64) float64 {
		v, err := volatility.ImpliedVolatility(model.OTMPrice(k), f, k, tt, k >= f, 0.2)
		if err != nil {
			t.Fatalf("implied at %g: %v", k, err)
		}
		return v
	}
	k1, k2 := 70.0, 85.0
	v1, v2 := impl(k1), impl(k2)
	if !(v1 > v2) {
		t.Fatalf("shifted model should produce a negative skew, got %g %g", v1, v2)
	}

	fit, err := volatility.FitShiftedLognormal(f, tt, k1, v1, k2, v2)
	if err != nil {
		t.Fatalf("FitShiftedLognormal error: %v", err)
	}
	for _, k := range []float64{k1, k2} {
		if got, want := fit.OTMPrice(k), model.OTMPrice(k); math.Abs(got-want) > 1e-7 {
			t.Fatalf("k=%g: fitted price %g, want %g", k, got, want)
		}
	}
	if math.Abs(fit.Shift-20) > 1e-3 {
		t.Fatalf("shift %g, want 20", fit.Shift)
	}

	flat, err := volatility.FitShiftedLognormal(f, tt, k1, 0.2, k2, 0.2)
	if err != nil {
		t.Fatalf("flat fit error: %v", err)
	}
	if math.Abs(flat.Shift) > 1e-8 || math.Abs(flat.Vol-0.2) > 1e-8 {
		t.Fatalf("flat quotes: shift %g vol %g", flat.Shift, flat.Vol)
	}
}
