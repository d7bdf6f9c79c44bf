package montecarlo_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/equity"
	"github.com/meenmo/eqvar/equity/montecarlo"
	"github.com/meenmo/eqvar/volatility"
)

func flatPure(float64, float64) float64 { return 0.2 }

func TestSimulatorMatchesForwardPDE(t *testing.T) {
	if testing.Short() {
		t.Skip("monte carlo run skipped in short mode")
	}
	t.Parallel()

	dc := curve.NewFlat(0.02)
	divs, err := dividend.NewSchedule(dividend.Dividend{Tau: 0.5, Alpha: 2})
	if err != nil {
		t.Fatalf("NewSchedule error: %v", err)
	}
	cfg := config.DefaultConfig()

	sim, err := montecarlo.NewFromPureLocal(100, dc, divs, flatPure, cfg.MonteCarlo, nil)
	if err != nil {
		t.Fatalf("NewFromPureLocal error: %v", err)
	}
	res, err := sim.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Pairs != cfg.MonteCarlo.Pairs || res.Steps != 252 {
		t.Fatalf("unexpected run shape: %+v", res)
	}

	raw, err := equity.NewForwardPDE(cfg.PDE, nil).ExpectedVariance(100, dc, divs, 1, volatility.PureLocalVol(flatPure))
	if err != nil {
		t.Fatalf("ForwardPDE error: %v", err)
	}
	ev := raw.Annualised(1)
	if d := math.Abs(res.Corrected.Mean - ev.Corrected); d > 3*res.Corrected.StdErr {
		t.Fatalf("corrected: mc %g ± %g, pde %g", res.Corrected.Mean, res.Corrected.StdErr, ev.Corrected)
	}
	if d := math.Abs(res.Uncorrected.Mean - ev.Uncorrected); d > 3*res.Uncorrected.StdErr {
		t.Fatalf("uncorrected: mc %g ± %g, pde %g", res.Uncorrected.Mean, res.Uncorrected.StdErr, ev.Uncorrected)
	}

	c, err := dividend.NewCurves(100, dc, divs)
	if err != nil {
		t.Fatalf("NewCurves error: %v", err)
	}
	if d := math.Abs(res.TerminalSpot.Mean - c.Forward(1)); d > 4*res.TerminalSpot.StdErr+1e-9 {
		t.Fatalf("terminal spot %g ± %g, forward %g", res.TerminalSpot.Mean, res.TerminalSpot.StdErr, c.Forward(1))
	}
}

func TestSimulatorDeterministic(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().MonteCarlo
	cfg.Pairs = 200
	run := func(workers int) montecarlo.Result {
		cfg.Workers = workers
		sim, err := montecarlo.NewFromPureLocal(100, curve.NewFlat(0.01), dividend.NoDividends(), flatPure, cfg, nil)
		if err != nil {
			t.Fatalf("NewFromPureLocal error: %v", err)
		}
		res, err := sim.Run(context.Background(), 0.5)
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		return res
	}
	a, b := run(4), run(4)
	if a.Corrected != b.Corrected || a.TerminalSpot != b.TerminalSpot {
		t.Fatalf("identical seeds gave different results: %+v vs %+v", a.Corrected, b.Corrected)
	}
	if a.Corrected != a.Uncorrected {
		t.Fatalf("without dividends both measures coincide: %+v vs %+v", a.Corrected, a.Uncorrected)
	}
}

func TestSimulatorValidation(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().MonteCarlo
	local := volatility.LocalVol(func(float64, float64) float64 { return 0.2 })
	if _, err := montecarlo.New(0, curve.NewFlat(0), dividend.NoDividends(), local, cfg, nil); !errors.Is(err, montecarlo.ErrInvalidSimulation) {
		t.Fatalf("expected ErrInvalidSimulation for zero spot, got %v", err)
	}
	sim, err := montecarlo.New(100, curve.NewFlat(0), dividend.NoDividends(), local, cfg, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := sim.Run(context.Background(), 0); !errors.Is(err, montecarlo.ErrInvalidSimulation) {
		t.Fatalf("expected ErrInvalidSimulation for zero expiry, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Run(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
