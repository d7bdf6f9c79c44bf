package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/meenmo/eqvar/calendar"
	"github.com/meenmo/eqvar/config"
	"github.com/meenmo/eqvar/curve"
	"github.com/meenmo/eqvar/dividend"
	"github.com/meenmo/eqvar/equity"
	"github.com/meenmo/eqvar/equity/montecarlo"
	"github.com/meenmo/eqvar/logging"
	"github.com/meenmo/eqvar/utils"
	"github.com/meenmo/eqvar/varswap"
	"github.com/meenmo/eqvar/volatility"
)

func main() {
	cfg := config.DefaultConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	const (
		spot   = 100.0
		expiry = 1.0
	)
	dc := curve.NewFlat(0.02)
	divs, err := dividend.NewSchedule(dividend.Dividend{Tau: 0.5, Alpha: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dividends: %v\n", err)
		os.Exit(1)
	}
	pure := func(float64, float64) float64 { return 0.2 }

	fmt.Println("Expected variance, S=100, r=2%, α=2 at 0.5y, 20% pure vol, T=1y")
	fwd, err := equity.NewForwardPDE(cfg.PDE, logger).ExpectedVariance(spot, dc, divs, expiry, pure)
	must(err)
	bwd, err := equity.NewBackwardPDE(cfg.PDE, logger).ExpectedVariance(spot, dc, divs, expiry, pure)
	must(err)
	rep, err := equity.NewStaticReplication(cfg.Replication, logger).ExpectedVariance(spot, dc, divs, expiry, pure)
	must(err)
	fmt.Printf("  forward PDE:  corrected %.8f  uncorrected %.8f\n", fwd.Corrected, fwd.Uncorrected)
	fmt.Printf("  backward PDE: corrected %.8f  uncorrected %.8f\n", bwd.Corrected, bwd.Uncorrected)
	fmt.Printf("  replication:  corrected %.8f  uncorrected %.8f\n", rep.Corrected, rep.Uncorrected)

	sim, err := montecarlo.NewFromPureLocal(spot, dc, divs, pure, cfg.MonteCarlo, logger)
	must(err)
	mc, err := sim.Run(context.Background(), expiry)
	must(err)
	fmt.Printf("  monte carlo:  corrected %.8f ± %.1e  uncorrected %.8f ± %.1e\n",
		mc.Corrected.Mean, mc.Corrected.StdErr, mc.Uncorrected.Mean, mc.Uncorrected.StdErr)
	fmt.Println()

	// market vols of the same pure surface, as a trader would see them
	c, err := dividend.NewCurves(spot, dc, divs)
	must(err)
	market := volatility.BlackFromPureImplied(pure, c)
	vols := equity.MarketVols{Expiries: []float64{0.25, 0.5, 1, 2}}
	for _, t := range vols.Expiries {
		var ks, vs []float64
		for k := 50.0; k <= 200; k += 10 {
			v, err := market.VolAtStrike(t, k, c.Forward(t))
			must(err)
			ks, vs = append(ks, k), append(vs, v)
		}
		vols.Strikes, vols.Vols = append(vols.Strikes, ks), append(vols.Vols, vs)
	}

	pricer, err := equity.NewPricer(equity.DefaultPricerConfig(cfg, logger))
	must(err)
	volStrike, vegaNotional := 0.2, 100_000.0
	strike, notional := varswap.VarianceTerms(volStrike, vegaNotional)
	valuation, err := utils.ParseDate("2026-01-02")
	must(err)
	start, err := utils.ParseDate("2026-01-05")
	must(err)
	end, err := utils.ParseDate("2027-01-02")
	must(err)
	terms, err := varswap.NewSwapFromDates(valuation, start, end, 2, calendar.NYSE, "ACT/365F", strike, notional, nil)
	must(err)
	swap := equity.VarianceSwap{Swap: terms, CorrectForDividends: true}

	price, err := pricer.PriceFromImpliedVols(swap, spot, dc, divs, vols)
	must(err)
	delta, err := pricer.DeltaWithStickyStrike(swap, spot, dc, divs, vols)
	must(err)
	vega, err := pricer.VegaImpliedVol(swap, spot, dc, divs, vols)
	must(err)
	sens, err := pricer.DividendSensitivityWithStickyImpliedVol(swap, spot, dc, divs, vols)
	must(err)
	val, err := pricer.Valuation(swap, spot, dc, divs, vols)
	must(err)

	fmt.Printf("Variance swap %s to %s on NYSE days, %d returns (corrected for dividends)\n",
		start.Format("2006-01-02"), end.Format("2006-01-02"), swap.ObsExpected)
	fmt.Printf("  fair variance:  %.8f (vol %.4f%%)\n", price, 100*math.Sqrt(price))
	fmt.Printf("  sticky delta:   %.6e\n", delta)
	fmt.Printf("  implied vega:   %.6f\n", vega)
	fmt.Printf("  dividend α, β:  %.6e, %.6e\n", sens[0].Alpha, sens[0].Beta)
	fmt.Printf("  payment:        %s\n", val.Payment.StringFixed(2))
	fmt.Printf("  present value:  %.2f\n", val.PresentValue)
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
