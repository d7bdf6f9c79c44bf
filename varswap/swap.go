// Package varswap values variance swaps without a dividend model: realised
// variance from observed closes, remaining variance by static replication
// of the Black surface.
package varswap

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/meenmo/eqvar/calendar"
	"github.com/meenmo/eqvar/utils"
)

var (
	// ErrInvalidSwap is returned for inconsistent swap terms.
	ErrInvalidSwap = errors.New("invalid variance swap")

	// ErrObservationPeriod is returned when the observation period is too
	// short to be priced as variance.
	ErrObservationPeriod = errors.New("observation period too short")
)

// DefaultAnnualization is the number of daily observations per year.
const DefaultAnnualization = 252.0

// Swap holds the terms of a variance swap. Times are year fractions from
// the valuation date; TimeToObsStart is negative once observation has
// started. VarStrike and VarNotional are in variance units.
type Swap struct {
	TimeToObsStart   float64
	TimeToObsEnd     float64
	TimeToSettlement float64

	VarStrike   float64
	VarNotional float64

	// Observations are the closes observed so far, first observation
	// included. Weights, if set, weight each of the len(Observations)−1
	// squared returns.
	Observations []float64
	Weights      []float64

	ObsExpected         int
	ObsDisrupted        int
	AnnualizationFactor float64
}

// Validate checks the counts and the observation vectors.
func (s Swap) Validate() error {
	switch {
	case s.ObsExpected <= 0:
		return fmt.Errorf("Swap.Validate: expected observations %d: %w", s.ObsExpected, ErrInvalidSwap)
	case s.ObsDisrupted < 0:
		return fmt.Errorf("Swap.Validate: disrupted observations %d: %w", s.ObsDisrupted, ErrInvalidSwap)
	case s.AnnualizationFactor <= 0:
		return fmt.Errorf("Swap.Validate: annualization factor %g: %w", s.AnnualizationFactor, ErrInvalidSwap)
	case s.Weights != nil && len(s.Observations) > 0 && len(s.Weights) != len(s.Observations)-1:
		return fmt.Errorf("Swap.Validate: %d weights for %d observations: %w", len(s.Weights), len(s.Observations), ErrInvalidSwap)
	}
	for i, o := range s.Observations {
		if !(o > 0) {
			return fmt.Errorf("Swap.Validate: observation %d is %g: %w", i, o, ErrInvalidSwap)
		}
	}
	return nil
}

// NewSwapFromDates builds a daily swap observed on the business days of
// cal. A start on a holiday rolls following, an end rolls modified
// following, and the swap settles settlementLag business days after the
// last observation.
func NewSwapFromDates(valuation, start, end time.Time, settlementLag int, cal calendar.CalendarID, dayCount string, varStrike, varNotional float64, observations []float64) (Swap, error) {
	first := calendar.AdjustFollowing(cal, start)
	last := calendar.Adjust(cal, end)
	if !last.After(first) {
		return Swap{}, fmt.Errorf("NewSwapFromDates: end %s not after start %s: %w", last.Format("2006-01-02"), first.Format("2006-01-02"), ErrInvalidSwap)
	}
	if settlementLag < 0 {
		return Swap{}, fmt.Errorf("NewSwapFromDates: settlement lag %d: %w", settlementLag, ErrInvalidSwap)
	}
	settlement := calendar.AddBusinessDays(cal, last, settlementLag)
	s := Swap{
		TimeToObsStart:      utils.YearFraction(valuation, first, dayCount),
		TimeToObsEnd:        utils.YearFraction(valuation, last, dayCount),
		TimeToSettlement:    utils.YearFraction(valuation, settlement, dayCount),
		VarStrike:           varStrike,
		VarNotional:         varNotional,
		Observations:        observations,
		ObsExpected:         calendar.BusinessDaysBetween(cal, first, last),
		AnnualizationFactor: DefaultAnnualization,
	}
	if err := s.Validate(); err != nil {
		return Swap{}, fmt.Errorf("NewSwapFromDates: %w", err)
	}
	return s, nil
}

// VarianceTerms converts a volatility strike and vega notional to the
// variance strike σ_K² and variance notional N_vega/(2σ_K).
func VarianceTerms(volStrike, vegaNotional float64) (varStrike, varNotional float64) {
	return volStrike * volStrike, vegaNotional / (2 * volStrike)
}

// VolStrike is the volatility strike √VarStrike.
func (s Swap) VolStrike() float64 { return math.Sqrt(s.VarStrike) }
