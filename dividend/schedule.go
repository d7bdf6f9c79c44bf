// Package dividend models discrete affine dividends α + β·S⁻ and the curves
// they induce on the forward.
package dividend

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/eqvar/utils"
)

var (
	// ErrInvalidSchedule is returned for out-of-order times or out-of-range
	// amounts.
	ErrInvalidSchedule = errors.New("invalid dividend schedule")

	// ErrIndexOutOfRange is returned by the With* updates for a bad index.
	ErrIndexOutOfRange = errors.New("dividend index out of range")
)

// Dividend is one payment of Alpha + Beta·S⁻ at time Tau (years).
type Dividend struct {
	Tau   float64
	Alpha float64
	Beta  float64
}

// Schedule is an immutable, time-ordered list of affine dividends. The zero
// value is the empty schedule.
type Schedule struct {
	divs []Dividend
}

// NoDividends returns the empty schedule.
func NoDividends() Schedule {
	return Schedule{}
}

// NewSchedule validates and copies divs. Times must be strictly increasing
// from zero, α ≥ 0 and 0 ≤ β < 1.
func NewSchedule(divs ...Dividend) (Schedule, error) {
	if len(divs) == 0 {
		return Schedule{}, nil
	}
	for i, d := range divs {
		if err := validate(d); err != nil {
			return Schedule{}, fmt.Errorf("NewSchedule: dividend %d: %w", i, err)
		}
		if i > 0 && d.Tau <= divs[i-1].Tau {
			return Schedule{}, fmt.Errorf("NewSchedule: dividend %d at τ=%g not after τ=%g: %w", i, d.Tau, divs[i-1].Tau, ErrInvalidSchedule)
		}
	}
	return Schedule{divs: append([]Dividend(nil), divs...)}, nil
}

// NewScheduleFromSlices builds a schedule from parallel arrays.
func NewScheduleFromSlices(tau, alpha, beta []float64) (Schedule, error) {
	if len(tau) != len(alpha) || len(tau) != len(beta) {
		return Schedule{}, fmt.Errorf("NewScheduleFromSlices: lengths %d, %d, %d differ: %w", len(tau), len(alpha), len(beta), ErrInvalidSchedule)
	}
	divs := make([]Dividend, len(tau))
	for i := range tau {
		divs[i] = Dividend{Tau: tau[i], Alpha: alpha[i], Beta: beta[i]}
	}
	return NewSchedule(divs...)
}

// DatedDividend is a dividend identified by its ex-date.
type DatedDividend struct {
	ExDate time.Time
	Alpha  float64
	Beta   float64
}

// NewScheduleFromDates measures ex-dates from valuation with the day count
// convention. Dividends with ex-date before valuation are dropped.
func NewScheduleFromDates(valuation time.Time, divs []DatedDividend, dayCount string) (Schedule, error) {
	sorted := append([]DatedDividend(nil), divs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ExDate.Before(sorted[j].ExDate) })

	out := make([]Dividend, 0, len(sorted))
	for _, d := range sorted {
		if d.ExDate.Before(valuation) {
			continue
		}
		out = append(out, Dividend{
			Tau:   utils.YearFraction(valuation, d.ExDate, dayCount),
			Alpha: d.Alpha,
			Beta:  d.Beta,
		})
	}
	return NewSchedule(out...)
}

func validate(d Dividend) error {
	switch {
	case !finite(d.Tau) || !finite(d.Alpha) || !finite(d.Beta):
		return fmt.Errorf("τ=%g α=%g β=%g must be finite: %w", d.Tau, d.Alpha, d.Beta, ErrInvalidSchedule)
	case d.Tau < 0:
		return fmt.Errorf("τ=%g is negative: %w", d.Tau, ErrInvalidSchedule)
	case d.Alpha < 0:
		return fmt.Errorf("α=%g is negative: %w", d.Alpha, ErrInvalidSchedule)
	case d.Beta < 0 || d.Beta >= 1:
		return fmt.Errorf("β=%g outside [0, 1): %w", d.Beta, ErrInvalidSchedule)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Len returns the number of dividends.
func (s Schedule) Len() int { return len(s.divs) }

// At returns dividend i.
func (s Schedule) At(i int) Dividend { return s.divs[i] }

// Tau returns the ex-date of dividend i in years.
func (s Schedule) Tau(i int) float64 { return s.divs[i].Tau }

// Alpha returns the cash amount of dividend i.
func (s Schedule) Alpha(i int) float64 { return s.divs[i].Alpha }

// Beta returns the proportional yield of dividend i.
func (s Schedule) Beta(i int) float64 { return s.divs[i].Beta }

// Dividends returns a copy of the payments.
func (s Schedule) Dividends() []Dividend {
	return append([]Dividend(nil), s.divs...)
}

// Until returns the schedule truncated to payments with τ ≤ t.
func (s Schedule) Until(t float64) Schedule {
	n := sort.Search(len(s.divs), func(i int) bool { return s.divs[i].Tau > t })
	return Schedule{divs: s.divs[:n:n]}
}

// WithTau returns a copy with τ_i replaced. The new time must keep the
// schedule strictly ordered.
func (s Schedule) WithTau(i int, tau float64) (Schedule, error) {
	return s.with(i, func(d *Dividend) { d.Tau = tau })
}

// WithAlpha returns a copy with α_i replaced.
func (s Schedule) WithAlpha(i int, alpha float64) (Schedule, error) {
	return s.with(i, func(d *Dividend) { d.Alpha = alpha })
}

// WithBeta returns a copy with β_i replaced.
func (s Schedule) WithBeta(i int, beta float64) (Schedule, error) {
	return s.with(i, func(d *Dividend) { d.Beta = beta })
}

func (s Schedule) with(i int, update func(*Dividend)) (Schedule, error) {
	if i < 0 || i >= len(s.divs) {
		return Schedule{}, fmt.Errorf("Schedule.With: index %d for %d dividends: %w", i, len(s.divs), ErrIndexOutOfRange)
	}
	divs := append([]Dividend(nil), s.divs...)
	update(&divs[i])
	return NewSchedule(divs...)
}
