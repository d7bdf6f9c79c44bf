package utils_test

import (
	"math"
	"testing"
	"time"

	"github.com/meenmo/eqvar/utils"
)

func TestYearFraction(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		convention string
		want       float64
	}{
		{"ACT/360", 365.0 / 360.0},
		{"ACT/365F", 1.0},
		{"ACT/365.25", 365.0 / 365.25},
		{"30E/360", 1.0},
		{"unknown", 1.0},
	}
	for _, tc := range cases {
		if got := utils.YearFraction(start, end, tc.convention); math.Abs(got-tc.want) > 1e-14 {
			t.Fatalf("%s: got %.15f, want %.15f", tc.convention, got, tc.want)
		}
	}
}

func TestParseDateAndSort(t *testing.T) {
	t.Parallel()

	a, err := utils.ParseDate("2025-06-30")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	b, _ := utils.ParseDate("2025-01-02")
	if _, err := utils.ParseDate("30/06/2025"); err == nil {
		t.Fatalf("expected error for malformed date")
	}

	dates := []time.Time{a, b}
	utils.SortDates(dates)
	if !dates[0].Equal(b) {
		t.Fatalf("SortDates did not sort ascending")
	}

	fracs := utils.YearFractions(b, dates, "ACT/365F")
	if fracs[0] != 0 || math.Abs(fracs[1]-utils.Days(b, a)/365) > 1e-15 {
		t.Fatalf("YearFractions mismatch: %v", fracs)
	}
}
