package calendar_test

import (
	"testing"
	"time"

	"github.com/meenmo/eqvar/calendar"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTargetHolidays(t *testing.T) {
	t.Parallel()

	holidays := []time.Time{
		date(2025, time.January, 1),
		date(2025, time.April, 18), // Good Friday
		date(2025, time.April, 21), // Easter Monday
		date(2025, time.May, 1),
		date(2025, time.December, 25),
		date(2025, time.December, 26),
	}
	for _, h := range holidays {
		if calendar.IsBusinessDay(calendar.TARGET, h) {
			t.Fatalf("%s should be a TARGET holiday", h.Format("2006-01-02"))
		}
	}
	if !calendar.IsBusinessDay(calendar.TARGET, date(2025, time.April, 22)) {
		t.Fatalf("2025-04-22 should be a business day")
	}
}

func TestNYSEHolidays(t *testing.T) {
	t.Parallel()

	holidays := []time.Time{
		date(2025, time.January, 20),  // Martin Luther King Jr. Day
		date(2025, time.February, 17), // Washington's Birthday
		date(2025, time.April, 18),    // Good Friday
		date(2025, time.May, 26),      // Memorial Day
		date(2025, time.June, 19),     // Juneteenth
		date(2025, time.July, 4),      // Independence Day
		date(2025, time.September, 1), // Labor Day
		date(2025, time.November, 27), // Thanksgiving
		date(2026, time.July, 3),      // Independence Day observed
		date(2021, time.December, 24), // Christmas observed
	}
	for _, h := range holidays {
		if calendar.IsBusinessDay(calendar.NYSE, h) {
			t.Fatalf("%s should be an NYSE holiday", h.Format("2006-01-02"))
		}
	}
	// New Year's Day 2022 fell on a Saturday and was not observed.
	if !calendar.IsBusinessDay(calendar.NYSE, date(2021, time.December, 31)) {
		t.Fatalf("2021-12-31 should be a business day")
	}
}

func TestBusinessDaysBetween(t *testing.T) {
	t.Parallel()

	start := date(2025, time.January, 3) // Friday
	end := date(2025, time.January, 10)  // next Friday
	if got := calendar.BusinessDaysBetween(calendar.WeekendsOnly, start, end); got != 5 {
		t.Fatalf("BusinessDaysBetween = %d, want 5", got)
	}
	if got := calendar.BusinessDaysBetween(calendar.WeekendsOnly, end, start); got != 0 {
		t.Fatalf("reversed range = %d, want 0", got)
	}
}

func TestAdjustAndAddBusinessDays(t *testing.T) {
	t.Parallel()

	// 2025-05-31 is a Saturday; Modified Following rolls back into May.
	got := calendar.Adjust(calendar.TARGET, date(2025, time.May, 31))
	if !got.Equal(date(2025, time.May, 30)) {
		t.Fatalf("Adjust = %s, want 2025-05-30", got.Format("2006-01-02"))
	}
	got = calendar.AdjustFollowing(calendar.TARGET, date(2025, time.May, 31))
	if !got.Equal(date(2025, time.June, 2)) {
		t.Fatalf("AdjustFollowing = %s, want 2025-06-02", got.Format("2006-01-02"))
	}
	got = calendar.AddBusinessDays(calendar.NYSE, date(2025, time.July, 3), 1)
	if !got.Equal(date(2025, time.July, 7)) {
		t.Fatalf("AddBusinessDays = %s, want 2025-07-07", got.Format("2006-01-02"))
	}
}
