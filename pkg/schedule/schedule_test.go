package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/fredBilling/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerate_MonthEndFallback(t *testing.T) {
	dates, err := Generate(date(2024, time.January, 31), 3, models.FrequencyMonthly)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []time.Time{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
	}
	if len(dates) != len(want) {
		t.Fatalf("Expected %d dates, got %d", len(want), len(dates))
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Errorf("date %d: expected %s, got %s", i, want[i].Format("2006-01-02"), dates[i].Format("2006-01-02"))
		}
	}
}

func TestGenerate_MonthlyDistinctMonths(t *testing.T) {
	starts := []time.Time{
		date(2023, time.August, 31),
		date(2024, time.December, 30),
		date(2025, time.March, 1),
	}
	for _, start := range starts {
		dates, err := Generate(start, 26, models.FrequencyMonthly)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(dates) != 26 {
			t.Fatalf("Expected 26 dates, got %d", len(dates))
		}
		seen := map[string]bool{}
		for i, d := range dates {
			if i > 0 && !d.After(dates[i-1]) {
				t.Errorf("dates not strictly increasing at %d: %s <= %s", i, d, dates[i-1])
			}
			key := d.Format("2006-01")
			if seen[key] {
				t.Errorf("month %s appears twice", key)
			}
			seen[key] = true
		}
	}
}

func TestGenerate_FixedSteps(t *testing.T) {
	start := date(2024, time.March, 5)
	tests := []struct {
		freq models.Frequency
		gap  int
	}{
		{models.FrequencyWeekly, 7},
		{models.FrequencyBiweekly, 14},
		{models.FrequencyDaily, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			dates, err := Generate(start, 4, tt.freq)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			for i := 1; i < len(dates); i++ {
				if got := DaysBetween(dates[i-1], dates[i]); got != tt.gap {
					t.Errorf("Expected gap %d, got %d", tt.gap, got)
				}
			}
		})
	}
}

func TestGenerate_Single(t *testing.T) {
	dates, err := Generate(date(2024, time.May, 10), 6, models.FrequencySingle)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(dates) != 1 || !dates[0].Equal(date(2024, time.May, 10)) {
		t.Errorf("Expected the first due date only, got %v", dates)
	}
}

func TestGenerate_Invalid(t *testing.T) {
	if _, err := Generate(time.Time{}, 3, models.FrequencyMonthly); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for zero date, got %v", err)
	}
	if _, err := Generate(date(2024, 1, 1), 0, models.FrequencyMonthly); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for zero count, got %v", err)
	}
	if _, err := Generate(date(2024, 1, 1), 3, "yearly"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for unknown frequency, got %v", err)
	}
}

func TestDaysBetween(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	a := time.Date(2024, time.March, 9, 23, 59, 0, 0, loc)
	b := time.Date(2024, time.March, 10, 0, 1, 0, 0, loc)
	if got := DaysBetween(a, b); got != 1 {
		t.Errorf("Expected 1 day, got %d", got)
	}
	if Before(b, b) {
		t.Error("a day is not before itself")
	}
}
