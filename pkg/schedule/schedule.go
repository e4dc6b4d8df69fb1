package schedule

import (
	"time"

	"github.com/mcclellann/fredBilling/pkg/models"
)

// Generate derives the ordered due dates of a contract. The result has exactly
// count entries (one for single contracts) and is strictly increasing.
func Generate(firstDueDate time.Time, count int, freq models.Frequency) ([]time.Time, error) {
	if firstDueDate.IsZero() {
		return nil, models.Invalid("first_due_date", "is required")
	}
	if count <= 0 {
		return nil, models.Invalid("installment_count", "must be positive, got %d", count)
	}

	first := DateOf(firstDueDate)
	if freq == models.FrequencySingle {
		return []time.Time{first}, nil
	}

	var step int
	switch freq {
	case models.FrequencyMonthly:
	case models.FrequencyWeekly:
		step = 7
	case models.FrequencyBiweekly:
		step = 14
	case models.FrequencyDaily:
		step = 1
	default:
		return nil, models.Invalid("frequency", "unknown frequency %q", freq)
	}

	dates := make([]time.Time, count)
	for i := range dates {
		if freq == models.FrequencyMonthly {
			dates[i] = AddMonths(first, i)
		} else {
			dates[i] = first.AddDate(0, 0, step*i)
		}
	}
	return dates, nil
}

// AddMonths moves t forward by n calendar months, keeping its day of month or
// falling back to the last day when the target month is shorter.
// time.AddDate normalizes overflow into the next month, which is not wanted here.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b, ignoring time
// of day and DST shifts.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// Before reports whether a falls on an earlier calendar day than b.
func Before(a, b time.Time) bool {
	return DaysBetween(a, b) > 0
}
