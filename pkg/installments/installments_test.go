package installments

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/markers"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/shopspring/decimal"
)

var today = time.Date(2026, time.October, 15, 14, 30, 0, 0, time.UTC)

func newLoan(t *testing.T, principal, rate int64, count int, freq models.Frequency, first time.Time) *models.Contract {
	t.Helper()
	dates, err := schedule.Generate(first, count, freq)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return &models.Contract{
		ID:               uuid.New(),
		Kind:             models.KindLoan,
		Principal:        decimal.NewFromInt(principal),
		InterestRate:     decimal.NewFromInt(rate),
		InterestMode:     models.InterestPerInstallment,
		InstallmentCount: count,
		Frequency:        freq,
		FirstDueDate:     first,
		DueDates:         dates,
		Status:           models.StatusActive,
	}
}

func TestResolve_EndToEndScenario(t *testing.T) {
	loan := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, today.AddDate(0, 0, -40))

	st := Resolve(loan, today)

	if !st.Quote.TotalInterest.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected total interest 300, got %s", st.Quote.TotalInterest)
	}
	if got := st.Quote.InstallmentValue.StringFixed(2); got != "433.33" {
		t.Errorf("Expected installment value 433.33, got %s", got)
	}
	if st.OverdueCount != 2 {
		t.Errorf("Expected 2 overdue installments, got %d", st.OverdueCount)
	}
	if !st.Installments[0].Overdue || !st.Installments[1].Overdue || st.Installments[2].Overdue {
		t.Errorf("Expected installments 1 and 2 overdue, got %+v", st.Installments)
	}
	if st.Current == nil || st.Current.Number != 3 {
		t.Fatalf("Expected current installment 3, got %+v", st.Current)
	}
	if st.Overdue == nil || st.Overdue.Number != 1 {
		t.Fatalf("Expected first overdue installment 1, got %+v", st.Overdue)
	}
	if st.DaysOverdue != 40 {
		t.Errorf("Expected 40 days overdue, got %d", st.DaysOverdue)
	}
	if st.Focus().Number != 1 {
		t.Errorf("Expected focus on installment 1, got %d", st.Focus().Number)
	}
}

func TestResolve_OverdueBoundary(t *testing.T) {
	dueToday := newLoan(t, 100, 0, 1, models.FrequencySingle, today)
	st := Resolve(dueToday, today)
	if st.IsOverdue {
		t.Error("installment due today must not be overdue")
	}
	if st.Current == nil || st.Current.Number != 1 {
		t.Errorf("Expected current installment 1, got %+v", st.Current)
	}

	dueYesterday := newLoan(t, 100, 0, 1, models.FrequencySingle, today.AddDate(0, 0, -1))
	st = Resolve(dueYesterday, today)
	if !st.IsOverdue {
		t.Fatal("installment due yesterday must be overdue")
	}
	if st.DaysOverdue != 1 {
		t.Errorf("Expected 1 day overdue, got %d", st.DaysOverdue)
	}
	if st.Current != nil {
		t.Errorf("Expected no current installment, got %+v", st.Current)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	loan := newLoan(t, 1000, 5, 6, models.FrequencyWeekly, today.AddDate(0, 0, -20))
	loan.TotalPaid = decimal.NewFromInt(400)
	loan.Notes = markers.Append("obs", 4, decimal.NewFromInt(10))

	a := Resolve(loan, today)
	b := Resolve(loan, today)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Resolve is not idempotent:\n%+v\n%+v", a, b)
	}
}

func TestResolve_FloorAgreesWithMarkers(t *testing.T) {
	first := today.AddDate(0, -5, 0)
	byTotal := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, first)
	value := decimal.NewFromInt(1300).Div(decimal.NewFromInt(3))
	byTotal.TotalPaid = value.Mul(decimal.NewFromInt(2)).Round(2)

	byMarkers := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, first)
	byMarkers.TotalPaid = byTotal.TotalPaid
	byMarkers.Notes = markers.Append(markers.Append("", 0, value.Round(2)), 1, value.Round(2))

	a := Resolve(byTotal, today)
	b := Resolve(byMarkers, today)
	if a.SatisfiedCount != 2 || b.SatisfiedCount != 2 {
		t.Errorf("Expected 2 satisfied installments in both, got %d and %d", a.SatisfiedCount, b.SatisfiedCount)
	}
	if a.Overdue.Number != b.Overdue.Number {
		t.Errorf("Expected same overdue installment, got %d and %d", a.Overdue.Number, b.Overdue.Number)
	}
}

func TestResolve_PartialPaymentOutOfOrder(t *testing.T) {
	loan := newLoan(t, 300, 0, 3, models.FrequencyMonthly, today.AddDate(0, -1, 0))
	// 100 paid directly against the third installment, 50 towards the first.
	loan.Notes = markers.Append(markers.Append("", 2, decimal.NewFromInt(100)), 0, decimal.NewFromInt(50))
	loan.TotalPaid = decimal.NewFromInt(150)

	st := Resolve(loan, today)
	if st.SatisfiedCount != 1 || !st.Installments[2].Satisfied {
		t.Errorf("Expected only installment 3 satisfied, got %+v", st.Installments)
	}
	if !st.Installments[0].Remaining.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected 50 remaining on installment 1, got %s", st.Installments[0].Remaining)
	}
	if !st.OverdueAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected overdue amount 50, got %s", st.OverdueAmount)
	}
}

func TestResolve_ToleranceAbsorbsRounding(t *testing.T) {
	loan := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, today.AddDate(0, -3, 0))
	loan.Notes = markers.Append("", 0, decimal.RequireFromString("430"))
	loan.TotalPaid = decimal.RequireFromString("430")

	st := Resolve(loan, today)
	if !st.Installments[0].Satisfied {
		t.Error("Expected payment within 1% to satisfy the installment")
	}

	loan.Notes = markers.Append("", 0, decimal.RequireFromString("420"))
	loan.TotalPaid = decimal.RequireFromString("420")
	st = Resolve(loan, today)
	if st.Installments[0].Satisfied {
		t.Error("Expected payment short by more than 1% to leave the installment open")
	}
}

func TestResolve_Overpaid(t *testing.T) {
	loan := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, today.AddDate(0, -4, 0))
	loan.TotalPaid = decimal.NewFromInt(5000)

	st := Resolve(loan, today)
	if !st.PaidInFull {
		t.Error("Expected contract fully satisfied")
	}
	if st.Current != nil || st.IsOverdue {
		t.Errorf("Expected no current and no overdue, got %+v / %v", st.Current, st.IsOverdue)
	}
}

func TestResolve_EmptySchedule(t *testing.T) {
	loan := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, today)
	loan.DueDates = nil

	st := Resolve(loan, today)
	if len(st.Installments) != 0 || st.IsOverdue || st.Current != nil {
		t.Errorf("Expected empty state, got %+v", st)
	}
}

func TestResolve_InvalidTermsAbsorbed(t *testing.T) {
	loan := newLoan(t, 1000, 10, 3, models.FrequencyMonthly, today)
	loan.InstallmentCount = 0

	if _, err := ResolveStrict(loan, today); err == nil {
		t.Error("Expected ResolveStrict to report invalid terms")
	}
	st := Resolve(loan, today)
	if len(st.Installments) != 0 || len(st.Warnings) != 1 {
		t.Errorf("Expected empty state with a warning, got %+v", st)
	}
}

func TestResolve_MarkerBeyondSchedule(t *testing.T) {
	loan := newLoan(t, 200, 0, 2, models.FrequencyMonthly, today.AddDate(0, -3, 0))
	loan.Notes = markers.Append("", 7, decimal.NewFromInt(100))
	loan.TotalPaid = decimal.NewFromInt(100)

	st := Resolve(loan, today)
	if len(st.Warnings) == 0 {
		t.Error("Expected a warning for the stray marker")
	}
	if !st.Installments[0].Satisfied {
		t.Error("Expected the stray amount to be applied oldest-first")
	}
}

func TestResolve_Materialized(t *testing.T) {
	paidAt := today.AddDate(0, -1, 0)
	sale := &models.Contract{
		ID:               uuid.New(),
		Kind:             models.KindProductSale,
		Principal:        decimal.NewFromInt(300),
		InterestRate:     decimal.Zero,
		InterestMode:     models.InterestOnTotal,
		InstallmentCount: 3,
		Frequency:        models.FrequencyMonthly,
		Status:           models.StatusActive,
		TotalPaid:        decimal.NewFromInt(140),
		Installments: []models.InstallmentRow{
			{Number: 1, DueDate: today.AddDate(0, -1, 0), Amount: decimal.NewFromInt(100), Status: models.InstallmentPaid, PaidAt: &paidAt},
			{Number: 2, DueDate: today.AddDate(0, 0, -2), Amount: decimal.NewFromInt(100), Status: models.InstallmentPending, PaidAmount: decimal.NewFromInt(40)},
			{Number: 3, DueDate: today.AddDate(0, 1, 0), Amount: decimal.NewFromInt(100), Status: models.InstallmentPending},
		},
	}

	st := Resolve(sale, today)
	if st.SatisfiedCount != 1 {
		t.Errorf("Expected 1 satisfied installment, got %d", st.SatisfiedCount)
	}
	if st.Overdue == nil || st.Overdue.Number != 2 || st.DaysOverdue != 2 {
		t.Errorf("Expected installment 2 overdue by 2 days, got %+v", st.Overdue)
	}
	if !st.OverdueAmount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected overdue amount 60, got %s", st.OverdueAmount)
	}
	if st.Current == nil || st.Current.Number != 3 {
		t.Errorf("Expected current installment 3, got %+v", st.Current)
	}
}

func TestResolve_Historical(t *testing.T) {
	loan := newLoan(t, 5000, 0, 2, models.FrequencyMonthly, today.AddDate(0, -3, 0))
	loan.Notes = markers.MarkHistorical("")

	st := Resolve(loan, today)
	if !st.Historical {
		t.Error("Expected historical flag")
	}
	if !st.IsOverdue {
		t.Error("Historical contracts still resolve their own overdue state")
	}
}
