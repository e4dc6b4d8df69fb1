// Package report aggregates resolved contract state into the operational
// figures shown on the dashboard and in exports.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/installments"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/shopspring/decimal"
)

// Filter restricts the contracts and the period an aggregation covers.
// From and To are inclusive calendar days; nil means unbounded.
type Filter struct {
	PaymentType models.Frequency      `json:"payment_type,omitempty"`
	From        *time.Time            `json:"from,omitempty"`
	To          *time.Time            `json:"to,omitempty"`
	Kinds       []models.ContractKind `json:"kinds,omitempty"`
}

// Matches reports whether c belongs to the filtered contract set. Single
// lump-sum contracts are accounted as monthly.
func (f Filter) Matches(c *models.Contract) bool {
	if f.PaymentType != "" && c.Frequency != f.PaymentType {
		if !(f.PaymentType == models.FrequencyMonthly && c.Frequency == models.FrequencySingle) {
			return false
		}
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == c.Kind {
			return true
		}
	}
	return false
}

// InRange reports whether t falls within the filter's period.
func (f Filter) InRange(t time.Time) bool {
	if f.From != nil && schedule.Before(t, *f.From) {
		return false
	}
	if f.To != nil && schedule.Before(*f.To, t) {
		return false
	}
	return true
}

// ParseFilter builds a Filter from its textual form. Dates use the
// YYYY-MM-DD layout; empty values leave the bound open.
func ParseFilter(paymentType, from, to string) (Filter, error) {
	var f Filter
	switch freq := models.Frequency(paymentType); freq {
	case "", models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyBiweekly, models.FrequencyMonthly, models.FrequencySingle:
		f.PaymentType = freq
	default:
		return f, models.Invalid("payment_type", "unknown payment type %q", paymentType)
	}
	var err error
	if f.From, err = parseDay("from", from); err != nil {
		return f, err
	}
	if f.To, err = parseDay("to", to); err != nil {
		return f, err
	}
	if f.From != nil && f.To != nil && schedule.Before(*f.To, *f.From) {
		return f, models.Invalid("to", "must not be before from")
	}
	return f, nil
}

func parseDay(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return nil, models.Invalid(field, "expected YYYY-MM-DD, got %q", v)
	}
	return &t, nil
}

// Snapshot is a contract together with its payment events.
type Snapshot struct {
	Contract *models.Contract
	Events   []*models.PaymentEvent
}

// Skipped identifies a contract left out of an aggregation.
type Skipped struct {
	ContractID uuid.UUID `json:"contract_id"`
	Reason     string    `json:"reason"`
}

// Totals are the aggregate figures over a filtered contract set.
type Totals struct {
	CapitalOutstanding    decimal.Decimal `json:"capital_outstanding"`
	PendingInterest       decimal.Decimal `json:"pending_interest"`
	AmountDueInRange      decimal.Decimal `json:"amount_due_in_range"`
	OverdueAmount         decimal.Decimal `json:"overdue_amount"`
	TotalReceivedInRange  decimal.Decimal `json:"total_received_in_range"`
	RealizedProfitInRange decimal.Decimal `json:"realized_profit_in_range"`
	ContractsConsidered   int             `json:"contracts_considered"`
	OverdueContracts      int             `json:"overdue_contracts"`
	Skipped               []Skipped       `json:"skipped,omitempty"`
}

// Row is one contract line of a report.
type Row struct {
	ContractID    uuid.UUID           `json:"contract_id"`
	ClientName    string              `json:"client_name"`
	Kind          models.ContractKind `json:"kind"`
	Frequency     models.Frequency    `json:"frequency"`
	Status        string              `json:"status"`
	Historical    bool                `json:"historical"`
	Principal     decimal.Decimal     `json:"principal"`
	TotalPaid     decimal.Decimal     `json:"total_paid"`
	Outstanding   decimal.Decimal     `json:"outstanding"`
	OverdueAmount decimal.Decimal     `json:"overdue_amount"`
	DaysOverdue   int                 `json:"days_overdue"`
	Progress      string              `json:"progress"`
	NextDueDate   *time.Time          `json:"next_due_date,omitempty"`
	NextAmount    decimal.Decimal     `json:"next_amount"`
}

// Report is a full aggregation with per-contract rows.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Filter      Filter    `json:"filter"`
	Totals      Totals    `json:"totals"`
	Rows        []Row     `json:"rows"`
}

// Aggregate computes the totals for snaps as of today. It does not modify the
// snapshots and never fails: contracts that cannot be resolved are listed in
// Totals.Skipped and contribute nothing.
func Aggregate(snaps []Snapshot, f Filter, today time.Time) Totals {
	t, _ := aggregate(snaps, f, today, false)
	return t
}

// Build computes the totals and the per-contract rows.
func Build(snaps []Snapshot, f Filter, today time.Time) *Report {
	t, rows := aggregate(snaps, f, today, true)
	return &Report{
		GeneratedAt: today,
		Filter:      f,
		Totals:      t,
		Rows:        rows,
	}
}

func aggregate(snaps []Snapshot, f Filter, today time.Time, withRows bool) (Totals, []Row) {
	log := logger.WithComponent("report")
	var t Totals
	var rows []Row

	for _, s := range snaps {
		c := s.Contract
		if c == nil || !f.Matches(c) {
			continue
		}
		for _, ev := range s.Events {
			if ev == nil || !f.InRange(ev.PaidAt) {
				continue
			}
			t.TotalReceivedInRange = t.TotalReceivedInRange.Add(ev.Amount)
			t.RealizedProfitInRange = t.RealizedProfitInRange.Add(ev.InterestPortion)
		}

		st, err := installments.ResolveStrict(c, today)
		if err != nil {
			log.Warn().Err(err).Str("contract_id", c.ID.String()).Msg("Skipping contract in aggregation")
			metrics.ContractsSkipped.WithLabelValues("invalid_terms").Inc()
			t.Skipped = append(t.Skipped, Skipped{ContractID: c.ID, Reason: err.Error()})
			continue
		}
		t.ContractsConsidered++
		if withRows {
			rows = append(rows, newRow(c, st))
		}

		if c.Status == models.StatusPaid || st.Historical {
			continue
		}

		t.CapitalOutstanding = t.CapitalOutstanding.Add(capitalOutstanding(c, st))
		for _, inst := range st.Installments {
			if inst.Satisfied {
				continue
			}
			if f.InRange(inst.DueDate) {
				t.PendingInterest = t.PendingInterest.Add(inst.InterestShare)
				t.AmountDueInRange = t.AmountDueInRange.Add(inst.Remaining)
			}
			if inst.Overdue {
				t.OverdueAmount = t.OverdueAmount.Add(inst.Remaining)
			}
		}
		if st.IsOverdue {
			t.OverdueContracts++
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DaysOverdue > rows[j].DaysOverdue
	})
	return t, rows
}

// capitalOutstanding is the principal not yet repaid: the principal share of
// what each installment has received, plus anything paid beyond the schedule.
// Money settled before registration counts the same as recorded payments.
func capitalOutstanding(c *models.Contract, st installments.State) decimal.Decimal {
	var repaid, allocated decimal.Decimal
	for _, inst := range st.Installments {
		allocated = allocated.Add(inst.Paid)
		if !inst.Amount.IsPositive() {
			continue
		}
		repaid = repaid.Add(inst.Paid.Mul(inst.PrincipalShare).Div(inst.Amount))
	}
	if extra := c.TotalPaid.Sub(allocated); extra.IsPositive() {
		repaid = repaid.Add(extra)
	}
	return decimal.Max(decimal.Zero, c.Principal.Sub(repaid))
}

func newRow(c *models.Contract, st installments.State) Row {
	r := Row{
		ContractID:    c.ID,
		ClientName:    c.ClientName,
		Kind:          c.Kind,
		Frequency:     c.Frequency,
		Status:        c.Status,
		Historical:    st.Historical,
		Principal:     c.Principal,
		TotalPaid:     c.TotalPaid,
		Outstanding:   st.Outstanding,
		OverdueAmount: st.OverdueAmount,
		DaysOverdue:   st.DaysOverdue,
		Progress:      progress(st),
	}
	if next := st.Focus(); next != nil {
		due := next.DueDate
		r.NextDueDate = &due
		r.NextAmount = next.Remaining
	}
	return r
}

func progress(st installments.State) string {
	return fmt.Sprintf("%d/%d", st.SatisfiedCount, len(st.Installments))
}
