// Package installments derives the per-installment payment state of a
// contract at query time.
//
// Every read path (API, report, export, reminders) goes through Resolve so the
// figures they show cannot drift apart.
package installments

import (
	"fmt"
	"sort"
	"time"

	"github.com/mcclellann/fredBilling/pkg/interest"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/markers"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/shopspring/decimal"
)

// Tolerance is the fraction of an installment that may remain unpaid while
// still counting it as satisfied.
var Tolerance = decimal.NewFromFloat(0.01)

var satisfiedRatio = decimal.NewFromInt(1).Sub(Tolerance)

// Installment is the derived view of one scheduled amount.
type Installment struct {
	Number         int             `json:"number"` // 1-based
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	PrincipalShare decimal.Decimal `json:"principal_share"`
	InterestShare  decimal.Decimal `json:"interest_share"`
	Paid           decimal.Decimal `json:"paid"`
	Remaining      decimal.Decimal `json:"remaining"`
	Satisfied      bool            `json:"satisfied"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	Overdue        bool            `json:"overdue"`
	DaysOverdue    int             `json:"days_overdue,omitempty"`
}

// Index returns the 0-based index used by payment markers.
func (i Installment) Index() int { return i.Number - 1 }

// State is the resolved payment state of a contract.
type State struct {
	Installments   []Installment   `json:"installments"`
	Current        *Installment    `json:"current,omitempty"` // First unsatisfied installment not yet past due
	Overdue        *Installment    `json:"overdue,omitempty"` // First unsatisfied installment past due
	IsOverdue      bool            `json:"is_overdue"`
	DaysOverdue    int             `json:"days_overdue"`
	OverdueCount   int             `json:"overdue_count"`
	SatisfiedCount int             `json:"satisfied_count"`
	OverdueAmount  decimal.Decimal `json:"overdue_amount"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	ScheduleTotal  decimal.Decimal `json:"schedule_total"`
	PaidInFull     bool            `json:"paid_in_full"`
	Historical     bool            `json:"historical"`
	Quote          interest.Quote  `json:"quote"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// Focus returns the installment a collection message should talk about: the
// overdue one if any, else the current one.
func (s State) Focus() *Installment {
	if s.Overdue != nil {
		return s.Overdue
	}
	return s.Current
}

// Resolve computes the state of c as of today. It never fails: a contract that
// cannot be resolved yields an empty state and the problem is logged.
func Resolve(c *models.Contract, today time.Time) State {
	st, err := ResolveStrict(c, today)
	if err != nil {
		log := logger.WithComponent("installments")
		log.Warn().Err(err).Str("contract_id", c.ID.String()).Msg("Contract could not be resolved")
		return State{Historical: markers.IsHistorical(c.Notes), Warnings: []string{err.Error()}}
	}
	if len(st.Warnings) > 0 {
		log := logger.WithComponent("installments")
		log.Debug().Str("contract_id", c.ID.String()).Strs("warnings", st.Warnings).Msg("Contract resolved with inconsistencies")
	}
	return st
}

// ResolveStrict is Resolve but reports contracts whose terms are invalid
// instead of absorbing them. Data inconsistencies are still absorbed into
// State.Warnings.
func ResolveStrict(c *models.Contract, today time.Time) (State, error) {
	st := State{Historical: markers.IsHistorical(c.Notes)}

	quote, err := interest.ForContract(c)
	if err != nil && !c.Kind.Materialized() {
		return st, fmt.Errorf("contract %s: %w", c.ID, err)
	}
	if err != nil {
		st.Warnings = append(st.Warnings, fmt.Sprintf("interest terms: %v", err))
	}
	st.Quote = quote

	var recorded map[int]decimal.Decimal
	if c.Kind.Materialized() {
		st.Installments, recorded = fromRows(c.Installments, quote)
	} else {
		st.Installments = fromDueDates(c.DueDates, quote)
		recorded = markers.Decode(c.Notes)
	}
	if len(st.Installments) == 0 {
		return st, nil
	}

	allocate(&st, recorded, c.TotalPaid, c.Status == models.StatusPaid)
	classify(&st, today)
	return st, nil
}

func fromDueDates(dates []time.Time, q interest.Quote) []Installment {
	out := make([]Installment, len(dates))
	for i, d := range dates {
		out[i] = Installment{
			Number:         i + 1,
			DueDate:        d,
			Amount:         q.InstallmentValue,
			PrincipalShare: q.PrincipalShare,
			InterestShare:  q.InterestShare,
		}
	}
	return out
}

func fromRows(rows []models.InstallmentRow, q interest.Quote) ([]Installment, map[int]decimal.Decimal) {
	out := make([]Installment, len(rows))
	recorded := make(map[int]decimal.Decimal)
	for i, r := range rows {
		p, in := q.Split(r.Amount)
		out[i] = Installment{
			Number:         i + 1,
			DueDate:        r.DueDate,
			Amount:         r.Amount,
			PrincipalShare: p,
			InterestShare:  in,
			PaidAt:         r.PaidAt,
		}
		paid := r.PaidAmount
		if r.Status == models.InstallmentPaid && !paid.IsPositive() {
			paid = r.Amount
		}
		if paid.IsPositive() {
			recorded[i] = paid
		}
	}
	return out, recorded
}

// allocate assigns paid amounts to installments. Explicitly recorded amounts
// are applied first; whatever part of totalPaid they do not account for is
// spread oldest-first. For payments made in schedule order this gives the
// same result as floor(totalPaid / installmentValue).
func allocate(st *State, recorded map[int]decimal.Decimal, totalPaid decimal.Decimal, settled bool) {
	idxs := make([]int, 0, len(recorded))
	for idx := range recorded {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	var explicit decimal.Decimal
	for _, idx := range idxs {
		amt := recorded[idx]
		if idx >= len(st.Installments) {
			st.Warnings = append(st.Warnings, fmt.Sprintf("payment marker for installment index %d beyond schedule of %d", idx, len(st.Installments)))
			continue
		}
		st.Installments[idx].Paid = amt
		explicit = explicit.Add(amt)
	}

	residual := totalPaid.Sub(explicit)
	if residual.IsNegative() {
		st.Warnings = append(st.Warnings, fmt.Sprintf("recorded installment payments %s exceed total paid %s", explicit, totalPaid))
		residual = decimal.Zero
	}

	for i := range st.Installments {
		inst := &st.Installments[i]
		st.ScheduleTotal = st.ScheduleTotal.Add(inst.Amount)
		if residual.IsPositive() {
			if capacity := inst.Amount.Sub(inst.Paid); capacity.IsPositive() {
				take := decimal.Min(capacity, residual)
				inst.Paid = inst.Paid.Add(take)
				residual = residual.Sub(take)
			}
		}
		if settled && inst.Paid.LessThan(inst.Amount) {
			inst.Paid = inst.Amount
		}
		inst.Remaining = decimal.Max(decimal.Zero, inst.Amount.Sub(inst.Paid))
		inst.Satisfied = inst.Paid.GreaterThanOrEqual(inst.Amount.Mul(satisfiedRatio))
		if inst.Satisfied {
			inst.Remaining = decimal.Zero
		}
	}
}

func classify(st *State, today time.Time) {
	for i := range st.Installments {
		inst := &st.Installments[i]
		if inst.Satisfied {
			st.SatisfiedCount++
			continue
		}
		st.Outstanding = st.Outstanding.Add(inst.Remaining)
		if schedule.Before(inst.DueDate, today) {
			inst.Overdue = true
			inst.DaysOverdue = schedule.DaysBetween(inst.DueDate, today)
			st.OverdueCount++
			st.OverdueAmount = st.OverdueAmount.Add(inst.Remaining)
			if st.Overdue == nil {
				st.Overdue = inst
			}
			continue
		}
		if st.Current == nil {
			st.Current = inst
		}
	}

	st.IsOverdue = st.Overdue != nil
	if st.IsOverdue {
		st.DaysOverdue = st.Overdue.DaysOverdue
	}
	st.PaidInFull = st.SatisfiedCount == len(st.Installments)
}
