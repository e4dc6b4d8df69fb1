package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/installments"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/markers"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/shopspring/decimal"
)

// PaymentInput describes money received against a contract.
type PaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
	// InstallmentNumber targets a specific 1-based installment. When nil the
	// payment is applied oldest-first.
	InstallmentNumber *int      `json:"installment_number,omitempty"`
	PaidAt            time.Time `json:"paid_at"`
}

// allocation is the part of a payment applied to one installment.
type allocation struct {
	inst   installments.Installment
	amount decimal.Decimal
}

// RecordPayment applies a payment to a contract and records the payment
// event. Concurrent payments on the same contract are serialized through the
// store's version check; no marker is lost.
func (l *Ledger) RecordPayment(contractID uuid.UUID, in PaymentInput) (*models.PaymentEvent, error) {
	if !in.Amount.IsPositive() {
		return nil, models.Invalid("amount", "must be positive")
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = l.now()
	}

	event := &models.PaymentEvent{
		ID:                uuid.New(),
		ContractID:        contractID,
		Amount:            in.Amount,
		InstallmentNumber: in.InstallmentNumber,
		PaidAt:            in.PaidAt,
	}
	apply := func(c *models.Contract) error {
		if c.Status != models.StatusActive {
			return ErrContractNotActive
		}
		st, err := installments.ResolveStrict(c, l.Today())
		if err != nil {
			return fmt.Errorf("cannot apply payment: %w", err)
		}

		plan, leftover, err := planPayment(st, in)
		if err != nil {
			return err
		}

		event.PrincipalPortion, event.InterestPortion = leftover, decimal.Zero
		for _, a := range plan {
			applyAllocation(c, a, in.PaidAt)
			p, i := split(a)
			event.PrincipalPortion = event.PrincipalPortion.Add(p)
			event.InterestPortion = event.InterestPortion.Add(i)
		}

		c.TotalPaid = c.TotalPaid.Add(in.Amount)
		settle(c)
		return nil
	}
	write := func(c *models.Contract) error {
		return l.storage.ApplyPayment(c, event)
	}

	c, err := l.modifyWith(contractID, apply, write)
	if err != nil {
		return nil, err
	}

	metrics.PaymentsRecorded.WithLabelValues(string(c.Kind)).Inc()
	log := logger.WithContract("ledger", c.ID.String())
	log.Info().
		Str("amount", in.Amount.StringFixed(2)).
		Str("remaining", c.RemainingBalance.StringFixed(2)).
		Str("status", c.Status).
		Msg("Payment recorded")
	return event, nil
}

// planPayment distributes amount over unsatisfied installments: the targeted
// one first, then oldest-first. leftover is what no installment could absorb.
func planPayment(st installments.State, in PaymentInput) (plan []allocation, leftover decimal.Decimal, err error) {
	left := in.Amount
	take := func(inst installments.Installment) {
		if !left.IsPositive() || inst.Satisfied || !inst.Remaining.IsPositive() {
			return
		}
		amt := decimal.Min(left, inst.Remaining)
		plan = append(plan, allocation{inst: inst, amount: amt})
		left = left.Sub(amt)
	}

	target := -1
	if in.InstallmentNumber != nil {
		n := *in.InstallmentNumber
		if n < 1 || n > len(st.Installments) {
			return nil, decimal.Zero, models.Invalid("installment_number", "must be between 1 and %d", len(st.Installments))
		}
		target = n - 1
		take(st.Installments[target])
	}
	for i, inst := range st.Installments {
		if i != target {
			take(inst)
		}
	}
	return plan, left, nil
}

func applyAllocation(c *models.Contract, a allocation, paidAt time.Time) {
	idx := a.inst.Index()
	if !c.Kind.Materialized() {
		c.Notes = markers.Append(c.Notes, idx, a.amount)
		return
	}
	row := &c.Installments[idx]
	row.PaidAmount = row.PaidAmount.Add(a.amount)
	// The installment may already be partly covered by money that no row
	// records, such as an amount paid before registration.
	if paid := a.inst.Paid.Add(a.amount); satisfies(paid, row.Amount) {
		row.PaidAmount = paid
		row.Status = models.InstallmentPaid
		t := paidAt
		row.PaidAt = &t
	}
}

// split divides an allocation in the proportion of its installment's
// principal and interest shares.
func split(a allocation) (principal, interest decimal.Decimal) {
	if !a.inst.Amount.IsPositive() {
		return a.amount, decimal.Zero
	}
	interest = a.amount.Mul(a.inst.InterestShare).Div(a.inst.Amount)
	return a.amount.Sub(interest), interest
}

func satisfies(paid, amount decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(amount.Mul(decimal.NewFromInt(1).Sub(installments.Tolerance)))
}

// markCoveredRows flips materialized rows the resolver already counts as
// satisfied to paid. It reports whether any row changed.
func markCoveredRows(c *models.Contract, today time.Time) bool {
	if !c.Kind.Materialized() {
		return false
	}
	st, err := installments.ResolveStrict(c, today)
	if err != nil {
		return false
	}
	changed := false
	for _, inst := range st.Installments {
		row := &c.Installments[inst.Index()]
		if !inst.Satisfied || row.Status == models.InstallmentPaid {
			continue
		}
		row.Status = models.InstallmentPaid
		row.PaidAmount = inst.Paid
		changed = true
	}
	return changed
}
