package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/installments"
	"github.com/mcclellann/fredBilling/pkg/interest"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/markers"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/report"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/mcclellann/fredBilling/pkg/store"
	"github.com/shopspring/decimal"
)

// maxWriteAttempts bounds the read-modify-write retries on a contended contract.
const maxWriteAttempts = 3

// ErrContractNotActive is returned when a payment targets a settled contract.
var ErrContractNotActive = errors.New("contract is not active")

// Ledger handles the business logic for contracts and payments.
type Ledger struct {
	storage store.Storage
	now     func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{
		storage: s,
		now:     time.Now,
	}
}

// SetClock replaces the ledger's notion of "now". Used by tests and batch
// runs that evaluate a fixed day.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Today returns the current local date.
func (l *Ledger) Today() time.Time {
	return schedule.DateOf(l.now())
}

// ContractInput holds the terms of a new contract.
type ContractInput struct {
	Kind              models.ContractKind `json:"kind"`
	ClientName        string              `json:"client_name"`
	ClientPhone       string              `json:"client_phone"`
	Principal         decimal.Decimal     `json:"principal"`
	InterestRate      decimal.Decimal     `json:"interest_rate"`
	InterestMode      models.InterestMode `json:"interest_mode"`
	InstallmentCount  int                 `json:"installment_count"`
	Frequency         models.Frequency    `json:"frequency"`
	FirstDueDate      time.Time           `json:"first_due_date"`
	DueDates          []time.Time         `json:"due_dates,omitempty"` // Manually edited schedule; generated when empty
	InstallmentAmount *decimal.Decimal    `json:"installment_amount,omitempty"`
	Notes             string              `json:"notes"`
	Historical        bool                `json:"historical"`   // Pre-existing debt imported at signup
	AlreadyPaid       decimal.Decimal     `json:"already_paid"` // Amount settled before registration
}

// CreateContract validates the terms, generates the schedule and stores the
// contract. Validation failures match models.ErrValidation.
func (l *Ledger) CreateContract(in ContractInput) (*models.Contract, error) {
	if !in.Kind.Valid() {
		return nil, models.Invalid("kind", "unknown contract kind %q", in.Kind)
	}
	if !in.Principal.IsPositive() {
		return nil, models.Invalid("principal", "must be positive")
	}
	if in.AlreadyPaid.IsNegative() {
		return nil, models.Invalid("already_paid", "must not be negative")
	}

	count := in.InstallmentCount
	if in.Frequency == models.FrequencySingle {
		count = 1
	}

	now := l.now()
	c := &models.Contract{
		ID:                uuid.New(),
		Kind:              in.Kind,
		ClientName:        in.ClientName,
		ClientPhone:       in.ClientPhone,
		Principal:         in.Principal,
		InterestRate:      in.InterestRate,
		InterestMode:      in.InterestMode,
		InstallmentCount:  count,
		Frequency:         in.Frequency,
		FirstDueDate:      schedule.DateOf(in.FirstDueDate),
		InstallmentAmount: in.InstallmentAmount,
		TotalPaid:         in.AlreadyPaid,
		Status:            models.StatusActive,
		Notes:             in.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Historical {
		c.Notes = markers.MarkHistorical(c.Notes)
	}

	quote, err := interest.ForContract(c)
	if err != nil {
		return nil, err
	}
	dates, err := dueDates(in, count)
	if err != nil {
		return nil, err
	}

	c.TotalInterest = quote.TotalInterest
	if c.Kind.Materialized() {
		c.Installments = buildRows(dates, c.Principal.Add(quote.TotalInterest))
		markCoveredRows(c, schedule.DateOf(now))
	} else {
		c.DueDates = dates
	}
	settle(c)

	if err := l.storage.CreateContract(c); err != nil {
		return nil, fmt.Errorf("failed to store contract: %w", err)
	}

	log := logger.WithContract("ledger", c.ID.String())
	log.Info().
		Str("kind", string(c.Kind)).
		Str("principal", c.Principal.StringFixed(2)).
		Str("total_interest", c.TotalInterest.StringFixed(2)).
		Int("installments", count).
		Msg("Contract created")
	return c, nil
}

func dueDates(in ContractInput, count int) ([]time.Time, error) {
	if len(in.DueDates) == 0 {
		return schedule.Generate(in.FirstDueDate, count, in.Frequency)
	}
	if _, err := schedule.Generate(in.FirstDueDate, count, in.Frequency); err != nil {
		return nil, err
	}
	return validateDates(in.DueDates, count)
}

func validateDates(dates []time.Time, count int) ([]time.Time, error) {
	if len(dates) != count {
		return nil, models.Invalid("due_dates", "expected %d dates, got %d", count, len(dates))
	}
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		if d.IsZero() {
			return nil, models.Invalid("due_dates", "date %d is empty", i+1)
		}
		out[i] = schedule.DateOf(d)
		if i > 0 && !schedule.Before(out[i-1], out[i]) {
			return nil, models.Invalid("due_dates", "date %d is not after date %d", i+1, i)
		}
	}
	return out, nil
}

// buildRows splits total over the dates in cents; the last row absorbs the
// rounding difference so the rows sum exactly to total.
func buildRows(dates []time.Time, total decimal.Decimal) []models.InstallmentRow {
	rows := make([]models.InstallmentRow, len(dates))
	each := total.Div(decimal.NewFromInt(int64(len(dates)))).Round(2)
	sum := decimal.Zero
	for i, d := range dates {
		amount := each
		if i == len(dates)-1 {
			amount = total.Sub(sum)
		}
		sum = sum.Add(amount)
		rows[i] = models.InstallmentRow{
			Number:  i + 1,
			DueDate: d,
			Amount:  amount,
			Status:  models.InstallmentPending,
		}
	}
	return rows
}

// settle re-derives the remaining balance and flips the status once the
// schedule is fully satisfied. Daily contracts repay principal outside the
// schedule and only settle when the balance reaches zero.
func settle(c *models.Contract) {
	c.RemainingBalance = decimal.Max(decimal.Zero, c.Principal.Add(c.TotalInterest).Sub(c.TotalPaid))
	if c.RemainingBalance.IsZero() {
		c.Status = models.StatusPaid
		return
	}
	if c.Frequency == models.FrequencyDaily {
		return
	}
	st, err := installments.ResolveStrict(c, c.UpdatedAt)
	if err == nil && len(st.Installments) > 0 && st.PaidInFull {
		c.Status = models.StatusPaid
	}
}

// GetContract retrieves a contract by its ID.
func (l *Ledger) GetContract(id uuid.UUID) (*models.Contract, error) {
	return l.storage.GetContract(id)
}

// GetAllContracts retrieves all contracts.
func (l *Ledger) GetAllContracts() ([]*models.Contract, error) {
	return l.storage.GetAllContracts()
}

// ContractUpdate carries the fields a user may edit after creation. Nil
// fields are left untouched.
type ContractUpdate struct {
	ClientName  *string     `json:"client_name,omitempty"`
	ClientPhone *string     `json:"client_phone,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
	DueDates    []time.Time `json:"due_dates,omitempty"`
}

// UpdateContract applies a user edit. Payment markers in the notes survive
// edits of the free text.
func (l *Ledger) UpdateContract(id uuid.UUID, upd ContractUpdate) (*models.Contract, error) {
	return l.modify(id, func(c *models.Contract) error {
		if upd.ClientName != nil {
			c.ClientName = *upd.ClientName
		}
		if upd.ClientPhone != nil {
			c.ClientPhone = *upd.ClientPhone
		}
		if upd.Notes != nil {
			c.Notes = markers.Replace(c.Notes, *upd.Notes)
		}
		if len(upd.DueDates) > 0 {
			n := len(c.DueDates)
			if c.Kind.Materialized() {
				n = len(c.Installments)
			}
			dates, err := validateDates(upd.DueDates, n)
			if err != nil {
				return err
			}
			if c.Kind.Materialized() {
				for i := range c.Installments {
					c.Installments[i].DueDate = dates[i]
				}
			} else {
				c.DueDates = dates
			}
			c.FirstDueDate = dates[0]
		}
		return nil
	})
}

// DeleteContract deletes a contract.
func (l *Ledger) DeleteContract(id uuid.UUID) error {
	return l.storage.DeleteContract(id)
}

// modify runs a read-modify-write on one contract, retrying when another
// writer got there first.
func (l *Ledger) modify(id uuid.UUID, fn func(c *models.Contract) error) (*models.Contract, error) {
	return l.modifyWith(id, fn, l.storage.UpdateContract)
}

// modifyWith is modify with a custom write step. write must return
// store.ErrConflict when the stored version moved.
func (l *Ledger) modifyWith(id uuid.UUID, fn, write func(c *models.Contract) error) (*models.Contract, error) {
	for attempt := 1; ; attempt++ {
		c, err := l.storage.GetContract(id)
		if err != nil {
			return nil, err
		}
		if err := fn(c); err != nil {
			return nil, err
		}
		c.UpdatedAt = l.now()

		err = write(c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= maxWriteAttempts {
			return nil, fmt.Errorf("failed to update contract: %w", err)
		}
		metrics.WriteConflicts.Inc()
		log := logger.WithContract("ledger", id.String())
		log.Debug().Int("attempt", attempt).Msg("Concurrent contract update, retrying")
	}
}

// ResolveContract returns a contract and its installment state as of today.
func (l *Ledger) ResolveContract(id uuid.UUID) (*models.Contract, installments.State, error) {
	c, err := l.storage.GetContract(id)
	if err != nil {
		return nil, installments.State{}, err
	}
	return c, installments.Resolve(c, l.Today()), nil
}

// Snapshots loads every contract with its payment events.
func (l *Ledger) Snapshots() ([]report.Snapshot, error) {
	contracts, err := l.storage.GetAllContracts()
	if err != nil {
		return nil, err
	}
	events, err := l.storage.GetAllPaymentEvents()
	if err != nil {
		return nil, err
	}
	byContract := make(map[uuid.UUID][]*models.PaymentEvent)
	for _, ev := range events {
		byContract[ev.ContractID] = append(byContract[ev.ContractID], ev)
	}

	snaps := make([]report.Snapshot, len(contracts))
	for i, c := range contracts {
		snaps[i] = report.Snapshot{Contract: c, Events: byContract[c.ID]}
	}
	return snaps, nil
}

// Report aggregates every stored contract as of today.
func (l *Ledger) Report(f report.Filter) (*report.Report, error) {
	snaps, err := l.Snapshots()
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts for report: %w", err)
	}
	return report.Build(snaps, f, l.Today()), nil
}

// RefreshBalances walks active contracts and repairs denormalized balances
// and statuses that no longer match the payment ledger.
func (l *Ledger) RefreshBalances() int {
	log := logger.WithComponent("ledger")
	contracts, err := l.storage.GetAllActiveContracts()
	if err != nil {
		log.Error().Err(err).Msg("Error getting active contracts for balance refresh")
		return 0
	}

	fixed := 0
	for _, c := range contracts {
		before, status := c.RemainingBalance, c.Status
		settle(c)
		rowsChanged := markCoveredRows(c, l.Today())
		if c.RemainingBalance.Equal(before) && c.Status == status && !rowsChanged {
			continue
		}
		c.UpdatedAt = l.now()
		if err := l.storage.UpdateContract(c); err != nil {
			log.Error().Err(err).Str("contract_id", c.ID.String()).Msg("Error updating contract during balance refresh")
			continue
		}
		fixed++
		log.Info().
			Str("contract_id", c.ID.String()).
			Str("remaining", c.RemainingBalance.StringFixed(2)).
			Str("status", c.Status).
			Msg("Contract balance refreshed")
	}
	return fixed
}

// Preview is the quote and schedule a set of terms would produce.
type Preview struct {
	Quote    interest.Quote `json:"quote"`
	DueDates []time.Time    `json:"due_dates"`
}

// PreviewSchedule computes the quote and due dates for in without storing
// anything.
func PreviewSchedule(in ContractInput) (*Preview, error) {
	count := in.InstallmentCount
	if in.Frequency == models.FrequencySingle {
		count = 1
	}
	c := &models.Contract{
		Principal:         in.Principal,
		InterestRate:      in.InterestRate,
		InterestMode:      in.InterestMode,
		InstallmentCount:  count,
		Frequency:         in.Frequency,
		InstallmentAmount: in.InstallmentAmount,
	}
	quote, err := interest.ForContract(c)
	if err != nil {
		return nil, err
	}
	dates, err := dueDates(in, count)
	if err != nil {
		return nil, err
	}
	return &Preview{Quote: quote, DueDates: dates}, nil
}
