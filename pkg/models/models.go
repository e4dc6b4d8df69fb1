package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ContractKind string

const (
	KindLoan        ContractKind = "loan"
	KindProductSale ContractKind = "product_sale"
	KindVehicleSale ContractKind = "vehicle_sale"
	KindRecurring   ContractKind = "recurring"
)

// Materialized reports whether installments of this kind are persisted as rows
// rather than derived from the notes ledger.
func (k ContractKind) Materialized() bool {
	return k == KindProductSale || k == KindVehicleSale
}

func (k ContractKind) Valid() bool {
	switch k {
	case KindLoan, KindProductSale, KindVehicleSale, KindRecurring:
		return true
	}
	return false
}

type InterestMode string

const (
	InterestPerInstallment InterestMode = "per_installment"
	InterestOnTotal        InterestMode = "on_total"
	InterestCompound       InterestMode = "compound"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencySingle   Frequency = "single"
)

const (
	StatusActive = "active"
	StatusPaid   = "paid"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

// Contract is any billable agreement. Loans and recurring contracts keep their
// payment history as markers in Notes; product and vehicle sales carry
// persisted installment rows.
type Contract struct {
	ID                uuid.UUID        `json:"id"`
	Kind              ContractKind     `json:"kind"`
	ClientName        string           `json:"client_name"`
	ClientPhone       string           `json:"client_phone"`
	Principal         decimal.Decimal  `json:"principal"`
	InterestRate      decimal.Decimal  `json:"interest_rate"` // Percent, e.g. 10 for 10%
	InterestMode      InterestMode     `json:"interest_mode"`
	InstallmentCount  int              `json:"installment_count"`
	Frequency         Frequency        `json:"frequency"`
	FirstDueDate      time.Time        `json:"first_due_date"`
	DueDates          []time.Time      `json:"due_dates,omitempty"`          // Virtual-ledger schedule, source of truth once saved
	Installments      []InstallmentRow `json:"installments,omitempty"`       // Materialized schedule
	InstallmentAmount *decimal.Decimal `json:"installment_amount,omitempty"` // Explicit per-installment value (daily contracts)
	TotalInterest     decimal.Decimal  `json:"total_interest"`               // Denormalized cache
	TotalPaid         decimal.Decimal  `json:"total_paid"`
	RemainingBalance  decimal.Decimal  `json:"remaining_balance"`
	Status            string           `json:"status"`
	Notes             string           `json:"notes"`
	Version           int64            `json:"version"` // Incremented on every successful update
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// InstallmentRow is a persisted installment of a materialized contract.
type InstallmentRow struct {
	Number     int               `json:"number"`
	DueDate    time.Time         `json:"due_date"`
	Amount     decimal.Decimal   `json:"amount"`
	Status     InstallmentStatus `json:"status"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
}

// PaymentEvent records money received against a contract.
type PaymentEvent struct {
	ID                uuid.UUID       `json:"id"`
	ContractID        uuid.UUID       `json:"contract_id"`
	Amount            decimal.Decimal `json:"amount"`
	PrincipalPortion  decimal.Decimal `json:"principal_portion"`
	InterestPortion   decimal.Decimal `json:"interest_portion"`
	InstallmentNumber *int            `json:"installment_number,omitempty"`
	PaidAt            time.Time       `json:"paid_at"`
}
