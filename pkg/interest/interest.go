package interest

import (
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the interest computed for a contract's terms.
type Quote struct {
	TotalInterest    decimal.Decimal `json:"total_interest"`
	InstallmentValue decimal.Decimal `json:"installment_value"`
	// PrincipalShare is the principal repaid by each full installment.
	PrincipalShare decimal.Decimal `json:"principal_share"`
	// InterestShare is the interest carried by each full installment.
	InterestShare decimal.Decimal `json:"interest_share"`
}

// Compute returns total interest and the per-installment value for the given
// terms. Rate is a percentage. Values are not rounded.
func Compute(principal, ratePercent decimal.Decimal, installmentCount int, mode models.InterestMode) (Quote, error) {
	if installmentCount <= 0 {
		return Quote{}, models.Invalid("installment_count", "must be positive, got %d", installmentCount)
	}
	if principal.IsNegative() {
		return Quote{}, models.Invalid("principal", "must not be negative")
	}
	if ratePercent.IsNegative() {
		return Quote{}, models.Invalid("interest_rate", "must not be negative")
	}

	n := decimal.NewFromInt(int64(installmentCount))
	rate := ratePercent.Div(hundred)

	var total decimal.Decimal
	switch mode {
	case models.InterestPerInstallment:
		total = principal.Mul(rate).Mul(n)
	case models.InterestOnTotal:
		total = principal.Mul(rate)
	case models.InterestCompound:
		factor := decimal.NewFromInt(1).Add(rate).Pow(n)
		total = principal.Mul(factor).Sub(principal)
	default:
		return Quote{}, models.Invalid("interest_mode", "unknown mode %q", mode)
	}

	value := principal.Add(total).Div(n)
	share := principal.Div(n)
	return Quote{
		TotalInterest:    total,
		InstallmentValue: value,
		PrincipalShare:   share,
		InterestShare:    value.Sub(share),
	}, nil
}

// ForContract returns the quote that governs a contract's installments.
// Daily contracts carry an explicit interest-only installment value which is
// never derived from the formulas.
func ForContract(c *models.Contract) (Quote, error) {
	if c.Frequency == models.FrequencyDaily {
		if c.InstallmentAmount == nil || !c.InstallmentAmount.IsPositive() {
			return Quote{}, models.Invalid("installment_amount", "required for daily contracts")
		}
		if c.InstallmentCount <= 0 {
			return Quote{}, models.Invalid("installment_count", "must be positive, got %d", c.InstallmentCount)
		}
		v := *c.InstallmentAmount
		return Quote{
			TotalInterest:    v.Mul(decimal.NewFromInt(int64(c.InstallmentCount))),
			InstallmentValue: v,
			PrincipalShare:   decimal.Zero,
			InterestShare:    v,
		}, nil
	}

	count := c.InstallmentCount
	if c.Frequency == models.FrequencySingle {
		count = 1
	}
	return Compute(c.Principal, c.InterestRate, count, c.InterestMode)
}

// Split divides an amount applied to an installment into its principal and
// interest portions, in the proportion of the installment's composition.
func (q Quote) Split(amount decimal.Decimal) (principal, interest decimal.Decimal) {
	if !q.InstallmentValue.IsPositive() {
		return amount, decimal.Zero
	}
	interest = amount.Mul(q.InterestShare).Div(q.InstallmentValue)
	return amount.Sub(interest), interest
}
