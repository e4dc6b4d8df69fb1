package message

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/installments"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBRL(t *testing.T) {
	cases := map[string]string{
		"0":          "R$ 0,00",
		"5.5":        "R$ 5,50",
		"433.3333":   "R$ 433,33",
		"1234.56":    "R$ 1.234,56",
		"1000000":    "R$ 1.000.000,00",
		"-2500.005":  "R$ -2.500,01",
		"999999.999": "R$ 1.000.000,00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatBRL(decimal.RequireFromString(in)), in)
	}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "▓▓▓▓▓░░░░░ 3/6", ProgressBar(3, 6))
	assert.Equal(t, "░░░░░░░░░░ 0/4", ProgressBar(0, 4))
	assert.Equal(t, "▓▓▓▓▓▓▓▓▓▓ 2/2", ProgressBar(5, 2))
	assert.Empty(t, ProgressBar(1, 0))
}

func overdueData() Data {
	return Data{
		ClientName:        "Maria",
		Installment:       2,
		TotalInstallments: 6,
		Paid:              1,
		Amount:            decimal.RequireFromString("433.33"),
		DueDate:           time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC),
		DaysOverdue:       10,
		Overdue:           true,
		Remaining:         decimal.RequireFromString("2166.65"),
	}
}

func TestCompose_AllFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludePix = true
	cfg.PixKey = "maria@pix.com"
	cfg.PixKeyType = "email"
	cfg.ClosingText = "Qualquer dúvida estamos à disposição."
	cfg.Signature = "Financeira Exemplo"

	text := Compose(overdueData(), cfg)

	assert.Contains(t, text, "Olá, Maria!")
	assert.Contains(t, text, "A parcela 2 de 6 está em atraso.")
	assert.Contains(t, text, "Valor: R$ 433,33")
	assert.Contains(t, text, "Vencimento: 05/10/2026")
	assert.Contains(t, text, "Atraso: 10 dias")
	assert.Contains(t, text, "1/6")
	assert.Contains(t, text, "PIX (email): maria@pix.com")
	assert.True(t, strings.HasSuffix(text, "Financeira Exemplo"))
}

func TestCompose_ToggledOff(t *testing.T) {
	text := Compose(overdueData(), Config{})

	assert.Equal(t, "Olá!\nA parcela 2 de 6 está em atraso.", text)
}

func TestCompose_Template(t *testing.T) {
	cfg := Config{
		Template: "{client_name}, parcela {installment}/{total_installments} de {amount} venceu em {due_date} ({days_overdue} dias). PIX: {pix_key}",
		PixKey:   "123",
	}
	text := Compose(overdueData(), cfg)
	assert.Equal(t, "Maria, parcela 2/6 de R$ 433,33 venceu em 05/10/2026 (10 dias). PIX: 123", text)
}

func TestFromState(t *testing.T) {
	today := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	dates, err := schedule.Generate(today.AddDate(0, 0, -40), 3, models.FrequencyMonthly)
	require.NoError(t, err)
	c := &models.Contract{
		ID:               uuid.New(),
		Kind:             models.KindLoan,
		ClientName:       "João",
		Principal:        decimal.NewFromInt(1000),
		InterestRate:     decimal.NewFromInt(10),
		InterestMode:     models.InterestPerInstallment,
		InstallmentCount: 3,
		Frequency:        models.FrequencyMonthly,
		DueDates:         dates,
		Status:           models.StatusActive,
	}

	d, ok := FromState(c, installments.Resolve(c, today))
	require.True(t, ok)
	assert.Equal(t, 1, d.Installment)
	assert.True(t, d.Overdue)
	assert.Equal(t, 40, d.DaysOverdue)
	assert.Equal(t, "R$ 433,33", FormatBRL(d.Amount))

	c.TotalPaid = decimal.NewFromInt(1300)
	_, ok = FromState(c, installments.Resolve(c, today))
	assert.False(t, ok)
}
