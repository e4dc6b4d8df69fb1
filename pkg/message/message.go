// Package message renders collection messages from resolved installment state.
package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcclellann/fredBilling/pkg/installments"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	dateLayout  = "02/01/2006"
	progressLen = 10
)

// Config selects which fields a message carries. It is supplied by the caller
// on every render.
type Config struct {
	IncludeClientName  bool   `json:"include_client_name"`
	IncludeAmount      bool   `json:"include_amount"`
	IncludeDueDate     bool   `json:"include_due_date"`
	IncludeDaysOverdue bool   `json:"include_days_overdue"`
	IncludeProgress    bool   `json:"include_progress"`
	IncludePix         bool   `json:"include_pix"`
	PixKey             string `json:"pix_key"`
	PixKeyType         string `json:"pix_key_type"`
	ClosingText        string `json:"closing_text"`
	Signature          string `json:"signature"`
	// Template, when set, replaces the generated body. See Placeholders.
	Template string `json:"template"`
}

// DefaultConfig enables every field except PIX.
func DefaultConfig() Config {
	return Config{
		IncludeClientName:  true,
		IncludeAmount:      true,
		IncludeDueDate:     true,
		IncludeDaysOverdue: true,
		IncludeProgress:    true,
	}
}

// Data is what a message talks about.
type Data struct {
	ClientName        string
	Installment       int
	TotalInstallments int
	Paid              int
	Amount            decimal.Decimal
	DueDate           time.Time
	DaysOverdue       int
	Overdue           bool
	Remaining         decimal.Decimal
}

// Placeholders lists the names a Template may reference.
var Placeholders = []string{
	"client_name", "amount", "due_date", "days_overdue",
	"installment", "total_installments", "remaining", "pix_key",
}

// FromState builds message data for the installment a reminder should focus
// on. ok is false when nothing is owed.
func FromState(c *models.Contract, st installments.State) (d Data, ok bool) {
	focus := st.Focus()
	if focus == nil {
		return Data{}, false
	}
	return Data{
		ClientName:        c.ClientName,
		Installment:       focus.Number,
		TotalInstallments: len(st.Installments),
		Paid:              st.SatisfiedCount,
		Amount:            focus.Remaining,
		DueDate:           focus.DueDate,
		DaysOverdue:       focus.DaysOverdue,
		Overdue:           focus.Overdue,
		Remaining:         st.Outstanding,
	}, true
}

// Compose renders the message text.
func Compose(d Data, cfg Config) string {
	if cfg.Template != "" {
		return strings.TrimSpace(substitute(cfg.Template, d, cfg))
	}

	var lines []string
	if cfg.IncludeClientName && d.ClientName != "" {
		lines = append(lines, fmt.Sprintf("Olá, %s!", d.ClientName))
	} else {
		lines = append(lines, "Olá!")
	}

	if d.Overdue {
		lines = append(lines, fmt.Sprintf("A parcela %d de %d está em atraso.", d.Installment, d.TotalInstallments))
	} else {
		lines = append(lines, fmt.Sprintf("Lembrete da parcela %d de %d.", d.Installment, d.TotalInstallments))
	}
	if cfg.IncludeAmount {
		lines = append(lines, "Valor: "+FormatBRL(d.Amount))
	}
	if cfg.IncludeDueDate {
		lines = append(lines, "Vencimento: "+d.DueDate.Format(dateLayout))
	}
	if cfg.IncludeDaysOverdue && d.Overdue && d.DaysOverdue > 0 {
		unit := "dias"
		if d.DaysOverdue == 1 {
			unit = "dia"
		}
		lines = append(lines, fmt.Sprintf("Atraso: %d %s", d.DaysOverdue, unit))
	}
	if cfg.IncludeProgress && d.TotalInstallments > 0 {
		lines = append(lines, "Progresso: "+ProgressBar(d.Paid, d.TotalInstallments))
	}
	if cfg.IncludePix && cfg.PixKey != "" {
		pix := "PIX: " + cfg.PixKey
		if cfg.PixKeyType != "" {
			pix = fmt.Sprintf("PIX (%s): %s", cfg.PixKeyType, cfg.PixKey)
		}
		lines = append(lines, "", pix)
	}
	if cfg.ClosingText != "" {
		lines = append(lines, "", cfg.ClosingText)
	}
	if cfg.Signature != "" {
		lines = append(lines, "", cfg.Signature)
	}
	return strings.Join(lines, "\n")
}

func substitute(tmpl string, d Data, cfg Config) string {
	r := strings.NewReplacer(
		"{client_name}", d.ClientName,
		"{amount}", FormatBRL(d.Amount),
		"{due_date}", d.DueDate.Format(dateLayout),
		"{days_overdue}", strconv.Itoa(d.DaysOverdue),
		"{installment}", strconv.Itoa(d.Installment),
		"{total_installments}", strconv.Itoa(d.TotalInstallments),
		"{remaining}", FormatBRL(d.Remaining),
		"{pix_key}", cfg.PixKey,
	)
	return r.Replace(tmpl)
}

// ProgressBar renders paid/total as a fixed-width bar, e.g. "▓▓▓▓▓░░░░░ 3/6".
func ProgressBar(paid, total int) string {
	if total <= 0 {
		return ""
	}
	if paid > total {
		paid = total
	}
	filled := paid * progressLen / total
	return strings.Repeat("▓", filled) + strings.Repeat("░", progressLen-filled) +
		fmt.Sprintf(" %d/%d", paid, total)
}

// FormatBRL formats an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	intPart, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(ch)
	}
	return "R$ " + sign + b.String() + "," + frac
}
