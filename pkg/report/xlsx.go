package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Renderer turns a report into a downloadable document.
type Renderer interface {
	Render(w io.Writer, r *Report) error
	ContentType() string
}

const (
	summarySheet   = "Summary"
	contractsSheet = "Contracts"
	dateLayout     = "02/01/2006"
)

var contractHeaders = []string{
	"Contract", "Client", "Kind", "Frequency", "Status", "Historical",
	"Principal", "Total Paid", "Outstanding", "Overdue", "Days Overdue",
	"Progress", "Next Due", "Next Amount",
}

// XLSXRenderer writes reports as Excel workbooks.
type XLSXRenderer struct{}

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render writes a workbook with a summary sheet and one row per contract.
func (XLSXRenderer) Render(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSummary(f, r); err != nil {
		return err
	}

	if _, err := f.NewSheet(contractsSheet); err != nil {
		return fmt.Errorf("failed to create contracts sheet: %w", err)
	}
	for i, header := range contractHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(contractsSheet, cell, header)
	}
	for i, row := range r.Rows {
		line := i + 2
		values := []interface{}{
			row.ContractID.String(),
			row.ClientName,
			string(row.Kind),
			string(row.Frequency),
			row.Status,
			row.Historical,
			money(row.Principal),
			money(row.TotalPaid),
			money(row.Outstanding),
			money(row.OverdueAmount),
			row.DaysOverdue,
			row.Progress,
			"",
			money(row.NextAmount),
		}
		if row.NextDueDate != nil {
			values[12] = row.NextDueDate.Format(dateLayout)
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			if err := f.SetCellValue(contractsSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, r *Report) error {
	period := "all"
	if r.Filter.From != nil || r.Filter.To != nil {
		from, to := "…", "…"
		if r.Filter.From != nil {
			from = r.Filter.From.Format(dateLayout)
		}
		if r.Filter.To != nil {
			to = r.Filter.To.Format(dateLayout)
		}
		period = from + " - " + to
	}
	paymentType := string(r.Filter.PaymentType)
	if paymentType == "" {
		paymentType = "all"
	}

	lines := [][2]interface{}{
		{"Generated at", r.GeneratedAt.Format(dateLayout)},
		{"Period", period},
		{"Payment type", paymentType},
		{"Capital outstanding", money(r.Totals.CapitalOutstanding)},
		{"Pending interest", money(r.Totals.PendingInterest)},
		{"Amount due in period", money(r.Totals.AmountDueInRange)},
		{"Overdue amount", money(r.Totals.OverdueAmount)},
		{"Received in period", money(r.Totals.TotalReceivedInRange)},
		{"Realized profit in period", money(r.Totals.RealizedProfitInRange)},
		{"Contracts", r.Totals.ContractsConsidered},
		{"Overdue contracts", r.Totals.OverdueContracts},
		{"Skipped contracts", len(r.Totals.Skipped)},
	}
	for i, l := range lines {
		row := i + 1
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), l[0]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), l[1]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
